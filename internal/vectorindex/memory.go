package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
)

// MemoryIndex is an in-process index with exact cosine search. Readers run
// concurrently; each upsert is atomic per product.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]Entry
}

// NewMemoryIndex creates an empty index of a fixed dimension.
func NewMemoryIndex(dimension int) (*MemoryIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dimension)
	}
	return &MemoryIndex{
		dimension: dimension,
		entries:   make(map[string]Entry),
	}, nil
}

// Upsert stores an entry, last write wins.
func (m *MemoryIndex) Upsert(ctx context.Context, entry Entry) error {
	if entry.ProductID == "" {
		return fmt.Errorf("upsert: empty product id")
	}
	if len(entry.Vector) != m.dimension {
		return fmt.Errorf("%w: expected %d, got %d for product %s",
			ErrDimensionMismatch, m.dimension, len(entry.Vector), entry.ProductID)
	}

	stored := entry
	stored.Vector = append([]float32(nil), entry.Vector...)
	stored.Metadata.Tags = append([]string(nil), entry.Metadata.Tags...)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}

	m.mu.Lock()
	m.entries[entry.ProductID] = stored
	m.mu.Unlock()
	return nil
}

// Delete removes a product's entry.
func (m *MemoryIndex) Delete(ctx context.Context, productID string) error {
	m.mu.Lock()
	delete(m.entries, productID)
	m.mu.Unlock()
	return nil
}

// Get returns a copy of a product's entry.
func (m *MemoryIndex) Get(ctx context.Context, productID string) (*Entry, error) {
	m.mu.RLock()
	entry, ok := m.entries[productID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	entry.Vector = append([]float32(nil), entry.Vector...)
	return &entry, nil
}

// SearchByVector filters, scores every remaining entry, and returns the top k.
func (m *MemoryIndex) SearchByVector(ctx context.Context, q Query) ([]Result, error) {
	if len(q.Vector) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d",
			ErrDimensionMismatch, len(q.Vector), m.dimension)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	results := make([]Result, 0, len(m.entries))
	for id, entry := range m.entries {
		if !matchesQuery(q, id, entry.Metadata) {
			continue
		}
		sim := Cosine(q.Vector, entry.Vector)
		if sim < q.MinSimilarity {
			continue
		}
		results = append(results, Result{ProductID: id, Metadata: entry.Metadata, Similarity: sim})
	}
	m.mu.RUnlock()

	SortResults(results)
	if q.K > 0 && len(results) > q.K {
		results = results[:q.K]
	}
	return results, nil
}

// SearchByMetadata returns matching products ordered by id.
func (m *MemoryIndex) SearchByMetadata(ctx context.Context, f MetadataFilter) ([]catalog.Product, error) {
	m.mu.RLock()
	var products []catalog.Product
	for id, entry := range m.entries {
		if matchesFilter(f, id, entry.Metadata) {
			products = append(products, entry.Metadata.Product(id))
		}
	}
	m.mu.RUnlock()

	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	if f.Limit > 0 && len(products) > f.Limit {
		products = products[:f.Limit]
	}
	return products, nil
}

// IDs returns indexed product ids in sorted order.
func (m *MemoryIndex) IDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of indexed products.
func (m *MemoryIndex) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.entries)), nil
}

// Dimension returns the index dimension.
func (m *MemoryIndex) Dimension() int {
	return m.dimension
}

// Close releases resources.
func (m *MemoryIndex) Close() error {
	return nil
}

var _ Index = (*MemoryIndex)(nil)
