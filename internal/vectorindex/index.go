// Package vectorindex stores product embeddings and answers similarity and
// metadata queries over them.
package vectorindex

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
)

// Common errors
var (
	// ErrDimensionMismatch indicates a configuration error: a vector whose length
	// differs from the index dimension. Callers must not treat it as a miss.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrNotFound          = errors.New("embedding not found")
)

// Index is the product vector index.
type Index interface {
	// Upsert stores or replaces the entry for entry.ProductID.
	Upsert(ctx context.Context, entry Entry) error

	// Delete removes the entry for a product. Deleting a missing id is not an error.
	Delete(ctx context.Context, productID string) error

	// Get returns the stored entry for a product.
	Get(ctx context.Context, productID string) (*Entry, error)

	// SearchByVector ranks entries by cosine similarity after applying predicates.
	SearchByVector(ctx context.Context, q Query) ([]Result, error)

	// SearchByMetadata returns products matching exact filters, without vector math.
	SearchByMetadata(ctx context.Context, f MetadataFilter) ([]catalog.Product, error)

	// IDs returns every indexed product id.
	IDs(ctx context.Context) ([]string, error)

	// Count returns the number of indexed products.
	Count(ctx context.Context) (int64, error)

	// Dimension returns the fixed vector dimension.
	Dimension() int

	// Close releases resources.
	Close() error
}

// Metadata is the product data denormalized next to each vector.
type Metadata struct {
	Name        string
	Description string
	Category    string
	Brand       string
	Price       float64
	Tags        []string
}

// MetadataFromProduct copies the indexed fields of a product.
func MetadataFromProduct(p catalog.Product) Metadata {
	return Metadata{
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Brand:       p.Brand,
		Price:       p.Price,
		Tags:        append([]string(nil), p.Tags...),
	}
}

// Equal reports whether two metadata records carry the same values.
func (m Metadata) Equal(o Metadata) bool {
	return m.Name == o.Name &&
		m.Description == o.Description &&
		m.Category == o.Category &&
		m.Brand == o.Brand &&
		m.Price == o.Price &&
		slices.Equal(m.Tags, o.Tags)
}

// Product rebuilds a catalog record from indexed metadata.
func (m Metadata) Product(id string) catalog.Product {
	return catalog.Product{
		ID:          id,
		Name:        m.Name,
		Description: m.Description,
		Category:    m.Category,
		Brand:       m.Brand,
		Price:       m.Price,
		Tags:        append([]string(nil), m.Tags...),
		Active:      true,
	}
}

// Entry is one embedding record.
type Entry struct {
	ProductID   string
	Vector      []float32
	Metadata    Metadata
	SourceText  string
	ContentHash string
	Model       string
	UpdatedAt   time.Time
}

// Query describes a similarity search. Predicates apply before ranking.
type Query struct {
	Vector        []float32
	K             int     // <= 0 means no cap
	MinSimilarity float64 // results below are dropped
	Category      string  // case-insensitive equality; empty matches all
	PriceRange    *catalog.PriceRange
	ExcludeIDs    []string
}

// Result is one ranked search hit.
type Result struct {
	ProductID  string
	Metadata   Metadata
	Similarity float64
}

// Product returns the hit as a catalog record.
func (r Result) Product() catalog.Product {
	return r.Metadata.Product(r.ProductID)
}

// MetadataFilter is an exact-match filter. Zero-valued fields match everything.
type MetadataFilter struct {
	Category   string
	Brand      string
	PriceRange *catalog.PriceRange
	ProductIDs []string
	Limit      int
}

// Cosine returns dot(a,b)/(|a||b|). Zero-norm or length-mismatched inputs yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Clamp to [-1, 1] range due to floating point errors
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim
}

// SortResults orders hits by similarity descending, ties broken by product id.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ProductID < results[j].ProductID
	})
}

func categoryMatches(filter, category string) bool {
	return filter == "" || strings.EqualFold(strings.TrimSpace(filter), strings.TrimSpace(category))
}

func priceMatches(r *catalog.PriceRange, price float64) bool {
	return r == nil || r.Contains(price)
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// matchesQuery applies the pre-ranking predicates of a similarity query.
func matchesQuery(q Query, id string, m Metadata) bool {
	return categoryMatches(q.Category, m.Category) &&
		priceMatches(q.PriceRange, m.Price) &&
		!containsID(q.ExcludeIDs, id)
}

// matchesFilter applies a metadata filter.
func matchesFilter(f MetadataFilter, id string, m Metadata) bool {
	if !categoryMatches(f.Category, m.Category) {
		return false
	}
	if f.Brand != "" && !strings.EqualFold(f.Brand, m.Brand) {
		return false
	}
	if !priceMatches(f.PriceRange, m.Price) {
		return false
	}
	if len(f.ProductIDs) > 0 && !containsID(f.ProductIDs, id) {
		return false
	}
	return true
}
