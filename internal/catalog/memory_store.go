package catalog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store, used for tests and demo catalogs.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]Product
}

// NewMemoryStore creates a store seeded with the given products.
func NewMemoryStore(products ...Product) *MemoryStore {
	s := &MemoryStore{products: make(map[string]Product, len(products))}
	for _, p := range products {
		s.Put(p)
	}
	return s
}

// Put inserts or replaces a product.
func (s *MemoryStore) Put(p Product) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	p.Tags = append([]string(nil), p.Tags...)

	s.mu.Lock()
	s.products[p.ID] = p
	s.mu.Unlock()
}

// Remove deletes a product.
func (s *MemoryStore) Remove(id string) {
	s.mu.Lock()
	delete(s.products, id)
	s.mu.Unlock()
}

// ListActiveProducts returns active products ordered by id.
func (s *MemoryStore) ListActiveProducts(ctx context.Context) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetProduct returns a product by id, active or not.
func (s *MemoryStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

var _ Store = (*MemoryStore)(nil)
