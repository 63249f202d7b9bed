package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/supabase-community/supabase-go"
)

// SupabaseConfig holds Supabase connection configuration.
type SupabaseConfig struct {
	URL    string
	APIKey string
	Table  string // Default: products
}

// SupabaseStore reads products through the Supabase REST API.
type SupabaseStore struct {
	client *supabase.Client
	table  string
}

type supabaseProduct struct {
	ID          rowID    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Brand       string   `json:"brand"`
	Price       float64  `json:"price"`
	Tags        []string `json:"tags"`
	Active      bool     `json:"active"`
	UpdatedAt   string   `json:"updated_at"`
}

// NewSupabaseStore creates a new Supabase-backed product store.
func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	if cfg.Table == "" {
		cfg.Table = "products"
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &SupabaseStore{client: client, table: cfg.Table}, nil
}

// ListActiveProducts returns active products ordered by id.
func (s *SupabaseStore) ListActiveProducts(ctx context.Context) ([]Product, error) {
	var rows []supabaseProduct
	_, err := s.client.From(s.table).
		Select("*", "", false).
		Eq("active", "true").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list active products: %w", err)
	}

	products := make([]Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toProduct())
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// GetProduct returns a product by id.
func (s *SupabaseStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	var rows []supabaseProduct
	_, err := s.client.From(s.table).
		Select("*", "", false).
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	p := rows[0].toProduct()
	return &p, nil
}

// rowID accepts both integer and text primary keys.
type rowID string

func (id *rowID) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = rowID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = rowID(n.String())
	return nil
}

func (r supabaseProduct) toProduct() Product {
	p := Product{
		ID:          string(r.ID),
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Brand:       r.Brand,
		Price:       r.Price,
		Tags:        r.Tags,
		Active:      r.Active,
	}
	p.UpdatedAt = parseTimestamp(r.UpdatedAt)
	return p
}

// parseTimestamp accepts the layouts PostgREST emits for timestamp and timestamptz columns.
func parseTimestamp(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

var _ Store = (*SupabaseStore)(nil)
