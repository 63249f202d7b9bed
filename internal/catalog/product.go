// Package catalog defines product records and the product stores the
// recommendation engine reads from.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors
var (
	ErrNotFound       = errors.New("product not found")
	ErrInvalidProduct = errors.New("invalid product")
)

// maxDescriptionChars bounds the description portion of embedding source text.
const maxDescriptionChars = 200

// Product is a catalog row. The recommendation core treats it as read-only.
type Product struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Category    string    `json:"category" yaml:"category"`
	Brand       string    `json:"brand,omitempty" yaml:"brand"`
	Price       float64   `json:"price" yaml:"price"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags"`
	Active      bool      `json:"active" yaml:"active"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// Validate requires a non-empty id and name and a non-negative price.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidProduct)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product %s has empty name", ErrInvalidProduct, p.ID)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: product %s has negative price %.2f", ErrInvalidProduct, p.ID, p.Price)
	}
	return nil
}

// PriceRange is an inclusive price interval.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether price falls within the range, bounds included.
func (r PriceRange) Contains(price float64) bool {
	return price >= r.Min && price <= r.Max
}

// Store provides read access to the product catalog.
type Store interface {
	ListActiveProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
}

// PriceBand maps a price onto a coarse band used in embedding text.
func PriceBand(price float64) string {
	switch {
	case price < 50:
		return "budget"
	case price < 200:
		return "affordable"
	case price < 500:
		return "mid-range"
	case price < 1000:
		return "premium"
	default:
		return "luxury"
	}
}

// SourceText builds the text that gets embedded for a product.
func SourceText(p Product) string {
	parts := []string{p.Name}
	if p.Category != "" {
		parts = append(parts, "Category: "+p.Category)
	}
	if p.Brand != "" {
		parts = append(parts, "Brand: "+p.Brand)
	}
	if desc := strings.TrimSpace(p.Description); desc != "" {
		if runes := []rune(desc); len(runes) > maxDescriptionChars {
			desc = string(runes[:maxDescriptionChars])
		}
		parts = append(parts, desc)
	}
	if len(p.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(p.Tags, ", "))
	}
	parts = append(parts, "Price range: "+PriceBand(p.Price))
	return strings.Join(parts, " | ")
}

// ContentHash fingerprints source text for a given embedding model.
func ContentHash(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
