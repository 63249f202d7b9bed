package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_Validate(t *testing.T) {
	ok := Product{ID: "1", Name: "Trail Runner", Price: 0}
	assert.NoError(t, ok.Validate())

	noName := Product{ID: "2", Name: "  ", Price: 10}
	assert.ErrorIs(t, noName.Validate(), ErrInvalidProduct)

	negative := Product{ID: "3", Name: "Broken", Price: -1}
	assert.ErrorIs(t, negative.Validate(), ErrInvalidProduct)
}

func TestPriceRange_Contains_Inclusive(t *testing.T) {
	r := PriceRange{Min: 0, Max: 500}
	assert.True(t, r.Contains(0))
	assert.True(t, r.Contains(500))
	assert.True(t, r.Contains(450))
	assert.False(t, r.Contains(500.01))
}

func TestPriceBand(t *testing.T) {
	assert.Equal(t, "budget", PriceBand(49.99))
	assert.Equal(t, "affordable", PriceBand(50))
	assert.Equal(t, "mid-range", PriceBand(450))
	assert.Equal(t, "premium", PriceBand(999))
	assert.Equal(t, "luxury", PriceBand(1200))
}

func TestSourceText(t *testing.T) {
	p := Product{
		Name:        "Gaming Laptop Pro",
		Category:    "Electronics",
		Brand:       "Acme",
		Description: strings.Repeat("x", 300),
		Tags:        []string{"gaming", "laptop"},
		Price:       450,
	}

	text := SourceText(p)
	assert.True(t, strings.HasPrefix(text, "Gaming Laptop Pro | Category: Electronics | Brand: Acme | "))
	assert.Contains(t, text, strings.Repeat("x", 200)+" | Tags: gaming, laptop")
	assert.NotContains(t, text, strings.Repeat("x", 201))
	assert.True(t, strings.HasSuffix(text, "Price range: mid-range"))
}

func TestContentHash_DependsOnModel(t *testing.T) {
	a := ContentHash("model-a", "text")
	assert.Equal(t, a, ContentHash("model-a", "text"))
	assert.NotEqual(t, a, ContentHash("model-b", "text"))
	assert.Len(t, a, 64)
}

func TestMemoryStore_ListAndGet(t *testing.T) {
	store := NewMemoryStore(
		Product{ID: "b", Name: "B", Category: "Home", Active: true},
		Product{ID: "a", Name: "A", Category: "Home", Active: true},
		Product{ID: "c", Name: "C", Category: "Home", Active: false},
	)
	ctx := context.Background()

	active, err := store.ListActiveProducts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "b", active[1].ID)

	inactive, err := store.GetProduct(ctx, "c")
	require.NoError(t, err)
	assert.False(t, inactive.Active)

	_, err = store.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	store.Remove("a")
	active, err = store.ListActiveProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
