//go:build integration

package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
)

func startPGVector(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase("recommendation_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := sql.Open("postgres", fmt.Sprintf(
		"postgres://test:test@%s:%s/recommendation_test?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))
	return db
}

func TestPGVectorIndex_Integration(t *testing.T) {
	db := startPGVector(t)
	ctx := context.Background()

	idx, err := NewPGVectorIndex(db, PGVectorConfig{Dimension: 3, IndexType: "none"})
	require.NoError(t, err)
	require.NoError(t, idx.EnsureSchema(ctx))

	entries := []Entry{
		{ProductID: "gaming-laptop", Vector: []float32{1, 0.1, 0}, Metadata: Metadata{Name: "Gaming Laptop Pro", Category: "Electronics", Price: 450, Tags: []string{"gaming"}}, ContentHash: "h1", Model: "hash"},
		{ProductID: "ultra-laptop", Vector: []float32{1, 0, 0}, Metadata: Metadata{Name: "Ultra Laptop", Category: "Electronics", Price: 1200}, ContentHash: "h2", Model: "hash"},
		{ProductID: "boots", Vector: []float32{0, 0.2, 1}, Metadata: Metadata{Name: "Trail Boots", Category: "Shoes", Brand: "Nike", Price: 130}, ContentHash: "h3", Model: "hash"},
	}
	for _, e := range entries {
		require.NoError(t, idx.Upsert(ctx, e))
	}

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	results, err := idx.SearchByVector(ctx, Query{
		Vector:     []float32{1, 0.05, 0},
		K:          5,
		Category:   "electronics",
		PriceRange: &catalog.PriceRange{Min: 0, Max: 500},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "gaming-laptop", results[0].ProductID)
	assert.Equal(t, []string{"gaming"}, results[0].Metadata.Tags)
	assert.Greater(t, results[0].Similarity, 0.9)

	got, err := idx.Get(ctx, "boots")
	require.NoError(t, err)
	assert.Equal(t, "h3", got.ContentHash)
	assert.Equal(t, "Nike", got.Metadata.Brand)

	products, err := idx.SearchByMetadata(ctx, MetadataFilter{Brand: "Nike"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "boots", products[0].ID)

	err = idx.Upsert(ctx, Entry{ProductID: "bad", Vector: []float32{1, 2}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, idx.Delete(ctx, "boots"))
	_, err = idx.Get(ctx, "boots")
	assert.ErrorIs(t, err, ErrNotFound)

	wider, err := NewPGVectorIndex(db, PGVectorConfig{Dimension: 8, IndexType: "none"})
	require.NoError(t, err)
	assert.ErrorIs(t, wider.EnsureSchema(ctx), ErrDimensionMismatch)
}
