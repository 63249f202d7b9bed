//go:build integration

package vectorindex

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startQdrant(t *testing.T) (string, int) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "qdrant/qdrant:v1.12.4",
			ExposedPorts: []string{"6334/tcp"},
			WaitingFor: wait.ForListeningPort("6334/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate qdrant container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6334")
	require.NoError(t, err)
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err)
	return host, p
}

func TestQdrantIndex_Integration(t *testing.T) {
	host, port := startQdrant(t)
	ctx := context.Background()

	idx, err := NewQdrantIndex(QdrantConfig{Host: host, Port: port, Collection: "products_test", Dimension: 3})
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.EnsureCollection(ctx))
	require.NoError(t, idx.EnsureCollection(ctx), "second call verifies the existing collection")

	require.NoError(t, idx.Upsert(ctx, Entry{
		ProductID: "dress", Vector: []float32{0, 1, 0},
		Metadata: Metadata{Name: "Summer Dress", Category: "Clothing", Brand: "Zara", Price: 60},
	}))
	require.NoError(t, idx.Upsert(ctx, Entry{
		ProductID: "boots", Vector: []float32{0, 0.2, 1},
		Metadata: Metadata{Name: "Trail Boots", Category: "Shoes", Brand: "Nike", Price: 130},
	}))

	// Qdrant indexes asynchronously; poll until both points are counted.
	require.Eventually(t, func() bool {
		n, err := idx.Count(ctx)
		return err == nil && n == 2
	}, 10*time.Second, 100*time.Millisecond)

	results, err := idx.SearchByVector(ctx, Query{Vector: []float32{0, 1, 0.1}, K: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "dress", results[0].ProductID)
	assert.Equal(t, "Zara", results[0].Metadata.Brand)

	ids, err := idx.IDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dress", "boots"}, ids)

	require.NoError(t, idx.Delete(ctx, "dress"))
	_, err = idx.Get(ctx, "dress")
	assert.ErrorIs(t, err, ErrNotFound)

	wrong, err := NewQdrantIndex(QdrantConfig{Host: host, Port: port, Collection: "products_test", Dimension: 5})
	require.NoError(t, err)
	defer wrong.Close()
	assert.ErrorIs(t, wrong.EnsureCollection(ctx), ErrDimensionMismatch)
}
