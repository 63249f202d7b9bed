//go:build integration

package catalog

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
)

func TestSQLStore_Postgres_Integration(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase("catalog_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := sql.Open("postgres", fmt.Sprintf(
		"postgres://test:test@%s:%s/catalog_test?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db, DialectPostgres)
	require.NoError(t, store.EnsureSchema(ctx))

	require.NoError(t, store.Upsert(ctx, Product{
		ID: "kettle", Name: "Steel Kettle", Category: "Kitchen", Price: 35,
		Tags: []string{"steel", "1.7l"}, Active: true,
	}))
	require.NoError(t, store.Upsert(ctx, Product{
		ID: "retired", Name: "Old Toaster", Category: "Kitchen", Price: 20, Active: false,
	}))

	active, err := store.ListActiveProducts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "kettle", active[0].ID)
	assert.Equal(t, []string{"steel", "1.7l"}, active[0].Tags)

	require.NoError(t, store.Upsert(ctx, Product{
		ID: "kettle", Name: "Steel Kettle v2", Category: "Kitchen", Price: 39, Active: true,
	}))
	got, err := store.GetProduct(ctx, "kettle")
	require.NoError(t, err)
	assert.Equal(t, "Steel Kettle v2", got.Name)
	assert.Empty(t, got.Tags)

	_, err = store.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
