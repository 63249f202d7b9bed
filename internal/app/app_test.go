package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommendation"
)

func memoryConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "memory"
	cfg.Embedding.Dimension = 64
	cfg.Refresh.OnStartup = false
	return cfg
}

func TestNew_MemoryStack(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), nil, Options{})
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	require.NotNil(t, a.MemoryStore)
	assert.Nil(t, a.SQLStore)
	assert.NotNil(t, a.Metrics)
	assert.Equal(t, 64, a.Index.Dimension())

	a.MemoryStore.Put(catalog.Product{ID: "p1", Name: "Trail Running Shoe", Category: "Shoes", Price: 120, Active: true})
	report, err := a.Engine.RefreshEmbeddings(ctx, recommendation.RefreshRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Successful)

	status := a.Engine.Status(ctx)
	assert.True(t, status.IndexReachable)
	assert.True(t, status.CacheReachable)
	assert.False(t, status.GenerationConfigured)
}

func TestNew_SQLiteStoreWithStartupRefresh(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "catalog.db")

	seed, err := New(ctx, cfg, nil, Options{})
	require.NoError(t, err)
	require.NotNil(t, seed.SQLStore)
	require.NoError(t, seed.SQLStore.Upsert(ctx, catalog.Product{
		ID: "p1", Name: "Rain Jacket", Category: "Clothing", Price: 89.5, Active: true,
	}))
	require.NoError(t, seed.Close())

	cfg.Refresh.OnStartup = true
	a, err := New(ctx, cfg, nil, Options{})
	require.NoError(t, err)
	defer a.Close()

	count, err := a.Index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestNew_GenerationProviderWithoutKey(t *testing.T) {
	cfg := memoryConfig()
	cfg.Generation.Provider = "openai"

	_, err := New(context.Background(), cfg, nil, Options{})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestNew_PostgresRequiresDSN(t *testing.T) {
	cfg := memoryConfig()
	cfg.Database.Driver = "postgres"

	_, err := New(context.Background(), cfg, nil, Options{})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestEngineConfig_MapsSections(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Retrieval.MaxProducts = 20
	cfg.Evaluation.MidCutoff = 0.5

	ec := engineConfig(cfg)
	assert.Equal(t, 20, ec.MaxProducts)
	assert.Equal(t, 20, ec.Retrieval.MaxProducts)
	assert.Equal(t, 0.5, ec.Evaluation.MidCutoff)
	assert.Equal(t, cfg.Cache.TTL, ec.CacheTTL)
	assert.Equal(t, cfg.Embedding.BatchSize, ec.RefreshBatchSize)
}
