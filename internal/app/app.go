// Package app builds the process-wide dependency graph from configuration and
// tears it down in reverse order.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/evaluation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/generation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/metrics"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommendation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/vectorindex"
)

// App owns every long-lived client. Build it once with New and release it
// with Close.
type App struct {
	Config   *config.Config
	Logger   *observability.Logger
	Store    catalog.Store
	Index    vectorindex.Index
	Embedder embedding.Embedder
	Cache    cache.Client
	Metrics  *metrics.Recorder
	Engine   *recommendation.Engine

	// SQLStore is set for the sqlite and postgres drivers; MemoryStore for
	// the memory driver. Both accept writes for seeding.
	SQLStore    *catalog.SQLStore
	MemoryStore *catalog.MemoryStore

	closers []func() error
}

// Options adjust construction.
type Options struct {
	// SkipStartupRefresh disables refresh.on_startup, for short-lived
	// commands that do their own refresh.
	SkipStartupRefresh bool
}

// New connects every dependency named by cfg. On failure, whatever was
// already opened is closed before returning.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts Options) (a *App, err error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	a = &App{Config: cfg, Logger: logger}
	partial := a
	defer func() {
		if err != nil {
			_ = partial.Close()
		}
	}()

	if err = a.openStore(ctx); err != nil {
		return nil, err
	}
	if err = a.openIndex(ctx); err != nil {
		return nil, err
	}
	if err = a.openEmbedder(); err != nil {
		return nil, err
	}
	if err = a.openCache(ctx); err != nil {
		return nil, err
	}

	if cfg.Observability.MetricsEnabled {
		a.Metrics = metrics.NewRecorder(metrics.DefaultConfig())
	}

	backend, backendErr := generation.NewBackend(generation.BackendConfig{
		Provider:    cfg.Generation.Provider,
		BaseURL:     cfg.Generation.BaseURL,
		APIKey:      cfg.Generation.APIKey,
		Model:       cfg.Generation.Model,
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
	})
	switch {
	case errors.Is(backendErr, generation.ErrBackendNotConfigured):
		logger.Info().Msg("No generation backend configured, responses use templates")
		backend = nil
	case backendErr != nil:
		return nil, domain.ConfigError("create generation backend", backendErr)
	}

	a.Engine, err = recommendation.New(recommendation.Dependencies{
		Logger:    logger,
		Store:     a.Store,
		Index:     a.Index,
		Embedder:  a.Embedder,
		Generator: generation.NewGenerator(backend, cfg.Generation.Timeout, logger),
		Cache:     a.Cache,
		Metrics:   a.Metrics,
	}, engineConfig(cfg))
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("vector", cfg.Vector.Adapter).
		Str("embedding", a.Embedder.Model()).
		Int("dimension", a.Embedder.Dimension()).
		Str("cache", cfg.Cache.Driver).
		Str("generation", cfg.Generation.Provider).
		Msg("Recommendation engine initialized")

	if cfg.Refresh.OnStartup && !opts.SkipStartupRefresh {
		report, refreshErr := a.Engine.RefreshEmbeddings(ctx, recommendation.RefreshRequest{})
		switch {
		case domain.IsType(refreshErr, domain.ErrorTypeFatal):
			return nil, refreshErr
		case refreshErr != nil:
			logger.Warn().Err(refreshErr).Msg("Startup embedding refresh failed")
		default:
			logger.Info().
				Int("successful", report.Successful).
				Int("skipped", report.Skipped).
				Int("failed", report.Failed).
				Msg("Startup embedding refresh finished")
		}
	}

	return a, nil
}

// Close releases clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config.Database
	switch cfg.Driver {
	case "memory":
		a.MemoryStore = catalog.NewMemoryStore()
		a.Store = a.MemoryStore
		return nil

	case "supabase":
		store, err := catalog.NewSupabaseStore(catalog.SupabaseConfig{
			URL:    cfg.Supabase.URL,
			APIKey: cfg.Supabase.Key,
			Table:  cfg.Supabase.Table,
		})
		if err != nil {
			return domain.ConfigError("create supabase store", err)
		}
		a.Store = store
		return nil

	case "sqlite":
		dsn := cfg.SQLite.Path
		if cfg.SQLite.JournalMode != "" {
			dsn += "?_journal_mode=" + cfg.SQLite.JournalMode
		}
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return domain.DependencyError("open sqlite catalog", err)
		}
		a.onClose(db.Close)
		if cfg.SQLite.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.SQLite.MaxOpenConns)
		}
		return a.useSQLStore(ctx, db, catalog.DialectSQLite)

	case "postgres":
		db, err := a.openPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		return a.useSQLStore(ctx, db, catalog.DialectPostgres)
	}
	return domain.ConfigError(fmt.Sprintf("unknown database driver %q", cfg.Driver), nil)
}

func (a *App) useSQLStore(ctx context.Context, db *sql.DB, dialect catalog.Dialect) error {
	store := catalog.NewSQLStore(db, dialect)
	if err := store.EnsureSchema(ctx); err != nil {
		return domain.DependencyError("prepare catalog schema", err)
	}
	a.SQLStore = store
	a.Store = store
	return nil
}

func (a *App) openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, domain.ConfigError("postgres DSN is required", nil)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, domain.DependencyError("open postgres", err)
	}
	a.onClose(db.Close)

	pg := a.Config.Database.Postgres
	db.SetMaxOpenConns(pg.MaxOpenConns)
	db.SetMaxIdleConns(pg.MaxIdleConns)
	db.SetConnMaxLifetime(pg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return nil, domain.DependencyError("ping postgres", err)
	}
	return db, nil
}

func (a *App) openIndex(ctx context.Context) error {
	cfg := a.Config.Vector
	dimension := a.Config.Embedding.Dimension

	switch cfg.Adapter {
	case "memory":
		idx, err := vectorindex.NewMemoryIndex(dimension)
		if err != nil {
			return domain.ConfigError("create memory index", err)
		}
		a.Index = idx

	case "pgvector":
		db, err := a.openPostgres(ctx, a.Config.VectorDSN())
		if err != nil {
			return err
		}
		idx, err := vectorindex.NewPGVectorIndex(db, vectorindex.PGVectorConfig{
			Table:     cfg.PGVector.Table,
			Dimension: dimension,
			IndexType: cfg.PGVector.IndexType,
			Lists:     cfg.PGVector.Lists,
		})
		if err != nil {
			return domain.ConfigError("create pgvector index", err)
		}
		if err := idx.EnsureSchema(ctx); err != nil {
			return indexSetupError(err)
		}
		a.Index = idx

	case "qdrant":
		idx, err := vectorindex.NewQdrantIndex(vectorindex.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
			Dimension:  dimension,
		})
		if err != nil {
			return domain.ConfigError("create qdrant index", err)
		}
		a.onClose(idx.Close)
		if err := idx.EnsureCollection(ctx); err != nil {
			return indexSetupError(err)
		}
		a.Index = idx

	default:
		return domain.ConfigError(fmt.Sprintf("unknown vector adapter %q", cfg.Adapter), nil)
	}
	return nil
}

func indexSetupError(err error) error {
	if errors.Is(err, vectorindex.ErrDimensionMismatch) {
		return domain.FatalError("stored vectors do not match the configured dimension", err)
	}
	return domain.DependencyError("prepare vector index", err)
}

func (a *App) openEmbedder() error {
	cfg := a.Config.Embedding

	var base embedding.Embedder
	if cfg.Provider == "hash" {
		base = embedding.NewHashEmbedder(cfg.Dimension)
	} else {
		retry := embedding.DefaultRetryConfig()
		retry.MaxRetries = cfg.MaxRetries
		client, err := embedding.NewClient(embedding.Config{
			Provider:  cfg.Provider,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
			Retry:     &retry,
		}, a.Logger)
		if err != nil {
			return domain.ConfigError("create embedding client", err)
		}
		base = client
	}

	cached, err := embedding.NewCachedEmbedder(base, cfg.CacheSize)
	if err != nil {
		return domain.ConfigError("create embedding cache", err)
	}
	a.Embedder = cached
	return nil
}

func (a *App) openCache(ctx context.Context) error {
	cfg := a.Config.Cache
	switch cfg.Driver {
	case "redis":
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return domain.DependencyError("connect redis cache", err)
		}
		a.Cache = client
	default:
		a.Cache = cache.NewMemoryClient(cfg.MaxEntries)
	}
	a.onClose(a.Cache.Close)
	return nil
}

// engineConfig maps file configuration onto façade tuning.
func engineConfig(cfg *config.Config) recommendation.Config {
	return recommendation.Config{
		DefaultThreshold:         cfg.Retrieval.DefaultThreshold,
		MaxProducts:              cfg.Retrieval.MaxProducts,
		CacheTTL:                 cfg.Cache.TTL,
		RefreshBatchSize:         cfg.Embedding.BatchSize,
		RefreshConcurrency:       cfg.Refresh.Concurrency,
		RefreshRequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Retrieval: retrieval.Config{
			DefaultThreshold:         cfg.Retrieval.DefaultThreshold,
			MaxProducts:              cfg.Retrieval.MaxProducts,
			PrimaryOverFetchFactor:   cfg.Retrieval.PrimaryOverFetchFactor,
			PrimaryThresholdFactor:   cfg.Retrieval.PrimaryThresholdFactor,
			ExpansionThresholdFactor: cfg.Retrieval.ExpansionThresholdFactor,
			ExpansionK:               cfg.Retrieval.ExpansionK,
			MaxExpansions:            cfg.Retrieval.MaxExpansions,
			SparseResultThreshold:    cfg.Retrieval.SparseResultThreshold,
		},
		Evaluation: evaluation.Config{
			LowCutoff:       cfg.Evaluation.LowCutoff,
			MidCutoff:       cfg.Evaluation.MidCutoff,
			MaxCategories:   cfg.Evaluation.MaxCategories,
			WidePriceSpread: cfg.Evaluation.WidePriceSpread,
		},
	}
}
