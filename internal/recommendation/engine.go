// Package recommendation is the engine façade. It validates requests, runs
// analysis, retrieval, evaluation and generation, and owns the embedding
// refresh job.
package recommendation

import (
	"context"
	"math"
	"time"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/evaluation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/expansion"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/generation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/metrics"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/vectorindex"
)

// Operation names used for metrics and logs.
const (
	OpSearch  = "search"
	OpCompare = "compare"
	OpSimilar = "similar"
	OpRefresh = "refresh"
)

const searchCachePrefix = "search"

// Config holds façade tuning.
type Config struct {
	DefaultThreshold         float64
	MaxProducts              int
	CacheTTL                 time.Duration
	RefreshBatchSize         int
	RefreshConcurrency       int
	RefreshRequestsPerSecond float64

	Retrieval  retrieval.Config
	Evaluation evaluation.Config
}

// DefaultConfig returns the stock façade tuning.
func DefaultConfig() Config {
	return Config{
		DefaultThreshold:         0.2,
		MaxProducts:              10,
		CacheTTL:                 5 * time.Minute,
		RefreshBatchSize:         32,
		RefreshConcurrency:       4,
		RefreshRequestsPerSecond: 10,
		Retrieval:                retrieval.DefaultConfig(),
		Evaluation:               evaluation.DefaultConfig(),
	}
}

// Dependencies are the collaborators the engine is built from. Store, Index
// and Embedder are required; the rest are optional.
type Dependencies struct {
	Logger    *observability.Logger
	Store     catalog.Store
	Index     vectorindex.Index
	Embedder  embedding.Embedder
	Generator *generation.Generator
	Cache     cache.Client
	Metrics   *metrics.Recorder
}

// Engine serves search, compare, similar and refresh operations.
type Engine struct {
	logger    *observability.Logger
	store     catalog.Store
	index     vectorindex.Index
	embedder  embedding.Embedder
	analyzer  *intent.Analyzer
	retriever *retrieval.Orchestrator
	evaluator *evaluation.Evaluator
	generator *generation.Generator
	cache     cache.Client
	metrics   *metrics.Recorder
	config    Config
}

// New wires an engine. It fails when the embedder and the index disagree on
// vector dimension.
func New(deps Dependencies, cfg Config) (*Engine, error) {
	if deps.Store == nil || deps.Index == nil || deps.Embedder == nil {
		return nil, domain.ConfigError("store, index and embedder are required", nil)
	}
	if deps.Embedder.Dimension() != deps.Index.Dimension() {
		return nil, domain.FatalError(
			"embedding dimension does not match index dimension",
			vectorindex.ErrDimensionMismatch,
		)
	}

	defaults := DefaultConfig()
	if cfg.MaxProducts <= 0 {
		cfg.MaxProducts = defaults.MaxProducts
	}
	if cfg.DefaultThreshold < 0 || cfg.DefaultThreshold > 1 {
		cfg.DefaultThreshold = defaults.DefaultThreshold
	}
	if cfg.RefreshBatchSize <= 0 {
		cfg.RefreshBatchSize = defaults.RefreshBatchSize
	}
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = defaults.RefreshConcurrency
	}
	if cfg.RefreshRequestsPerSecond <= 0 {
		cfg.RefreshRequestsPerSecond = math.Inf(1)
	}
	cfg.Retrieval.DefaultThreshold = cfg.DefaultThreshold
	cfg.Retrieval.MaxProducts = cfg.MaxProducts

	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	generator := deps.Generator
	if generator == nil {
		generator = generation.NewGenerator(nil, 0, logger)
	}

	return &Engine{
		logger:   logger.WithComponent("recommendation"),
		store:    deps.Store,
		index:    deps.Index,
		embedder: deps.Embedder,
		analyzer: intent.NewAnalyzer(),
		retriever: retrieval.NewOrchestrator(
			logger,
			deps.Index,
			deps.Embedder,
			expansion.NewExpander(expansion.MaxExpansions),
			cfg.Retrieval,
		),
		evaluator: evaluation.NewEvaluator(cfg.Evaluation),
		generator: generator,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		config:    cfg,
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Stats aggregates the indexed catalog.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	count, err := e.index.Count(ctx)
	if err != nil {
		return nil, domain.DependencyError("count indexed products", err)
	}
	products, err := e.index.SearchByMetadata(ctx, vectorindex.MetadataFilter{})
	if err != nil {
		return nil, domain.DependencyError("list indexed products", err)
	}
	e.metrics.SetIndexedProducts(count)

	stats := &Stats{
		IndexedProducts: count,
		EmbeddingModel:  e.embedder.Model(),
		Dimension:       e.embedder.Dimension(),
		Categories:      make(map[string]CategoryStats),
	}
	if len(products) == 0 {
		return stats, nil
	}

	var total float64
	stats.MinPrice, stats.MaxPrice = math.Inf(1), math.Inf(-1)
	sums := make(map[string]float64)
	for _, p := range products {
		total += p.Price
		stats.MinPrice = math.Min(stats.MinPrice, p.Price)
		stats.MaxPrice = math.Max(stats.MaxPrice, p.Price)

		c, ok := stats.Categories[p.Category]
		if !ok {
			c.MinPrice, c.MaxPrice = p.Price, p.Price
		}
		c.Count++
		c.MinPrice = math.Min(c.MinPrice, p.Price)
		c.MaxPrice = math.Max(c.MaxPrice, p.Price)
		sums[p.Category] += p.Price
		stats.Categories[p.Category] = c
	}
	stats.AvgPrice = total / float64(len(products))
	for name, c := range stats.Categories {
		c.AvgPrice = sums[name] / float64(c.Count)
		stats.Categories[name] = c
	}
	return stats, nil
}

// Status probes the index and the cache. It never fails; unreachable
// dependencies are reported as such.
func (e *Engine) Status(ctx context.Context) Status {
	s := Status{
		GenerationConfigured: e.generator.Configured(),
		GenerationBackend:    e.generator.BackendName(),
		EmbeddingModel:       e.embedder.Model(),
		Dimension:            e.embedder.Dimension(),
	}

	if count, err := e.index.Count(ctx); err != nil {
		e.logger.WithContext(ctx).Warn().Stack().Err(err).Msg("Vector index unreachable")
	} else {
		s.IndexReachable = true
		s.IndexedProducts = count
		e.metrics.SetIndexedProducts(count)
	}

	if e.cache != nil {
		if err := e.cache.Ping(ctx); err != nil {
			e.logger.WithContext(ctx).Warn().Err(err).Msg("Response cache unreachable")
		} else {
			s.CacheReachable = true
		}
	}
	return s
}

func (e *Engine) invalidateSearchCache(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.DeleteByPrefix(ctx, searchCachePrefix+":"); err != nil {
		e.logger.WithContext(ctx).Warn().Err(err).Msg("Failed to invalidate search cache")
	}
}
