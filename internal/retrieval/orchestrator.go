// Package retrieval turns an analyzed query into a ranked, bounded product list.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/vectorindex"
)

// Rerank labels.
const (
	RerankNone      = ""
	RerankPriceDesc = "price_desc"
	RerankPriceAsc  = "price_asc"
)

// Degraded reasons.
const (
	ReasonEmbeddingUnavailable = "embedding_unavailable"
	ReasonIndexUnavailable     = "index_unavailable"
)

// Expander produces alternative queries for sparse results.
type Expander interface {
	Expand(query string, qi intent.QueryIntent) []string
}

// Config holds orchestrator tuning.
type Config struct {
	DefaultThreshold         float64
	MaxProducts              int
	PrimaryOverFetchFactor   int
	PrimaryThresholdFactor   float64
	ExpansionThresholdFactor float64
	ExpansionK               int
	MaxExpansions            int
	SparseResultThreshold    int
}

// DefaultConfig returns the stock retrieval tuning.
func DefaultConfig() Config {
	return Config{
		DefaultThreshold:         0.2,
		MaxProducts:              10,
		PrimaryOverFetchFactor:   2,
		PrimaryThresholdFactor:   0.8,
		ExpansionThresholdFactor: 0.6,
		ExpansionK:               5,
		MaxExpansions:            5,
		SparseResultThreshold:    3,
	}
}

// Request is a single retrieval call. Filters come from Intent.Entities.
type Request struct {
	Query     string
	Intent    intent.QueryIntent
	Limit     int
	Threshold float64
}

// ScoredProduct is a product paired with its similarity to the query.
type ScoredProduct struct {
	Product    catalog.Product `json:"product"`
	Similarity float64         `json:"similarity"`
}

// Result is the outcome of a retrieval call.
type Result struct {
	Products         []ScoredProduct `json:"products"`
	Expansions       []string        `json:"expansions,omitempty"`
	SearchCalls      int             `json:"searchCalls"`
	Rerank           string          `json:"rerank,omitempty"`
	AudienceFiltered int             `json:"audienceFiltered,omitempty"`
	Degraded         bool            `json:"degraded"`
	DegradedReason   string          `json:"degradedReason,omitempty"`
	LatencyMs        int64           `json:"latencyMs"`
}

// Orchestrator runs the primary search, the bounded expansion loop and the
// intent re-rank.
type Orchestrator struct {
	logger   *observability.Logger
	index    vectorindex.Index
	embedder embedding.Embedder
	expander Expander
	config   Config

	audienceHints map[intent.Audience]*regexp.Regexp
}

// NewOrchestrator creates a retrieval orchestrator. A nil expander disables
// the expansion loop.
func NewOrchestrator(
	logger *observability.Logger,
	index vectorindex.Index,
	embedder embedding.Embedder,
	expander Expander,
	cfg Config,
) *Orchestrator {
	defaults := DefaultConfig()
	if cfg.MaxProducts <= 0 {
		cfg.MaxProducts = defaults.MaxProducts
	}
	if cfg.PrimaryOverFetchFactor <= 0 {
		cfg.PrimaryOverFetchFactor = defaults.PrimaryOverFetchFactor
	}
	if cfg.PrimaryThresholdFactor <= 0 {
		cfg.PrimaryThresholdFactor = defaults.PrimaryThresholdFactor
	}
	if cfg.ExpansionThresholdFactor <= 0 {
		cfg.ExpansionThresholdFactor = defaults.ExpansionThresholdFactor
	}
	if cfg.ExpansionK <= 0 {
		cfg.ExpansionK = defaults.ExpansionK
	}
	if cfg.MaxExpansions <= 0 || cfg.MaxExpansions > defaults.MaxExpansions {
		cfg.MaxExpansions = defaults.MaxExpansions
	}
	if cfg.SparseResultThreshold <= 0 {
		cfg.SparseResultThreshold = defaults.SparseResultThreshold
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Orchestrator{
		logger:   logger.WithComponent("retrieval"),
		index:    index,
		embedder: embedder,
		expander: expander,
		config:   cfg,
		audienceHints: map[intent.Audience]*regexp.Regexp{
			intent.AudienceMen:   regexp.MustCompile(`\b(?:men|man|male|mens|men's|guys)\b`),
			intent.AudienceWomen: regexp.MustCompile(`\b(?:women|woman|female|womens|women's|ladies)\b`),
		},
	}
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

// Retrieve runs the retrieval pipeline. Dependency outages degrade to an empty
// result with Degraded set; only a dimension mismatch is returned as an error.
func (o *Orchestrator) Retrieve(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	logger := o.logger.WithContext(ctx)

	limit := req.Limit
	if limit <= 0 || limit > o.config.MaxProducts {
		limit = o.config.MaxProducts
	}
	entities := req.Intent.Entities

	result := &Result{}
	defer func() { result.LatencyMs = time.Since(start).Milliseconds() }()

	vector, err := o.embedder.EmbedSingle(ctx, req.Query)
	if err != nil {
		if errors.Is(err, embedding.ErrUnexpectedDimension) {
			return nil, domain.FatalError("query embedding has unexpected dimension", err)
		}
		o.degrade(logger, result, ReasonEmbeddingUnavailable, err)
		return result, nil
	}

	primary, err := o.index.SearchByVector(ctx, vectorindex.Query{
		Vector:        vector,
		K:             o.config.PrimaryOverFetchFactor * limit,
		MinSimilarity: req.Threshold * o.config.PrimaryThresholdFactor,
		Category:      entities.Category,
		PriceRange:    entities.PriceRange,
	})
	result.SearchCalls++
	if err != nil {
		if errors.Is(err, vectorindex.ErrDimensionMismatch) {
			return nil, domain.FatalError("query vector does not match index dimension", err)
		}
		o.degrade(logger, result, ReasonIndexUnavailable, err)
		return result, nil
	}

	merged := make([]vectorindex.Result, 0, len(primary))
	seen := make(map[string]bool, len(primary))
	merged = mergeResults(merged, seen, primary)

	if len(merged) < o.config.SparseResultThreshold && o.expander != nil {
		merged, err = o.expand(ctx, logger, req, limit, merged, seen, result)
		if err != nil {
			return nil, err
		}
	}

	vectorindex.SortResults(merged)
	result.Rerank = rerank(merged, entities.Quality)
	merged, result.AudienceFiltered = o.preferAudience(merged, entities.Audience)

	if len(merged) > limit {
		merged = merged[:limit]
	}

	result.Products = make([]ScoredProduct, 0, len(merged))
	for _, r := range merged {
		result.Products = append(result.Products, ScoredProduct{Product: r.Product(), Similarity: r.Similarity})
	}

	logger.Debug().
		Str("query", req.Query).
		Str("intent", string(req.Intent.Primary)).
		Int("primary_hits", len(primary)).
		Int("returned", len(result.Products)).
		Int("search_calls", result.SearchCalls).
		Str("rerank", result.Rerank).
		Msg("Retrieval complete")

	return result, nil
}

// expand issues up to MaxExpansions extra searches, keeping the primary
// filters, and stops once the merged set reaches limit.
func (o *Orchestrator) expand(
	ctx context.Context,
	logger *observability.Logger,
	req Request,
	limit int,
	merged []vectorindex.Result,
	seen map[string]bool,
	result *Result,
) ([]vectorindex.Result, error) {
	queries := o.expander.Expand(req.Query, req.Intent)
	if len(queries) > o.config.MaxExpansions {
		queries = queries[:o.config.MaxExpansions]
	}
	entities := req.Intent.Entities

	for _, q := range queries {
		if len(merged) >= limit {
			break
		}
		result.Expansions = append(result.Expansions, q)

		vector, err := o.embedder.EmbedSingle(ctx, q)
		if err != nil {
			if errors.Is(err, embedding.ErrUnexpectedDimension) {
				return nil, domain.FatalError("expansion embedding has unexpected dimension", err)
			}
			logger.Warn().Err(err).Str("expansion", q).Msg("Expansion embedding failed")
			continue
		}

		hits, err := o.index.SearchByVector(ctx, vectorindex.Query{
			Vector:        vector,
			K:             o.config.ExpansionK,
			MinSimilarity: req.Threshold * o.config.ExpansionThresholdFactor,
			Category:      entities.Category,
			PriceRange:    entities.PriceRange,
		})
		result.SearchCalls++
		if err != nil {
			if errors.Is(err, vectorindex.ErrDimensionMismatch) {
				return nil, domain.FatalError("expansion vector does not match index dimension", err)
			}
			logger.Warn().Err(err).Str("expansion", q).Msg("Expansion search failed")
			continue
		}
		merged = mergeResults(merged, seen, hits)
	}

	logger.Debug().
		Strs("expansions", result.Expansions).
		Int("merged", len(merged)).
		Msg("Expanded sparse retrieval")

	return merged, nil
}

func (o *Orchestrator) degrade(logger *observability.Logger, result *Result, reason string, err error) {
	result.Degraded = true
	result.DegradedReason = reason
	logger.Warn().Err(err).Str("reason", reason).Msg("Retrieval degraded, returning no products")
}

// preferAudience drops products named for the opposite audience. It never
// empties the list.
func (o *Orchestrator) preferAudience(results []vectorindex.Result, audience intent.Audience) ([]vectorindex.Result, int) {
	var opposite intent.Audience
	switch audience {
	case intent.AudienceMen:
		opposite = intent.AudienceWomen
	case intent.AudienceWomen:
		opposite = intent.AudienceMen
	default:
		return results, 0
	}

	want, avoid := o.audienceHints[audience], o.audienceHints[opposite]
	kept := make([]vectorindex.Result, 0, len(results))
	for _, r := range results {
		name := strings.ToLower(r.Metadata.Name)
		if avoid.MatchString(name) && !want.MatchString(name) {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return results, 0
	}
	return kept, len(results) - len(kept)
}

// mergeResults appends hits not yet seen. The first occurrence of an id wins.
func mergeResults(dst []vectorindex.Result, seen map[string]bool, hits []vectorindex.Result) []vectorindex.Result {
	for _, h := range hits {
		if seen[h.ProductID] {
			continue
		}
		seen[h.ProductID] = true
		dst = append(dst, h)
	}
	return dst
}

// rerank orders by price when the query carries a quality preference. Price is
// a coarse stand-in for quality; there is no rating data. Ties keep similarity
// order.
func rerank(results []vectorindex.Result, quality intent.QualityPreference) string {
	switch quality {
	case intent.QualityHigh:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Metadata.Price > results[j].Metadata.Price
		})
		return RerankPriceDesc
	case intent.QualityBudget:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Metadata.Price < results[j].Metadata.Price
		})
		return RerankPriceAsc
	default:
		return RerankNone
	}
}

// String renders a short summary for logs and CLI output.
func (r *Result) String() string {
	return fmt.Sprintf("%d products (%d searches, rerank=%q, degraded=%t)",
		len(r.Products), r.SearchCalls, r.Rerank, r.Degraded)
}
