package recommendation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/generation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/retrieval"
)

// maxQueryLength bounds query text accepted at the boundary.
const maxQueryLength = 500

type searchParams struct {
	query     string
	limit     int
	threshold float64
	filters   Filters
}

// Search answers a free-text shopping query.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (resp *SearchResponse, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveRequest(OpSearch, err, time.Since(start)) }()

	params, err := e.validateSearch(req)
	if err != nil {
		return nil, err
	}
	logger := e.logger.WithContext(ctx).WithOperation(OpSearch)

	key := searchCacheKey(params)
	if cached, ok := e.cachedSearch(ctx, key); ok {
		logger.Debug().Str("query", params.query).Msg("Search served from cache")
		return cached, nil
	}

	qi := e.analyzer.Analyze(params.query)
	applyFilters(&qi, params.filters)

	result, err := e.retriever.Retrieve(ctx, retrieval.Request{
		Query:     params.query,
		Intent:    qi,
		Limit:     params.limit,
		Threshold: params.threshold,
	})
	if err != nil {
		logger.Error().Err(err).Str("query", params.query).Msg("Retrieval failed")
		return nil, err
	}
	e.metrics.ObserveRetrieval(result.SearchCalls, result.DegradedReason)

	analysis := e.evaluator.Evaluate(params.query, result.Products, qi)
	e.metrics.ObserveStrategy(string(analysis.Strategy), string(analysis.Confidence))

	gen := e.generator.Generate(ctx, params.query, result.Products, qi, analysis)
	e.metrics.ObserveResponse(string(gen.Template), gen.Source, gen.FallbackReason)

	products := result.Products
	if products == nil {
		products = []retrieval.ScoredProduct{}
	}
	resp = &SearchResponse{
		Query:           params.query,
		Products:        products,
		ResponseText:    gen.Text,
		Intent:          qi,
		ContextAnalysis: analysis,
		Confidence:      analysis.ConfidenceScore,
		Diagnostics: Diagnostics{
			Expansions:       result.Expansions,
			SearchCalls:      result.SearchCalls,
			Rerank:           result.Rerank,
			AudienceFiltered: result.AudienceFiltered,
			Degraded:         result.Degraded,
			DegradedReason:   result.DegradedReason,
			Template:         string(gen.Template),
			ResponseSource:   gen.Source,
			FallbackReason:   gen.FallbackReason,
			RetrievalMs:      result.LatencyMs,
			GenerationMs:     gen.LatencyMs,
			TotalMs:          time.Since(start).Milliseconds(),
		},
	}

	logger.Info().
		Str("query", params.query).
		Str("intent", string(qi.Primary)).
		Int("products", len(products)).
		Str("strategy", string(analysis.Strategy)).
		Str("template", string(gen.Template)).
		Str("source", gen.Source).
		Bool("degraded", result.Degraded).
		Int64("latency_ms", resp.Diagnostics.TotalMs).
		Msg("Search completed")

	// Outage-shaped responses are not worth replaying.
	if !result.Degraded && gen.Source != generation.SourceFallback {
		e.storeSearch(ctx, key, resp)
	}
	return resp, nil
}

func (e *Engine) validateSearch(req SearchRequest) (searchParams, error) {
	p := searchParams{
		query:     strings.TrimSpace(req.Query),
		limit:     req.Limit,
		threshold: e.config.DefaultThreshold,
		filters:   req.Filters,
	}
	p.filters.Category = strings.TrimSpace(p.filters.Category)

	if p.query == "" {
		return p, domain.ValidationError("query is required", nil)
	}
	if len([]rune(p.query)) > maxQueryLength {
		return p, domain.ValidationError(fmt.Sprintf("query exceeds %d characters", maxQueryLength), nil)
	}
	if p.limit < 0 || p.limit > e.config.MaxProducts {
		return p, domain.ValidationError(fmt.Sprintf("limit must be between 1 and %d", e.config.MaxProducts), nil)
	}
	if p.limit == 0 {
		p.limit = e.config.MaxProducts
	}
	if req.SimilarityThreshold != nil {
		t := *req.SimilarityThreshold
		if math.IsNaN(t) || t < 0 || t > 1 {
			return p, domain.ValidationError("similarityThreshold must be between 0 and 1", nil)
		}
		p.threshold = t
	}
	if err := validatePrices(p.filters); err != nil {
		return p, err
	}
	return p, nil
}

func validatePrices(f Filters) error {
	for _, v := range []*float64{f.MinPrice, f.MaxPrice} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0) {
			return domain.ValidationError("price filters must be non-negative numbers", nil)
		}
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return domain.ValidationError("minPrice must not exceed maxPrice", nil)
	}
	return nil
}

// applyFilters lets explicit request filters win over extracted entities.
func applyFilters(qi *intent.QueryIntent, f Filters) {
	if f.Category != "" {
		qi.Entities.Category = f.Category
	}
	if f.MinPrice == nil && f.MaxPrice == nil {
		return
	}
	pr := catalog.PriceRange{Min: 0, Max: math.MaxFloat64}
	if qi.Entities.PriceRange != nil {
		pr = *qi.Entities.PriceRange
	}
	if f.MinPrice != nil {
		pr.Min = *f.MinPrice
	}
	if f.MaxPrice != nil {
		pr.Max = *f.MaxPrice
	}
	qi.Entities.PriceRange = &pr
}

// searchCacheKey is case sensitive: responses echo the query and category
// back verbatim, so folding case would replay another caller's spelling.
func searchCacheKey(p searchParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%.4f|%s", p.query, p.limit, p.threshold, p.filters.Category)
	for _, v := range []*float64{p.filters.MinPrice, p.filters.MaxPrice} {
		if v == nil {
			b.WriteString("|-")
		} else {
			fmt.Fprintf(&b, "|%.2f", *v)
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return cache.Key(searchCachePrefix, hex.EncodeToString(sum[:]))
}

func (e *Engine) cachedSearch(ctx context.Context, key string) (*SearchResponse, bool) {
	if e.cache == nil {
		return nil, false
	}
	var cached SearchResponse
	if err := cache.GetJSON(ctx, e.cache, key, &cached); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			e.logger.WithContext(ctx).Warn().Err(err).Msg("Search cache read failed")
		}
		e.metrics.ObserveCache(false)
		return nil, false
	}
	e.metrics.ObserveCache(true)
	cached.Cached = true
	return &cached, true
}

func (e *Engine) storeSearch(ctx context.Context, key string, resp *SearchResponse) {
	if e.cache == nil || e.config.CacheTTL <= 0 {
		return
	}
	if err := cache.SetJSON(ctx, e.cache, key, resp, e.config.CacheTTL); err != nil {
		e.logger.WithContext(ctx).Warn().Err(err).Msg("Search cache write failed")
	}
}
