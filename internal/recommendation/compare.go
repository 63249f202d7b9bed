package recommendation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/evaluation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/vectorindex"
)

// Compare produces a side-by-side answer for explicitly named products.
// Fewer than two resolvable products yields the expand_search strategy.
func (e *Engine) Compare(ctx context.Context, req CompareRequest) (resp *CompareResponse, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveRequest(OpCompare, err, time.Since(start)) }()

	ids, err := e.validateCompare(req)
	if err != nil {
		return nil, err
	}
	logger := e.logger.WithContext(ctx).WithOperation(OpCompare)

	resolved := make([]catalog.Product, 0, len(ids))
	var missing []string
	for _, id := range ids {
		p, err := e.store.GetProduct(ctx, id)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			missing = append(missing, id)
		case err != nil:
			return nil, domain.DependencyError("load product "+id, err)
		case !p.Active:
			missing = append(missing, id)
		default:
			resolved = append(resolved, *p)
		}
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		query = defaultCompareQuery(resolved, ids)
	}

	qi := e.analyzer.Analyze(query)
	forceComparison(&qi)

	products := e.scoreAgainstQuery(ctx, query, resolved)
	analysis := e.evaluator.Evaluate(query, products, qi)
	if len(products) >= 2 && analysis.Strategy != evaluation.StrategyConfident {
		// The shopper chose these products, so weak similarity to the query
		// text is no reason to ask for clarification.
		analysis.Strategy = evaluation.StrategyConfident
		analysis.SufficientContext = true
		analysis.ThoughtProcess = append(analysis.ThoughtProcess,
			fmt.Sprintf("Products selected explicitly for comparison (%d)", len(products)))
	}
	e.metrics.ObserveStrategy(string(analysis.Strategy), string(analysis.Confidence))

	gen := e.generator.Generate(ctx, query, products, qi, analysis)
	e.metrics.ObserveResponse(string(gen.Template), gen.Source, gen.FallbackReason)

	logger.Info().
		Strs("product_ids", ids).
		Int("resolved", len(products)).
		Int("missing", len(missing)).
		Str("strategy", string(analysis.Strategy)).
		Str("source", gen.Source).
		Msg("Comparison completed")

	return &CompareResponse{
		Query:           query,
		Products:        products,
		Missing:         missing,
		ResponseText:    gen.Text,
		Strategy:        analysis.Strategy,
		ContextAnalysis: analysis,
		Template:        gen.Template,
		ResponseSource:  gen.Source,
	}, nil
}

func (e *Engine) validateCompare(req CompareRequest) ([]string, error) {
	if len([]rune(strings.TrimSpace(req.Query))) > maxQueryLength {
		return nil, domain.ValidationError(fmt.Sprintf("query exceeds %d characters", maxQueryLength), nil)
	}

	seen := make(map[string]bool, len(req.ProductIDs))
	ids := make([]string, 0, len(req.ProductIDs))
	for _, raw := range req.ProductIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, domain.ValidationError("productIds must not contain empty values", nil)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, domain.ValidationError("productIds is required", nil)
	}
	if len(ids) > e.config.MaxProducts {
		return nil, domain.ValidationError(
			fmt.Sprintf("at most %d products can be compared", e.config.MaxProducts), nil)
	}
	return ids, nil
}

func forceComparison(qi *intent.QueryIntent) {
	if !qi.Has(intent.Comparison) {
		qi.All = append([]intent.Intent{intent.Comparison}, qi.All...)
	}
	qi.Primary = intent.Comparison
}

func defaultCompareQuery(resolved []catalog.Product, ids []string) string {
	names := make([]string, 0, len(ids))
	for _, p := range resolved {
		names = append(names, p.Name)
	}
	if len(names) == 0 {
		names = ids
	}
	return "compare " + strings.Join(names, " vs ")
}

// scoreAgainstQuery pairs each product with the cosine between the query
// embedding and its stored vector. Products without a usable vector score 0.
func (e *Engine) scoreAgainstQuery(ctx context.Context, query string, products []catalog.Product) []retrieval.ScoredProduct {
	scored := make([]retrieval.ScoredProduct, 0, len(products))
	if len(products) == 0 {
		return scored
	}
	logger := e.logger.WithContext(ctx)

	queryVec, embedErr := e.embedder.EmbedSingle(ctx, query)
	if embedErr != nil {
		logger.Warn().Err(embedErr).Str("reason", retrieval.ReasonEmbeddingUnavailable).
			Msg("Query embedding failed, comparing without similarity")
	}

	for _, p := range products {
		sp := retrieval.ScoredProduct{Product: p}
		if embedErr == nil {
			entry, err := e.index.Get(ctx, p.ID)
			switch {
			case errors.Is(err, vectorindex.ErrNotFound):
				logger.Debug().Str("product_id", p.ID).Msg("Product has no embedding yet")
			case err != nil:
				logger.Warn().Stack().Err(err).Str("product_id", p.ID).Str("reason", retrieval.ReasonIndexUnavailable).
					Msg("Embedding lookup failed")
			default:
				sp.Similarity = vectorindex.Cosine(queryVec, entry.Vector)
			}
		}
		scored = append(scored, sp)
	}
	return scored
}

// SimilarTo ranks products by similarity to a product's own embedding,
// excluding the product itself.
func (e *Engine) SimilarTo(ctx context.Context, productID string, limit int) (resp *SimilarResponse, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveRequest(OpSimilar, err, time.Since(start)) }()

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, domain.ValidationError("product id is required", nil)
	}
	if limit < 0 || limit > e.config.MaxProducts {
		return nil, domain.ValidationError(fmt.Sprintf("limit must be between 1 and %d", e.config.MaxProducts), nil)
	}
	if limit == 0 {
		limit = e.config.MaxProducts
	}

	entry, err := e.index.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, vectorindex.ErrNotFound) {
			return nil, domain.NotFoundError("product "+productID+" is not indexed", err)
		}
		return nil, domain.DependencyError("load product embedding", err)
	}

	hits, err := e.index.SearchByVector(ctx, vectorindex.Query{
		Vector:        entry.Vector,
		K:             limit,
		MinSimilarity: 0,
		ExcludeIDs:    []string{productID},
	})
	if err != nil {
		if errors.Is(err, vectorindex.ErrDimensionMismatch) {
			return nil, domain.FatalError("stored vector does not match index dimension", err)
		}
		return nil, domain.DependencyError("similarity search", err)
	}

	products := make([]retrieval.ScoredProduct, 0, len(hits))
	for _, h := range hits {
		products = append(products, retrieval.ScoredProduct{Product: h.Product(), Similarity: h.Similarity})
	}

	e.logger.WithContext(ctx).Debug().
		Str("product_id", productID).
		Int("found", len(products)).
		Msg("Similar products retrieved")

	return &SimilarResponse{ProductID: productID, Products: products, Found: len(products)}, nil
}
