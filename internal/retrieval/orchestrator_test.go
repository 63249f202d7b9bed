package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/expansion"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/vectorindex"
)

const testDim = 4

// stubEmbedder maps exact texts to vectors; anything else gets the last axis.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

func (s *stubEmbedder) Model() string  { return "stub" }
func (s *stubEmbedder) Dimension() int { return testDim }

type stubExpander []string

func (s stubExpander) Expand(string, intent.QueryIntent) []string { return s }

type failingIndex struct {
	vectorindex.Index
	err error
}

func (f *failingIndex) SearchByVector(context.Context, vectorindex.Query) ([]vectorindex.Result, error) {
	return nil, f.err
}

func newIndex(t *testing.T, entries ...vectorindex.Entry) *vectorindex.MemoryIndex {
	t.Helper()
	idx, err := vectorindex.NewMemoryIndex(testDim)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, idx.Upsert(context.Background(), e))
	}
	return idx
}

func entry(id, name, category string, price float64, v ...float32) vectorindex.Entry {
	return vectorindex.Entry{
		ProductID: id,
		Vector:    v,
		Metadata:  vectorindex.Metadata{Name: name, Category: category, Price: price},
	}
}

func request(query string, limit int, threshold float64) Request {
	return Request{
		Query:     query,
		Intent:    intent.NewAnalyzer().Analyze(query),
		Limit:     limit,
		Threshold: threshold,
	}
}

func ids(r *Result) []string {
	out := make([]string, 0, len(r.Products))
	for _, p := range r.Products {
		out = append(out, p.Product.ID)
	}
	return out
}

func TestOrchestrator_Retrieve_PriceFilterExcludes(t *testing.T) {
	idx := newIndex(t,
		entry("gaming-laptop", "Gaming Laptop Pro", "Electronics", 450, 1, 0.1, 0, 0),
		entry("ultra-laptop", "Ultra Laptop", "Electronics", 1200, 1, 0, 0, 0),
	)
	emb := &stubEmbedder{vectors: map[string][]float32{"laptop under $500": {1, 0, 0, 0}}}
	o := NewOrchestrator(observability.NopLogger(), idx, emb, expansion.NewExpander(5), DefaultConfig())

	result, err := o.Retrieve(context.Background(), request("laptop under $500", 10, 0.2))
	require.NoError(t, err)

	assert.Equal(t, []string{"gaming-laptop"}, ids(result))
	// Sparse primary result triggers the full expansion loop.
	assert.Len(t, result.Expansions, 5)
	assert.Equal(t, 6, result.SearchCalls)
	assert.False(t, result.Degraded)
}

func TestOrchestrator_Retrieve_ExpansionStopsAtLimit(t *testing.T) {
	idx := newIndex(t,
		entry("a", "Alpha", "", 10, 1, 0, 0, 0),
		entry("b", "Beta", "", 10, 0, 1, 0, 0),
		entry("c", "Gamma", "", 10, 0, 0, 1, 0),
	)
	emb := &stubEmbedder{vectors: map[string][]float32{
		"gadget":    {1, 0, 0, 0},
		"thing one": {0, 1, 0, 0},
		"thing two": {0, 0, 1, 0},
	}}
	o := NewOrchestrator(observability.NopLogger(), idx, emb, stubExpander{"thing one", "thing two", "thing three"}, DefaultConfig())

	result, err := o.Retrieve(context.Background(), request("gadget", 2, 0.5))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, ids(result))
	assert.Equal(t, []string{"thing one"}, result.Expansions)
	assert.Equal(t, 2, result.SearchCalls)
}

func TestOrchestrator_Retrieve_DedupeKeepsFirstOccurrence(t *testing.T) {
	idx := newIndex(t,
		entry("a", "Alpha", "", 10, 1, 0, 0, 0),
		entry("b", "Beta", "", 10, 0, 1, 0, 0),
	)
	emb := &stubEmbedder{vectors: map[string][]float32{
		"gadget": {1, 0, 0, 0},
		"both":   {1, 1, 0, 0},
	}}
	o := NewOrchestrator(observability.NopLogger(), idx, emb, stubExpander{"both"}, DefaultConfig())

	result, err := o.Retrieve(context.Background(), request("gadget", 5, 0.5))
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b"}, ids(result))
	assert.InDelta(t, 1.0, result.Products[0].Similarity, 1e-9)
	assert.InDelta(t, 0.7071, result.Products[1].Similarity, 1e-3)
}

func TestOrchestrator_Retrieve_ExpansionCappedAtFive(t *testing.T) {
	idx := newIndex(t, entry("a", "Alpha", "", 10, 1, 0, 0, 0))
	emb := &stubEmbedder{vectors: map[string][]float32{"gadget": {1, 0, 0, 0}}}
	many := stubExpander{"q1", "q2", "q3", "q4", "q5", "q6", "q7"}
	cfg := DefaultConfig()
	cfg.MaxExpansions = 9
	o := NewOrchestrator(observability.NopLogger(), idx, emb, many, cfg)

	result, err := o.Retrieve(context.Background(), request("gadget", 10, 0.5))
	require.NoError(t, err)

	assert.Len(t, result.Expansions, 5)
	assert.Equal(t, 6, result.SearchCalls)
}

func TestOrchestrator_Retrieve_QualityRerank(t *testing.T) {
	idx := newIndex(t,
		entry("low", "Basic Headphones", "", 50, 1, 0.01, 0, 0),
		entry("high", "Studio Headphones", "", 300, 1, 0.03, 0, 0),
		entry("mid", "Travel Headphones", "", 150, 1, 0.02, 0, 0),
	)
	emb := &stubEmbedder{vectors: map[string][]float32{
		"best headphones":  {1, 0, 0, 0},
		"cheap headphones": {1, 0, 0, 0},
		"headphones":       {1, 0, 0, 0},
	}}
	o := NewOrchestrator(observability.NopLogger(), idx, emb, nil, DefaultConfig())
	ctx := context.Background()

	result, err := o.Retrieve(ctx, request("best headphones", 10, 0.2))
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "mid", "low"}, ids(result))
	assert.Equal(t, RerankPriceDesc, result.Rerank)

	result, err = o.Retrieve(ctx, request("cheap headphones", 10, 0.2))
	require.NoError(t, err)
	assert.Equal(t, []string{"low", "mid", "high"}, ids(result))
	assert.Equal(t, RerankPriceAsc, result.Rerank)

	// No preference keeps similarity order.
	result, err = o.Retrieve(ctx, request("headphones", 10, 0.2))
	require.NoError(t, err)
	assert.Equal(t, RerankNone, result.Rerank)
	for i := 0; i+1 < len(result.Products); i++ {
		assert.GreaterOrEqual(t, result.Products[i].Similarity, result.Products[i+1].Similarity)
	}
}

func TestOrchestrator_Retrieve_AudiencePreference(t *testing.T) {
	q := "running shoes for women"
	emb := &stubEmbedder{vectors: map[string][]float32{q: {1, 0, 0, 0}}}

	idx := newIndex(t,
		entry("w", "Women's Trail Runner", "Shoes", 90, 1, 0, 0, 0),
		entry("m", "Men's Trail Runner", "Shoes", 90, 1, 0.01, 0, 0),
		entry("u", "Trail Runner", "Shoes", 80, 1, 0.02, 0, 0),
	)
	o := NewOrchestrator(observability.NopLogger(), idx, emb, nil, DefaultConfig())

	result, err := o.Retrieve(context.Background(), request(q, 10, 0.2))
	require.NoError(t, err)
	assert.Equal(t, []string{"w", "u"}, ids(result))
	assert.Equal(t, 1, result.AudienceFiltered)

	// Never emptied.
	onlyMen := newIndex(t, entry("m", "Men's Trail Runner", "Shoes", 90, 1, 0, 0, 0))
	o = NewOrchestrator(observability.NopLogger(), onlyMen, emb, nil, DefaultConfig())
	result, err = o.Retrieve(context.Background(), request(q, 10, 0.2))
	require.NoError(t, err)
	assert.Equal(t, []string{"m"}, ids(result))
}

func TestOrchestrator_Retrieve_CategoryFilterNotDropped(t *testing.T) {
	idx := newIndex(t, entry("dress", "Summer Dress", "Clothing", 60, 1, 0, 0, 0))
	emb := &stubEmbedder{vectors: map[string][]float32{"laptop": {1, 0, 0, 0}}}
	o := NewOrchestrator(observability.NopLogger(), idx, emb, expansion.NewExpander(5), DefaultConfig())

	result, err := o.Retrieve(context.Background(), request("laptop", 10, 0.2))
	require.NoError(t, err)
	assert.Empty(t, result.Products)
	assert.False(t, result.Degraded)
}

func TestOrchestrator_Retrieve_Truncates(t *testing.T) {
	idx := newIndex(t,
		entry("a", "A", "", 1, 1, 0, 0, 0),
		entry("b", "B", "", 1, 1, 0.1, 0, 0),
		entry("c", "C", "", 1, 1, 0.2, 0, 0),
		entry("d", "D", "", 1, 1, 0.3, 0, 0),
	)
	emb := &stubEmbedder{vectors: map[string][]float32{"gadget": {1, 0, 0, 0}}}
	o := NewOrchestrator(observability.NopLogger(), idx, emb, nil, DefaultConfig())

	result, err := o.Retrieve(context.Background(), request("gadget", 2, 0.2))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(result))
}

func TestOrchestrator_Retrieve_DegradesOnDependencyFailure(t *testing.T) {
	idx := newIndex(t, entry("a", "A", "", 1, 1, 0, 0, 0))

	o := NewOrchestrator(observability.NopLogger(), idx, &stubEmbedder{err: errors.New("connection refused")}, nil, DefaultConfig())
	result, err := o.Retrieve(context.Background(), request("gadget", 5, 0.2))
	require.NoError(t, err)
	assert.Empty(t, result.Products)
	assert.True(t, result.Degraded)
	assert.Equal(t, ReasonEmbeddingUnavailable, result.DegradedReason)

	broken := &failingIndex{Index: idx, err: errors.New("index offline")}
	o = NewOrchestrator(observability.NopLogger(), broken, &stubEmbedder{}, nil, DefaultConfig())
	result, err = o.Retrieve(context.Background(), request("gadget", 5, 0.2))
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, ReasonIndexUnavailable, result.DegradedReason)
}

func TestOrchestrator_Retrieve_DimensionMismatchIsFatal(t *testing.T) {
	idx := newIndex(t, entry("a", "A", "", 1, 1, 0, 0, 0))
	emb := &stubEmbedder{vectors: map[string][]float32{"gadget": {1, 0, 0}}}
	o := NewOrchestrator(observability.NopLogger(), idx, emb, nil, DefaultConfig())

	_, err := o.Retrieve(context.Background(), request("gadget", 5, 0.2))
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeFatal))
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
}
