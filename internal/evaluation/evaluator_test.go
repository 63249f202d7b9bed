package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/retrieval"
)

func scored(id, category string, price, sim float64) retrieval.ScoredProduct {
	return retrieval.ScoredProduct{
		Product:    catalog.Product{ID: id, Name: id, Category: category, Price: price, Active: true},
		Similarity: sim,
	}
}

func analyze(q string) intent.QueryIntent {
	return intent.NewAnalyzer().Analyze(q)
}

func TestEvaluator_Evaluate_NoProducts(t *testing.T) {
	e := NewEvaluator(DefaultConfig())

	a := e.Evaluate("toyota pickup accessories", nil, analyze("toyota pickup accessories"))

	assert.False(t, a.SufficientContext)
	assert.Equal(t, LevelVeryLow, a.Confidence)
	assert.Equal(t, StrategyClarification, a.Strategy)
	assert.Equal(t, 0.0, a.ConfidenceScore)
	assert.Equal(t, []string{"No relevant products found in database"}, a.ThoughtProcess)
}

func TestEvaluator_Evaluate_SimilarityBands(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	qi := analyze("I need headphones")

	tests := []struct {
		name       string
		sim        float64
		sufficient bool
		level      Level
		strategy   Strategy
		trace      string
	}{
		{"very low", 0.10, false, LevelVeryLow, StrategyClarification, "Very low similarity scores suggest poor query-product match"},
		{"at low cutoff", 0.15, true, LevelMedium, StrategyConfident, "Moderate similarity scores - providing best available matches with confidence"},
		{"moderate", 0.30, true, LevelMedium, StrategyConfident, "Moderate similarity scores - providing best available matches with confidence"},
		{"at mid cutoff", 0.40, true, LevelHigh, StrategyConfident, "High similarity scores indicate excellent matches"},
		{"high", 0.85, true, LevelHigh, StrategyConfident, "High similarity scores indicate excellent matches"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := e.Evaluate("I need headphones", []retrieval.ScoredProduct{scored("p1", "Electronics", 100, tt.sim)}, qi)
			assert.Equal(t, tt.sufficient, a.SufficientContext)
			assert.Equal(t, tt.level, a.Confidence)
			assert.Equal(t, tt.strategy, a.Strategy)
			require.Len(t, a.ThoughtProcess, 2)
			assert.Contains(t, a.ThoughtProcess[0], "Found 1 products with similarity range")
			assert.Equal(t, tt.trace, a.ThoughtProcess[1])
		})
	}
}

func TestEvaluator_Evaluate_CategoryDiversityDowngrades(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	products := []retrieval.ScoredProduct{
		scored("a", "Electronics", 100, 0.8),
		scored("b", "Clothing", 100, 0.7),
		scored("c", "Shoes", 100, 0.6),
		scored("d", "Home", 100, 0.5),
	}

	a := e.Evaluate("stuff", products, analyze("stuff"))

	assert.Equal(t, LevelMedium, a.Confidence)
	assert.Equal(t, StrategyConfident, a.Strategy)
	assert.Equal(t, 4, a.Stats.CategoryCount)
	assert.Contains(t, a.ThoughtProcess, "Results span 4 categories - might need focus")

	// Three categories, compared case-insensitively, stay high.
	products[3].Product.Category = "electronics"
	a = e.Evaluate("stuff", products, analyze("stuff"))
	assert.Equal(t, LevelHigh, a.Confidence)
	assert.Equal(t, 3, a.Stats.CategoryCount)
}

func TestEvaluator_Evaluate_WidePriceSpread(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	products := []retrieval.ScoredProduct{
		scored("a", "Electronics", 1500, 0.8),
		scored("b", "Electronics", 200, 0.7),
	}

	a := e.Evaluate("laptop", products, analyze("laptop"))

	assert.Equal(t, 1300.0, a.Stats.PriceSpread)
	assert.Equal(t, "Wide price range in results - customer needs may vary", a.ThoughtProcess[len(a.ThoughtProcess)-1])
	assert.Equal(t, LevelHigh, a.Confidence)
}

func TestEvaluator_Evaluate_ComparisonNeedsTwoProducts(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	qi := analyze("compare iphone vs galaxy")
	require.True(t, qi.Has(intent.Comparison))

	one := []retrieval.ScoredProduct{scored("iphone", "Electronics", 999, 0.95)}
	a := e.Evaluate("compare iphone vs galaxy", one, qi)
	assert.Equal(t, StrategyExpandSearch, a.Strategy)
	assert.Equal(t, LevelHigh, a.Confidence)
	assert.Equal(t, "Comparison intent detected but insufficient products for comparison", a.ThoughtProcess[len(a.ThoughtProcess)-1])

	a = e.Evaluate("compare iphone vs galaxy", nil, qi)
	assert.Equal(t, StrategyExpandSearch, a.Strategy)

	two := append(one, scored("galaxy", "Electronics", 899, 0.9))
	a = e.Evaluate("compare iphone vs galaxy", two, qi)
	assert.Equal(t, StrategyConfident, a.Strategy)
}

func TestEvaluator_Evaluate_Deterministic(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	products := []retrieval.ScoredProduct{
		scored("a", "Electronics", 2000, 0.3),
		scored("b", "Clothing", 10, 0.2),
		scored("c", "Shoes", 50, 0.25),
		scored("d", "Home", 75, 0.22),
	}
	qi := analyze("which one is better")

	first := e.Evaluate("which one is better", products, qi)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Evaluate("which one is better", products, qi))
	}
}

func TestEvaluator_Evaluate_Stats(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	products := []retrieval.ScoredProduct{
		scored("a", "Electronics", 100, 0.9),
		scored("b", "Electronics", 300, 0.5),
	}

	a := e.Evaluate("headphones", products, analyze("headphones"))

	assert.Equal(t, 2, a.Stats.Count)
	assert.InDelta(t, 0.7, a.Stats.AvgSimilarity, 1e-9)
	assert.Equal(t, 0.9, a.Stats.MaxSimilarity)
	assert.Equal(t, 0.5, a.Stats.MinSimilarity)
	assert.Equal(t, "Found 2 products with similarity range 0.500-0.900", a.ThoughtProcess[0])
}

func TestConfidenceScore(t *testing.T) {
	products := make([]retrieval.ScoredProduct, 0, 6)
	for i := 0; i < 6; i++ {
		products = append(products, scored(string(rune('a'+i)), "Electronics", 100, 0.8))
	}
	e := NewEvaluator(DefaultConfig())

	a := e.Evaluate("I need a laptop", products, analyze("I need a laptop"))
	// 0.8 avg * 0.9 high * full coverage * clear intent
	assert.InDelta(t, 0.72, a.ConfidenceScore, 1e-9)

	// General inquiry and partial coverage scale the score down.
	a = e.Evaluate("laptop", products[:2], analyze("laptop"))
	assert.InDelta(t, 0.8*0.9*0.4*0.8, a.ConfidenceScore, 1e-9)
}

func TestNewEvaluator_InvalidCutoffsFallBack(t *testing.T) {
	e := NewEvaluator(Config{LowCutoff: 0.6, MidCutoff: 0.3})
	assert.Equal(t, DefaultConfig(), e.config)
}

func TestEvaluator_Evaluate_AutomotiveQueryWithoutAutomotiveProducts(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	query := "toyota pickup accessories"
	products := []retrieval.ScoredProduct{
		scored("usb-c-charger", "Electronics", 25, 0.62),
		scored("rain-jacket", "Clothing", 90, 0.48),
	}

	a := e.Evaluate(query, products, analyze(query))

	assert.False(t, a.SufficientContext)
	assert.Equal(t, LevelVeryLow, a.Confidence)
	assert.Equal(t, StrategyClarification, a.Strategy)
	assert.Contains(t, a.ThoughtProcess, "Automotive query but no automotive products retrieved")
}

func TestEvaluator_Evaluate_AutomotiveQueryWithAutomotiveProduct(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	query := "car phone mount"
	mount := scored("dash-mount", "Accessories", 20, 0.7)
	mount.Product.Tags = []string{"car", "phone"}

	a := e.Evaluate(query, []retrieval.ScoredProduct{mount}, analyze(query))

	assert.True(t, a.SufficientContext)
	assert.Equal(t, StrategyConfident, a.Strategy)
}

func TestMentionsAutomotive(t *testing.T) {
	assert.True(t, MentionsAutomotive("Toyota Pickup accessories"))
	assert.True(t, MentionsAutomotive("Automotive"))
	assert.False(t, MentionsAutomotive("gift card for a cartoon fan"))
}
