package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
)

func TestAnalyzer_Analyze_PrimaryIntentPriority(t *testing.T) {
	a := NewAnalyzer()

	tests := []struct {
		query string
		want  Intent
		all   []Intent
	}{
		{"I need a laptop", ProductSearch, []Intent{ProductSearch}},
		{"compare the iPhone vs Galaxy", Comparison, []Intent{Comparison}},
		{"recommend running shoes", Recommendation, []Intent{Recommendation}},
		{"what is the price of this", PriceInquiry, []Intent{PriceInquiry}},
		{"tell me the specs", FeatureInquiry, []Intent{FeatureInquiry}},
		{"is shipping free", Availability, []Intent{Availability}},
		{"my order has a problem", Support, []Intent{Support}},
		{"hello there", GeneralInquiry, nil},
		// product_search outranks recommendation and price_inquiry.
		{"I want the best cheap headphones", ProductSearch, []Intent{ProductSearch, Recommendation, PriceInquiry}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := a.Analyze(tt.query)
			assert.Equal(t, tt.want, got.Primary)
			assert.Equal(t, tt.all, got.All)
		})
	}
}

func TestAnalyzer_Analyze_WordBoundaries(t *testing.T) {
	a := NewAnalyzer()

	// "laptop" must not trigger the "top" recommendation or quality term.
	got := a.Analyze("laptop under $500")
	assert.Equal(t, PriceInquiry, got.Primary)
	assert.Equal(t, QualityStandard, got.Entities.Quality)
	assert.Equal(t, "electronics", got.Entities.Category)

	// Plurals still match.
	assert.Equal(t, "electronics", a.Analyze("gaming laptops").Entities.Category)
}

func TestAnalyzer_PriceRange(t *testing.T) {
	a := NewAnalyzer()

	tests := []struct {
		query string
		want  *catalog.PriceRange
	}{
		{"laptop under $500", &catalog.PriceRange{Min: 0, Max: 500}},
		{"shoes below 80", &catalog.PriceRange{Min: 0, Max: 80}},
		{"a dress for less than $49.99", &catalog.PriceRange{Min: 0, Max: 49.99}},
		{"phones between $200 and $400", &catalog.PriceRange{Min: 200, Max: 400}},
		{"jackets from $50 to $150", &catalog.PriceRange{Min: 50, Max: 150}},
		{"$100 to $300 headphones", &catalog.PriceRange{Min: 100, Max: 300}},
		{"tv between 1,500 and 1,000", &catalog.PriceRange{Min: 1000, Max: 1500}},
		{"blue shirt", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Analyze(tt.query).Entities.PriceRange)
		})
	}
}

func TestAnalyzer_Entities(t *testing.T) {
	a := NewAnalyzer()

	got := a.Analyze("Best premium Nike running shoes for women in size large, red please")
	e := got.Entities
	assert.Equal(t, "shoes", e.Category)
	assert.Equal(t, "nike", e.Brand)
	assert.Equal(t, QualityHigh, e.Quality)
	assert.Equal(t, AudienceWomen, e.Audience)
	assert.Equal(t, "sports", e.UsageContext)
	assert.Equal(t, SortRating, e.SortPreference)
	assert.True(t, e.HasSizeRequirement)
	assert.True(t, e.HasColorRequirement)
	assert.Equal(t, ComplexityComplex, got.Complexity)
	assert.Equal(t, UrgencyNormal, got.Urgency)
}

func TestAnalyzer_Audience_WomenIsNotMen(t *testing.T) {
	a := NewAnalyzer()
	assert.Equal(t, AudienceWomen, a.Analyze("jackets for women").Entities.Audience)
	assert.Equal(t, AudienceMen, a.Analyze("jackets for men").Entities.Audience)
	assert.Equal(t, AudienceKids, a.Analyze("shoes for kids").Entities.Audience)
	assert.Empty(t, a.Analyze("jackets").Entities.Audience)
}

func TestAnalyzer_BudgetAndUrgency(t *testing.T) {
	a := NewAnalyzer()
	got := a.Analyze("cheap office chair asap")
	assert.Equal(t, QualityBudget, got.Entities.Quality)
	assert.Equal(t, SortPriceLow, got.Entities.SortPreference)
	assert.Equal(t, "work", got.Entities.UsageContext)
	assert.Equal(t, UrgencyHigh, got.Urgency)
	assert.Equal(t, ComplexitySimple, got.Complexity)
}

func TestAnalyzer_CategoryFirstMatchWins(t *testing.T) {
	a := NewAnalyzer()
	// Both electronics ("phone") and shoes ("running") match; electronics comes first.
	assert.Equal(t, "electronics", a.Analyze("phone armband for running").Entities.Category)
}

func TestAnalyzer_Deterministic(t *testing.T) {
	a := NewAnalyzer()
	first := a.Analyze("which samsung tablet is better for work")
	second := a.Analyze("which samsung tablet is better for work")
	require.Equal(t, first, second)
	assert.True(t, first.Has(Comparison))
	assert.Equal(t, "samsung", first.Entities.Brand)
}
