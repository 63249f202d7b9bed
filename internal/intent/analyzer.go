// Package intent classifies free-text shopping queries and extracts structured
// entities from them. Analysis is pure keyword matching with no external calls.
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
)

// Intent is the classified purpose of a query.
type Intent string

const (
	ProductSearch  Intent = "product_search"
	Comparison     Intent = "comparison"
	Recommendation Intent = "recommendation"
	PriceInquiry   Intent = "price_inquiry"
	FeatureInquiry Intent = "feature_inquiry"
	Availability   Intent = "availability"
	Support        Intent = "support"
	GeneralInquiry Intent = "general_inquiry"
)

// QualityPreference is the price-tier preference implied by the query.
type QualityPreference string

const (
	QualityHigh     QualityPreference = "high"
	QualityBudget   QualityPreference = "budget"
	QualityStandard QualityPreference = "standard"
)

// Audience is the target shopper group, empty when none is mentioned.
type Audience string

const (
	AudienceMen   Audience = "men"
	AudienceWomen Audience = "women"
	AudienceKids  Audience = "kids"
)

// Sort preferences.
const (
	SortRelevance = "relevance"
	SortPriceLow  = "price_low"
	SortRating    = "rating"
)

// Urgency and complexity levels.
const (
	UrgencyNormal     = "normal"
	UrgencyHigh       = "high"
	ComplexitySimple  = "simple"
	ComplexityComplex = "complex"
)

// complexWordCount is the word count above which a query counts as complex.
const complexWordCount = 10

// Entities are the structured fields extracted from a query. Optional fields
// are empty strings or nil rather than sentinels.
type Entities struct {
	Category            string              `json:"category,omitempty"`
	Brand               string              `json:"brand,omitempty"`
	PriceRange          *catalog.PriceRange `json:"priceRange,omitempty"`
	Quality             QualityPreference   `json:"qualityPreference"`
	Audience            Audience            `json:"audience,omitempty"`
	UsageContext        string              `json:"usageContext,omitempty"`
	SortPreference      string              `json:"sortPreference"`
	HasSizeRequirement  bool                `json:"hasSizeRequirement"`
	HasColorRequirement bool                `json:"hasColorRequirement"`
}

// QueryIntent is the per-request analysis result. It is never persisted.
type QueryIntent struct {
	Query      string   `json:"query"`
	Primary    Intent   `json:"primaryIntent"`
	All        []Intent `json:"allIntents"`
	Entities   Entities `json:"entities"`
	Urgency    string   `json:"urgency"`
	Complexity string   `json:"complexity"`
}

// Has reports whether intent i was detected anywhere in the query.
func (q QueryIntent) Has(i Intent) bool {
	for _, candidate := range q.All {
		if candidate == i {
			return true
		}
	}
	return false
}

// Analyzer classifies queries using ordered keyword tables.
type Analyzer struct {
	intents    ruleTable
	categories ruleTable
	brands     ruleTable
	audiences  ruleTable
	usages     ruleTable
	quality    ruleTable

	sizeTerms    []*regexp.Regexp
	colorTerms   []*regexp.Regexp
	urgencyTerms []*regexp.Regexp
	cheapTerm    *regexp.Regexp
	bestTerm     *regexp.Regexp

	pricePatterns []pricePattern
}

type pricePattern struct {
	re      *regexp.Regexp
	bounded bool // two capture groups (A, B) instead of an upper bound only
}

const amount = `\$?(\d[\d,]*(?:\.\d+)?)`

// NewAnalyzer builds an analyzer with the curated term tables. The tables are
// scanned in declaration order and the first match wins; this is a known
// simplification, not a best-match search.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		intents: newRuleTable(
			ruleEntry{string(ProductSearch), []string{"need", "want", "looking for", "find", "search", "show me"}},
			ruleEntry{string(Comparison), []string{"compare", "vs", "versus", "difference", "better", "which"}},
			ruleEntry{string(Recommendation), []string{"recommend", "suggest", "best", "top", "should i"}},
			ruleEntry{string(PriceInquiry), []string{"price", "cost", "cheap", "expensive", "budget", "under", "below"}},
			ruleEntry{string(FeatureInquiry), []string{"features", "specs", "specifications", "details", "about"}},
			ruleEntry{string(Availability), []string{"available", "in stock", "delivery", "shipping", "when"}},
			ruleEntry{string(Support), []string{"help", "support", "how to", "problem", "issue", "not working"}},
		),
		categories: newRuleTable(
			ruleEntry{"electronics", []string{"laptop", "phone", "computer", "tablet", "electronics", "smartphone", "device"}},
			ruleEntry{"clothing", []string{"shirt", "pants", "dress", "jacket", "clothing", "apparel", "wear"}},
			ruleEntry{"shoes", []string{"shoes", "sneakers", "boots", "sandals", "footwear", "running"}},
			ruleEntry{"sports", []string{"sports", "fitness", "exercise", "gym", "athletic", "workout"}},
			ruleEntry{"home", []string{"home", "kitchen", "furniture", "decor", "appliances"}},
			ruleEntry{"beauty", []string{"beauty", "makeup", "skincare", "cosmetics", "fragrance"}},
		),
		brands: newRuleTable(
			ruleEntry{"nike", []string{"nike"}},
			ruleEntry{"adidas", []string{"adidas"}},
			ruleEntry{"apple", []string{"apple"}},
			ruleEntry{"samsung", []string{"samsung"}},
			ruleEntry{"zara", []string{"zara"}},
			ruleEntry{"puma", []string{"puma"}},
			ruleEntry{"levis", []string{"levis", "levi's"}},
			ruleEntry{"under armour", []string{"under armour"}},
		),
		// Women before men so "women" never falls through to the men rule.
		audiences: newRuleTable(
			ruleEntry{string(AudienceWomen), []string{"women", "female", "ladies", "her"}},
			ruleEntry{string(AudienceMen), []string{"men", "male", "guys", "him"}},
			ruleEntry{string(AudienceKids), []string{"kids", "children", "child"}},
		),
		usages: newRuleTable(
			ruleEntry{"work", []string{"work", "office", "professional", "business"}},
			ruleEntry{"casual", []string{"casual", "everyday", "daily", "regular"}},
			ruleEntry{"sports", []string{"running", "gym", "fitness", "exercise", "athletic"}},
			ruleEntry{"formal", []string{"formal", "elegant", "dressy", "fancy"}},
		),
		quality: newRuleTable(
			ruleEntry{string(QualityHigh), []string{"best", "premium", "high quality", "top", "excellent"}},
			ruleEntry{string(QualityBudget), []string{"cheap", "budget", "affordable", "low cost"}},
		),
		sizeTerms:    compileTerms("small", "medium", "large", "xl", "size"),
		colorTerms:   compileTerms("red", "blue", "black", "white", "green"),
		urgencyTerms: compileTerms("urgent", "asap", "immediately", "right now", "quickly"),
		cheapTerm:    termPattern("cheap"),
		bestTerm:     termPattern("best"),
		pricePatterns: []pricePattern{
			{re: regexp.MustCompile(`\b(?:under|below|less than)\s+` + amount)},
			{re: regexp.MustCompile(`\bbetween\s+` + amount + `\s+and\s+` + amount), bounded: true},
			{re: regexp.MustCompile(`\bfrom\s+` + amount + `\s+to\s+` + amount), bounded: true},
			{re: regexp.MustCompile(amount + `\s+to\s+` + amount), bounded: true},
		},
	}
}

// Analyze classifies a query. It is deterministic and safe for concurrent use.
func (a *Analyzer) Analyze(query string) QueryIntent {
	q := strings.ToLower(strings.TrimSpace(query))

	result := QueryIntent{
		Query:      query,
		Primary:    GeneralInquiry,
		Urgency:    UrgencyNormal,
		Complexity: ComplexitySimple,
	}

	for _, name := range a.intents.all(q) {
		result.All = append(result.All, Intent(name))
	}
	if len(result.All) > 0 {
		result.Primary = result.All[0]
	}

	result.Entities = a.extractEntities(q)

	if containsAny(q, a.urgencyTerms) {
		result.Urgency = UrgencyHigh
	}
	if len(strings.Fields(query)) > complexWordCount {
		result.Complexity = ComplexityComplex
	}

	return result
}

func (a *Analyzer) extractEntities(q string) Entities {
	e := Entities{
		Quality:        QualityStandard,
		SortPreference: SortRelevance,
	}

	e.Category, _ = a.categories.first(q)
	e.Brand, _ = a.brands.first(q)
	e.PriceRange = a.extractPriceRange(q)

	if quality, ok := a.quality.first(q); ok {
		e.Quality = QualityPreference(quality)
	}
	if audience, ok := a.audiences.first(q); ok {
		e.Audience = Audience(audience)
	}
	e.UsageContext, _ = a.usages.first(q)

	switch {
	case a.cheapTerm.MatchString(q):
		e.SortPreference = SortPriceLow
	case a.bestTerm.MatchString(q):
		e.SortPreference = SortRating
	}

	e.HasSizeRequirement = containsAny(q, a.sizeTerms)
	e.HasColorRequirement = containsAny(q, a.colorTerms)
	return e
}

// extractPriceRange applies the price patterns in order; the first match wins.
func (a *Analyzer) extractPriceRange(q string) *catalog.PriceRange {
	for _, p := range a.pricePatterns {
		m := p.re.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		if !p.bounded {
			upper, err := parseAmount(m[1])
			if err != nil {
				continue
			}
			return &catalog.PriceRange{Min: 0, Max: upper}
		}
		lo, errLo := parseAmount(m[1])
		hi, errHi := parseAmount(m[2])
		if errLo != nil || errHi != nil {
			continue
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		return &catalog.PriceRange{Min: lo, Max: hi}
	}
	return nil
}

func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}
