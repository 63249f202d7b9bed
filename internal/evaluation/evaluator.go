// Package evaluation judges whether retrieved products are good enough to
// answer a query confidently, and picks the response strategy.
package evaluation

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/retrieval"
)

// Level is a coarse confidence bucket.
type Level string

const (
	LevelVeryLow Level = "very_low"
	LevelLow     Level = "low"
	LevelMedium  Level = "medium"
	LevelHigh    Level = "high"
)

// Strategy selects how the response is phrased.
type Strategy string

const (
	StrategyConfident     Strategy = "confident_recommendation"
	StrategyClarification Strategy = "query_clarification"
	StrategyExpandSearch  Strategy = "expand_search"
)

// Config holds the evaluation cutoffs.
type Config struct {
	LowCutoff       float64
	MidCutoff       float64
	MaxCategories   int
	WidePriceSpread float64
}

// DefaultConfig returns the stock cutoffs.
func DefaultConfig() Config {
	return Config{
		LowCutoff:       0.15,
		MidCutoff:       0.4,
		MaxCategories:   3,
		WidePriceSpread: 1000,
	}
}

// Stats summarizes the retrieved set.
type Stats struct {
	Count         int     `json:"count"`
	AvgSimilarity float64 `json:"avgSimilarity"`
	MaxSimilarity float64 `json:"maxSimilarity"`
	MinSimilarity float64 `json:"minSimilarity"`
	CategoryCount int     `json:"categoryCount"`
	PriceSpread   float64 `json:"priceSpread"`
}

// Analysis is the evaluator's verdict. ThoughtProcess holds one line per
// decision branch, in evaluation order.
type Analysis struct {
	Query             string   `json:"query"`
	SufficientContext bool     `json:"sufficientContext"`
	Confidence        Level    `json:"confidenceLevel"`
	Strategy          Strategy `json:"recommendedStrategy"`
	ConfidenceScore   float64  `json:"confidenceScore"`
	ThoughtProcess    []string `json:"thoughtProcess"`
	Stats             Stats    `json:"stats"`
}

var automotiveTerms = regexp.MustCompile(`\b(?:cars?|vehicles?|auto|automotive|toyota|pickups?|trucks?)\b`)

// MentionsAutomotive reports whether text refers to vehicles.
func MentionsAutomotive(text string) bool {
	return automotiveTerms.MatchString(strings.ToLower(text))
}

// anyAutomotive reports whether any retrieved product is itself vehicle related.
func anyAutomotive(products []retrieval.ScoredProduct) bool {
	for _, sp := range products {
		p := sp.Product
		if MentionsAutomotive(p.Name) || MentionsAutomotive(p.Category) || MentionsAutomotive(strings.Join(p.Tags, " ")) {
			return true
		}
	}
	return false
}

var levelMultipliers = map[Level]float64{
	LevelVeryLow: 0.3,
	LevelLow:     0.5,
	LevelMedium:  0.7,
	LevelHigh:    0.9,
}

// Evaluator is stateless apart from its cutoffs.
type Evaluator struct {
	config Config
}

// NewEvaluator creates an evaluator. Zero or inconsistent cutoffs fall back to
// the defaults.
func NewEvaluator(cfg Config) *Evaluator {
	defaults := DefaultConfig()
	if cfg.MidCutoff <= 0 || cfg.LowCutoff < 0 || cfg.LowCutoff >= cfg.MidCutoff {
		cfg.LowCutoff, cfg.MidCutoff = defaults.LowCutoff, defaults.MidCutoff
	}
	if cfg.MaxCategories <= 0 {
		cfg.MaxCategories = defaults.MaxCategories
	}
	if cfg.WidePriceSpread <= 0 {
		cfg.WidePriceSpread = defaults.WidePriceSpread
	}
	return &Evaluator{config: cfg}
}

// Evaluate is a pure function of its inputs.
func (e *Evaluator) Evaluate(query string, products []retrieval.ScoredProduct, qi intent.QueryIntent) Analysis {
	a := Analysis{Query: query}
	a.Stats = summarize(products)

	if len(products) == 0 {
		a.note("No relevant products found in database")
		a.Confidence = LevelVeryLow
		a.Strategy = StrategyClarification
	} else {
		s := a.Stats
		a.note("Found %d products with similarity range %.3f-%.3f", s.Count, s.MinSimilarity, s.MaxSimilarity)

		switch {
		case s.MaxSimilarity < e.config.LowCutoff:
			a.note("Very low similarity scores suggest poor query-product match")
			a.Confidence = LevelVeryLow
			a.Strategy = StrategyClarification
		case s.MaxSimilarity < e.config.MidCutoff:
			a.note("Moderate similarity scores - providing best available matches with confidence")
			a.SufficientContext = true
			a.Confidence = LevelMedium
			a.Strategy = StrategyConfident
		default:
			a.note("High similarity scores indicate excellent matches")
			a.SufficientContext = true
			a.Confidence = LevelHigh
			a.Strategy = StrategyConfident
		}

		if s.CategoryCount > e.config.MaxCategories {
			a.note("Results span %d categories - might need focus", s.CategoryCount)
			a.Confidence = downgrade(a.Confidence)
		}
		if s.PriceSpread > e.config.WidePriceSpread {
			a.note("Wide price range in results - customer needs may vary")
		}
	}

	// Similarity alone cannot tell an automotive query apart from a catalog
	// with no vehicle products; nearest neighbours always exist.
	if len(products) > 0 && MentionsAutomotive(query) && !anyAutomotive(products) {
		a.note("Automotive query but no automotive products retrieved")
		a.SufficientContext = false
		a.Confidence = LevelVeryLow
		a.Strategy = StrategyClarification
	}

	if qi.Has(intent.Comparison) && len(products) < 2 {
		a.note("Comparison intent detected but insufficient products for comparison")
		a.Strategy = StrategyExpandSearch
	}

	a.ConfidenceScore = ConfidenceScore(a, qi)
	return a
}

// ConfidenceScore folds the analysis into a single number in [0, 1]:
// average similarity scaled by the level multiplier, result coverage and
// intent clarity.
func ConfidenceScore(a Analysis, qi intent.QueryIntent) float64 {
	if a.Stats.Count == 0 {
		return 0
	}
	coverage := math.Min(float64(a.Stats.Count)/5.0, 1.0)
	clarity := 1.0
	if qi.Primary == intent.GeneralInquiry {
		clarity = 0.8
	}
	score := a.Stats.AvgSimilarity * levelMultipliers[a.Confidence] * coverage * clarity
	return math.Max(0, math.Min(1, score))
}

func (a *Analysis) note(format string, args ...interface{}) {
	a.ThoughtProcess = append(a.ThoughtProcess, fmt.Sprintf(format, args...))
}

func downgrade(l Level) Level {
	switch l {
	case LevelHigh:
		return LevelMedium
	case LevelMedium:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

func summarize(products []retrieval.ScoredProduct) Stats {
	s := Stats{Count: len(products)}
	if len(products) == 0 {
		return s
	}

	categories := make(map[string]struct{})
	s.MinSimilarity = products[0].Similarity
	s.MaxSimilarity = products[0].Similarity
	minPrice, maxPrice := products[0].Product.Price, products[0].Product.Price
	var sum float64

	for _, p := range products {
		sum += p.Similarity
		s.MinSimilarity = math.Min(s.MinSimilarity, p.Similarity)
		s.MaxSimilarity = math.Max(s.MaxSimilarity, p.Similarity)
		minPrice = math.Min(minPrice, p.Product.Price)
		maxPrice = math.Max(maxPrice, p.Product.Price)
		if c := strings.ToLower(strings.TrimSpace(p.Product.Category)); c != "" {
			categories[c] = struct{}{}
		}
	}

	s.AvgSimilarity = sum / float64(len(products))
	s.CategoryCount = len(categories)
	s.PriceSpread = maxPrice - minPrice
	return s
}
