// Package expansion produces alternative queries used to widen recall when the
// primary retrieval pass comes back thin.
package expansion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
)

// MaxExpansions is the hard upper bound on returned alternatives.
const MaxExpansions = 5

type termRule struct {
	terms   []string
	related []string
	re      []*regexp.Regexp
}

type categoryRule struct {
	category string
	trigger  string
	related  []string
	re       *regexp.Regexp
}

// Expander generates alternative queries from static synonym data plus
// category, automotive and intent rules.
type Expander struct {
	limit      int
	synonyms   []termRule
	categories []categoryRule
	automotive []termRule
}

// NewExpander creates an expander returning at most limit alternatives,
// clamped to MaxExpansions.
func NewExpander(limit int) *Expander {
	if limit <= 0 || limit > MaxExpansions {
		limit = MaxExpansions
	}
	e := &Expander{
		limit: limit,
		synonyms: compile([]termRule{
			{terms: []string{"computer"}, related: []string{"laptop", "pc", "notebook", "ultrabook", "gaming laptop"}},
			{terms: []string{"laptop"}, related: []string{"computer", "notebook", "ultrabook", "pc"}},
			{terms: []string{"pc"}, related: []string{"computer", "laptop", "desktop"}},
			{terms: []string{"music"}, related: []string{"headphones", "audio", "speaker", "sound", "wireless headphones", "bluetooth speaker"}},
			{terms: []string{"audio"}, related: []string{"headphones", "speaker", "sound", "music", "wireless headphones"}},
			{terms: []string{"listen"}, related: []string{"headphones", "audio", "speaker", "music", "wireless headphones"}},
			{terms: []string{"sound"}, related: []string{"headphones", "speaker", "audio", "music", "wireless headphones"}},
			{terms: []string{"hear"}, related: []string{"headphones", "audio", "speaker", "music"}},
			{terms: []string{"gaming"}, related: []string{"mouse", "keyboard", "laptop", "monitor", "headphones"}},
			{terms: []string{"game"}, related: []string{"gaming", "mouse", "keyboard", "laptop", "monitor"}},
			{terms: []string{"phone"}, related: []string{"smartphone", "mobile", "cell phone"}},
			{terms: []string{"smartphone"}, related: []string{"phone", "mobile"}},
			{terms: []string{"wireless"}, related: []string{"headphones", "mouse", "speaker", "bluetooth"}},
			{terms: []string{"bluetooth"}, related: []string{"headphones", "speaker", "wireless"}},
		}),
		categories: []categoryRule{
			{category: "electronics", trigger: "laptop", related: []string{"computer", "notebook", "ultrabook"}},
			{category: "electronics", trigger: "phone", related: []string{"smartphone", "mobile", "cell phone"}},
			{category: "clothing", trigger: "shirt", related: []string{"top", "blouse", "tee"}},
			{category: "shoes", trigger: "running", related: []string{"athletic shoes", "sneakers", "trainers"}},
		},
		automotive: compile([]termRule{
			{terms: []string{"car"}, related: []string{"automotive accessories", "car electronics", "vehicle parts"}},
			{terms: []string{"pickup", "truck"}, related: []string{"vehicle accessories", "automotive electronics", "car accessories"}},
			{terms: []string{"toyota"}, related: []string{"automotive accessories", "car electronics"}},
		}),
	}
	for i := range e.categories {
		e.categories[i].re = wordPattern(e.categories[i].trigger)
	}
	return e
}

func compile(rules []termRule) []termRule {
	for i := range rules {
		for _, t := range rules[i].terms {
			rules[i].re = append(rules[i].re, wordPattern(t))
		}
	}
	return rules
}

// wordPattern matches a term on word boundaries with an optional plural suffix.
func wordPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `(?:s|es)?\b`)
}

func (r termRule) matches(q string) bool {
	for _, re := range r.re {
		if re.MatchString(q) {
			return true
		}
	}
	return false
}

// Expand returns up to the configured number of deduplicated alternatives. The
// original query is never included.
func (e *Expander) Expand(query string, qi intent.QueryIntent) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var candidates []string

	for _, rule := range e.synonyms {
		if rule.matches(q) {
			candidates = append(candidates, rule.related...)
		}
	}

	// Only the first matching rule of a category applies.
	for _, rule := range e.categories {
		if rule.category == qi.Entities.Category && rule.re.MatchString(q) {
			candidates = append(candidates, rule.related...)
			break
		}
	}

	for _, rule := range e.automotive {
		if rule.matches(q) {
			candidates = append(candidates, rule.related...)
		}
	}

	switch qi.Primary {
	case intent.Recommendation:
		candidates = append(candidates, fmt.Sprintf("best %s", query), fmt.Sprintf("top rated %s", query))
	case intent.PriceInquiry:
		candidates = append(candidates, fmt.Sprintf("affordable %s", query), fmt.Sprintf("budget %s", query))
	}

	return e.finalize(q, candidates)
}

// finalize removes blanks, duplicates and the original query, preserving first
// occurrence order, and applies the cap.
func (e *Expander) finalize(original string, candidates []string) []string {
	seen := map[string]bool{original: true}
	out := make([]string, 0, e.limit)
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
		if len(out) == e.limit {
			break
		}
	}
	return out
}
