package intent

import (
	"regexp"
	"strings"
)

// rule is one named entry of an ordered keyword table.
type rule struct {
	name     string
	terms    []string
	patterns []*regexp.Regexp
}

// ruleTable is evaluated top to bottom; the first matching rule wins.
type ruleTable []rule

// newRuleTable compiles terms into word-anchored patterns. A term matches when it
// starts on a word boundary and ends on one, optionally followed by a plural
// suffix, so "laptops" matches "laptop" but "laptop" does not match "top".
func newRuleTable(entries ...ruleEntry) ruleTable {
	table := make(ruleTable, 0, len(entries))
	for _, e := range entries {
		r := rule{name: e.name, terms: e.terms}
		for _, term := range e.terms {
			r.patterns = append(r.patterns, termPattern(term))
		}
		table = append(table, r)
	}
	return table
}

type ruleEntry struct {
	name  string
	terms []string
}

func termPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(term)) + `(?:s|es)?\b`)
}

func (r rule) matches(q string) bool {
	for _, p := range r.patterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

// first returns the name of the first matching rule.
func (t ruleTable) first(q string) (string, bool) {
	for _, r := range t {
		if r.matches(q) {
			return r.name, true
		}
	}
	return "", false
}

// all returns every matching rule name in table order.
func (t ruleTable) all(q string) []string {
	var names []string
	for _, r := range t {
		if r.matches(q) {
			names = append(names, r.name)
		}
	}
	return names
}

// containsAny reports whether any term matches q.
func containsAny(q string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

func compileTerms(terms ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(terms))
	for i, t := range terms {
		out[i] = termPattern(t)
	}
	return out
}
