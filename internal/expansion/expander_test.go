package expansion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
)

func analyze(q string) intent.QueryIntent {
	return intent.NewAnalyzer().Analyze(q)
}

func TestExpander_Expand_Bounds(t *testing.T) {
	e := NewExpander(MaxExpansions)

	queries := []string{
		"laptop",
		"recommend a laptop for music and gaming",
		"wireless bluetooth headphones to listen to music",
		"cheap phone under $300",
		"toyota pickup truck accessories",
		"running shoes",
		"",
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			got := e.Expand(q, analyze(q))
			assert.LessOrEqual(t, len(got), MaxExpansions)
			seen := map[string]bool{}
			for _, alt := range got {
				key := strings.ToLower(alt)
				assert.NotEqual(t, strings.ToLower(strings.TrimSpace(q)), key)
				assert.False(t, seen[key], "duplicate %q", alt)
				seen[key] = true
			}
		})
	}
}

func TestExpander_Expand_Synonyms(t *testing.T) {
	e := NewExpander(MaxExpansions)

	got := e.Expand("laptop", analyze("laptop"))
	assert.Equal(t, []string{"computer", "notebook", "ultrabook", "pc"}, got)

	got = e.Expand("computer", analyze("computer"))
	assert.Equal(t, []string{"laptop", "pc", "notebook", "ultrabook", "gaming laptop"}, got)
}

func TestExpander_Expand_ExcludesOriginalQuery(t *testing.T) {
	e := NewExpander(MaxExpansions)

	// "pc" maps to "computer"; the query itself must not come back.
	got := e.Expand("Computer", analyze("Computer"))
	assert.NotContains(t, got, "computer")
	assert.NotContains(t, got, "Computer")
}

func TestExpander_Expand_CategoryRule(t *testing.T) {
	e := NewExpander(MaxExpansions)

	got := e.Expand("running", analyze("running"))
	assert.Equal(t, []string{"athletic shoes", "sneakers", "trainers"}, got)

	got = e.Expand("linen shirt", analyze("linen shirt"))
	assert.Equal(t, []string{"top", "blouse", "tee"}, got)
}

func TestExpander_Expand_Automotive(t *testing.T) {
	e := NewExpander(MaxExpansions)

	got := e.Expand("accessories for my toyota", analyze("accessories for my toyota"))
	assert.Equal(t, []string{"automotive accessories", "car electronics"}, got)

	got = e.Expand("pickup truck gear", analyze("pickup truck gear"))
	assert.Equal(t, []string{"vehicle accessories", "automotive electronics", "car accessories"}, got)

	// Word anchored: "card" is not a car.
	assert.Empty(t, e.Expand("gift card", analyze("gift card")))
}

func TestExpander_Expand_IntentRules(t *testing.T) {
	e := NewExpander(MaxExpansions)

	q := "recommend a blender"
	assert.Equal(t, []string{"best " + q, "top rated " + q}, e.Expand(q, analyze(q)))

	q = "blender price"
	assert.Equal(t, []string{"affordable " + q, "budget " + q}, e.Expand(q, analyze(q)))
}

func TestExpander_Expand_Cap(t *testing.T) {
	got := NewExpander(2).Expand("music", analyze("music"))
	assert.Equal(t, []string{"headphones", "audio"}, got)

	// Limits above the hard cap are clamped.
	got = NewExpander(50).Expand("music", analyze("music"))
	assert.Len(t, got, MaxExpansions)
}

func TestExpander_Expand_NoMatches(t *testing.T) {
	e := NewExpander(MaxExpansions)
	assert.Empty(t, e.Expand("hello there", analyze("hello there")))
}
