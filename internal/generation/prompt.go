package generation

import (
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/evaluation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/retrieval"
)

const descriptionLimit = 150

// Prompt is a rendered system and user message pair.
type Prompt struct {
	Template TemplateName
	System   string
	User     string
}

// FormatProductContext renders the product digest given to the backend.
func FormatProductContext(products []retrieval.ScoredProduct) string {
	if len(products) == 0 {
		return "No products available to recommend."
	}

	parts := make([]string, 0, len(products)+1)
	parts = append(parts, "Available products:")
	for i, sp := range products {
		p := sp.Product
		lines := []string{
			fmt.Sprintf("%d. %s", i+1, p.Name),
			fmt.Sprintf("   Price: $%.2f", p.Price),
			fmt.Sprintf("   Category: %s", orDefault(p.Category, "Unknown")),
		}
		if p.Brand != "" {
			lines = append(lines, fmt.Sprintf("   Brand: %s", p.Brand))
		}
		if p.Description != "" {
			lines = append(lines, fmt.Sprintf("   Description: %s...", truncateRunes(p.Description, descriptionLimit)))
		}
		lines = append(lines, fmt.Sprintf("   Relevance: %.2f", sp.Similarity))
		parts = append(parts, strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// BuildPrompt renders the full prompt for a request.
func BuildPrompt(query string, products []retrieval.ScoredProduct, qi intent.QueryIntent, analysis evaluation.Analysis) (Prompt, error) {
	name := SelectTemplate(query, qi, analysis)
	guide, err := renderGuidance(name, promptData{
		Query:           query,
		NumProducts:     len(products),
		ConfidenceLevel: string(analysis.Confidence),
	})
	if err != nil {
		return Prompt{}, fmt.Errorf("render %s template: %w", name, err)
	}

	parts := []string{
		fmt.Sprintf("Customer Query: %s", query),
		fmt.Sprintf("Customer Intent: %s", qi.Primary),
	}
	if reqs := requirements(qi.Entities); reqs != "" {
		parts = append(parts, "Detected Requirements: "+reqs)
	}
	parts = append(parts, "Available Products:\n"+FormatProductContext(products))

	switch analysis.Strategy {
	case evaluation.StrategyClarification:
		parts = append(parts, "Note: The available products don't closely match the query. Ask clarifying questions.")
	case evaluation.StrategyExpandSearch:
		parts = append(parts, "Note: Not enough products were found to compare. Ask which other products the customer has in mind.")
	}

	parts = append(parts, guide)
	parts = append(parts, "Please provide a helpful response based on the customer's query and available products.")

	return Prompt{
		Template: name,
		System:   systemPrompt(qi, analysis),
		User:     strings.Join(parts, "\n\n"),
	}, nil
}

func requirements(e intent.Entities) string {
	var info []string
	if e.Category != "" {
		info = append(info, "Category: "+e.Category)
	}
	if e.Brand != "" {
		info = append(info, "Brand: "+e.Brand)
	}
	if e.PriceRange != nil {
		info = append(info, fmt.Sprintf("Price Range: $%.2f-$%.2f", e.PriceRange.Min, e.PriceRange.Max))
	}
	return strings.Join(info, ", ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
