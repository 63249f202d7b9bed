package generation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/retrieval"
)

// Fallback messages for failed backend calls. Each failure mode has its own
// message; none exposes error detail.
const (
	FallbackRateLimited = "I'm getting a lot of requests right now. Please try again shortly and I'll be ready to help you find the perfect products!"
	FallbackTimeout     = "That is taking me longer than expected. Please send your question again in a moment and I'll pick up right where we left off."
	FallbackGeneric     = "I'm having a little trouble putting together a recommendation at the moment. Please ask again in a few minutes and I'll be happy to help!"
)

// Fallback reasons recorded on a response.
const (
	ReasonNotConfigured = "not_configured"
	ReasonRateLimited   = "rate_limited"
	ReasonTimeout       = "timeout"
	ReasonBackendError  = "backend_error"
	ReasonPhrasingGuard = "phrasing_guard"
)

var bannedPhrases = regexp.MustCompile(`(?i)\b(?:not found|unavailable|out of stock)\b`)

// violatesPhrasing reports whether text uses wording the store never shows
// customers.
func violatesPhrasing(text string) bool {
	return bannedPhrases.MatchString(text)
}

// deterministicText builds a product-aware response without a backend. It
// only repeats facts from the product list.
func deterministicText(name TemplateName, query string, products []retrieval.ScoredProduct) string {
	switch name {
	case TemplateComparison:
		return comparisonText(query, products)
	case TemplateAutomotiveRedirect:
		return "I'd love to help with your automotive needs! We specialize in electronics, home goods and lifestyle products, " +
			"and plenty of them are great for vehicle owners, like phone chargers and mounts, portable power banks and road-trip gear.\n\n" +
			"Are you after charging solutions, entertainment or safety gear? And is it for daily commuting or long road trips?" +
			highlight(products)
	case TemplateElectronicsExpansion:
		return fmt.Sprintf("Excellent choice looking for %q! I'd love to point you to the right electronics.\n\n", query) +
			"What will you mainly use it for: work, gaming or entertainment? What budget range do you have in mind, and any brand preferences?" +
			highlight(products)
	case TemplateNoProductsFound, TemplateClarification:
		return clarificationText(query) + highlight(products)
	}

	if len(products) == 0 {
		return clarificationText(query)
	}
	return recommendationText(query, products)
}

func recommendationText(query string, products []retrieval.ScoredProduct) string {
	var b strings.Builder
	switch n := len(products); {
	case n == 1:
		b.WriteString("I found the perfect match!")
	case n <= 3:
		fmt.Fprintf(&b, "Great news! I found %d excellent options!", n)
	default:
		fmt.Fprintf(&b, "Amazing! I discovered %d fantastic products!", n)
	}
	fmt.Fprintf(&b, " Here is what I'd suggest for %q:\n", query)

	for _, sp := range top(products, 3) {
		b.WriteString("\n- ")
		b.WriteString(describe(sp))
	}

	best := products[0].Product
	fmt.Fprintf(&b, "\n\nThe standout choice: **%s** at $%.2f. Would you like more details on any of these?", best.Name, best.Price)
	return b.String()
}

func comparisonText(query string, products []retrieval.ScoredProduct) string {
	if len(products) < 2 {
		var b strings.Builder
		fmt.Fprintf(&b, "I'd love to help you compare options for %q! ", query)
		if len(products) == 1 {
			fmt.Fprintf(&b, "So far I have **%s** at $%.2f. ", products[0].Product.Name, products[0].Product.Price)
		}
		b.WriteString("Which other products would you like to put side by side? Tell me the names or what matters most to you, and I'll line them up.")
		return b.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here's how these options compare for %q:\n", query)
	for _, sp := range products {
		b.WriteString("\n- ")
		b.WriteString(describe(sp))
	}

	cheapest, priciest := products[0].Product, products[0].Product
	for _, sp := range products[1:] {
		if sp.Product.Price < cheapest.Price {
			cheapest = sp.Product
		}
		if sp.Product.Price > priciest.Price {
			priciest = sp.Product
		}
	}
	if cheapest.ID != priciest.ID {
		fmt.Fprintf(&b, "\n\nBudget-conscious choice: **%s** at $%.2f. Premium option: **%s** at $%.2f.",
			cheapest.Name, cheapest.Price, priciest.Name, priciest.Price)
	}
	fmt.Fprintf(&b, "\n\nClosest match to what you asked: **%s**. Which one sounds perfect for your needs?", products[0].Product.Name)
	return b.String()
}

func clarificationText(query string) string {
	return fmt.Sprintf("I'd be happy to help you with your search for %q!\n\n", query) +
		"Could you tell me a bit more about:\n" +
		"- What specific features you're looking for\n" +
		"- Your budget range\n" +
		"- Any brand preferences\n" +
		"- How you plan to use the product\n\n" +
		"That will help me find exactly the right match for you!"
}

// highlight appends a short preview of the best candidates, if any.
func highlight(products []retrieval.ScoredProduct) string {
	if len(products) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nIn the meantime, these might catch your eye:")
	for _, sp := range top(products, 2) {
		b.WriteString("\n- ")
		b.WriteString(describe(sp))
	}
	return b.String()
}

func describe(sp retrieval.ScoredProduct) string {
	p := sp.Product
	s := "**" + p.Name + "**"
	if p.Brand != "" {
		s += " by " + p.Brand
	}
	return s + fmt.Sprintf(" at $%.2f", p.Price)
}

func top(products []retrieval.ScoredProduct, n int) []retrieval.ScoredProduct {
	if len(products) > n {
		return products[:n]
	}
	return products
}
