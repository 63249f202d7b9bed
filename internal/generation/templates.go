package generation

import (
	"regexp"
	"strings"
	"text/template"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/evaluation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
)

// TemplateName identifies a prompt template.
type TemplateName string

const (
	TemplateProductRecommendation TemplateName = "product_recommendation"
	TemplateComparison            TemplateName = "comparison"
	TemplateNoProductsFound       TemplateName = "no_products_found"
	TemplateClarification         TemplateName = "clarification"
	TemplateGeneralInquiry        TemplateName = "general_inquiry"
	TemplateAutomotiveRedirect    TemplateName = "automotive_redirect"
	TemplateElectronicsExpansion  TemplateName = "electronics_expansion"
)

var electronicsTerms = regexp.MustCompile(`\b(?:laptops?|computers?|phones?|tech|gaming|electronics?)\b`)

// SelectTemplate picks the prompt template for a request from the strategy,
// the intent and, for weak context, the query's domain.
func SelectTemplate(query string, qi intent.QueryIntent, analysis evaluation.Analysis) TemplateName {
	switch analysis.Strategy {
	case evaluation.StrategyExpandSearch:
		return TemplateComparison
	case evaluation.StrategyClarification:
		q := strings.ToLower(query)
		switch {
		case evaluation.MentionsAutomotive(q):
			return TemplateAutomotiveRedirect
		case electronicsTerms.MatchString(q):
			return TemplateElectronicsExpansion
		case analysis.Stats.Count == 0:
			return TemplateNoProductsFound
		default:
			return TemplateClarification
		}
	}

	switch qi.Primary {
	case intent.Comparison:
		return TemplateComparison
	case intent.ProductSearch, intent.Recommendation, intent.PriceInquiry:
		return TemplateProductRecommendation
	default:
		return TemplateGeneralInquiry
	}
}

// promptData feeds the guidance templates.
type promptData struct {
	Query           string
	NumProducts     int
	ConfidenceLevel string
}

const basePersona = `You are an expert shopping assistant for an e-commerce store. Help customers find products they will love and guide them toward a confident purchase.
Be enthusiastic, friendly and concise. Focus on what the store has. Suggest related products when there is no exact match.
Never describe a product as unavailable, out of stock or not found. Never mention databases, errors or technical issues.
Only state facts that appear in the product list you are given.`

// systemPrompt mirrors the strategy and intent of the request.
func systemPrompt(qi intent.QueryIntent, analysis evaluation.Analysis) string {
	var role string
	switch {
	case analysis.Strategy == evaluation.StrategyClarification:
		role = "The customer's query did not match our products well. Politely ask clarifying questions to better understand their needs."
	case qi.Primary == intent.Comparison:
		role = "Compare the available products, highlighting their key differences, pros and cons. Be objective and help the customer make an informed decision."
	case qi.Primary == intent.Recommendation:
		role = "Provide personalized product recommendations based on the customer's needs. Explain why each product is a good fit."
	case qi.Primary == intent.PriceInquiry:
		role = "Focus on value, pricing and budget-friendly options. Help the customer find the best deals."
	default:
		role = "Help the customer find products that meet their needs. Be helpful, accurate and customer-focused."
	}
	return basePersona + "\n\n" + role
}

var guidance = map[TemplateName]*template.Template{
	TemplateProductRecommendation: mustTemplate(TemplateProductRecommendation, `The customer is looking for: "{{.Query}}".
Showcase the top 2-3 products from the list. Lead with the strongest match, explain the benefits that matter for this customer, and mention prices with value context.
If the matches are related rather than exact, explain how they meet the customer's underlying need.
End with a clear next step, such as offering more details.
Keep it to 2-4 short, conversational paragraphs.`),

	TemplateComparison: mustTemplate(TemplateComparison, `The customer wants to compare: "{{.Query}}".
{{if lt .NumProducts 2}}There are not enough products in the list for a full comparison. Present what is there and ask which other products the customer has in mind.
{{else}}Name the best overall choice and why it stands out. Cover the key differences in quality, price and value, and say who should choose which product.
{{end}}End with: "Which one sounds perfect for your needs?"
Keep it to 3-4 paragraphs, clear and decisive.`),

	TemplateNoProductsFound: mustTemplate(TemplateNoProductsFound, `The customer is looking for: "{{.Query}}". There is no direct match in the list.
Stay positive and redirect toward related categories the store does carry. Never say the store does not have something.
Ask 2-3 qualifying questions about features, budget, usage or brand preferences.
Close by offering to keep helping.`),

	TemplateClarification: mustTemplate(TemplateClarification, `The customer asked: "{{.Query}}".
{{.NumProducts}} potentially relevant products were found with {{.ConfidenceLevel}} confidence.
Acknowledge their interest, ask 2-3 of the most relevant clarifying questions (intended use, budget, must-have features, who it is for), and preview one or two promising options if the list has any.
Close by promising a sharper recommendation once you know more.`),

	TemplateGeneralInquiry: mustTemplate(TemplateGeneralInquiry, `Customer inquiry: "{{.Query}}".
Answer the question directly. Weave in relevant products from the list naturally, offer related suggestions, and finish with a clear next step.
Keep it to 2-3 paragraphs.`),

	TemplateAutomotiveRedirect: mustTemplate(TemplateAutomotiveRedirect, `The customer is looking for: "{{.Query}}", which is automotive-related.
The store specializes in electronics, home goods and lifestyle products. Position that positively: many of these suit vehicle owners, such as phone chargers and mounts, portable power banks, road-trip gear and emergency kits.
Ask whether they want charging solutions, entertainment or safety gear, and whether it is for daily commuting or long trips.`),

	TemplateElectronicsExpansion: mustTemplate(TemplateElectronicsExpansion, `The customer is looking for: "{{.Query}}", which is tech-related.
Open with enthusiasm for helping them choose electronics. Ask what they will mainly use it for (work, gaming, entertainment), their budget range and any brand preferences.
If the list has products, position the most relevant ones by the benefits they bring.`),
}

func mustTemplate(name TemplateName, body string) *template.Template {
	return template.Must(template.New(string(name)).Parse(body))
}

func renderGuidance(name TemplateName, data promptData) (string, error) {
	tmpl, ok := guidance[name]
	if !ok {
		tmpl = guidance[TemplateGeneralInquiry]
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
