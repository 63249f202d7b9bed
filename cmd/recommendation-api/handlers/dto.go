// Package handlers provides HTTP handlers for the Recommendation Engine API.
package handlers

import (
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/evaluation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommendation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/retrieval"
)

// SearchRequestDTO represents the API request for a search.
type SearchRequestDTO struct {
	Query               string      `json:"query"`
	Filters             *FiltersDTO `json:"filters,omitempty"`
	Limit               int         `json:"limit,omitempty"`
	SimilarityThreshold *float64    `json:"similarityThreshold,omitempty"`
}

// FiltersDTO represents explicit search filters.
type FiltersDTO struct {
	Category string   `json:"category,omitempty"`
	MinPrice *float64 `json:"minPrice,omitempty"`
	MaxPrice *float64 `json:"maxPrice,omitempty"`
}

// CompareRequestDTO represents the API request for a comparison.
type CompareRequestDTO struct {
	Query      string   `json:"query,omitempty"`
	ProductIDs []string `json:"productIds"`
}

// RefreshRequestDTO represents the API request for an embedding refresh.
type RefreshRequestDTO struct {
	ProductIDs []string `json:"productIds,omitempty"`
	BatchSize  int      `json:"batchSize,omitempty"`
	Force      bool     `json:"force,omitempty"`
}

// ProductDTO is a recommended product with its similarity to the query.
type ProductDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Brand       string   `json:"brand,omitempty"`
	Price       float64  `json:"price"`
	Tags        []string `json:"tags,omitempty"`
	Similarity  float64  `json:"similarity"`
}

// SearchResponseDTO represents the API response for a search.
type SearchResponseDTO struct {
	Query           string                     `json:"query"`
	Products        []ProductDTO               `json:"products"`
	ResponseText    string                     `json:"responseText"`
	Intent          intent.QueryIntent         `json:"intent"`
	ContextAnalysis evaluation.Analysis        `json:"contextAnalysis"`
	Confidence      float64                    `json:"confidence"`
	Diagnostics     recommendation.Diagnostics `json:"diagnostics"`
	Cached          bool                       `json:"cached"`
}

// CompareResponseDTO represents the API response for a comparison.
type CompareResponseDTO struct {
	Query           string              `json:"query"`
	Products        []ProductDTO        `json:"products"`
	Missing         []string            `json:"missing,omitempty"`
	ResponseText    string              `json:"responseText"`
	Strategy        string              `json:"strategy"`
	Template        string              `json:"template"`
	ResponseSource  string              `json:"responseSource"`
	ContextAnalysis evaluation.Analysis `json:"contextAnalysis"`
}

// SimilarResponseDTO represents the API response for similar products.
type SimilarResponseDTO struct {
	ProductID string       `json:"productId"`
	Products  []ProductDTO `json:"products"`
	Found     int          `json:"found"`
}

// ErrorDTO is the body of every non-2xx response.
type ErrorDTO struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	TraceID string `json:"traceId,omitempty"`
}

func (d SearchRequestDTO) toRequest() recommendation.SearchRequest {
	req := recommendation.SearchRequest{
		Query:               d.Query,
		Limit:               d.Limit,
		SimilarityThreshold: d.SimilarityThreshold,
	}
	if d.Filters != nil {
		req.Filters = recommendation.Filters{
			Category: d.Filters.Category,
			MinPrice: d.Filters.MinPrice,
			MaxPrice: d.Filters.MaxPrice,
		}
	}
	return req
}

func toProductDTOs(products []retrieval.ScoredProduct) []ProductDTO {
	out := make([]ProductDTO, 0, len(products))
	for _, sp := range products {
		out = append(out, ProductDTO{
			ID:          sp.Product.ID,
			Name:        sp.Product.Name,
			Description: sp.Product.Description,
			Category:    sp.Product.Category,
			Brand:       sp.Product.Brand,
			Price:       sp.Product.Price,
			Tags:        sp.Product.Tags,
			Similarity:  sp.Similarity,
		})
	}
	return out
}

func toSearchResponseDTO(resp *recommendation.SearchResponse) SearchResponseDTO {
	return SearchResponseDTO{
		Query:           resp.Query,
		Products:        toProductDTOs(resp.Products),
		ResponseText:    resp.ResponseText,
		Intent:          resp.Intent,
		ContextAnalysis: resp.ContextAnalysis,
		Confidence:      resp.Confidence,
		Diagnostics:     resp.Diagnostics,
		Cached:          resp.Cached,
	}
}

func toCompareResponseDTO(resp *recommendation.CompareResponse) CompareResponseDTO {
	return CompareResponseDTO{
		Query:           resp.Query,
		Products:        toProductDTOs(resp.Products),
		Missing:         resp.Missing,
		ResponseText:    resp.ResponseText,
		Strategy:        string(resp.Strategy),
		Template:        string(resp.Template),
		ResponseSource:  resp.ResponseSource,
		ContextAnalysis: resp.ContextAnalysis,
	}
}
