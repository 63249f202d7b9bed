package recommendation

import (
	"time"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/evaluation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/generation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/retrieval"
)

// Filters are explicit request filters. They override entities extracted
// from the query text.
type Filters struct {
	Category string   `json:"category,omitempty"`
	MinPrice *float64 `json:"minPrice,omitempty"`
	MaxPrice *float64 `json:"maxPrice,omitempty"`
}

// SearchRequest is the input to Search. A zero Limit or nil threshold selects
// the configured default.
type SearchRequest struct {
	Query               string   `json:"query"`
	Filters             Filters  `json:"filters"`
	Limit               int      `json:"limit,omitempty"`
	SimilarityThreshold *float64 `json:"similarityThreshold,omitempty"`
}

// Diagnostics explain how a response was produced.
type Diagnostics struct {
	Expansions       []string `json:"expansions,omitempty"`
	SearchCalls      int      `json:"searchCalls"`
	Rerank           string   `json:"rerank,omitempty"`
	AudienceFiltered int      `json:"audienceFiltered,omitempty"`
	Degraded         bool     `json:"degraded"`
	DegradedReason   string   `json:"degradedReason,omitempty"`
	Template         string   `json:"template"`
	ResponseSource   string   `json:"responseSource"`
	FallbackReason   string   `json:"fallbackReason,omitempty"`
	RetrievalMs      int64    `json:"retrievalMs"`
	GenerationMs     int64    `json:"generationMs"`
	TotalMs          int64    `json:"totalMs"`
}

// SearchResponse is the output of Search.
type SearchResponse struct {
	Query           string                    `json:"query"`
	Products        []retrieval.ScoredProduct `json:"products"`
	ResponseText    string                    `json:"responseText"`
	Intent          intent.QueryIntent        `json:"intent"`
	ContextAnalysis evaluation.Analysis       `json:"contextAnalysis"`
	Confidence      float64                   `json:"confidence"`
	Diagnostics     Diagnostics               `json:"diagnostics"`
	Cached          bool                      `json:"cached"`
}

// CompareRequest names the products to compare. Query is optional context.
type CompareRequest struct {
	Query      string   `json:"query"`
	ProductIDs []string `json:"productIds"`
}

// CompareResponse is the output of Compare.
type CompareResponse struct {
	Query           string                    `json:"query"`
	Products        []retrieval.ScoredProduct `json:"products"`
	Missing         []string                  `json:"missing,omitempty"`
	ResponseText    string                    `json:"responseText"`
	Strategy        evaluation.Strategy       `json:"strategy"`
	ContextAnalysis evaluation.Analysis       `json:"contextAnalysis"`
	Template        generation.TemplateName   `json:"template"`
	ResponseSource  string                    `json:"responseSource"`
}

// SimilarResponse is the output of SimilarTo.
type SimilarResponse struct {
	ProductID string                    `json:"productId"`
	Products  []retrieval.ScoredProduct `json:"products"`
	Found     int                       `json:"found"`
}

// RefreshRequest scopes a refresh run. Empty ProductIDs means the whole
// active catalog, including removal of stale index entries.
type RefreshRequest struct {
	ProductIDs []string `json:"productIds,omitempty"`
	BatchSize  int      `json:"batchSize,omitempty"`
	Force      bool     `json:"force,omitempty"`

	// Progress, when set, is called after each product settles.
	Progress func(done, total int) `json:"-"`
}

// RefreshFailure records one product that could not be indexed.
type RefreshFailure struct {
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

// RefreshReport summarizes a refresh run. Processed counts every product
// considered, including skipped ones.
type RefreshReport struct {
	Processed  int              `json:"processed"`
	Successful int              `json:"successful"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Removed    int              `json:"removed"`
	Failures   []RefreshFailure `json:"failures,omitempty"`
	Duration   time.Duration    `json:"-"`
	DurationMs int64            `json:"durationMs"`
}

// CategoryStats aggregates indexed products of one category.
type CategoryStats struct {
	Count    int     `json:"count"`
	MinPrice float64 `json:"minPrice"`
	MaxPrice float64 `json:"maxPrice"`
	AvgPrice float64 `json:"avgPrice"`
}

// Stats describe the indexed catalog.
type Stats struct {
	IndexedProducts int64                    `json:"indexedProducts"`
	EmbeddingModel  string                   `json:"embeddingModel"`
	Dimension       int                      `json:"dimension"`
	Categories      map[string]CategoryStats `json:"categories"`
	MinPrice        float64                  `json:"minPrice"`
	MaxPrice        float64                  `json:"maxPrice"`
	AvgPrice        float64                  `json:"avgPrice"`
}

// Status reports dependency health.
type Status struct {
	IndexReachable       bool   `json:"indexReachable"`
	IndexedProducts      int64  `json:"indexedProducts"`
	CacheReachable       bool   `json:"cacheReachable"`
	GenerationConfigured bool   `json:"generationConfigured"`
	GenerationBackend    string `json:"generationBackend"`
	EmbeddingModel       string `json:"embeddingModel"`
	Dimension            int    `json:"dimension"`
}
