// Package engine provides the public Go SDK for the Recommendation Engine API.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is the public SDK client for the Recommendation Engine.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// NewClient creates a new Recommendation Engine client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8086"
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
	TraceID    string `json:"traceId,omitempty"`

	ready *ReadyResponse
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recommendation engine returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("recommendation engine returned HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a 404 from the API.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// Filters narrow a search explicitly.
type Filters struct {
	Category string   `json:"category,omitempty"`
	MinPrice *float64 `json:"minPrice,omitempty"`
	MaxPrice *float64 `json:"maxPrice,omitempty"`
}

// SearchRequest represents a search request.
type SearchRequest struct {
	Query               string   `json:"query"`
	Filters             *Filters `json:"filters,omitempty"`
	Limit               int      `json:"limit,omitempty"`
	SimilarityThreshold *float64 `json:"similarityThreshold,omitempty"`
}

// Product represents a recommended product.
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Brand       string   `json:"brand,omitempty"`
	Price       float64  `json:"price"`
	Tags        []string `json:"tags,omitempty"`
	Similarity  float64  `json:"similarity"`
}

// PriceRange is an inclusive price interval.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Entities are the structured hints extracted from a query.
type Entities struct {
	Category            string      `json:"category,omitempty"`
	Brand               string      `json:"brand,omitempty"`
	PriceRange          *PriceRange `json:"priceRange,omitempty"`
	QualityPreference   string      `json:"qualityPreference"`
	Audience            string      `json:"audience,omitempty"`
	UsageContext        string      `json:"usageContext,omitempty"`
	SortPreference      string      `json:"sortPreference"`
	HasSizeRequirement  bool        `json:"hasSizeRequirement"`
	HasColorRequirement bool        `json:"hasColorRequirement"`
}

// Intent is the analyzed query intent.
type Intent struct {
	Query         string   `json:"query"`
	PrimaryIntent string   `json:"primaryIntent"`
	AllIntents    []string `json:"allIntents"`
	Entities      Entities `json:"entities"`
	Urgency       string   `json:"urgency"`
	Complexity    string   `json:"complexity"`
}

// ContextStats summarize the retrieved products.
type ContextStats struct {
	Count         int     `json:"count"`
	AvgSimilarity float64 `json:"avgSimilarity"`
	MaxSimilarity float64 `json:"maxSimilarity"`
	MinSimilarity float64 `json:"minSimilarity"`
	CategoryCount int     `json:"categoryCount"`
	PriceSpread   float64 `json:"priceSpread"`
}

// ContextAnalysis is the engine's judgement of retrieval quality.
type ContextAnalysis struct {
	Query               string       `json:"query"`
	SufficientContext   bool         `json:"sufficientContext"`
	ConfidenceLevel     string       `json:"confidenceLevel"`
	RecommendedStrategy string       `json:"recommendedStrategy"`
	ConfidenceScore     float64      `json:"confidenceScore"`
	ThoughtProcess      []string     `json:"thoughtProcess"`
	Stats               ContextStats `json:"stats"`
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

// SearchResponse represents a search response.
type SearchResponse struct {
	Query           string          `json:"query"`
	Products        []Product       `json:"products"`
	ResponseText    string          `json:"responseText"`
	Intent          Intent          `json:"intent"`
	ContextAnalysis ContextAnalysis `json:"contextAnalysis"`
	Confidence      float64         `json:"confidence"`
	Diagnostics     Diagnostics     `json:"diagnostics"`
	Cached          bool            `json:"cached"`
}

// Search asks for recommendations for a natural-language query.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/recommendations/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CompareRequest represents a comparison request.
type CompareRequest struct {
	Query      string   `json:"query,omitempty"`
	ProductIDs []string `json:"productIds"`
}

// CompareResponse represents a comparison response.
type CompareResponse struct {
	Query           string          `json:"query"`
	Products        []Product       `json:"products"`
	Missing         []string        `json:"missing,omitempty"`
	ResponseText    string          `json:"responseText"`
	Strategy        string          `json:"strategy"`
	Template        string          `json:"template"`
	ResponseSource  string          `json:"responseSource"`
	ContextAnalysis ContextAnalysis `json:"contextAnalysis"`
}

// Compare compares specific products.
func (c *Client) Compare(ctx context.Context, req CompareRequest) (*CompareResponse, error) {
	var resp CompareResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/recommendations/compare", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SimilarResponse represents products similar to a given product.
type SimilarResponse struct {
	ProductID string    `json:"productId"`
	Products  []Product `json:"products"`
	Found     int       `json:"found"`
}

// Similar returns products similar to productID. A zero limit uses the
// server default.
func (c *Client) Similar(ctx context.Context, productID string, limit int) (*SimilarResponse, error) {
	path := "/api/v1/products/" + url.PathEscape(productID) + "/similar"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp SimilarResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefreshRequest scopes an embedding refresh. Empty ProductIDs refreshes
// the whole catalog.
type RefreshRequest struct {
	ProductIDs []string `json:"productIds,omitempty"`
	BatchSize  int      `json:"batchSize,omitempty"`
	Force      bool     `json:"force,omitempty"`
}

// RefreshFailure names a product that could not be indexed.
type RefreshFailure struct {
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

// RefreshReport summarizes a refresh run.
type RefreshReport struct {
	Processed  int              `json:"processed"`
	Successful int              `json:"successful"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Removed    int              `json:"removed"`
	Failures   []RefreshFailure `json:"failures,omitempty"`
	DurationMs int64            `json:"durationMs"`
}

// RefreshEmbeddings triggers an embedding refresh and waits for the report.
func (c *Client) RefreshEmbeddings(ctx context.Context, req RefreshRequest) (*RefreshReport, error) {
	var resp RefreshReport
	if err := c.do(ctx, http.MethodPost, "/api/v1/embeddings/refresh", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
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

// Stats returns index statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var resp Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/embeddings/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Health checks the service liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EngineStatus reports dependency reachability.
type EngineStatus struct {
	IndexReachable       bool   `json:"indexReachable"`
	IndexedProducts      int64  `json:"indexedProducts"`
	CacheReachable       bool   `json:"cacheReachable"`
	GenerationConfigured bool   `json:"generationConfigured"`
	GenerationBackend    string `json:"generationBackend"`
	EmbeddingModel       string `json:"embeddingModel"`
	Dimension            int    `json:"dimension"`
}

// ReadyResponse represents a readiness check response.
type ReadyResponse struct {
	Status string       `json:"status"`
	Engine EngineStatus `json:"engine"`
}

// Ready reports whether the service can answer queries. An unavailable
// service is returned as a response with Status "unavailable", not an error.
func (c *Client) Ready(ctx context.Context) (*ReadyResponse, error) {
	var resp ReadyResponse
	err := c.do(ctx, http.MethodGet, "/ready", nil, &resp)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusServiceUnavailable && apiErr.ready != nil {
		return apiErr.ready, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		if path == "/ready" {
			var ready ReadyResponse
			if json.Unmarshal(raw, &ready) == nil && ready.Status != "" {
				apiErr.ready = &ready
			}
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
