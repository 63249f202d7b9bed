package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsInvalidURL(t *testing.T) {
	_, err := NewClient(ClientConfig{BaseURL: "::not a url"})
	assert.Error(t, err)
}

func TestClient_Search(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/recommendations/search", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "laptop under $500", req.Query)
		require.NotNil(t, req.Filters)
		assert.Equal(t, 500.0, *req.Filters.MaxPrice)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"query": "laptop under $500",
			"products": [{"id": "p1", "name": "Gaming Laptop", "category": "Electronics", "price": 450, "similarity": 0.82}],
			"responseText": "The Gaming Laptop fits your budget.",
			"intent": {"primaryIntent": "product_search", "entities": {"priceRange": {"min": 0, "max": 500}}},
			"contextAnalysis": {"confidenceLevel": "high", "recommendedStrategy": "confident_recommendation"},
			"confidence": 0.74,
			"diagnostics": {"searchCalls": 1, "template": "confident_recommendation", "responseSource": "template"}
		}`))
	})

	maxPrice := 500.0
	resp, err := c.Search(context.Background(), SearchRequest{
		Query:   "laptop under $500",
		Filters: &Filters{MaxPrice: &maxPrice},
	})
	require.NoError(t, err)

	require.Len(t, resp.Products, 1)
	assert.Equal(t, "p1", resp.Products[0].ID)
	assert.Equal(t, 0.82, resp.Products[0].Similarity)
	assert.Equal(t, "product_search", resp.Intent.PrimaryIntent)
	assert.Equal(t, 500.0, resp.Intent.Entities.PriceRange.Max)
	assert.Equal(t, "confident_recommendation", resp.ContextAnalysis.RecommendedStrategy)
	assert.Equal(t, 1, resp.Diagnostics.SearchCalls)
}

func TestClient_Similar(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/products/trail shoe/similar", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"productId": "trail shoe", "products": [], "found": 0}`))
	})

	resp, err := c.Similar(context.Background(), "trail shoe", 3)
	require.NoError(t, err)
	assert.Equal(t, "trail shoe", resp.ProductID)
}

func TestClient_RefreshEmbeddings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req RefreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Force)
		_, _ = w.Write([]byte(`{"processed": 5, "successful": 4, "failed": 1,
			"failures": [{"productId": "p9", "reason": "empty embedding"}]}`))
	})

	report, err := c.RefreshEmbeddings(context.Background(), RefreshRequest{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Successful)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "p9", report.Failures[0].ProductID)
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "not_found", "message": "product p1 is not indexed", "traceId": "t-1"}`))
	})

	_, err := c.Similar(context.Background(), "p1", 0)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Equal(t, "t-1", apiErr.TraceID)
	assert.Contains(t, err.Error(), "product p1 is not indexed")
}

func TestClient_ServerErrorWithoutBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Stats(context.Background())
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "503")
}

func TestClient_ReadyUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ready", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status": "unavailable", "engine": {"indexReachable": false, "cacheReachable": true}}`))
	})

	resp, err := c.Ready(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unavailable", resp.Status)
	assert.False(t, resp.Engine.IndexReachable)
	assert.True(t, resp.Engine.CacheReachable)
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "healthy", "service": "recommendation-api"}`))
	})

	resp, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Status)
}
