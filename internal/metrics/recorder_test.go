package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveRequest("search", nil, time.Millisecond)
		r.ObserveRetrieval(3, "index_unavailable")
		r.ObserveStrategy("confident_recommendation", "high")
		r.ObserveResponse("comparison", "template", "not_configured")
		r.ObserveCache(true)
		r.ObserveRefresh(1, 2, 3, 4)
		r.SetIndexedProducts(5)
	})
	assert.Nil(t, r.Registry())
}

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder(DefaultConfig())

	r.ObserveRequest("search", nil, 10*time.Millisecond)
	r.ObserveRequest("search", errors.New("boom"), 10*time.Millisecond)
	r.ObserveRetrieval(6, "embedding_unavailable")
	r.ObserveCache(true)
	r.ObserveCache(false)
	r.ObserveCache(false)
	r.ObserveRefresh(3, 2, 1, 0)
	r.SetIndexedProducts(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("search", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("search", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.degraded.WithLabelValues("embedding_unavailable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.refreshProducts.WithLabelValues("successful")))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.indexedProducts))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder(DefaultConfig())
	r.ObserveStrategy("query_clarification", "very_low")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `recommendation_evaluation_strategy_total{confidence="very_low",strategy="query_clarification"} 1`)
}
