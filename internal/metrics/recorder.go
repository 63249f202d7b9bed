// Package metrics exports recommendation engine metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recommendation"

// Recorder owns the engine's collectors. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	searchCalls     prometheus.Histogram
	degraded        *prometheus.CounterVec
	strategies      *prometheus.CounterVec
	responses       *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	refreshProducts *prometheus.CounterVec
	indexedProducts prometheus.Gauge
}

// Config configures the recorder.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}
}

// NewRecorder creates and registers all collectors.
func NewRecorder(cfg Config) *Recorder {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	r := &Recorder{registry: registry}

	r.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total engine operations by outcome",
		},
		[]string{"operation", "status"},
	)

	r.requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "Engine operation latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"operation"},
	)

	r.searchCalls = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "search_calls",
			Help:      "Vector searches issued per retrieval, including expansions",
			Buckets:   []float64{1, 2, 3, 4, 5, 6},
		},
	)

	r.degraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "degraded_total",
			Help:      "Retrievals that degraded to an empty result",
		},
		[]string{"reason"},
	)

	r.strategies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "strategy_total",
			Help:      "Response strategies chosen by the context evaluator",
		},
		[]string{"strategy", "confidence"},
	)

	r.responses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "responses_total",
			Help:      "Generated responses by source and fallback reason",
		},
		[]string{"template", "source", "reason"},
	)

	r.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Response cache lookups",
		},
		[]string{"result"},
	)

	r.refreshProducts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "products_total",
			Help:      "Products handled by embedding refresh runs",
		},
		[]string{"outcome"},
	)

	r.indexedProducts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "products",
			Help:      "Products currently in the vector index",
		},
	)

	registry.MustRegister(
		r.requests,
		r.requestLatency,
		r.searchCalls,
		r.degraded,
		r.strategies,
		r.responses,
		r.cacheLookups,
		r.refreshProducts,
		r.indexedProducts,
	)

	return r
}

// ObserveRequest records one façade operation.
func (r *Recorder) ObserveRequest(operation string, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.requests.WithLabelValues(operation, status).Inc()
	r.requestLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveRetrieval records search fan-out and degradation.
func (r *Recorder) ObserveRetrieval(searchCalls int, degradedReason string) {
	if r == nil {
		return
	}
	r.searchCalls.Observe(float64(searchCalls))
	if degradedReason != "" {
		r.degraded.WithLabelValues(degradedReason).Inc()
	}
}

// ObserveStrategy records the evaluator's verdict.
func (r *Recorder) ObserveStrategy(strategy, confidence string) {
	if r == nil {
		return
	}
	r.strategies.WithLabelValues(strategy, confidence).Inc()
}

// ObserveResponse records how a response was produced.
func (r *Recorder) ObserveResponse(template, source, reason string) {
	if r == nil {
		return
	}
	r.responses.WithLabelValues(template, source, reason).Inc()
}

// ObserveCache records a cache hit or miss.
func (r *Recorder) ObserveCache(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveRefresh adds a refresh run's per-outcome counts.
func (r *Recorder) ObserveRefresh(successful, skipped, failed, removed int) {
	if r == nil {
		return
	}
	r.refreshProducts.WithLabelValues("successful").Add(float64(successful))
	r.refreshProducts.WithLabelValues("skipped").Add(float64(skipped))
	r.refreshProducts.WithLabelValues("failed").Add(float64(failed))
	r.refreshProducts.WithLabelValues("removed").Add(float64(removed))
}

// SetIndexedProducts sets the index size gauge.
func (r *Recorder) SetIndexedProducts(n int64) {
	if r == nil {
		return
	}
	r.indexedProducts.Set(float64(n))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
