// Package main provides the API router setup.
package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/cmd/recommendation-api/handlers"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/cmd/recommendation-api/middleware"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/metrics"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommendation"
)

// RouterConfig holds what the router needs beyond the engine.
type RouterConfig struct {
	ServiceName    string
	RequestTimeout time.Duration
	AllowedOrigins []string
	Metrics        *metrics.Recorder
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, engine *recommendation.Engine, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Trace)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	healthHandler := handlers.NewHealthHandler(logger, engine, cfg.ServiceName)
	recommendationHandler := handlers.NewRecommendationHandler(logger, engine)
	embeddingHandler := handlers.NewEmbeddingHandler(logger, engine)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/recommendations", func(r chi.Router) {
			r.Post("/search", recommendationHandler.Search)
			r.Post("/compare", recommendationHandler.Compare)
		})

		r.Get("/products/{productId}/similar", recommendationHandler.Similar)

		r.Route("/embeddings", func(r chi.Router) {
			r.Post("/refresh", embeddingHandler.Refresh)
			r.Get("/stats", embeddingHandler.Stats)
		})
	})

	return r
}
