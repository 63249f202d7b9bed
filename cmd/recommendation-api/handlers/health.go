package handlers

import (
	"net/http"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommendation"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	logger  *observability.Logger
	engine  *recommendation.Engine
	service string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(logger *observability.Logger, engine *recommendation.Engine, service string) *HealthHandler {
	return &HealthHandler{logger: logger, engine: engine, service: service}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.service,
	})
}

// ReadyResponseDTO is the readiness probe body.
type ReadyResponseDTO struct {
	Status string                `json:"status"`
	Engine recommendation.Status `json:"engine"`
}

// Ready handles GET /ready. The service is not ready while the vector index
// is unreachable; a missing generation backend or cache only degrades it.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Status(r.Context())

	resp := ReadyResponseDTO{Status: "ready", Engine: status}
	code := http.StatusOK
	if !status.IndexReachable {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, h.logger, code, resp)
}
