package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommendation"
)

// EmbeddingHandler handles embedding refresh and index statistics.
type EmbeddingHandler struct {
	logger *observability.Logger
	engine *recommendation.Engine
}

// NewEmbeddingHandler creates a new embedding handler.
func NewEmbeddingHandler(logger *observability.Logger, engine *recommendation.Engine) *EmbeddingHandler {
	return &EmbeddingHandler{
		logger: logger.WithComponent("api"),
		engine: engine,
	}
}

// Refresh handles POST /embeddings/refresh. An empty body refreshes the
// whole active catalog.
func (h *EmbeddingHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var reqDTO RefreshRequestDTO
	if err := decodeBody(w, r, &reqDTO); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, h.logger, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	h.logger.WithContext(r.Context()).Info().
		Int("product_ids", len(reqDTO.ProductIDs)).
		Bool("force", reqDTO.Force).
		Msg("Processing embedding refresh")

	report, err := h.engine.RefreshEmbeddings(r.Context(), recommendation.RefreshRequest{
		ProductIDs: reqDTO.ProductIDs,
		BatchSize:  reqDTO.BatchSize,
		Force:      reqDTO.Force,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, report)
}

// Stats handles GET /embeddings/stats.
func (h *EmbeddingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stats)
}
