package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommendation"
)

// RecommendationHandler handles search, compare and similar-product requests.
type RecommendationHandler struct {
	logger *observability.Logger
	engine *recommendation.Engine
}

// NewRecommendationHandler creates a new recommendation handler.
func NewRecommendationHandler(logger *observability.Logger, engine *recommendation.Engine) *RecommendationHandler {
	return &RecommendationHandler{
		logger: logger.WithComponent("api"),
		engine: engine,
	}
}

// Search handles POST /recommendations/search.
func (h *RecommendationHandler) Search(w http.ResponseWriter, r *http.Request) {
	var reqDTO SearchRequestDTO
	if err := decodeBody(w, r, &reqDTO); err != nil {
		writeError(w, r, h.logger, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	resp, err := h.engine.Search(r.Context(), reqDTO.toRequest())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, toSearchResponseDTO(resp))
}

// Compare handles POST /recommendations/compare.
func (h *RecommendationHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var reqDTO CompareRequestDTO
	if err := decodeBody(w, r, &reqDTO); err != nil {
		writeError(w, r, h.logger, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	resp, err := h.engine.Compare(r.Context(), recommendation.CompareRequest{
		Query:      reqDTO.Query,
		ProductIDs: reqDTO.ProductIDs,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, toCompareResponseDTO(resp))
}

// Similar handles GET /products/{productId}/similar.
func (h *RecommendationHandler) Similar(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, h.logger, http.StatusBadRequest, "validation", "limit must be an integer")
			return
		}
		limit = n
	}

	resp, err := h.engine.SimilarTo(r.Context(), chi.URLParam(r, "productId"), limit)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, SimilarResponseDTO{
		ProductID: resp.ProductID,
		Products:  toProductDTOs(resp.Products),
		Found:     resp.Found,
	})
}
