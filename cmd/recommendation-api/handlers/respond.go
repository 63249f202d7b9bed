package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
)

func writeJSON(w http.ResponseWriter, logger *observability.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, status int, code, message string) {
	writeJSON(w, logger, status, ErrorDTO{
		Error:   code,
		Message: message,
		TraceID: observability.TraceIDFromContext(r.Context()),
	})
}

// writeDomainError maps the engine's error taxonomy onto status codes.
// Validation and not-found messages are safe to show; anything else gets a
// generic message and the detail goes to the log.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		logger.WithContext(r.Context()).Error().Err(err).Msg("Request failed")
		writeError(w, r, logger, http.StatusInternalServerError, "internal", "Something went wrong on our side. Please try again.")
		return
	}

	switch de.Type {
	case domain.ErrorTypeValidation:
		writeError(w, r, logger, http.StatusBadRequest, string(de.Type), de.Message)
	case domain.ErrorTypeNotFound:
		writeError(w, r, logger, http.StatusNotFound, string(de.Type), de.Message)
	case domain.ErrorTypeDependency:
		logger.WithContext(r.Context()).Warn().Stack().Err(err).Msg("Dependency unavailable")
		writeError(w, r, logger, http.StatusServiceUnavailable, string(de.Type),
			"Recommendations are temporarily unavailable. Please try again shortly.")
	default:
		logger.WithContext(r.Context()).Error().Stack().Err(err).Msg("Request failed")
		writeError(w, r, logger, http.StatusInternalServerError, string(de.Type),
			"Something went wrong on our side. Please try again.")
	}
}

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}
