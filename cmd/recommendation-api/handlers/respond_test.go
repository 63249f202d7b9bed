package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
)

func TestWriteDomainError_DependencyLogsStack(t *testing.T) {
	var logs bytes.Buffer
	logger := observability.NewLogger(observability.LogConfig{Level: "info", Output: &logs})

	ctx := observability.ContextWithTraceID(t.Context(), "trace-42")
	r := httptest.NewRequest(http.MethodPost, "/api/v1/recommendations/search", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	cause := pkgerrors.Wrap(pkgerrors.New("connection refused"), "failed to search embeddings")
	writeDomainError(w, r, logger, domain.DependencyError("vector search", cause))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body ErrorDTO
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "trace-42", body.TraceID)
	assert.NotContains(t, body.Message, "connection refused")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(logs.Bytes(), &line))
	assert.Equal(t, "Dependency unavailable", line["message"])
	assert.Equal(t, "trace-42", line["trace_id"])
	assert.NotEmpty(t, line["stack"])
}

func TestWriteDomainError_ValidationIsNotLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := observability.NewLogger(observability.LogConfig{Level: "debug", Output: &logs})

	r := httptest.NewRequest(http.MethodPost, "/api/v1/recommendations/search", nil)
	w := httptest.NewRecorder()
	writeDomainError(w, r, logger, domain.ValidationError("query is required", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, logs.Len())

	var body ErrorDTO
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "query is required", body.Message)
}
