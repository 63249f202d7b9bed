package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf, ServiceName: "recommendation-api"})

	logger.WithComponent("retrieval").Info().
		Str("reason", "index_unreachable").
		Int("search_calls", 2).
		Err(errors.New("connection refused")).
		Msg("Retrieval degraded")

	line := decodeLine(t, &buf)
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "recommendation-api", line["service"])
	assert.Equal(t, "retrieval", line["component"])
	assert.Equal(t, "index_unreachable", line["reason"])
	assert.Equal(t, float64(2), line["search_calls"])
	assert.Equal(t, "connection refused", line["error"])
	assert.Equal(t, "Retrieval degraded", line["message"])
}

func TestLogger_WithContextAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Output: &buf})

	ctx := ContextWithTraceID(context.Background(), "trace-123")
	logger.WithContext(ctx).Warn().Msg("slow request")

	line := decodeLine(t, &buf)
	assert.Equal(t, "trace-123", line["trace_id"])
	assert.Equal(t, "recommendation-engine", line["service"])
}

func TestLogger_WithContextWithoutTraceID(t *testing.T) {
	logger := NopLogger()
	assert.Same(t, logger, logger.WithContext(context.Background()))
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestLogger_StackFromWrappedError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Output: &buf})

	cause := pkgerrors.Wrap(errors.New("connection refused"), "failed to upsert embedding")
	logger.Warn().Stack().Err(fmt.Errorf("index unavailable: %w", cause)).Msg("Index upsert failed")

	line := decodeLine(t, &buf)
	frames, ok := line["stack"].([]interface{})
	require.True(t, ok, "stack field missing: %v", line)
	assert.NotEmpty(t, frames)
}

func TestLogger_StackWithoutTraceableErrorIsOmitted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Output: &buf})

	logger.Warn().Stack().Err(errors.New("plain")).Msg("no stack")

	line := decodeLine(t, &buf)
	assert.NotContains(t, line, "stack")
	assert.Equal(t, "plain", line["error"])
}

func TestLogger_LevelIsPerLogger(t *testing.T) {
	var quiet, verbose bytes.Buffer
	warnOnly := NewLogger(LogConfig{Level: "warn", Output: &quiet})
	debug := NewLogger(LogConfig{Level: "debug", Output: &verbose})

	warnOnly.Info().Msg("dropped")
	debug.Debug().Msg("kept")

	assert.Zero(t, quiet.Len())
	assert.Equal(t, "kept", decodeLine(t, &verbose)["message"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "debug",
		"warning": "warn",
		"error":   "error",
		" WARN ":  "warn",
		"trace":   "trace",
		"bogus":   "info",
		"":        "info",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in).String(), in)
	}
}
