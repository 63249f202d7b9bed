// Package generation turns retrieved products and the context verdict into a
// customer-facing response, through a language model when one is configured
// and a deterministic template otherwise.
package generation

import (
	"context"
	"errors"
	"time"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/evaluation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/retrieval"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 30 * time.Second

// Response sources.
const (
	SourceBackend  = "backend"
	SourceTemplate = "template"
	SourceFallback = "fallback"
)

// Response is the generated customer-facing text plus how it was produced.
type Response struct {
	Text           string       `json:"text"`
	Template       TemplateName `json:"template"`
	Source         string       `json:"source"`
	FallbackReason string       `json:"fallbackReason,omitempty"`
	LatencyMs      int64        `json:"latencyMs"`
}

// Generator owns the backend and its timeout. A nil backend always uses the
// deterministic path.
type Generator struct {
	backend Backend
	timeout time.Duration
	logger  *observability.Logger
}

// NewGenerator creates a response generator.
func NewGenerator(backend Backend, timeout time.Duration, logger *observability.Logger) *Generator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Generator{
		backend: backend,
		timeout: timeout,
		logger:  logger.WithComponent("generation"),
	}
}

// Configured reports whether a backend is wired.
func (g *Generator) Configured() bool {
	return g.backend != nil
}

// BackendName returns the backend identifier, or "none".
func (g *Generator) BackendName() string {
	if g.backend == nil {
		return "none"
	}
	return g.backend.Name()
}

// Generate never returns an error: every failure resolves to fallback text.
func (g *Generator) Generate(
	ctx context.Context,
	query string,
	products []retrieval.ScoredProduct,
	qi intent.QueryIntent,
	analysis evaluation.Analysis,
) Response {
	start := time.Now()
	logger := g.logger.WithContext(ctx)

	prompt, err := BuildPrompt(query, products, qi, analysis)
	if err != nil {
		logger.Error().Err(err).Msg("Prompt rendering failed")
		name := SelectTemplate(query, qi, analysis)
		return g.finish(start, Response{
			Text:           deterministicText(name, query, products),
			Template:       name,
			Source:         SourceTemplate,
			FallbackReason: ReasonBackendError,
		})
	}

	if g.backend == nil {
		return g.finish(start, Response{
			Text:           deterministicText(prompt.Template, query, products),
			Template:       prompt.Template,
			Source:         SourceTemplate,
			FallbackReason: ReasonNotConfigured,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.backend.Complete(callCtx, prompt)
	if err != nil {
		reason, message := failureMessage(err)
		logger.Warn().
			Err(err).
			Str("reason", reason).
			Str("backend", g.backend.Name()).
			Str("template", string(prompt.Template)).
			Msg("Generation failed, using fallback response")
		return g.finish(start, Response{
			Text:           message,
			Template:       prompt.Template,
			Source:         SourceFallback,
			FallbackReason: reason,
		})
	}

	if violatesPhrasing(text) {
		logger.Warn().
			Str("template", string(prompt.Template)).
			Msg("Generated text used disallowed phrasing, using template response")
		return g.finish(start, Response{
			Text:           deterministicText(prompt.Template, query, products),
			Template:       prompt.Template,
			Source:         SourceTemplate,
			FallbackReason: ReasonPhrasingGuard,
		})
	}

	return g.finish(start, Response{
		Text:     text,
		Template: prompt.Template,
		Source:   SourceBackend,
	})
}

func (g *Generator) finish(start time.Time, r Response) Response {
	r.LatencyMs = time.Since(start).Milliseconds()
	return r
}

// failureMessage maps a backend error to its reason and user-facing text.
func failureMessage(err error) (string, string) {
	switch {
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited, FallbackRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout, FallbackTimeout
	default:
		return ReasonBackendError, FallbackGeneric
	}
}
