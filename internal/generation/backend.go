package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Common errors
var (
	// ErrRateLimited means the backend throttled the request (HTTP 429).
	ErrRateLimited = errors.New("generation backend rate limited")

	// ErrBackendNotConfigured means no backend is wired; callers use the
	// deterministic path instead of attempting a call.
	ErrBackendNotConfigured = errors.New("generation backend not configured")

	// ErrEmptyCompletion means the backend answered without any text.
	ErrEmptyCompletion = errors.New("generation backend returned no content")
)

// Provider base URLs for OpenAI-compatible chat endpoints.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	OllamaBaseURL     = "http://localhost:11434/v1"
)

// Backend produces text for a rendered prompt.
type Backend interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Name() string
}

// BackendConfig configures an OpenAI-compatible chat backend.
type BackendConfig struct {
	Provider    string // openai, openrouter or ollama
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	HTTPClient  *http.Client
}

// OpenAIBackend talks to any OpenAI-compatible chat completions API,
// including a local Ollama server.
type OpenAIBackend struct {
	client      *openai.Client
	provider    string
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIBackend creates a chat backend.
func NewOpenAIBackend(cfg BackendConfig) (*OpenAIBackend, error) {
	if cfg.BaseURL == "" {
		switch cfg.Provider {
		case "openrouter":
			cfg.BaseURL = OpenRouterBaseURL
		case "ollama":
			cfg.BaseURL = OllamaBaseURL
		default:
			cfg.BaseURL = OpenAIBaseURL
		}
	}
	if cfg.APIKey == "" {
		if cfg.Provider != "ollama" {
			return nil, fmt.Errorf("API key is required for provider %q", cfg.Provider)
		}
		cfg.APIKey = "ollama"
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("generation model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	} else {
		// The per-call context carries the real deadline.
		clientConfig.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}

	return &OpenAIBackend{
		client:      openai.NewClientWithConfig(clientConfig),
		provider:    cfg.Provider,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Complete sends one chat completion request. There is no retry.
func (b *OpenAIBackend) Complete(ctx context.Context, p Prompt) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		MaxTokens:   b.maxTokens,
		Temperature: b.temperature,
		TopP:        0.9,
		Stop:        []string{"User:", "System:"},
	})
	if err != nil {
		return "", classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// Name returns provider/model.
func (b *OpenAIBackend) Name() string {
	return b.provider + "/" + b.model
}

// classify maps client errors onto the generator's failure branches.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	if statusCode(err) == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return err
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

var _ Backend = (*OpenAIBackend)(nil)

// NewBackend builds the backend for a provider. Provider "none" or empty
// yields ErrBackendNotConfigured.
func NewBackend(cfg BackendConfig) (Backend, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, ErrBackendNotConfigured
	case "openai", "openrouter", "ollama":
		b, err := NewOpenAIBackend(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
