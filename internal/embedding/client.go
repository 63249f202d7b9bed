package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
)

// Provider base URLs for OpenAI-compatible embedding endpoints.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	OllamaBaseURL     = "http://localhost:11434/v1"
)

// Client generates embeddings through any OpenAI-compatible API.
type Client struct {
	client    *openai.Client
	model     string
	dimension int
	retry     RetryConfig
	logger    *observability.Logger
}

// Config holds embedding client configuration.
type Config struct {
	Provider   string // openai, openrouter or ollama
	APIKey     string
	Model      string // e.g. "text-embedding-3-small"
	BaseURL    string // Default depends on Provider
	Dimension  int    // Default: 384
	Timeout    time.Duration
	Retry      *RetryConfig
	HTTPClient *http.Client
}

// NewClient creates a new embedding client.
func NewClient(cfg Config, logger *observability.Logger) (*Client, error) {
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
		return nil, fmt.Errorf("embedding model is required")
	}

	if cfg.Dimension <= 0 {
		cfg.Dimension = 384
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	} else {
		clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		retry:     retry,
		logger:    logger.WithComponent("embedding"),
	}, nil
}

// Embed generates embeddings for the given texts. Blank texts get a zero vector
// without a provider call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, len(texts))
	var pending []string
	var pendingIdx []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			embeddings[i] = make([]float32, c.dimension)
			continue
		}
		pending = append(pending, text)
		pendingIdx = append(pendingIdx, i)
	}

	if len(pending) == 0 {
		return embeddings, nil
	}

	var resp openai.EmbeddingResponse
	err := c.retryWithBackoff(ctx, func() error {
		var callErr error
		resp, callErr = c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: pending,
			Model: openai.EmbeddingModel(c.model),
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if len(resp.Data) != len(pending) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d",
			ErrProviderUnavailable, len(pending), len(resp.Data))
	}

	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(pending) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrProviderUnavailable, data.Index)
		}
		if len(data.Embedding) != c.dimension {
			return nil, fmt.Errorf("%w: model %s returned %d, configured %d",
				ErrUnexpectedDimension, c.model, len(data.Embedding), c.dimension)
		}
		embeddings[pendingIdx[data.Index]] = data.Embedding
	}

	return embeddings, nil
}

// EmbedSingle generates an embedding for a single text.
func (c *Client) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", ErrProviderUnavailable)
	}
	return embeddings[0], nil
}

// Model returns the model being used.
func (c *Client) Model() string {
	return c.model
}

// Dimension returns the embedding dimension.
func (c *Client) Dimension() int {
	return c.dimension
}

var _ Embedder = (*Client)(nil)
