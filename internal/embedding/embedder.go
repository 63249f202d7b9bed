// Package embedding provides embedding generation services.
package embedding

import (
	"context"
	"errors"
	"math"
)

// Common errors
var (
	// ErrProviderUnavailable means the backend could not produce vectors. It is
	// distinct from a valid zero vector returned for empty input.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrUnexpectedDimension means the backend returned vectors of the wrong size.
	ErrUnexpectedDimension = errors.New("embedding dimension mismatch")
)

// Embedder defines the interface for embedding generation.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimension() int
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}
