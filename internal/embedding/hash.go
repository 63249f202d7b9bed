package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder is a local, deterministic embedder based on feature hashing of
// word tokens and character trigrams. It needs no network access.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hashing embedder with the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEmbedder{dimension: dimension}
}

// Embed generates hashed embeddings. Empty text yields a zero vector.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = h.vector(text)
	}
	return embeddings, nil
}

// EmbedSingle generates a hashed embedding for a single text.
func (h *HashEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := h.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Model returns the model identifier, which encodes the dimension.
func (h *HashEmbedder) Model() string {
	return fmt.Sprintf("hash-%d", h.dimension)
}

// Dimension returns the embedding dimension.
func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dimension)
	for _, token := range tokenize(text) {
		h.add(v, "w:"+token, 1.0)
		padded := "#" + token + "#"
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			h.add(v, "t:"+string(runes[i:i+3]), 0.5)
		}
	}
	return normalize(v)
}

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()
	idx := int(sum % uint64(h.dimension))
	if (sum>>63)&1 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

// tokenize lowercases text, splits on non-alphanumerics and strips a plural "s".
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 3 && strings.HasSuffix(f, "s") && !strings.HasSuffix(f, "ss") {
			f = strings.TrimSuffix(f, "s")
		}
		tokens = append(tokens, f)
	}
	return tokens
}

var _ Embedder = (*HashEmbedder)(nil)
