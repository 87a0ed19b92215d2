// ABOUTME: Deterministic offline embedder derived from a hash of the text
// ABOUTME: Same text always yields the same unit vector; no semantic quality
package llm

import (
	"context"
	"hash/fnv"
	"math"
)

// DefaultDimensions matches all-MiniLM-L6-v2
const DefaultDimensions = 384

// HashEmbedder generates embeddings without a model
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a hash embedder; dimensions <= 0 uses DefaultDimensions
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed creates a deterministic embedding from text
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(text))
	seed := f.Sum64()

	embedding := make([]float32, h.dimensions)
	for i := range embedding {
		// LCG step, mapped to [-1, 1]
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

// Dimensions returns the embedding size
func (h *HashEmbedder) Dimensions() int {
	return h.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}

	n := float32(math.Sqrt(norm))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / n
	}
	return out
}
