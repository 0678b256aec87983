// Package embedding turns text into vectors for example retrieval.
package embedding

import (
	"context"
	"math"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// BatchEmbedder is implemented by embedders that can embed many texts in one call.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
}

// EmbedAll embeds texts, using a single batch call when e supports it.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([]Vector, error) {
	if b, ok := e.(BatchEmbedder); ok {
		return b.EmbedBatch(ctx, texts)
	}
	out := make([]Vector, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched lengths, empty vectors and zero vectors score 0.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Similarity is cosine similarity clamped to [0, 1]; opposite vectors are
// as unrelated as orthogonal ones.
func Similarity(a, b Vector) float64 {
	s := CosineSimilarity(a, b)
	switch {
	case s < 0 || math.IsNaN(s):
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// Normalize scales v to unit length in place and returns it.
func Normalize(v Vector) Vector {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := 1 / math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
