// Package embedding wraps external embedding models behind a small
// provider interface. The memory layer treats embedding as an opaque
// text -> vector function and degrades gracefully when it is unavailable.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the embedding model cannot be reached or is not
// loaded. Callers should degrade (skip semantic storage, fall back to
// recency-only context) rather than fail their primary operation.
var ErrUnavailable = errors.New("embedding service unavailable")

// Provider produces vector embeddings for text.
type Provider interface {
	// Embed returns the embedding vector for text. Embedding is
	// deterministic for identical input and model version.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelVersion identifies the model that produced the vectors.
	// Vectors from different model versions must never be compared.
	ModelVersion() string
}
