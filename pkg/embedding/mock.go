package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
)

// DefaultMockDimensions is the vector size produced by Mock when none is set.
const DefaultMockDimensions = 384

// Mock is a deterministic offline Provider. The vector for a given text is
// seeded from a hash of the text, so identical input always yields the same
// unit vector (self-similarity 1.0) and distinct inputs are near-orthogonal
// at realistic dimensions. Useful for tests and for running without a
// configured embedding endpoint.
type Mock struct {
	// Dimensions is the vector length. Defaults to DefaultMockDimensions.
	Dimensions int

	// Fail, when set, makes every Embed call return ErrUnavailable.
	// Used to exercise degradation paths.
	Fail bool

	mu sync.Mutex
}

// Embed returns a deterministic unit vector derived from text.
func (m *Mock) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return nil, ErrUnavailable
	}

	dim := m.Dimensions
	if dim <= 0 {
		dim = DefaultMockDimensions
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// ModelVersion identifies the mock model.
func (m *Mock) ModelVersion() string {
	return "mock-v1"
}

var _ Provider = (*Mock)(nil)
