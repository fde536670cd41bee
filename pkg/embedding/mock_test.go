package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/jrhatch/mnemo/pkg/vecmath"
)

func TestMockDeterministic(t *testing.T) {
	m := &Mock{Dimensions: 64}
	ctx := context.Background()

	a1, err := m.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	a2, err := m.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	sim := vecmath.CosineSimilarity(a1, a2)
	if math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("identical text should embed identically, similarity=%f", sim)
	}
}

func TestMockDistinctTextsDissimilar(t *testing.T) {
	m := &Mock{Dimensions: 384}
	ctx := context.Background()

	a, _ := m.Embed(ctx, "conversation about embeddings")
	b, _ := m.Embed(ctx, "grocery shopping list for tuesday")

	sim := vecmath.CosineSimilarity(a, b)
	if sim > 0.5 {
		t.Errorf("unrelated texts should be dissimilar, similarity=%f", sim)
	}
}

func TestMockUnitNorm(t *testing.T) {
	m := &Mock{Dimensions: 128}
	vec, err := m.Embed(context.Background(), "normalize me")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if n := vecmath.Norm(vec); math.Abs(n-1.0) > 1e-5 {
		t.Errorf("expected unit norm, got %f", n)
	}
}

func TestMockFail(t *testing.T) {
	m := &Mock{Fail: true}
	_, err := m.Embed(context.Background(), "anything")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
