package memory

import (
	"fmt"
	"math"
	"testing"
	"time"
)

func makeCandidate(content string, angle float64, ts time.Time, tags map[string]string) Candidate {
	msg := Message{
		ID:             newID(),
		ConversationID: "conv",
		Role:           RoleUser,
		Content:        content,
		Timestamp:      ts,
	}
	return Candidate{
		Message: msg,
		Embedding: Embedding{
			ID:        newID(),
			MessageID: msg.ID,
			Vector:    makeVector(angle, 8),
			Timestamp: ts,
			Tags:      tags,
		},
	}
}

func TestSearchRanking(t *testing.T) {
	e := NewSearchEngine(DefaultSearchConfig(), "")
	now := time.Now().UTC()

	candidates := []Candidate{
		makeCandidate("far away", math.Pi/2, now, nil),
		makeCandidate("close", 0.1, now, nil),
		makeCandidate("exact", 0, now, nil),
	}

	matches := e.Search(makeVector(0, 8), candidates, 10, -1)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches above threshold, got %d", len(matches))
	}
	if matches[0].Message.Content != "exact" {
		t.Errorf("expected exact match first, got %q", matches[0].Message.Content)
	}
	if matches[0].Similarity < 0.99 {
		t.Errorf("expected self-similarity near 1.0, got %f", matches[0].Similarity)
	}
	if matches[1].Message.Content != "close" {
		t.Errorf("expected close match second, got %q", matches[1].Message.Content)
	}
}

func TestSearchThreshold(t *testing.T) {
	e := NewSearchEngine(SearchConfig{TopK: 10, MinSimilarity: 0.9}, "")
	now := time.Now().UTC()

	candidates := []Candidate{
		makeCandidate("just below", 0.5, now, nil), // cos(0.5) ~ 0.878
		makeCandidate("above", 0.1, now, nil),      // cos(0.1) ~ 0.995
	}

	matches := e.Search(makeVector(0, 8), candidates, -1, -1)
	if len(matches) != 1 || matches[0].Message.Content != "above" {
		t.Errorf("expected only the above-threshold match, got %+v", matches)
	}
}

func TestSearchTopK(t *testing.T) {
	e := NewSearchEngine(DefaultSearchConfig(), "")
	now := time.Now().UTC()

	var candidates []Candidate
	for i := 0; i < 6; i++ {
		candidates = append(candidates, makeCandidate(fmt.Sprintf("c%d", i), float64(i)*0.05, now, nil))
	}

	matches := e.Search(makeVector(0, 8), candidates, 3, -1)
	if len(matches) != 3 {
		t.Errorf("expected 3 matches, got %d", len(matches))
	}
}

func TestSearchTieBreakRecency(t *testing.T) {
	e := NewSearchEngine(DefaultSearchConfig(), "")
	now := time.Now().UTC()

	older := makeCandidate("older", 0.2, now.Add(-time.Hour), nil)
	newer := makeCandidate("newer", 0.2, now, nil)

	matches := e.Search(makeVector(0, 8), []Candidate{older, newer}, 10, -1)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Message.Content != "newer" {
		t.Errorf("expected the newer message to win the tie, got %q first", matches[0].Message.Content)
	}
}

func TestSearchModelVersionGuard(t *testing.T) {
	e := NewSearchEngine(DefaultSearchConfig(), "model-v2")
	now := time.Now().UTC()

	candidates := []Candidate{
		makeCandidate("old model", 0, now, map[string]string{TagModelVersion: "model-v1"}),
		makeCandidate("current model", 0, now, map[string]string{TagModelVersion: "model-v2"}),
		makeCandidate("untagged", 0, now, nil),
	}

	matches := e.Search(makeVector(0, 8), candidates, 10, -1)
	if len(matches) != 1 || matches[0].Message.Content != "current model" {
		t.Errorf("expected only the current-model candidate, got %+v", matches)
	}
}

func TestSearchZeroNormNeverMatches(t *testing.T) {
	e := NewSearchEngine(DefaultSearchConfig(), "")
	now := time.Now().UTC()

	zero := makeCandidate("zero vector", 0, now, nil)
	zero.Embedding.Vector = make([]float32, 8)

	matches := e.Search(makeVector(0, 8), []Candidate{zero}, 10, -1)
	if len(matches) != 0 {
		t.Errorf("expected no matches for zero-norm vector, got %d", len(matches))
	}
}

func TestSearchDefaults(t *testing.T) {
	e := NewSearchEngine(SearchConfig{}, "")
	if e.cfg.TopK != 8 || e.cfg.MinSimilarity != 0.7 {
		t.Errorf("expected stock defaults, got %+v", e.cfg)
	}
}
