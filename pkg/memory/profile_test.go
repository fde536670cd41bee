package memory

import (
	"context"
	"testing"
	"time"
)

func newTestProfile(t *testing.T) *ProfileStore {
	t.Helper()
	p, err := NewProfileStore(Config{}, testLogger())
	if err != nil {
		t.Fatalf("NewProfileStore: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProfileFactsAppendOnly(t *testing.T) {
	p := newTestProfile(t)
	ctx := context.Background()

	if err := p.AddFact(ctx, "prefers tabs over spaces"); err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	if err := p.AddFact(ctx, "works in UTC"); err != nil {
		t.Fatalf("AddFact: %v", err)
	}

	facts, err := p.Facts(ctx)
	if err != nil {
		t.Fatalf("Facts: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(facts))
	}
	if facts[0] != "prefers tabs over spaces" || facts[1] != "works in UTC" {
		t.Errorf("facts out of insertion order: %v", facts)
	}

	n, err := p.FactCount(ctx)
	if err != nil || n != 2 {
		t.Errorf("expected fact count 2, got %d (err=%v)", n, err)
	}
}

func TestProfileRejectsEmptyFact(t *testing.T) {
	p := newTestProfile(t)

	if err := p.AddFact(context.Background(), "   "); err != ErrEmptyFact {
		t.Errorf("expected ErrEmptyFact, got %v", err)
	}
}

func TestProfileIdentity(t *testing.T) {
	p := newTestProfile(t)
	ctx := context.Background()

	if err := p.SetIdentity(ctx, "Dana", "SRE", "Acme"); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}

	prof, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if prof.Name != "Dana" || prof.Role != "SRE" || prof.Organization != "Acme" {
		t.Errorf("unexpected identity: %+v", prof)
	}
}

func TestRenderPreambleDeterministic(t *testing.T) {
	p := newTestProfile(t)
	ctx := context.Background()

	if err := p.SetIdentity(ctx, "Dana", "SRE", ""); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}
	if err := p.AddFact(ctx, "on call this week"); err != nil {
		t.Fatalf("AddFact: %v", err)
	}

	want := "## About the user\nName: Dana\nRole: SRE\nFacts:\n- on call this week\n"
	for i := 0; i < 3; i++ {
		got, err := p.RenderPreamble(ctx)
		if err != nil {
			t.Fatalf("RenderPreamble: %v", err)
		}
		if got != want {
			t.Fatalf("preamble mismatch:\ngot:  %q\nwant: %q", got, want)
		}
	}
}

func TestRenderPreambleEmptyProfile(t *testing.T) {
	p := newTestProfile(t)

	got, err := p.RenderPreamble(context.Background())
	if err != nil {
		t.Fatalf("RenderPreamble: %v", err)
	}
	if got != "## About the user\n" {
		t.Errorf("expected bare heading for empty profile, got %q", got)
	}
}

func TestFactsSurviveMessageEviction(t *testing.T) {
	p := newTestProfile(t)
	s := newTestStore(t)
	ctx := context.Background()

	if err := p.AddFact(ctx, "permanent fact"); err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	appendText(t, s, "conv", "ephemeral message", time.Now().UTC().Add(-time.Hour), makeVector(0, 8))

	if _, err := s.EvictOlderThan(ctx, time.Now().UTC()); err != nil {
		t.Fatalf("EvictOlderThan: %v", err)
	}

	count, _ := s.Count(ctx)
	if count != 0 {
		t.Fatalf("expected all messages evicted, got %d", count)
	}
	n, _ := p.FactCount(ctx)
	if n != 1 {
		t.Errorf("expected profile facts untouched by eviction, got %d", n)
	}
}
