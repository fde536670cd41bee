package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jrhatch/mnemo/pkg/embedding"
)

func newTestFacade(t *testing.T, mock *embedding.Mock) *Facade {
	t.Helper()

	store := newTestStore(t)
	tiers := newTestTierManager(t, smallPolicy())
	profile := newTestProfile(t)

	return NewFacade(store, tiers, profile, mock, FacadeConfig{
		Registerer: prometheus.NewRegistry(),
		Logger:     testLogger(),
	})
}

func TestFacadeStoreAndHistory(t *testing.T) {
	mock := &embedding.Mock{}
	f := newTestFacade(t, mock)
	ctx := context.Background()

	r1, err := f.StoreMessage(ctx, "", RoleUser, "hello there")
	if err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}
	if !r1.Stored || r1.MessageID == "" || r1.ConversationID == "" {
		t.Fatalf("unexpected result: %+v", r1)
	}

	r2, err := f.StoreMessage(ctx, r1.ConversationID, RoleAssistant, "hi, how can I help?")
	if err != nil {
		t.Fatalf("StoreMessage 2: %v", err)
	}

	history, err := f.ConversationHistory(ctx, r1.ConversationID)
	if err != nil {
		t.Fatalf("ConversationHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].ID != r1.MessageID || history[1].ID != r2.MessageID {
		t.Errorf("history out of order: %+v", history)
	}
	if history[1].Role != RoleAssistant {
		t.Errorf("expected assistant role, got %q", history[1].Role)
	}
}

func TestFacadeValidation(t *testing.T) {
	mock := &embedding.Mock{}
	f := newTestFacade(t, mock)
	ctx := context.Background()

	if _, err := f.StoreMessage(ctx, "c", "system", "x"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := f.StoreMessage(ctx, "c", RoleUser, "  "); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
	if _, err := f.SearchAllConversations(ctx, " ", 5); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestFacadeSearchAcrossConversations(t *testing.T) {
	mock := &embedding.Mock{}
	f := newTestFacade(t, mock)
	ctx := context.Background()

	texts := map[string]string{
		"work":     "the staging cluster runs kubernetes 1.29",
		"personal": "my favorite tea is lapsang souchong",
		"travel":   "the flight to Lisbon leaves at noon",
	}
	for conv, text := range texts {
		if _, err := f.StoreMessage(ctx, conv, RoleUser, text); err != nil {
			t.Fatalf("StoreMessage %s: %v", conv, err)
		}
	}

	matches, err := f.SearchAllConversations(ctx, "my favorite tea is lapsang souchong", 5)
	if err != nil {
		t.Fatalf("SearchAllConversations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least 1 match")
	}
	if matches[0].ConversationID != "personal" {
		t.Errorf("expected match from the personal conversation, got %q", matches[0].ConversationID)
	}
	if matches[0].Similarity < 0.99 {
		t.Errorf("expected near-exact similarity, got %f", matches[0].Similarity)
	}
}

func TestFacadeDegradesWhenEmbedderDown(t *testing.T) {
	mock := &embedding.Mock{}
	f := newTestFacade(t, mock)
	ctx := context.Background()

	mock.Fail = true

	result, err := f.StoreMessage(ctx, "conv", RoleUser, "this will be skipped")
	if err != nil {
		t.Fatalf("StoreMessage must not fail when degraded: %v", err)
	}
	if result.Stored || !result.Degraded {
		t.Errorf("expected degraded unstored result, got %+v", result)
	}
	if got := testutil.ToFloat64(f.metrics.MessagesDegraded); got != 1 {
		t.Errorf("expected 1 degraded message recorded, got %f", got)
	}

	count, _ := f.store.Count(ctx)
	if count != 0 {
		t.Errorf("degraded message must not be persisted, got %d", count)
	}

	// Search has no useful degraded answer.
	if _, err := f.SearchAllConversations(ctx, "anything", 5); !errors.Is(err, embedding.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestFacadeEnhancedContext(t *testing.T) {
	mock := &embedding.Mock{}
	f := newTestFacade(t, mock)
	ctx := context.Background()

	if _, err := f.StoreMessage(ctx, "conv", RoleUser, "the api key lives in vault"); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}
	r, err := f.StoreMessage(ctx, "conv", RoleUser, "unrelated chatter")
	if err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}

	recent, _ := f.ConversationHistory(ctx, "conv")
	recent = recent[len(recent)-1:] // only the latest message in the window

	enhanced := f.EnhancedContext(ctx, "the api key lives in vault", "conv", recent)
	if len(enhanced) != 2 {
		t.Fatalf("expected relevant match plus window, got %d messages", len(enhanced))
	}
	if enhanced[0].Content != "the api key lives in vault" {
		t.Errorf("expected relevant match first, got %q", enhanced[0].Content)
	}
	if enhanced[1].ID != r.MessageID {
		t.Errorf("expected window message last, got %q", enhanced[1].Content)
	}
}

func TestFacadeEnhancedContextFallback(t *testing.T) {
	mock := &embedding.Mock{}
	f := newTestFacade(t, mock)
	ctx := context.Background()

	if _, err := f.StoreMessage(ctx, "conv", RoleUser, "stored knowledge"); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}
	recent, _ := f.ConversationHistory(ctx, "conv")

	mock.Fail = true
	enhanced := f.EnhancedContext(ctx, "stored knowledge", "conv", recent)
	if len(enhanced) != len(recent) {
		t.Fatalf("expected recent messages unchanged, got %d vs %d", len(enhanced), len(recent))
	}
	for i := range recent {
		if enhanced[i].ID != recent[i].ID {
			t.Errorf("message %d changed during fallback", i)
		}
	}
	if got := testutil.ToFloat64(f.metrics.ContextFallbacks); got != 1 {
		t.Errorf("expected 1 fallback recorded, got %f", got)
	}
}

func TestFacadeStatistics(t *testing.T) {
	mock := &embedding.Mock{}
	f := newTestFacade(t, mock)
	ctx := context.Background()

	if _, err := f.StoreMessage(ctx, "conv", RoleUser, "one"); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}
	if _, err := f.StoreMessage(ctx, "conv", RoleAssistant, "two"); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}
	if err := f.AddUserFact(ctx, "lives in Berlin"); err != nil {
		t.Fatalf("AddUserFact: %v", err)
	}

	stats, err := f.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalMessages != 2 || stats.TotalEmbeddings != 2 || stats.FactCount != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.StorageBytes <= 0 {
		t.Errorf("expected positive storage size, got %d", stats.StorageBytes)
	}
}

func TestFacadeTierTransitions(t *testing.T) {
	mock := &embedding.Mock{}
	f := newTestFacade(t, mock)
	ctx := context.Background()

	cfg, err := f.CurrentTier(ctx)
	if err != nil {
		t.Fatalf("CurrentTier: %v", err)
	}
	if cfg.Tier != TierFree {
		t.Errorf("expected free tier, got %q", cfg.Tier)
	}

	if _, err := f.UpgradeToPaid(ctx); err != nil {
		t.Fatalf("UpgradeToPaid: %v", err)
	}
	for i := 0; i < 7; i++ {
		if _, err := f.StoreMessage(ctx, "conv", RoleUser, "filler message about nothing"); err != nil {
			t.Fatalf("StoreMessage: %v", err)
		}
	}

	if _, err := f.DowngradeToFree(ctx, false); !errors.Is(err, ErrDowngradeNotConfirmed) {
		t.Fatalf("expected ErrDowngradeNotConfirmed, got %v", err)
	}

	evicted, err := f.DowngradeToFree(ctx, true)
	if err != nil {
		t.Fatalf("DowngradeToFree: %v", err)
	}
	if evicted != 2 {
		t.Errorf("expected 2 evicted down to free capacity, got %d", evicted)
	}
	count, _ := f.store.Count(ctx)
	if count != 5 {
		t.Errorf("expected free capacity after downgrade, got %d", count)
	}
}

func TestFacadeCapacityOnAppend(t *testing.T) {
	mock := &embedding.Mock{}
	f := newTestFacade(t, mock)
	ctx := context.Background()

	// One past the free capacity of 5; each append enforces the cap.
	for i := 0; i < 6; i++ {
		if _, err := f.StoreMessage(ctx, "conv", RoleUser, "message that fills the store"); err != nil {
			t.Fatalf("StoreMessage %d: %v", i, err)
		}
	}

	count, _ := f.store.Count(ctx)
	if count != 5 {
		t.Errorf("expected capacity cap held on every append, got %d", count)
	}
}

func TestFacadeRestoreMessage(t *testing.T) {
	mock := &embedding.Mock{}
	f := newTestFacade(t, mock)
	ctx := context.Background()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := Message{
		ID:             "imported-1",
		ConversationID: "imported-conv",
		Role:           RoleUser,
		Content:        "imported from an export file",
		Timestamp:      ts,
	}
	if _, err := f.RestoreMessage(ctx, msg); err != nil {
		t.Fatalf("RestoreMessage: %v", err)
	}

	history, err := f.ConversationHistory(ctx, "imported-conv")
	if err != nil {
		t.Fatalf("ConversationHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 message, got %d", len(history))
	}
	if history[0].ID != "imported-1" || !history[0].Timestamp.Equal(ts) {
		t.Errorf("import lost identity or timestamp: %+v", history[0])
	}
}
