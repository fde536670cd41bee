package memory

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jrhatch/mnemo/pkg/embedding"
)

// Composer blends recent chronological messages with semantically relevant
// retrieved messages into a bounded context for the generation engine.
// When the embedding service is unavailable it falls back silently to the
// recency window: degraded but functional.
type Composer struct {
	store    Store
	engine   *SearchEngine
	embedder embedding.Provider
	logger   *slog.Logger
}

// NewComposer creates a composer over the given store and search engine.
func NewComposer(store Store, engine *SearchEngine, embedder embedding.Provider, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		store:    store,
		engine:   engine,
		embedder: embedder,
		logger:   logger,
	}
}

// ComposedContext is the bounded message set handed to the generation
// engine: relevance matches first (most similar first), then the recency
// window in chronological order. No message appears twice and the total
// never exceeds the two budgets combined.
type ComposedContext struct {
	Relevant []Match   `json:"relevant"`
	Recent   []Message `json:"recent"`

	// Degraded is true when relevance retrieval was skipped because the
	// embedding service was unavailable.
	Degraded bool `json:"degraded"`
}

// Messages flattens the context into a single ordered slice: relevance
// matches followed by the recency window.
func (c *ComposedContext) Messages() []Message {
	out := make([]Message, 0, len(c.Relevant)+len(c.Recent))
	for _, m := range c.Relevant {
		out = append(out, m.Message)
	}
	out = append(out, c.Recent...)
	return out
}

// Compose builds the context for query within one conversation. The recency
// window is the last recencyBudget messages in chronological order; up to
// relevanceBudget additional matches are retrieved by semantic search scoped
// to the conversation, dropping any match already present in the window.
func (c *Composer) Compose(ctx context.Context, query, conversationID string, recencyBudget, relevanceBudget int) (*ComposedContext, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}
	if recencyBudget < 0 {
		recencyBudget = 0
	}
	if relevanceBudget < 0 {
		relevanceBudget = 0
	}

	history, err := c.store.History(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	recent := history
	if len(recent) > recencyBudget {
		recent = recent[len(recent)-recencyBudget:]
	}

	return c.ComposeWithRecent(ctx, query, conversationID, recent, relevanceBudget)
}

// ComposeWithRecent is Compose with a caller-supplied recency window, for
// callers that already hold the messages about to be sent to the generation
// engine. Matches duplicating a window message are dropped.
func (c *Composer) ComposeWithRecent(ctx context.Context, query, conversationID string, recent []Message, relevanceBudget int) (*ComposedContext, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}
	if relevanceBudget < 0 {
		relevanceBudget = 0
	}

	composed := &ComposedContext{Recent: recent}
	if relevanceBudget == 0 {
		return composed, nil
	}

	queryVec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		c.logger.Warn("context composition degraded to recency-only",
			"conversation_id", conversationID,
			"err", err,
		)
		composed.Degraded = true
		return composed, nil
	}

	candidates, err := c.store.Candidates(ctx, Scope(conversationID))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(recent))
	for _, m := range recent {
		seen[m.ID] = true
	}

	// Over-fetch so matches that duplicate the recency window can be
	// dropped without starving the relevance budget.
	matches := c.engine.Search(queryVec, candidates, relevanceBudget+len(recent), -1)
	for _, m := range matches {
		if seen[m.Message.ID] {
			continue
		}
		composed.Relevant = append(composed.Relevant, m)
		if len(composed.Relevant) >= relevanceBudget {
			break
		}
	}

	return composed, nil
}
