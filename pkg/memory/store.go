package memory

import (
	"context"
	"time"
)

// Scope selects the candidate set for semantic search: a single
// conversation ID, or ScopeAll for the union of all conversations.
type Scope string

// ScopeAll selects candidates across every conversation.
const ScopeAll Scope = "all"

// Store is the interface for durable message+embedding backends.
// Mutations are serialized through a single writer; reads may run
// concurrently with each other.
type Store interface {
	// Append persists a message and its embedding atomically and updates
	// the owning conversation's last-activity time.
	Append(ctx context.Context, msg Message, emb Embedding) error

	// History returns one conversation's messages in insertion order.
	// An unknown conversation ID yields an empty slice, not an error.
	History(ctx context.Context, conversationID string) ([]Message, error)

	// ConversationIDs lists conversations, most recent activity first.
	ConversationIDs(ctx context.Context) ([]string, error)

	// Candidates returns message+embedding pairs for the given scope.
	// Messages whose embedding unit was lost to corruption are skipped;
	// search degrades while history stays intact.
	Candidates(ctx context.Context, scope Scope) ([]Candidate, error)

	// Summaries describes every conversation, most recent first.
	Summaries(ctx context.Context) ([]ConversationSummary, error)

	// EvictOldest removes the n oldest message+embedding pairs.
	// Returns the number removed. Never touches profile facts.
	EvictOldest(ctx context.Context, n int) (int, error)

	// EvictOlderThan removes pairs with timestamps before cutoff.
	// Returns the number removed. Never touches profile facts.
	EvictOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Count returns the total number of stored messages.
	Count(ctx context.Context) (int, error)

	// EmbeddingCount returns the total number of stored embeddings.
	EmbeddingCount(ctx context.Context) (int, error)

	// StorageBytes reports the approximate on-disk footprint.
	StorageBytes() (int64, error)

	// Close releases resources held by the store.
	Close() error
}

// Config holds storage configuration.
type Config struct {
	// DataDir is the directory holding the persisted units. Empty means
	// in-memory storage (no durability), used by tests.
	DataDir string
}
