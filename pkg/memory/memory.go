// Package memory implements a persistent, tiered, semantically-searchable
// conversation memory layer. Messages are stored with their embeddings,
// retrieved by cosine similarity, blended with recent history into a bounded
// generation context, and evicted according to subscription-tier retention
// and capacity policies. User profile facts persist for the lifetime of the
// store and are never evicted.
package memory

import (
	"errors"
	"time"
)

// Common errors returned by the memory layer.
var (
	ErrInvalidRole            = errors.New("invalid message role")
	ErrEmptyContent           = errors.New("message content is empty")
	ErrInvalidQuery           = errors.New("query text is empty")
	ErrEmptyFact              = errors.New("profile fact is empty")
	ErrDowngradeNotConfirmed  = errors.New("downgrade requires explicit confirmation")
	ErrUnknownTier            = errors.New("unknown tier")
	ErrMissingEmbeddingVector = errors.New("embedding vector is empty")
)

// Role identifies which side of the dialogue produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// TagModelVersion is the embedding tag key recording which model version
// produced the vector. Vectors from different versions are never compared.
const TagModelVersion = "model_version"

// Message is a single immutable dialogue turn.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// Embedding pairs a message with its vector representation. Every stored
// message has exactly one embedding linked by MessageID.
type Embedding struct {
	ID        string            `json:"id"`
	MessageID string            `json:"message_id"`
	Vector    []float32         `json:"vector"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Candidate is a message+embedding pair considered by semantic search.
type Candidate struct {
	Message   Message
	Embedding Embedding
}

// Match is a single semantic search result.
type Match struct {
	Message        Message `json:"message"`
	Similarity     float64 `json:"similarity"`
	ConversationID string  `json:"conversation_id"`
}

// ConversationSummary describes one conversation for listing UIs.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	MessageCount   int       `json:"message_count"`
	FirstMessageAt time.Time `json:"first_message_at"`
	LastMessageAt  time.Time `json:"last_message_at"`
	Preview        string    `json:"preview"`
}

// Statistics reports store-wide counters.
type Statistics struct {
	TotalMessages   int   `json:"total_messages"`
	TotalEmbeddings int   `json:"total_embeddings"`
	FactCount       int   `json:"fact_count"`
	StorageBytes    int64 `json:"storage_bytes"`
}
