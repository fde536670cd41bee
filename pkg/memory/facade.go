package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jrhatch/mnemo/pkg/embedding"
)

// Facade is the single entry point callers use for memory operations. It
// wires the store, tier manager, profile store, search engine, and composer
// behind one API, records prometheus metrics, and emits otel spans. All
// collaborators are injected; nothing here is a singleton.
type Facade struct {
	store    Store
	tiers    *TierManager
	profile  *ProfileStore
	embedder embedding.Provider
	engine   *SearchEngine
	composer *Composer

	search  SearchConfig
	metrics *Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// FacadeConfig holds facade tunables and instrumentation hooks.
type FacadeConfig struct {
	// Search configures the semantic search engine.
	Search SearchConfig

	// Registerer receives the facade's prometheus instruments. Nil means
	// metrics are recorded on a private registry.
	Registerer prometheus.Registerer

	Logger *slog.Logger
}

// NewFacade assembles a facade over the given collaborators.
func NewFacade(store Store, tiers *TierManager, profile *ProfileStore, embedder embedding.Provider, cfg FacadeConfig) *Facade {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := NewSearchEngine(cfg.Search, embedder.ModelVersion())
	return &Facade{
		store:    store,
		tiers:    tiers,
		profile:  profile,
		embedder: embedder,
		engine:   engine,
		composer: NewComposer(store, engine, embedder, logger),
		search:   engine.cfg,
		metrics:  NewMetrics(cfg.Registerer),
		tracer:   otel.Tracer("mnemo/memory"),
		logger:   logger,
	}
}

// StoreResult reports the outcome of StoreMessage.
type StoreResult struct {
	MessageID      string `json:"message_id,omitempty"`
	ConversationID string `json:"conversation_id"`

	// Stored is false when the message was skipped because the embedding
	// service was unavailable. The caller's conversation proceeds; the
	// message is simply not remembered.
	Stored bool `json:"stored"`

	// Degraded mirrors !Stored for callers that surface a warning.
	Degraded bool `json:"degraded"`

	// Evicted counts messages removed by tier enforcement after the append.
	Evicted int `json:"evicted,omitempty"`
}

// StoreMessage embeds and persists one message, then enforces the active
// tier policy. An unavailable embedding service degrades the call instead of
// failing it: the message is skipped, the result says so, and no error is
// returned.
func (f *Facade) StoreMessage(ctx context.Context, conversationID string, role Role, content string) (*StoreResult, error) {
	ctx, span := f.tracer.Start(ctx, "memory.StoreMessage",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if conversationID == "" {
		conversationID = newID()
	}

	vec, err := f.embedder.Embed(ctx, content)
	if err != nil {
		f.metrics.MessagesDegraded.Inc()
		f.logger.Warn("embedding unavailable, message not stored",
			"conversation_id", conversationID,
			"err", err,
		)
		return &StoreResult{ConversationID: conversationID, Degraded: true}, nil
	}

	now := time.Now().UTC()
	msg := Message{
		ID:             newID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      now,
	}
	emb := Embedding{
		ID:        newID(),
		MessageID: msg.ID,
		Vector:    vec,
		Timestamp: now,
		Tags:      map[string]string{TagModelVersion: f.embedder.ModelVersion()},
	}
	if err := f.store.Append(ctx, msg, emb); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	f.metrics.MessagesStored.Inc()

	evicted, err := f.tiers.Enforce(ctx, f.store)
	if err != nil {
		// The message is stored; enforcement retries on the next append
		// or sweep.
		f.logger.Warn("tier enforcement failed after append", "err", err)
	}
	f.metrics.MessagesEvicted.Add(float64(evicted))

	return &StoreResult{
		MessageID:      msg.ID,
		ConversationID: conversationID,
		Stored:         true,
		Evicted:        evicted,
	}, nil
}

// RestoreMessage persists a message carrying its own ID and timestamp,
// re-embedding the content. Used by import. Missing IDs are generated and a
// zero timestamp becomes now.
func (f *Facade) RestoreMessage(ctx context.Context, msg Message) (*StoreResult, error) {
	ctx, span := f.tracer.Start(ctx, "memory.RestoreMessage")
	defer span.End()

	if !msg.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil, ErrEmptyContent
	}
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.ConversationID == "" {
		msg.ConversationID = newID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	vec, err := f.embedder.Embed(ctx, msg.Content)
	if err != nil {
		return nil, fmt.Errorf("restore message: %w", err)
	}
	emb := Embedding{
		ID:        newID(),
		MessageID: msg.ID,
		Vector:    vec,
		Timestamp: msg.Timestamp,
		Tags:      map[string]string{TagModelVersion: f.embedder.ModelVersion()},
	}
	if err := f.store.Append(ctx, msg, emb); err != nil {
		return nil, fmt.Errorf("restore message: %w", err)
	}
	f.metrics.MessagesStored.Inc()

	return &StoreResult{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Stored:         true,
	}, nil
}

// EnhancedContext augments the caller's recent messages with semantically
// relevant history from the same conversation. Any internal failure falls
// back to the recent messages unchanged; this call never makes the caller's
// context worse.
func (f *Facade) EnhancedContext(ctx context.Context, query, conversationID string, recent []Message) []Message {
	ctx, span := f.tracer.Start(ctx, "memory.EnhancedContext",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	composed, err := f.composer.ComposeWithRecent(ctx, query, conversationID, recent, f.search.TopK)
	if err != nil {
		f.metrics.ContextFallbacks.Inc()
		f.logger.Warn("context enhancement failed, returning recent messages",
			"conversation_id", conversationID,
			"err", err,
		)
		return recent
	}
	if composed.Degraded {
		f.metrics.ContextFallbacks.Inc()
	}
	return composed.Messages()
}

// Compose builds a context window from stored history: the last
// recencyBudget messages plus up to relevanceBudget semantic matches.
func (f *Facade) Compose(ctx context.Context, query, conversationID string, recencyBudget, relevanceBudget int) (*ComposedContext, error) {
	ctx, span := f.tracer.Start(ctx, "memory.Compose",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	return f.composer.Compose(ctx, query, conversationID, recencyBudget, relevanceBudget)
}

// SearchAllConversations ranks the query against every stored message
// regardless of conversation. Unlike StoreMessage, an unavailable embedding
// service here is a hard error: there is no useful degraded answer to a
// search.
func (f *Facade) SearchAllConversations(ctx context.Context, query string, limit int) ([]Match, error) {
	ctx, span := f.tracer.Start(ctx, "memory.SearchAllConversations")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}

	start := time.Now()
	vec, err := f.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	candidates, err := f.store.Candidates(ctx, ScopeAll)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	matches := f.engine.Search(vec, candidates, limit, -1)
	f.metrics.Searches.Inc()
	f.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("search.matches", len(matches)))
	return matches, nil
}

// ConversationHistory returns all messages of one conversation in order.
func (f *Facade) ConversationHistory(ctx context.Context, conversationID string) ([]Message, error) {
	return f.store.History(ctx, conversationID)
}

// Summaries lists all conversations, most recently active first.
func (f *Facade) Summaries(ctx context.Context) ([]ConversationSummary, error) {
	return f.store.Summaries(ctx)
}

// Statistics reports store-wide counts and on-disk size.
func (f *Facade) Statistics(ctx context.Context) (*Statistics, error) {
	ctx, span := f.tracer.Start(ctx, "memory.Statistics")
	defer span.End()

	messages, err := f.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	embeddings, err := f.store.EmbeddingCount(ctx)
	if err != nil {
		return nil, err
	}
	facts, err := f.profile.FactCount(ctx)
	if err != nil {
		return nil, err
	}
	bytes, err := f.store.StorageBytes()
	if err != nil {
		return nil, err
	}
	return &Statistics{
		TotalMessages:   messages,
		TotalEmbeddings: embeddings,
		FactCount:       facts,
		StorageBytes:    bytes,
	}, nil
}

// CurrentTier returns the active tier with its effective thresholds.
func (f *Facade) CurrentTier(ctx context.Context) (TierConfig, error) {
	return f.tiers.Current(ctx)
}

// UpgradeToPaid switches to the paid tier. Limits only widen; no data is
// touched.
func (f *Facade) UpgradeToPaid(ctx context.Context) (TierConfig, error) {
	return f.tiers.Upgrade(ctx)
}

// DowngradeToFree switches to the free tier and immediately enforces its
// limits, which may delete messages. Refused unless confirmed.
func (f *Facade) DowngradeToFree(ctx context.Context, confirmed bool) (int, error) {
	ctx, span := f.tracer.Start(ctx, "memory.DowngradeToFree")
	defer span.End()

	evicted, err := f.tiers.Downgrade(ctx, f.store, confirmed)
	f.metrics.MessagesEvicted.Add(float64(evicted))
	return evicted, err
}

// Profile returns the stored user profile.
func (f *Facade) Profile(ctx context.Context) (Profile, error) {
	return f.profile.Get(ctx)
}

// AddUserFact appends a persistent fact about the user.
func (f *Facade) AddUserFact(ctx context.Context, fact string) error {
	return f.profile.AddFact(ctx, fact)
}

// SetUserIdentity records the user's name, role, and organization.
func (f *Facade) SetUserIdentity(ctx context.Context, name, role, organization string) error {
	return f.profile.SetIdentity(ctx, name, role, organization)
}

// ProfilePreamble renders the profile block injected into the system prompt.
func (f *Facade) ProfilePreamble(ctx context.Context) (string, error) {
	return f.profile.RenderPreamble(ctx)
}

// Enforce runs one tier-policy enforcement pass.
func (f *Facade) Enforce(ctx context.Context) (int, error) {
	evicted, err := f.tiers.Enforce(ctx, f.store)
	f.metrics.MessagesEvicted.Add(float64(evicted))
	return evicted, err
}

// Close releases the underlying stores.
func (f *Facade) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{f.store, f.tiers, f.profile} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
