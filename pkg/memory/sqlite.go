package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// File names of the two persisted units managed by SQLiteStore. The tier
// configuration and user profile live in their own units (see tier.go and
// profile.go) so that corruption in one never takes down the others.
const (
	historyFile    = "history.db"
	embeddingsFile = "embeddings.db"
)

// SQLiteStore implements Store using two SQLite files: one for message
// history and one for the embedding index. Each connection is pinned to a
// single conn (SetMaxOpenConns(1)); an RWMutex serializes mutations across
// both files so a message and its embedding are never observed half-written.
type SQLiteStore struct {
	mu         sync.RWMutex
	history    *sql.DB
	embeddings *sql.DB

	historyPath    string
	embeddingsPath string
	logger         *slog.Logger
}

// NewSQLiteStore opens (or creates) the history and embedding units under
// cfg.DataDir. A unit that fails to open or migrate is quarantined (renamed
// aside) and reinitialized empty; this is logged as a data-integrity error,
// not returned as a failure. Empty DataDir gives an in-memory store.
func NewSQLiteStore(cfg Config, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var historyPath, embeddingsPath string
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		historyPath = filepath.Join(cfg.DataDir, historyFile)
		embeddingsPath = filepath.Join(cfg.DataDir, embeddingsFile)
	}

	history, err := openUnit(historyPath, migrateHistory, logger)
	if err != nil {
		return nil, fmt.Errorf("open history unit: %w", err)
	}

	embeddings, err := openUnit(embeddingsPath, migrateEmbeddings, logger)
	if err != nil {
		_ = history.Close()
		return nil, fmt.Errorf("open embeddings unit: %w", err)
	}

	return &SQLiteStore{
		history:        history,
		embeddings:     embeddings,
		historyPath:    historyPath,
		embeddingsPath: embeddingsPath,
		logger:         logger,
	}, nil
}

// openUnit opens one SQLite file, applying WAL mode and the unit's schema.
// A corrupt file is renamed to <path>.corrupt-<unix> and recreated empty.
func openUnit(path string, migrate func(*sql.DB) error, logger *slog.Logger) (*sql.DB, error) {
	open := func() (*sql.DB, error) {
		dsn := path
		if dsn == "" {
			dsn = ":memory:"
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}

		// PRAGMAs are per-connection, so pin to a single connection.
		db.SetMaxOpenConns(1)

		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
		if err := migrate(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return db, nil
	}

	db, err := open()
	if err == nil {
		return db, nil
	}
	if path == "" {
		return nil, err
	}

	// Quarantine the unreadable file and start over with an empty unit.
	quarantined := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	logger.Error("storage unit unreadable, quarantining",
		"path", path,
		"quarantined_as", quarantined,
		"err", err,
	)
	if renameErr := os.Rename(path, quarantined); renameErr != nil {
		return nil, fmt.Errorf("quarantine %s: %w (original error: %v)", path, renameErr, err)
	}
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")

	return open()
}

func migrateHistory(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id              TEXT PRIMARY KEY,
		created_at      TEXT NOT NULL,
		last_message_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		timestamp       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
	`
	_, err := db.Exec(schema)
	return err
}

func migrateEmbeddings(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		id         TEXT PRIMARY KEY,
		message_id TEXT NOT NULL UNIQUE,
		vector     BLOB,
		timestamp  TEXT NOT NULL,
		tags       TEXT DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_message ON embeddings(message_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Append persists msg and emb, updating the conversation's last-activity
// time. The message write and embedding write are ordered under the write
// lock; if the embedding write fails the message row is rolled back so the
// one-message-one-embedding invariant holds for every successful append.
func (s *SQLiteStore) Append(ctx context.Context, msg Message, emb Embedding) error {
	if !msg.Role.Valid() {
		return ErrInvalidRole
	}
	if strings.TrimSpace(msg.Content) == "" {
		return ErrEmptyContent
	}
	if len(emb.Vector) == 0 {
		return ErrMissingEmbeddingVector
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := msg.Timestamp.UTC().Format(time.RFC3339Nano)

	tx, err := s.history.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, created_at, last_message_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_message_at = excluded.last_message_at`,
		msg.ConversationID, ts, ts,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert conversation: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, ts,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}

	tagsJSON, _ := json.Marshal(emb.Tags)
	_, err = s.embeddings.ExecContext(ctx,
		`INSERT INTO embeddings (id, message_id, vector, timestamp, tags) VALUES (?, ?, ?, ?, ?)`,
		emb.ID, msg.ID, encodeVector(emb.Vector), emb.Timestamp.UTC().Format(time.RFC3339Nano), string(tagsJSON),
	)
	if err != nil {
		// Compensate so no message exists without its embedding.
		_, _ = s.history.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", msg.ID)
		return fmt.Errorf("insert embedding: %w", err)
	}

	return nil
}

// History returns one conversation's messages in insertion order.
func (s *SQLiteStore) History(ctx context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.history.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, timestamp FROM messages
		 WHERE conversation_id = ? ORDER BY rowid`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	msgs := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ConversationIDs lists conversations by most recent activity.
func (s *SQLiteStore) ConversationIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.history.QueryContext(ctx,
		"SELECT id FROM conversations ORDER BY last_message_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Candidates returns message+embedding pairs for search. Messages without a
// surviving embedding row are skipped so a quarantined embedding unit only
// degrades search, never history.
func (s *SQLiteStore) Candidates(ctx context.Context, scope Scope) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, conversation_id, role, content, timestamp FROM messages"
	var args []interface{}
	if scope != ScopeAll {
		query += " WHERE conversation_id = ?"
		args = append(args, string(scope))
	}
	query += " ORDER BY rowid"

	rows, err := s.history.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidate messages: %w", err)
	}

	// Scan fully before querying the embedding unit; each DB is pinned to
	// one connection.
	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(msgs) == 0 {
		return nil, nil
	}

	embByMsg, err := s.loadEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, m := range msgs {
		emb, ok := embByMsg[m.ID]
		if !ok || len(emb.Vector) == 0 {
			continue
		}
		candidates = append(candidates, Candidate{Message: m, Embedding: emb})
	}
	return candidates, nil
}

// loadEmbeddings reads the whole embedding index keyed by message ID.
// A full load is fine at the supported scale (a few thousand rows).
func (s *SQLiteStore) loadEmbeddings(ctx context.Context) (map[string]Embedding, error) {
	rows, err := s.embeddings.QueryContext(ctx,
		"SELECT id, message_id, vector, timestamp, tags FROM embeddings")
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]Embedding)
	for rows.Next() {
		var (
			e        Embedding
			blob     []byte
			tsStr    string
			tagsJSON string
		)
		if err := rows.Scan(&e.ID, &e.MessageID, &blob, &tsStr, &tagsJSON); err != nil {
			return nil, err
		}
		e.Vector = decodeVector(blob)
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
		if tagsJSON != "" {
			_ = json.Unmarshal([]byte(tagsJSON), &e.Tags)
		}
		out[e.MessageID] = e
	}
	return out, rows.Err()
}

// Summaries describes every conversation, most recent activity first.
func (s *SQLiteStore) Summaries(ctx context.Context) ([]ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.history.QueryContext(ctx, `
		SELECT conversation_id, COUNT(*), MIN(timestamp), MAX(timestamp)
		FROM messages GROUP BY conversation_id`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}

	var summaries []ConversationSummary
	for rows.Next() {
		var (
			cs         ConversationSummary
			first, last string
		)
		if err := rows.Scan(&cs.ConversationID, &cs.MessageCount, &first, &last); err != nil {
			_ = rows.Close()
			return nil, err
		}
		cs.FirstMessageAt, _ = time.Parse(time.RFC3339Nano, first)
		cs.LastMessageAt, _ = time.Parse(time.RFC3339Nano, last)
		summaries = append(summaries, cs)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	// Preview is the most recent message; queried after the group scan so
	// the single connection is free.
	for i := range summaries {
		var content string
		err := s.history.QueryRowContext(ctx,
			"SELECT content FROM messages WHERE conversation_id = ? ORDER BY rowid DESC LIMIT 1",
			summaries[i].ConversationID,
		).Scan(&content)
		if err == nil {
			summaries[i].Preview = previewText(content, 80)
		}
	}

	// Most recent activity first.
	for i := 1; i < len(summaries); i++ {
		key := summaries[i]
		j := i - 1
		for j >= 0 && summaries[j].LastMessageAt.Before(key.LastMessageAt) {
			summaries[j+1] = summaries[j]
			j--
		}
		summaries[j+1] = key
	}
	return summaries, nil
}

// EvictOldest removes the n oldest message+embedding pairs.
func (s *SQLiteStore) EvictOldest(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.history.QueryContext(ctx,
		"SELECT id FROM messages ORDER BY timestamp, rowid LIMIT ?", n)
	if err != nil {
		return 0, fmt.Errorf("select oldest: %w", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return 0, err
	}

	return s.deleteMessages(ctx, ids)
}

// EvictOlderThan removes pairs with timestamps before cutoff.
func (s *SQLiteStore) EvictOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.history.QueryContext(ctx,
		"SELECT id FROM messages WHERE timestamp < ?",
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("select older than: %w", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return 0, err
	}

	return s.deleteMessages(ctx, ids)
}

// deleteMessages removes the given messages, their embeddings, and any
// conversation left empty. Caller holds the write lock.
func (s *SQLiteStore) deleteMessages(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	in := "(" + strings.Join(placeholders, ",") + ")"

	res, err := s.history.ExecContext(ctx, "DELETE FROM messages WHERE id IN "+in, args...)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	removed, _ := res.RowsAffected()

	if _, err := s.embeddings.ExecContext(ctx, "DELETE FROM embeddings WHERE message_id IN "+in, args...); err != nil {
		return int(removed), fmt.Errorf("delete embeddings: %w", err)
	}

	_, _ = s.history.ExecContext(ctx,
		"DELETE FROM conversations WHERE id NOT IN (SELECT DISTINCT conversation_id FROM messages)")

	return int(removed), nil
}

// Count returns the total number of stored messages.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.history.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n)
	return n, err
}

// EmbeddingCount returns the total number of stored embeddings.
func (s *SQLiteStore) EmbeddingCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.embeddings.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&n)
	return n, err
}

// StorageBytes reports the approximate footprint of both units using
// SQLite's own page accounting, which also works for in-memory stores.
func (s *SQLiteStore) StorageBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, db := range []*sql.DB{s.history, s.embeddings} {
		var pageCount, pageSize int64
		if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
			return 0, fmt.Errorf("page_count: %w", err)
		}
		if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
			return 0, fmt.Errorf("page_size: %w", err)
		}
		total += pageCount * pageSize
	}
	return total, nil
}

// Close closes both unit connections.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errH := s.history.Close()
	errE := s.embeddings.Close()
	if errH != nil {
		return errH
	}
	return errE
}

func scanMessage(rows *sql.Rows) (Message, error) {
	var (
		m     Message
		role  string
		tsStr string
	)
	if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &tsStr); err != nil {
		return Message{}, err
	}
	m.Role = Role(role)
	m.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
	return m, nil
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
