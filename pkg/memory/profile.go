package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// profileFile is the persisted unit holding user profile facts.
const profileFile = "profile.db"

// Profile holds persistent facts about the user. Facts are append-only and
// are never consulted by tier enforcement: profile data outlives every
// eviction sweep.
type Profile struct {
	Name         string   `json:"name,omitempty"`
	Role         string   `json:"role,omitempty"`
	Organization string   `json:"organization,omitempty"`
	Facts        []string `json:"facts,omitempty"`
}

// ProfileStore is the durable store for user profile data. It lives in its
// own unit so corruption elsewhere cannot touch profile facts.
type ProfileStore struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *slog.Logger
}

// NewProfileStore opens the profile unit under cfg.DataDir, with the same
// quarantine-on-corruption behavior as the other units.
func NewProfileStore(cfg Config, logger *slog.Logger) (*ProfileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var path string
	if cfg.DataDir != "" {
		path = filepath.Join(cfg.DataDir, profileFile)
	}

	db, err := openUnit(path, migrateProfile, logger)
	if err != nil {
		return nil, fmt.Errorf("open profile unit: %w", err)
	}
	return &ProfileStore{db: db, logger: logger}, nil
}

func migrateProfile(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS identity (
		id           INTEGER PRIMARY KEY CHECK (id = 1),
		name         TEXT NOT NULL DEFAULT '',
		role         TEXT NOT NULL DEFAULT '',
		organization TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS facts (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		fact       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	_, err := db.Exec("INSERT OR IGNORE INTO identity (id) VALUES (1)")
	return err
}

// SetIdentity records the user's name, role, and organization.
func (p *ProfileStore) SetIdentity(ctx context.Context, name, role, organization string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.db.ExecContext(ctx,
		"UPDATE identity SET name = ?, role = ?, organization = ? WHERE id = 1",
		name, role, organization,
	)
	if err != nil {
		return fmt.Errorf("set identity: %w", err)
	}
	return nil
}

// AddFact appends a fact to the profile. Facts are never evicted.
func (p *ProfileStore) AddFact(ctx context.Context, fact string) error {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return ErrEmptyFact
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.db.ExecContext(ctx,
		"INSERT INTO facts (fact, created_at) VALUES (?, ?)",
		fact, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("add fact: %w", err)
	}
	return nil
}

// Facts returns all facts in insertion order.
func (p *ProfileStore) Facts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rows, err := p.db.QueryContext(ctx, "SELECT fact FROM facts ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var facts []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// FactCount returns the number of stored facts.
func (p *ProfileStore) FactCount(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var n int
	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts").Scan(&n)
	return n, err
}

// Get returns the full profile.
func (p *ProfileStore) Get(ctx context.Context) (Profile, error) {
	p.mu.Lock()
	var prof Profile
	err := p.db.QueryRowContext(ctx,
		"SELECT name, role, organization FROM identity WHERE id = 1",
	).Scan(&prof.Name, &prof.Role, &prof.Organization)
	p.mu.Unlock()
	if err != nil {
		return Profile{}, fmt.Errorf("load identity: %w", err)
	}

	facts, err := p.Facts(ctx)
	if err != nil {
		return Profile{}, err
	}
	prof.Facts = facts
	return prof, nil
}

// RenderPreamble formats the profile into the fixed template injected into
// the generation engine's system prompt. Output is deterministic for a
// given profile state.
func (p *ProfileStore) RenderPreamble(ctx context.Context) (string, error) {
	prof, err := p.Get(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("## About the user\n")
	if prof.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", prof.Name)
	}
	if prof.Role != "" {
		fmt.Fprintf(&b, "Role: %s\n", prof.Role)
	}
	if prof.Organization != "" {
		fmt.Fprintf(&b, "Organization: %s\n", prof.Organization)
	}
	if len(prof.Facts) > 0 {
		b.WriteString("Facts:\n")
		for _, f := range prof.Facts {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String(), nil
}

// Close closes the profile unit.
func (p *ProfileStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Close()
}
