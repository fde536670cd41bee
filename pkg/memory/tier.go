package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// tierFile is the persisted unit holding the tier configuration.
const tierFile = "tier.db"

// Tier is a subscription level controlling retention and capacity.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// Limits holds the retention/capacity thresholds of one tier.
type Limits struct {
	// RetentionDays is the maximum message age before eviction.
	RetentionDays int

	// MaxMessages is the total message cap, enforced oldest-first.
	MaxMessages int
}

// TierPolicy holds the thresholds for both tiers. These are configuration
// defaults, not constants; Free limits must be strictly smaller than Paid.
type TierPolicy struct {
	Free Limits
	Paid Limits

	// CleanupInterval gates the age-based sweep. Default: 24h.
	CleanupInterval time.Duration
}

// DefaultTierPolicy returns the stock thresholds: Free keeps 30 days and
// 1000 messages; Paid keeps 10 years and 10000 messages.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{
		Free:            Limits{RetentionDays: 30, MaxMessages: 1000},
		Paid:            Limits{RetentionDays: 3650, MaxMessages: 10000},
		CleanupInterval: 24 * time.Hour,
	}
}

// TierConfig is the current tier with its effective thresholds.
type TierConfig struct {
	Tier          Tier      `json:"tier"`
	RetentionDays int       `json:"retention_days"`
	MaxMessages   int       `json:"max_messages"`
	LastCleanupAt time.Time `json:"last_cleanup_at"`
}

// TierManager owns the tier configuration unit and applies retention and
// capacity policy to a Store. Tier transitions are serialized; upgrade never
// deletes data, downgrade re-applies Free bounds immediately and therefore
// requires explicit confirmation.
type TierManager struct {
	mu     sync.Mutex
	db     *sql.DB
	policy TierPolicy
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewTierManager opens the tier unit under cfg.DataDir, creating the single
// config row (Free tier) on first run. Corrupt files are quarantined the
// same way as the other units.
func NewTierManager(cfg Config, policy TierPolicy, logger *slog.Logger) (*TierManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.CleanupInterval <= 0 {
		policy.CleanupInterval = 24 * time.Hour
	}
	if policy.Free.RetentionDays >= policy.Paid.RetentionDays ||
		policy.Free.MaxMessages >= policy.Paid.MaxMessages {
		return nil, fmt.Errorf("tier policy: free limits must be strictly below paid limits")
	}

	var path string
	if cfg.DataDir != "" {
		path = filepath.Join(cfg.DataDir, tierFile)
	}

	db, err := openUnit(path, migrateTier, logger)
	if err != nil {
		return nil, fmt.Errorf("open tier unit: %w", err)
	}

	return &TierManager{
		db:     db,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}, nil
}

func migrateTier(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tier_config (
		id              INTEGER PRIMARY KEY CHECK (id = 1),
		tier            TEXT NOT NULL,
		last_cleanup_at TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	_, err := db.Exec(
		"INSERT OR IGNORE INTO tier_config (id, tier, last_cleanup_at) VALUES (1, ?, '')",
		string(TierFree),
	)
	return err
}

// Current returns the active tier with its effective thresholds.
func (t *TierManager) Current(ctx context.Context) (TierConfig, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ctx)
}

func (t *TierManager) load(ctx context.Context) (TierConfig, error) {
	var (
		tierStr    string
		cleanupStr string
	)
	err := t.db.QueryRowContext(ctx,
		"SELECT tier, last_cleanup_at FROM tier_config WHERE id = 1").Scan(&tierStr, &cleanupStr)
	if err != nil {
		return TierConfig{}, fmt.Errorf("load tier config: %w", err)
	}

	tier := Tier(tierStr)
	limits, err := t.limits(tier)
	if err != nil {
		return TierConfig{}, err
	}

	cfg := TierConfig{
		Tier:          tier,
		RetentionDays: limits.RetentionDays,
		MaxMessages:   limits.MaxMessages,
	}
	if cleanupStr != "" {
		cfg.LastCleanupAt, _ = time.Parse(time.RFC3339Nano, cleanupStr)
	}
	return cfg, nil
}

func (t *TierManager) limits(tier Tier) (Limits, error) {
	switch tier {
	case TierFree:
		return t.policy.Free, nil
	case TierPaid:
		return t.policy.Paid, nil
	default:
		return Limits{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
}

// Upgrade switches to the Paid tier. It only widens thresholds and never
// deletes data.
func (t *TierManager) Upgrade(ctx context.Context) (TierConfig, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.setTier(ctx, TierPaid); err != nil {
		return TierConfig{}, err
	}
	t.logger.Info("tier upgraded", "tier", TierPaid)
	return t.load(ctx)
}

// Downgrade switches to the Free tier and immediately re-applies Free
// bounds, deleting messages outside them. It is rejected before any
// deletion unless confirmed is true.
func (t *TierManager) Downgrade(ctx context.Context, store Store, confirmed bool) (int, error) {
	if !confirmed {
		return 0, ErrDowngradeNotConfirmed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.setTier(ctx, TierFree); err != nil {
		return 0, err
	}
	evicted, err := t.enforce(ctx, store, true)
	if err != nil {
		return evicted, err
	}
	t.logger.Warn("tier downgraded, free bounds applied", "evicted", evicted)
	return evicted, nil
}

func (t *TierManager) setTier(ctx context.Context, tier Tier) error {
	_, err := t.db.ExecContext(ctx,
		"UPDATE tier_config SET tier = ? WHERE id = 1", string(tier))
	if err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	return nil
}

// Enforce applies the active tier's policy to store. The capacity cap is
// checked on every call (a cheap COUNT); the age-based sweep runs at most
// once per CleanupInterval. Idempotent; capacity enforcement is silent and
// never an error for the caller's primary operation.
func (t *TierManager) Enforce(ctx context.Context, store Store) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enforce(ctx, store, false)
}

func (t *TierManager) enforce(ctx context.Context, store Store, force bool) (int, error) {
	cfg, err := t.load(ctx)
	if err != nil {
		return 0, err
	}

	now := t.now().UTC()
	evicted := 0

	sweepDue := force || cfg.LastCleanupAt.IsZero() ||
		now.Sub(cfg.LastCleanupAt) >= t.policy.CleanupInterval
	if sweepDue {
		cutoff := now.AddDate(0, 0, -cfg.RetentionDays)
		n, err := store.EvictOlderThan(ctx, cutoff)
		if err != nil {
			return evicted, fmt.Errorf("age sweep: %w", err)
		}
		evicted += n

		// last_cleanup_at only moves forward.
		if now.After(cfg.LastCleanupAt) {
			if _, err := t.db.ExecContext(ctx,
				"UPDATE tier_config SET last_cleanup_at = ? WHERE id = 1",
				now.Format(time.RFC3339Nano),
			); err != nil {
				return evicted, fmt.Errorf("record cleanup time: %w", err)
			}
		}
	}

	count, err := store.Count(ctx)
	if err != nil {
		return evicted, fmt.Errorf("count messages: %w", err)
	}
	if count > cfg.MaxMessages {
		n, err := store.EvictOldest(ctx, count-cfg.MaxMessages)
		if err != nil {
			return evicted, fmt.Errorf("capacity sweep: %w", err)
		}
		evicted += n
	}

	if evicted > 0 {
		t.logger.Info("tier policy enforced",
			"tier", cfg.Tier,
			"evicted", evicted,
		)
	}
	return evicted, nil
}

// Close closes the tier unit.
func (t *TierManager) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.db.Close()
}
