package memory

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs periodic tier-policy enforcement in the background so
// long-running servers clean up aged messages even when no appends arrive.
type Sweeper struct {
	tiers    *TierManager
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
}

// NewSweeper creates a sweeper for the given store. Interval defaults to 1h.
func NewSweeper(tiers *TierManager, store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		tiers:    tiers,
		store:    store,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic enforcement loop. Call Stop() to terminate.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop terminates the sweeper.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Warn("background sweep failed", "err", err)
			}
			cancel()
		}
	}
}

// RunOnce executes a single enforcement pass. Exported for testing.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	_, err := s.tiers.Enforce(ctx, s.store)
	return err
}
