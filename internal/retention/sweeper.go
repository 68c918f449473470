// Package retention periodically drops tracking data that has outlived its window.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/gatekeeper/internal/shared"
)

// LedgerPruner drops tracked messages recorded before cutoff.
type LedgerPruner interface {
	PruneBefore(cutoff time.Time) int
}

// JournalPruner drops journal rows recorded before cutoff.
type JournalPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls the sweep cadence and the two retention windows.
type Config struct {
	Interval         time.Duration
	LedgerWindow     time.Duration
	JournalRetention time.Duration
}

// Sweeper prunes the message ledger and the outcome journal on a ticker.
type Sweeper struct {
	ledger  LedgerPruner
	journal JournalPruner
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewSweeper creates a sweeper. A nil journal is skipped.
func NewSweeper(ledger LedgerPruner, journal JournalPruner, cfg Config, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		ledger:  ledger,
		journal: journal,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.logger.Info("Retention sweeper started",
		"interval", s.cfg.Interval,
		"ledger_window", s.cfg.LedgerWindow,
		"journal_retention", s.cfg.JournalRetention)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			s.logger.Info("Retention sweeper shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

// Sweep runs one pruning pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()

	if s.ledger != nil && s.cfg.LedgerWindow > 0 {
		if n := s.ledger.PruneBefore(now.Add(-s.cfg.LedgerWindow)); n > 0 {
			s.logger.Info("Pruned tracked messages", "count", n)
		}
	}

	if s.journal == nil || s.cfg.JournalRetention <= 0 {
		return
	}
	n, err := pruneJournalWithRetry(ctx, s.journal, now.Add(-s.cfg.JournalRetention), s.logger)
	if err != nil {
		s.logger.Error("Failed to prune journal", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Pruned journal rows", "count", n)
	}
}

// pruneJournalWithRetry retries lock contention with exponential backoff.
func pruneJournalWithRetry(ctx context.Context, journal JournalPruner, cutoff time.Time, logger *slog.Logger) (int64, error) {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		n, err := journal.PruneBefore(ctx, cutoff)
		if err == nil {
			return n, nil
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms
			logger.Debug("Journal prune hit a locked database, retrying",
				"attempt", i+1,
				"delay", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}

		return 0, fmt.Errorf("prune journal after %d attempts: %w", i+1, err)
	}
	return 0, nil
}
