package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionStore is the slice of the message store the sweeper needs.
type RetentionStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionSweeper purges messages older than a configured age on a cron
// schedule. Conversations are cheap to keep but not forever: a long-running
// deployment accumulates sessions nobody will replay.
type RetentionSweeper struct {
	store    RetentionStore
	maxAge   time.Duration
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewRetentionSweeper creates a sweeper. schedule is standard 5-field cron
// syntax; maxAge must be positive.
func NewRetentionSweeper(store RetentionStore, schedule string, maxAge time.Duration, logger *slog.Logger) (*RetentionSweeper, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention: max age must be positive, got %v", maxAge)
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("retention: bad schedule %q: %w", schedule, err)
	}
	return &RetentionSweeper{
		store:    store,
		maxAge:   maxAge,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Start schedules the sweep and runs until ctx is cancelled.
func (r *RetentionSweeper) Start(ctx context.Context) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.schedule, func() {
		if err := r.Sweep(ctx); err != nil {
			r.logger.Error("retention sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("retention: schedule: %w", err)
	}
	r.cron.Start()

	go func() {
		<-ctx.Done()
		r.cron.Stop()
	}()
	return nil
}

// Sweep deletes everything older than the configured age. Exposed for the
// purge CLI subcommand and tests.
func (r *RetentionSweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.maxAge)
	n, err := r.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Info("retention sweep removed messages", "count", n, "cutoff", cutoff)
	}
	return nil
}
