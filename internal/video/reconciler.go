package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Reconciler sweeps records stuck in processing. A crashed or killed run
// leaves its record in the last committed state with no path out; the sweep
// fails records whose run started longer ago than the configured bound.
type Reconciler struct {
	repo   Repository
	logger *slog.Logger
	maxAge time.Duration

	// now is injectable for tests.
	now func() time.Time
}

// NewReconciler creates a reconciler that fails processing records older
// than maxAge.
func NewReconciler(repo Repository, maxAge time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		repo:   repo,
		logger: logger,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Sweep performs one pass and returns the number of records failed.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.maxAge)

	stale, err := r.repo.StaleProcessing(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale records: %w", err)
	}

	failed := 0
	for _, rec := range stale {
		msg := fmt.Sprintf("processing exceeded %s without a terminal transition; run presumed crashed", r.maxAge)
		if err := rec.Fail(msg); err != nil {
			r.logger.Warn("skipping stale record not in processing",
				slog.String("video_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := r.repo.Save(ctx, rec); err != nil {
			if errors.Is(err, ErrTerminalConflict) {
				// The run finished between the query and this write; the
				// store kept its result.
				r.logger.Warn("stale record reached a terminal state, leaving it",
					slog.String("video_id", rec.ID),
				)
				continue
			}
			r.logger.Error("failed to persist reconciled record",
				slog.String("video_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.logger.Warn("reconciled stale processing record",
			slog.String("video_id", rec.ID),
			slog.Time("started_at", rec.StartedAt),
		)
		failed++
	}

	return failed, nil
}

// Run sweeps on the given interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconciler sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
