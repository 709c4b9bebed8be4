// Package orchestrator implements the remote job orchestration core:
// backend selection, submission with fallback, bounded polling, result
// normalization, and the persisted lifecycle transitions.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/avatar-broker/internal/backend"
)

// PollConfig bounds one polling session.
type PollConfig struct {
	// Timeout is the overall wall-clock budget, measured from the first
	// status check.
	Timeout time.Duration
	// Interval is the pause between checks while the job is not terminal.
	Interval time.Duration
	// ErrorBackoff is the pause after a transport-level check failure. It is
	// kept strictly greater than Interval to avoid hammering a flaky
	// endpoint.
	ErrorBackoff time.Duration
}

// DefaultPollConfig returns the polling bounds used in production.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Timeout:      5 * time.Minute,
		Interval:     2 * time.Second,
		ErrorBackoff: 5 * time.Second,
	}
}

// PollTimeoutError reports that the overall budget elapsed without a
// terminal remote status. It carries the handle so the caller can attempt a
// best-effort cancellation.
type PollTimeoutError struct {
	Handle backend.Handle
	Budget time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("poll timed out after %s (handle %s)", e.Budget, e.Handle)
}

// Poller runs the bounded status-check loop against a backend client.
// Clock and sleep are injectable so the loop is testable without wall-clock
// delay.
type Poller struct {
	cfg    PollConfig
	logger *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller with the given bounds.
func NewPoller(cfg PollConfig, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ErrorBackoff <= cfg.Interval {
		cfg.ErrorBackoff = 2 * cfg.Interval
	}
	return &Poller{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Poll calls CheckStatus until a terminal RawStatus is observed or the
// budget elapses. Transport-level errors from CheckStatus are retried with
// backoff and never surface as terminal failures. Cancellation is checked at
// each iteration boundary and triggers a best-effort remote cancel.
func (p *Poller) Poll(ctx context.Context, client backend.Client, handle backend.Handle) (backend.RawStatus, error) {
	deadline := p.now().Add(p.cfg.Timeout)

	for {
		if err := ctx.Err(); err != nil {
			client.Cancel(context.WithoutCancel(ctx), handle)
			return backend.RawStatus{}, fmt.Errorf("poll cancelled: %w", err)
		}

		raw, err := client.CheckStatus(ctx, handle)

		var wait time.Duration
		switch {
		case err != nil:
			p.logger.Warn("status check failed, backing off",
				slog.String("backend", client.Name()),
				slog.String("handle", string(handle)),
				slog.String("error", err.Error()),
			)
			wait = p.cfg.ErrorBackoff
		case raw.Status.IsTerminal():
			return raw, nil
		default:
			p.logger.Debug("job not terminal yet",
				slog.String("backend", client.Name()),
				slog.String("handle", string(handle)),
				slog.String("status", string(raw.Status)),
			)
			wait = p.cfg.Interval
		}

		// The next check cannot happen before the deadline: give up now
		// rather than sleeping past the budget.
		if p.now().Add(wait).After(deadline) {
			return backend.RawStatus{}, &PollTimeoutError{Handle: handle, Budget: p.cfg.Timeout}
		}

		if err := p.sleep(ctx, wait); err != nil {
			client.Cancel(context.WithoutCancel(ctx), handle)
			return backend.RawStatus{}, fmt.Errorf("poll cancelled: %w", err)
		}
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
