// Package dispatch runs generation jobs on a bounded worker pool. The HTTP
// handler enqueues a video ID and returns immediately; workers drive each
// record through the orchestrator. A panicking run is recovered and the
// record is failed instead of leaking a stuck processing state.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned when the job queue cannot accept more work.
var ErrQueueFull = errors.New("dispatch: queue is full")

// ErrStopped is returned when work is enqueued after shutdown began.
var ErrStopped = errors.New("dispatch: dispatcher is stopped")

// Runner executes one generation run. Fail is the recovery hook for runs
// that abort outside the normal flow.
type Runner interface {
	Run(ctx context.Context, videoID string) error
	Fail(ctx context.Context, videoID string, runErr error)
}

// Dispatcher owns the worker pool and the job queue. Each in-flight run is
// registered with a cancel function so an external cancellation request can
// abort its poll loop instead of waiting for the remote job to finish.
type Dispatcher struct {
	runner  Runner
	logger  *slog.Logger
	workers int

	jobs chan string

	mu      sync.Mutex
	stopped bool
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a dispatcher with the given pool size and queue capacity.
func New(runner Runner, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		runner:  runner,
		logger:  logger,
		workers: workers,
		jobs:    make(chan string, queueSize),
		running: make(map[string]context.CancelFunc),
	}
}

// Start launches the worker pool. Workers exit when the context is cancelled
// or the queue is closed by Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.logger.Info("dispatcher started", slog.Int("workers", d.workers))
}

// Enqueue submits a video ID for processing. It never blocks; a full queue
// is reported to the caller so the request can be rejected with backpressure.
func (d *Dispatcher) Enqueue(videoID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}

	select {
	case d.jobs <- videoID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight runs to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case videoID, ok := <-d.jobs:
			if !ok {
				return
			}
			d.process(ctx, id, videoID)
		}
	}
}

// CancelRun aborts the in-flight run for a video, if there is one. It reports
// whether a run was signalled; IDs that are only queued or already finished
// return false.
func (d *Dispatcher) CancelRun(videoID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cancel, ok := d.running[videoID]
	if ok {
		cancel()
	}
	return ok
}

// process runs one job under its own cancellable context, recovering panics
// into a failed record.
func (d *Dispatcher) process(ctx context.Context, workerID int, videoID string) {
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.running[videoID] = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.running, videoID)
		d.mu.Unlock()
		cancel()
	}()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("run panicked",
				slog.Int("worker", workerID),
				slog.String("video_id", videoID),
				slog.Any("panic", r),
			)
			d.runner.Fail(context.WithoutCancel(ctx), videoID, fmt.Errorf("run panicked: %v", r))
		}
	}()

	if err := d.runner.Run(runCtx, videoID); err != nil {
		d.logger.Error("run returned error",
			slog.Int("worker", workerID),
			slog.String("video_id", videoID),
			slog.String("error", err.Error()),
		)
	}
}
