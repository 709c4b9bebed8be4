package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/avatar-broker/internal/backend"
)

// scriptedClient returns a fixed sequence of statuses, then repeats the last
// one. It records every call so tests can assert counts.
type scriptedClient struct {
	name       string
	configured bool
	statuses   []backend.RawStatus
	checkErr   error

	checks  int
	cancels int
}

func (c *scriptedClient) Name() string       { return c.name }
func (c *scriptedClient) IsConfigured() bool { return c.configured }

func (c *scriptedClient) Submit(context.Context, backend.JobSpec) (backend.Handle, error) {
	return "handle-1", nil
}

func (c *scriptedClient) CheckStatus(context.Context, backend.Handle) (backend.RawStatus, error) {
	c.checks++
	if c.checkErr != nil {
		return backend.RawStatus{}, c.checkErr
	}
	i := c.checks - 1
	if i >= len(c.statuses) {
		i = len(c.statuses) - 1
	}
	return c.statuses[i], nil
}

func (c *scriptedClient) Cancel(context.Context, backend.Handle) bool {
	c.cancels++
	return true
}

// fakeClock advances a synthetic clock instead of sleeping.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	f.now = f.now.Add(d)
	return nil
}

func newTestPoller(cfg PollConfig, clock *fakeClock) *Poller {
	p := NewPoller(cfg, nil)
	p.now = clock.Now
	p.sleep = clock.Sleep
	return p
}

func TestPoller_TerminalStatusEndsLoop(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	p := newTestPoller(DefaultPollConfig(), clock)

	client := &scriptedClient{statuses: []backend.RawStatus{
		{Status: backend.StatusQueued},
		{Status: backend.StatusRunning},
		{Status: backend.StatusSucceeded, VideoBase64: "dmlkZW8="},
	}}

	raw, err := p.Poll(context.Background(), client, "handle-1")
	require.NoError(t, err)
	assert.Equal(t, backend.StatusSucceeded, raw.Status)
	assert.Equal(t, 3, client.checks)
	assert.Zero(t, client.cancels)
}

func TestPoller_BudgetGivesExactlyNPlusOneChecks(t *testing.T) {
	// With a budget of exactly N intervals and a job that never finishes,
	// the loop performs N+1 status checks: one at start, one per interval.
	const n = 5
	cfg := PollConfig{
		Timeout:      n * time.Second,
		Interval:     time.Second,
		ErrorBackoff: 2 * time.Second,
	}

	clock := &fakeClock{now: time.Now()}
	p := newTestPoller(cfg, clock)

	client := &scriptedClient{statuses: []backend.RawStatus{{Status: backend.StatusRunning}}}

	_, err := p.Poll(context.Background(), client, "handle-1")

	var timeout *PollTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, backend.Handle("handle-1"), timeout.Handle)
	assert.Equal(t, n+1, client.checks)
}

func TestPoller_TransportErrorsNeverTerminal(t *testing.T) {
	cfg := PollConfig{
		Timeout:      30 * time.Second,
		Interval:     2 * time.Second,
		ErrorBackoff: 5 * time.Second,
	}

	clock := &fakeClock{now: time.Now()}
	p := newTestPoller(cfg, clock)

	client := &scriptedClient{checkErr: errors.New("connection refused")}

	_, err := p.Poll(context.Background(), client, "handle-1")

	// A check that fails every time must end in a timeout, not a failure.
	var timeout *PollTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Greater(t, client.checks, 1, "failed checks should be retried")
}

func TestPoller_ErrorBackoffSlowerThanInterval(t *testing.T) {
	cfg := PollConfig{
		Timeout:      20 * time.Second,
		Interval:     2 * time.Second,
		ErrorBackoff: 5 * time.Second,
	}

	clock := &fakeClock{now: time.Now()}

	okClient := &scriptedClient{statuses: []backend.RawStatus{{Status: backend.StatusRunning}}}
	_, _ = newTestPoller(cfg, clock).Poll(context.Background(), okClient, "h")

	clock2 := &fakeClock{now: time.Now()}
	errClient := &scriptedClient{checkErr: errors.New("boom")}
	_, _ = newTestPoller(cfg, clock2).Poll(context.Background(), errClient, "h")

	assert.Less(t, errClient.checks, okClient.checks,
		"error backoff should produce fewer checks than the healthy interval")
}

func TestPoller_ErrorBackoffForcedAboveInterval(t *testing.T) {
	p := NewPoller(PollConfig{
		Timeout:      time.Minute,
		Interval:     5 * time.Second,
		ErrorBackoff: time.Second,
	}, nil)
	assert.Greater(t, p.cfg.ErrorBackoff, p.cfg.Interval)
}

func TestPoller_ContextCancellationTriggersRemoteCancel(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	p := newTestPoller(DefaultPollConfig(), clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedClient{statuses: []backend.RawStatus{{Status: backend.StatusRunning}}}

	_, err := p.Poll(ctx, client, "handle-1")
	require.Error(t, err)
	assert.NotErrorAs(t, err, new(*PollTimeoutError))
	assert.Equal(t, 1, client.cancels, "cancellation should attempt a remote cancel")
}

func TestPoller_FailedStatusIsReturnedNotRetried(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	p := newTestPoller(DefaultPollConfig(), clock)

	client := &scriptedClient{statuses: []backend.RawStatus{
		{Status: backend.StatusFailed, Error: "CUDA out of memory"},
	}}

	raw, err := p.Poll(context.Background(), client, "handle-1")
	require.NoError(t, err)
	assert.Equal(t, backend.StatusFailed, raw.Status)
	assert.Equal(t, "CUDA out of memory", raw.Error)
	assert.Equal(t, 1, client.checks)
}
