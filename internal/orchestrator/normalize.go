package orchestrator

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/maauso/avatar-broker/internal/backend"
)

// OutcomeState classifies the terminal result of one orchestration run.
type OutcomeState string

const (
	// OutcomeSuccess means usable video bytes were produced.
	OutcomeSuccess OutcomeState = "success"
	// OutcomeFailure means the run ended in a classified error.
	OutcomeFailure OutcomeState = "failure"
	// OutcomeTimedOut means the poll budget elapsed without a terminal
	// remote status.
	OutcomeTimedOut OutcomeState = "timed_out"
)

// Outcome is the normalized terminal result of a run. Exactly one is
// produced per run; it is immutable afterward.
type Outcome struct {
	State OutcomeState
	// Video is the materialized artifact bytes (success only).
	Video []byte
	// ContentType is sniffed from the video bytes.
	ContentType string
	// Duration is the video length in seconds, when the provider reported it.
	Duration float64
	// Err carries the classified failure (failure only); it wraps one of the
	// backend error kinds.
	Err error
}

// Normalizer converts a terminal RawStatus into an Outcome. Providers return
// output in different shapes: inline base64, a URL to fetch, or nothing
// usable at all. The normalizer materializes bytes, classifies failures, and
// rejects malformed output instead of propagating raw decode errors.
type Normalizer struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewNormalizer creates a normalizer. The HTTP client is used for the single
// fetch of URL-shaped output.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// WithHTTPClient sets a custom HTTP client for output fetches.
func (n *Normalizer) WithHTTPClient(c *http.Client) *Normalizer {
	n.httpClient = c
	return n
}

// Normalize maps a terminal RawStatus into an Outcome.
func (n *Normalizer) Normalize(ctx context.Context, raw backend.RawStatus) Outcome {
	switch raw.Status {
	case backend.StatusFailed:
		msg := raw.Error
		if msg == "" {
			msg = "unknown provider error"
		}
		return failureOutcome(fmt.Errorf("%w: %s", backend.ErrProviderFailure, msg))

	case backend.StatusCancelled:
		return failureOutcome(fmt.Errorf("%w: job cancelled remotely", backend.ErrProviderFailure))

	case backend.StatusSucceeded:
		return n.normalizeSuccess(ctx, raw)

	default:
		// A non-terminal status reaching the normalizer is a programming
		// error upstream; reject it rather than crash.
		return failureOutcome(fmt.Errorf("%w: non-terminal status %q", backend.ErrMalformedOutput, raw.Status))
	}
}

// normalizeSuccess materializes the output bytes from whichever shape the
// provider returned.
func (n *Normalizer) normalizeSuccess(ctx context.Context, raw backend.RawStatus) Outcome {
	var (
		video []byte
		err   error
	)

	switch {
	case raw.VideoBase64 != "":
		video, err = base64.StdEncoding.DecodeString(raw.VideoBase64)
		if err != nil {
			return failureOutcome(fmt.Errorf("%w: decode inline video: %v", backend.ErrMalformedOutput, err))
		}
	case raw.VideoURL != "":
		video, err = n.fetchOutput(ctx, raw.VideoURL)
		if err != nil {
			return failureOutcome(fmt.Errorf("%w: fetch output: %v", backend.ErrMalformedOutput, err))
		}
	default:
		return failureOutcome(fmt.Errorf("%w: success status with no output", backend.ErrMalformedOutput))
	}

	if len(video) == 0 {
		return failureOutcome(fmt.Errorf("%w: empty video payload", backend.ErrMalformedOutput))
	}

	return Outcome{
		State:       OutcomeSuccess,
		Video:       video,
		ContentType: sniffContentType(video),
		Duration:    raw.Duration,
	}
}

// fetchOutput performs the single fetch that materializes URL-shaped output.
func (n *Normalizer) fetchOutput(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read fetched output: %w", err)
	}

	return data, nil
}

// failureOutcome wraps a classified error into a failure Outcome.
func failureOutcome(err error) Outcome {
	return Outcome{State: OutcomeFailure, Err: err}
}

// timeoutOutcome is the single TimedOut value.
func timeoutOutcome() Outcome {
	return Outcome{State: OutcomeTimedOut}
}

// sniffContentType inspects leading magic bytes to classify the payload.
// Unrecognized payloads fall back to video/mp4 rather than failing, since
// every current provider produces MP4.
func sniffContentType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(data, []byte("\xff\xd8\xff")):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("RIFF")) && len(data) >= 12 && bytes.Equal(data[8:12], []byte("WAVE")):
		return "audio/wav"
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return "video/mp4"
	default:
		return "video/mp4"
	}
}
