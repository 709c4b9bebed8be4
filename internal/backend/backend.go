// Package backend defines the provider-agnostic contract for remote video
// generation backends. Each provider (RunPod, Replicate, Vast.ai) implements
// the Client interface through an adapter; provider-specific payload shapes
// never cross this boundary.
package backend

import (
	"context"
	"errors"
)

// Static errors shared across backends. These form the error taxonomy the
// orchestrator classifies failures into.
var (
	// ErrNotConfigured is returned when a backend is missing credentials.
	ErrNotConfigured = errors.New("backend: not configured")
	// ErrSubmitFailed is returned when the remote API rejects or errors on job creation.
	ErrSubmitFailed = errors.New("backend: submit failed")
	// ErrNotImplemented is returned when a backend variant is recognized but
	// intentionally unsupported. It must surface loudly, never degrade silently.
	ErrNotImplemented = errors.New("backend: not implemented")
	// ErrMalformedOutput is returned when a terminal success response cannot
	// be parsed into usable video bytes.
	ErrMalformedOutput = errors.New("backend: malformed output")
	// ErrProviderFailure is returned when the remote explicitly reports that
	// the job failed; it carries the remote error text.
	ErrProviderFailure = errors.New("backend: provider reported failure")
	// ErrNoBackendAvailable is returned when every candidate backend is
	// unconfigured or failed submission.
	ErrNoBackendAvailable = errors.New("backend: no backend available")
)

// Tier is the requested backend tier for a generation run.
type Tier string

const (
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// IsValid returns true if the tier is a known value.
func (t Tier) IsValid() bool {
	return t == TierFree || t == TierStandard || t == TierPremium
}

// JobSpec is the immutable input to one orchestration run.
type JobSpec struct {
	// ImageData is the reference image bytes.
	ImageData []byte
	// AudioData is the speech audio bytes driving the avatar.
	AudioData []byte
	// Prompt is the scene description.
	Prompt string
	// Emotion is an optional emotion tag (happy, sad, neutral).
	Emotion string
	// Style is an optional style tag (podcast, interview, testimonial).
	Style string
	// Steps is the number of denoising steps.
	Steps int
	// Frames is the number of video frames.
	Frames int
	// Resolution is the target resolution (540p or 720p).
	Resolution string
	// Width and Height are the target dimensions in pixels.
	Width  int
	Height int
	// Seed is the random seed for reproducibility.
	Seed int64
}

// EnhancedPrompt returns the prompt with emotion and style tags folded in.
func (s JobSpec) EnhancedPrompt() string {
	p := s.Prompt
	if s.Emotion != "" {
		p += ". " + s.Emotion + " emotion"
	}
	if s.Style != "" {
		p += ". " + s.Style + " style"
	}
	return p
}

// Handle is the opaque identifier for one in-flight remote job. It has no
// meaning outside the run that created it.
type Handle string

// Status is the normalized status of a remote job.
type Status string

const (
	// StatusQueued indicates the job is waiting for a remote worker.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates the job is being processed remotely.
	StatusRunning Status = "RUNNING"
	// StatusSucceeded indicates the remote job finished successfully.
	StatusSucceeded Status = "SUCCEEDED"
	// StatusFailed indicates the remote job reported a failure.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the remote job was cancelled.
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal returns true if the status is a final remote state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// RawStatus is the result of one status check, normalized to a single shape.
// Output fields are only set for terminal statuses; at most one of
// VideoBase64 and VideoURL is populated.
type RawStatus struct {
	// Status is the normalized job status.
	Status Status
	// VideoBase64 is the inline base64-encoded video payload, when the
	// provider returns output directly.
	VideoBase64 string
	// VideoURL is a URL to fetch the video from, when the provider returns
	// output by reference.
	VideoURL string
	// Duration is the generated video duration in seconds, when reported.
	Duration float64
	// Error is the provider-reported failure message, set when Status is
	// StatusFailed.
	Error string
}

// Client is the capability every remote backend implements.
//
// Submit and CheckStatus each perform exactly one logical network call and
// never sleep; pacing is the poll loop's responsibility. An error returned
// from CheckStatus is a transport-level failure, not a provider-reported job
// failure; the latter arrives as a terminal RawStatus.
type Client interface {
	// Name returns the backend identifier (runpod, replicate, vastai).
	Name() string

	// IsConfigured reports whether credentials are present. It is a pure
	// function of configuration and performs no network call.
	IsConfigured() bool

	// Submit creates remote work for the spec and returns its handle.
	Submit(ctx context.Context, spec JobSpec) (Handle, error)

	// CheckStatus performs one status check for the handle.
	CheckStatus(ctx context.Context, handle Handle) (RawStatus, error)

	// Cancel makes a best-effort attempt to stop the remote job. Backends
	// without cancellation support return false; that is not an error.
	Cancel(ctx context.Context, handle Handle) bool
}
