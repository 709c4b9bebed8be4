package backend

import (
	"context"
	"fmt"

	"github.com/maauso/avatar-broker/internal/runpod"
)

// RunPodAdapter adapts the RunPod serverless client to the Client interface.
type RunPodAdapter struct {
	client runpod.Client
}

// NewRunPodAdapter creates a new RunPod backend adapter.
func NewRunPodAdapter(client runpod.Client) *RunPodAdapter {
	return &RunPodAdapter{client: client}
}

// Name returns the backend identifier.
func (a *RunPodAdapter) Name() string { return "runpod" }

// IsConfigured reports whether RunPod credentials are present.
func (a *RunPodAdapter) IsConfigured() bool {
	return a.client != nil && a.client.Configured()
}

// Submit sends a generation job to RunPod.
func (a *RunPodAdapter) Submit(ctx context.Context, spec JobSpec) (Handle, error) {
	if !a.IsConfigured() {
		return "", ErrNotConfigured
	}

	in := runpod.SubmitInput{
		Prompt:     spec.EnhancedPrompt(),
		Steps:      spec.Steps,
		Frames:     spec.Frames,
		Resolution: spec.Resolution,
		Seed:       spec.Seed,
	}

	jobID, err := a.client.Submit(ctx, spec.ImageData, spec.AudioData, in)
	if err != nil {
		return "", fmt.Errorf("%w: runpod: %v", ErrSubmitFailed, err)
	}
	return Handle(jobID), nil
}

// CheckStatus performs one status check for a RunPod job.
func (a *RunPodAdapter) CheckStatus(ctx context.Context, handle Handle) (RawStatus, error) {
	result, err := a.client.Poll(ctx, string(handle))
	if err != nil {
		return RawStatus{}, fmt.Errorf("runpod adapter poll: %w", err)
	}

	var status Status
	switch result.Status {
	case runpod.StatusInQueue:
		status = StatusQueued
	case runpod.StatusRunning, runpod.StatusInProgress:
		status = StatusRunning
	case runpod.StatusCompleted:
		status = StatusSucceeded
	case runpod.StatusFailed, runpod.StatusTimedOut:
		status = StatusFailed
	case runpod.StatusCancelled:
		status = StatusCancelled
	default:
		status = Status(result.Status)
	}

	return RawStatus{
		Status:      status,
		VideoBase64: result.VideoBase64,
		Duration:    result.Duration,
		Error:       result.Error,
	}, nil
}

// Cancel requests cancellation of a RunPod job.
func (a *RunPodAdapter) Cancel(ctx context.Context, handle Handle) bool {
	return a.client.Cancel(ctx, string(handle)) == nil
}

// Compile-time check that RunPodAdapter implements Client.
var _ Client = (*RunPodAdapter)(nil)
