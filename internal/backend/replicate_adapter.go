package backend

import (
	"context"
	"fmt"

	"github.com/maauso/avatar-broker/internal/replicate"
)

// ReplicateAdapter adapts the Replicate predictions client to the Client
// interface.
type ReplicateAdapter struct {
	client replicate.Client
	model  replicate.Model
}

// NewReplicateAdapter creates a new Replicate backend adapter using the
// default hosted model.
func NewReplicateAdapter(client replicate.Client) *ReplicateAdapter {
	return &ReplicateAdapter{client: client, model: replicate.DefaultModel}
}

// WithModel selects the hosted model used for generation.
func (a *ReplicateAdapter) WithModel(model replicate.Model) *ReplicateAdapter {
	a.model = model
	return a
}

// Name returns the backend identifier.
func (a *ReplicateAdapter) Name() string { return "replicate" }

// IsConfigured reports whether a Replicate token is present.
func (a *ReplicateAdapter) IsConfigured() bool {
	return a.client != nil && a.client.Configured()
}

// Submit creates a prediction for the spec. The hosted lip-sync models take
// only image and audio; generation parameters are the model's own.
func (a *ReplicateAdapter) Submit(ctx context.Context, spec JobSpec) (Handle, error) {
	if !a.IsConfigured() {
		return "", ErrNotConfigured
	}

	predictionID, err := a.client.Submit(ctx, spec.ImageData, spec.AudioData, a.model)
	if err != nil {
		return "", fmt.Errorf("%w: replicate: %v", ErrSubmitFailed, err)
	}
	return Handle(predictionID), nil
}

// CheckStatus performs one status check for a prediction.
func (a *ReplicateAdapter) CheckStatus(ctx context.Context, handle Handle) (RawStatus, error) {
	result, err := a.client.Poll(ctx, string(handle))
	if err != nil {
		return RawStatus{}, fmt.Errorf("replicate adapter poll: %w", err)
	}

	var status Status
	switch result.Status {
	case replicate.StatusStarting:
		status = StatusQueued
	case replicate.StatusProcessing:
		status = StatusRunning
	case replicate.StatusSucceeded:
		status = StatusSucceeded
	case replicate.StatusFailed:
		status = StatusFailed
	case replicate.StatusCanceled:
		status = StatusCancelled
	default:
		status = Status(result.Status)
	}

	return RawStatus{
		Status:   status,
		VideoURL: result.OutputURL,
		Error:    result.Error,
	}, nil
}

// Cancel requests cancellation of a prediction.
func (a *ReplicateAdapter) Cancel(ctx context.Context, handle Handle) bool {
	return a.client.Cancel(ctx, string(handle)) == nil
}

// Compile-time check that ReplicateAdapter implements Client.
var _ Client = (*ReplicateAdapter)(nil)
