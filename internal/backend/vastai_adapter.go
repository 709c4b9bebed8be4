package backend

import (
	"context"
	"fmt"
	"strconv"

	"github.com/maauso/avatar-broker/internal/vastai"
)

// onStartScript bootstraps a rented instance with the inference runtime.
const onStartScript = `#!/bin/bash
pip install torch torchvision torchaudio --index-url https://download.pytorch.org/whl/cu121
pip install diffusers transformers accelerate flask
python -c "from huggingface_hub import snapshot_download; snapshot_download('OmniAvatar/OmniAvatar-14B', local_dir='/models/OmniAvatar-14B')"
python /workspace/server.py &
`

// marketplaceAPI is the slice of the Vast.ai client the adapter needs. It
// exists so the provisioning protocol is testable without the marketplace.
type marketplaceAPI interface {
	Configured() bool
	FindCheapestOffer(ctx context.Context) (vastai.Offer, error)
	CreateInstance(ctx context.Context, offerID int64, onStart string) (int64, error)
	WaitInstanceReady(ctx context.Context, instanceID int64) (vastai.Instance, error)
	GetInstance(ctx context.Context, instanceID int64) (vastai.Instance, error)
	DestroyInstance(ctx context.Context, instanceID int64) bool
}

// VastAIAdapter adapts the Vast.ai marketplace client to the Client
// interface. Submission is a provisioning protocol rather than a single API
// call: search offers, rent the cheapest acceptable one, wait for boot, then
// dispatch the job. The rented instance is destroyed on every exit path;
// instance resources must never leak.
type VastAIAdapter struct {
	client marketplaceAPI
}

// NewVastAIAdapter creates a new Vast.ai backend adapter.
func NewVastAIAdapter(client marketplaceAPI) *VastAIAdapter {
	return &VastAIAdapter{client: client}
}

// Name returns the backend identifier.
func (a *VastAIAdapter) Name() string { return "vastai" }

// IsConfigured reports whether a Vast.ai API key is present.
func (a *VastAIAdapter) IsConfigured() bool {
	return a.client != nil && a.client.Configured()
}

// Submit provisions a marketplace instance and dispatches the job to it.
// Destruction of the instance is deferred unconditionally so it runs whether
// readiness or dispatch fails or succeeds.
func (a *VastAIAdapter) Submit(ctx context.Context, spec JobSpec) (Handle, error) {
	if !a.IsConfigured() {
		return "", ErrNotConfigured
	}

	offer, err := a.client.FindCheapestOffer(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: vastai: %v", ErrSubmitFailed, err)
	}

	instanceID, err := a.client.CreateInstance(ctx, offer.ID, onStartScript)
	if err != nil {
		return "", fmt.Errorf("%w: vastai: %v", ErrSubmitFailed, err)
	}

	// Destruction is not tied to the happy path: readiness timeouts and
	// dispatch failures must still release the rented GPU. Uses a background
	// context so a cancelled run still cleans up.
	defer a.client.DestroyInstance(context.WithoutCancel(ctx), instanceID)

	inst, err := a.client.WaitInstanceReady(ctx, instanceID)
	if err != nil {
		return "", fmt.Errorf("%w: vastai: %v", ErrSubmitFailed, err)
	}

	if err := a.dispatchGeneration(ctx, inst, spec); err != nil {
		return "", err
	}

	return Handle(strconv.FormatInt(instanceID, 10)), nil
}

// dispatchGeneration would upload the inputs over SSH and start the job on
// the instance. The transport is intentionally unsupported; failing loudly
// here keeps the selector falling through to a serverless backend instead of
// silently renting idle GPUs.
func (a *VastAIAdapter) dispatchGeneration(_ context.Context, _ vastai.Instance, _ JobSpec) error {
	return fmt.Errorf("%w: vastai SSH-based generation requires additional setup; "+
		"configure RunPod or Replicate credentials for production workloads", ErrNotImplemented)
}

// CheckStatus reports the instance state for an in-flight handle. Terminal
// success never originates here today because dispatch is unsupported.
func (a *VastAIAdapter) CheckStatus(ctx context.Context, handle Handle) (RawStatus, error) {
	instanceID, err := strconv.ParseInt(string(handle), 10, 64)
	if err != nil {
		return RawStatus{}, fmt.Errorf("vastai adapter: bad handle %q: %w", handle, err)
	}

	inst, err := a.client.GetInstance(ctx, instanceID)
	if err != nil {
		return RawStatus{}, fmt.Errorf("vastai adapter poll: %w", err)
	}

	if inst.Running() {
		return RawStatus{Status: StatusRunning}, nil
	}
	return RawStatus{Status: StatusQueued}, nil
}

// Cancel destroys the rented instance.
func (a *VastAIAdapter) Cancel(ctx context.Context, handle Handle) bool {
	instanceID, err := strconv.ParseInt(string(handle), 10, 64)
	if err != nil {
		return false
	}
	return a.client.DestroyInstance(ctx, instanceID)
}

// Compile-time check that VastAIAdapter implements Client.
var _ Client = (*VastAIAdapter)(nil)
