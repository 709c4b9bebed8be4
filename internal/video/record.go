// Package video provides the VideoRecord aggregate: the persisted,
// user-visible unit of work driven through its lifecycle by the
// orchestrator. It includes the state machine, repository interfaces, and
// the stale-record reconciler.
package video

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/avatar-broker/internal/backend"
)

// Status represents the current state of a video record.
type Status string

const (
	// StatusPending indicates the record was created and awaits dispatch.
	StatusPending Status = "pending"
	// StatusProcessing indicates an orchestration run owns the record.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates generation finished and the artifact is stored.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the run ended in an error.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the user cancelled the request.
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if the status is absorbing: no further transition
// is permitted once it is reached.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Transition errors.
var (
	// ErrInvalidTransition is returned for transitions the lifecycle does not
	// define, such as pending directly to completed.
	ErrInvalidTransition = errors.New("video: invalid state transition")
	// ErrAlreadyTerminal is returned when a transition is attempted from an
	// absorbing state. Callers treat it as a no-op and log a warning rather
	// than corruption.
	ErrAlreadyTerminal = errors.New("video: record already in terminal state")
)

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusCancelled:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Record represents one video generation request. Only the owning
// orchestration run writes to it after creation; external readers see it
// through repository clones.
type Record struct {
	mu sync.RWMutex

	// ID is the unique identifier for this record.
	ID string
	// UserID is the owning user.
	UserID string
	// ImageURL is the stored reference image.
	ImageURL string
	// AudioURL is the stored speech audio; empty for text-only requests
	// until synthesis fills it in.
	AudioURL string
	// TextInput is the text to synthesize when no audio was provided.
	TextInput string
	// Prompt is the scene description.
	Prompt string
	// Emotion is an optional emotion tag.
	Emotion string
	// Style is an optional style tag.
	Style string
	// OutputVideoURL is the stored artifact, set on completion.
	OutputVideoURL string
	// Duration is the generated video length in seconds.
	Duration float64
	// Status is the current lifecycle state.
	Status Status
	// Tier is the requested backend tier.
	Tier backend.Tier
	// Error contains the failure message when Status is failed.
	Error string
	// Settings is the free-form generation settings bag
	// (num_inference_steps, num_frames, resolution, seed...).
	Settings map[string]any
	// CreatedAt is when the record was created.
	CreatedAt time.Time
	// UpdatedAt is when the record was last written.
	UpdatedAt time.Time
	// StartedAt is set exactly once, at the pending to processing transition.
	StartedAt time.Time
	// CompletedAt is set exactly once, at the transition into any terminal
	// state.
	CompletedAt time.Time
	// ProcessingSeconds is CompletedAt minus StartedAt, set with CompletedAt.
	ProcessingSeconds float64
}

// New creates a new Record in pending state with a generated ID.
func New(userID string, tier backend.Tier) *Record {
	if !tier.IsValid() {
		tier = backend.TierStandard
	}
	now := time.Now()
	return &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    StatusPending,
		Tier:      tier,
		Settings:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the record status. Terminal states are
// absorbing: a transition attempted from one returns ErrAlreadyTerminal and
// leaves the record untouched.
func (r *Record) TransitionTo(status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(status)
}

func (r *Record) transitionLocked(status Status) error {
	if r.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if !canTransition(r.Status, status) {
		return ErrInvalidTransition
	}

	r.Status = status
	r.UpdatedAt = time.Now()

	switch {
	case status == StatusProcessing:
		r.StartedAt = r.UpdatedAt
	case status.IsTerminal():
		r.CompletedAt = r.UpdatedAt
		if !r.StartedAt.IsZero() {
			r.ProcessingSeconds = r.CompletedAt.Sub(r.StartedAt).Seconds()
		}
	}

	return nil
}

// Start transitions the record from pending to processing.
func (r *Record) Start() error {
	return r.TransitionTo(StatusProcessing)
}

// Complete transitions the record to completed with the stored artifact.
func (r *Record) Complete(outputURL string, duration float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	r.OutputVideoURL = outputURL
	r.Duration = duration
	return nil
}

// Fail transitions the record to failed with an error message.
func (r *Record) Fail(errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(StatusFailed); err != nil {
		return err
	}
	r.Error = errMsg
	return nil
}

// Cancel transitions the record to cancelled.
func (r *Record) Cancel() error {
	return r.TransitionTo(StatusCancelled)
}

// SetAudioURL records the synthesized audio location for text-only requests.
func (r *Record) SetAudioURL(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.AudioURL = url
	r.UpdatedAt = time.Now()
}

// GetStatus returns the current status (thread-safe).
func (r *Record) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// IsTerminal returns true if the record is in an absorbing state.
func (r *Record) IsTerminal() bool {
	return r.GetStatus().IsTerminal()
}

// Clone creates a deep copy of the record for safe reads.
func (r *Record) Clone() *Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	settings := make(map[string]any, len(r.Settings))
	for k, v := range r.Settings {
		settings[k] = v
	}

	return &Record{
		ID:                r.ID,
		UserID:            r.UserID,
		ImageURL:          r.ImageURL,
		AudioURL:          r.AudioURL,
		TextInput:         r.TextInput,
		Prompt:            r.Prompt,
		Emotion:           r.Emotion,
		Style:             r.Style,
		OutputVideoURL:    r.OutputVideoURL,
		Duration:          r.Duration,
		Status:            r.Status,
		Tier:              r.Tier,
		Error:             r.Error,
		Settings:          settings,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		StartedAt:         r.StartedAt,
		CompletedAt:       r.CompletedAt,
		ProcessingSeconds: r.ProcessingSeconds,
	}
}
