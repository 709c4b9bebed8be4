package video

import (
	"errors"
	"testing"

	"github.com/maauso/avatar-broker/internal/backend"
)

func TestNew(t *testing.T) {
	rec := New("user-1", backend.TierPremium)

	if rec.ID == "" {
		t.Error("expected generated ID")
	}
	if rec.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", rec.UserID)
	}
	if rec.Status != StatusPending {
		t.Errorf("Status = %q, want pending", rec.Status)
	}
	if rec.Tier != backend.TierPremium {
		t.Errorf("Tier = %q, want premium", rec.Tier)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if rec.Settings == nil {
		t.Error("expected Settings map to be initialized")
	}
}

func TestNew_InvalidTierDefaultsToStandard(t *testing.T) {
	rec := New("user-1", backend.Tier("gold"))
	if rec.Tier != backend.TierStandard {
		t.Errorf("Tier = %q, want standard", rec.Tier)
	}
}

func TestRecord_ValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		ok   bool
	}{
		{"pending_to_processing", StatusPending, StatusProcessing, true},
		{"pending_to_failed", StatusPending, StatusFailed, true},
		{"pending_to_cancelled", StatusPending, StatusCancelled, true},
		{"pending_to_completed", StatusPending, StatusCompleted, false},
		{"processing_to_completed", StatusProcessing, StatusCompleted, true},
		{"processing_to_failed", StatusProcessing, StatusFailed, true},
		{"processing_to_cancelled", StatusProcessing, StatusCancelled, true},
		{"processing_to_pending", StatusProcessing, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := New("u", backend.TierFree)
			rec.Status = tt.from

			err := rec.TransitionTo(tt.to)
			if tt.ok && err != nil {
				t.Errorf("TransitionTo(%q) error: %v", tt.to, err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("TransitionTo(%q) = %v, want ErrInvalidTransition", tt.to, err)
			}
		})
	}
}

func TestRecord_TerminalStatesAreAbsorbing(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		t.Run(string(terminal), func(t *testing.T) {
			rec := New("u", backend.TierFree)
			rec.Status = terminal
			before := rec.UpdatedAt

			for _, next := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled} {
				if err := rec.TransitionTo(next); !errors.Is(err, ErrAlreadyTerminal) {
					t.Errorf("TransitionTo(%q) from %q = %v, want ErrAlreadyTerminal", next, terminal, err)
				}
			}

			if rec.Status != terminal {
				t.Errorf("status changed to %q, terminal states must be absorbing", rec.Status)
			}
			if !rec.UpdatedAt.Equal(before) {
				t.Error("UpdatedAt changed on a rejected transition")
			}
		})
	}
}

func TestRecord_StartSetsStartedAtOnce(t *testing.T) {
	rec := New("u", backend.TierFree)

	if err := rec.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if rec.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}

	started := rec.StartedAt
	if err := rec.Start(); err == nil {
		t.Error("second Start() should fail")
	}
	if !rec.StartedAt.Equal(started) {
		t.Error("StartedAt changed on rejected transition")
	}
}

func TestRecord_Complete(t *testing.T) {
	rec := New("u", backend.TierFree)
	if err := rec.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if err := rec.Complete("https://files/out.mp4", 5.4); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if rec.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", rec.Status)
	}
	if rec.OutputVideoURL != "https://files/out.mp4" {
		t.Errorf("OutputVideoURL = %q", rec.OutputVideoURL)
	}
	if rec.Duration != 5.4 {
		t.Errorf("Duration = %v, want 5.4", rec.Duration)
	}
	if rec.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
	if rec.ProcessingSeconds < 0 {
		t.Errorf("ProcessingSeconds = %v, want >= 0", rec.ProcessingSeconds)
	}
}

func TestRecord_Fail(t *testing.T) {
	rec := New("u", backend.TierFree)
	_ = rec.Start()

	if err := rec.Fail("backend exploded"); err != nil {
		t.Fatalf("Fail() error: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", rec.Status)
	}
	if rec.Error != "backend exploded" {
		t.Errorf("Error = %q", rec.Error)
	}

	// Failing again is rejected and the original message survives.
	if err := rec.Fail("second failure"); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("second Fail() = %v, want ErrAlreadyTerminal", err)
	}
	if rec.Error != "backend exploded" {
		t.Errorf("Error overwritten to %q", rec.Error)
	}
}

func TestRecord_CancelFromPending(t *testing.T) {
	rec := New("u", backend.TierFree)
	if err := rec.Cancel(); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if rec.Status != StatusCancelled {
		t.Errorf("Status = %q, want cancelled", rec.Status)
	}
	// Cancelled without ever starting: no processing time to report.
	if rec.ProcessingSeconds != 0 {
		t.Errorf("ProcessingSeconds = %v, want 0", rec.ProcessingSeconds)
	}
}

func TestRecord_Clone(t *testing.T) {
	rec := New("u", backend.TierFree)
	rec.Settings["seed"] = 7

	clone := rec.Clone()
	clone.Settings["seed"] = 99
	clone.Status = StatusFailed

	if rec.Settings["seed"] != 7 {
		t.Error("clone shares the Settings map with the original")
	}
	if rec.Status != StatusPending {
		t.Error("clone shares status with the original")
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("Status(%q).IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}
