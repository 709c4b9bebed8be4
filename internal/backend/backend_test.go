package backend

import "testing"

func TestTier_IsValid(t *testing.T) {
	tests := []struct {
		tier  Tier
		valid bool
	}{
		{TierFree, true},
		{TierStandard, true},
		{TierPremium, true},
		{Tier(""), false},
		{Tier("gold"), false},
	}

	for _, tt := range tests {
		if got := tt.tier.IsValid(); got != tt.valid {
			t.Errorf("Tier(%q).IsValid() = %v, want %v", tt.tier, got, tt.valid)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("Status(%q).IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestJobSpec_EnhancedPrompt(t *testing.T) {
	tests := []struct {
		name string
		spec JobSpec
		want string
	}{
		{"plain", JobSpec{Prompt: "a person speaking"}, "a person speaking"},
		{"emotion", JobSpec{Prompt: "a person speaking", Emotion: "happy"}, "a person speaking. happy emotion"},
		{"style", JobSpec{Prompt: "a person speaking", Style: "podcast"}, "a person speaking. podcast style"},
		{
			"both",
			JobSpec{Prompt: "a person speaking", Emotion: "calm", Style: "interview"},
			"a person speaking. calm emotion. interview style",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.EnhancedPrompt(); got != tt.want {
				t.Errorf("EnhancedPrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}
