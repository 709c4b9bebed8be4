// Package runpod provides an HTTP client for RunPod serverless video
// generation endpoints.
package runpod

// Status represents the status of a RunPod job.
type Status string

// RunPod job statuses aligned with the RunPod API.
const (
	StatusInQueue    Status = "IN_QUEUE"
	StatusInProgress Status = "IN_PROGRESS"
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusTimedOut   Status = "TIMED_OUT"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// SubmitInput contains the generation parameters for a RunPod job.
type SubmitInput struct {
	Prompt     string // Scene description
	Steps      int    // Denoising steps (default 50)
	Frames     int    // Number of frames (default 129, ~5.4s at 24fps)
	Resolution string // Video resolution (540p or 720p)
	Seed       int64  // Random seed for reproducibility
}

// DefaultSubmitInput returns the default generation parameters.
func DefaultSubmitInput() SubmitInput {
	return SubmitInput{
		Steps:      50,
		Frames:     129,
		Resolution: "720p",
		Seed:       42,
	}
}

// runRequest represents the request body for RunPod's /run endpoint.
// The shape matches what the serverless handler expects.
type runRequest struct {
	Input runInput `json:"input"`
}

// runInput represents the input field in a RunPod run request.
type runInput struct {
	ReferenceImage string      `json:"reference_image"`
	WavBase64      string      `json:"wav_base64,omitempty"`
	Prompt         string      `json:"prompt"`
	Settings       runSettings `json:"settings"`
}

// runSettings represents the nested generation settings.
type runSettings struct {
	NumInferenceSteps int    `json:"num_inference_steps"`
	NumFrames         int    `json:"num_frames"`
	Resolution        string `json:"resolution"`
	Seed              int64  `json:"seed"`
}

// runResponse represents the response from RunPod's /run endpoint.
type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusResponse represents the response from RunPod's /status endpoint.
type statusResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output statusOutput `json:"output,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// statusOutput represents the output field in a terminal status response.
// The serverless handler reports its own failures inside a COMPLETED
// envelope via the nested status field.
type statusOutput struct {
	Status   string  `json:"status,omitempty"`
	Video    string  `json:"video,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// cancelResponse represents the response from RunPod's /cancel endpoint.
type cancelResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PollResult contains the result of polling a job's status.
type PollResult struct {
	Status      Status
	VideoBase64 string  // Base64-encoded video data (only set when Status is StatusCompleted)
	Duration    float64 // Generated video duration in seconds, when reported
	Error       string  // Error message (only set when Status is StatusFailed)
}
