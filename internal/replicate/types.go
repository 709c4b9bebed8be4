// Package replicate provides an HTTP client for the Replicate predictions
// API, which hosts pre-trained talking-head models.
package replicate

// Status represents the status of a Replicate prediction.
type Status string

// Replicate prediction statuses aligned with the Replicate API.
const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled" // Replicate uses the American spelling
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Model identifies a hosted talking-head model.
type Model string

// Models available for lip-sync generation.
const (
	ModelSadTalker      Model = "sadtalker"
	ModelWav2Lip        Model = "wav2lip"
	ModelVideoRetalking Model = "video-retalking"
)

// DefaultModel is used when no model is requested.
const DefaultModel = ModelSadTalker

// modelVersions maps a model name to its pinned Replicate version.
var modelVersions = map[Model]string{
	ModelSadTalker:      "cjwbw/sadtalker:3aa3dac9353cc4d6bd62a8f95957bd844003b401ca4e4a9b33baa574c549d376",
	ModelWav2Lip:        "devxpy/wav2lip:8d65e3f4f4298520e079198b493c25adfc43c058ffec924f2aaae99a16f1f3bf",
	ModelVideoRetalking: "chenxwh/video-retalking:db5a650c807b007dc5f9e5abe27c53e1b62880d1f94d218d27ce7fa802711d67",
}

// Version returns the pinned version for the model, falling back to the
// default model when unknown.
func (m Model) Version() string {
	if v, ok := modelVersions[m]; ok {
		return v
	}
	return modelVersions[DefaultModel]
}

// predictionRequest represents the request body for POST /predictions.
type predictionRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

// predictionResponse represents a prediction resource. Output is left as raw
// JSON because its shape varies by model: a plain URL string, a list of URLs,
// or an object with video/output keys.
type predictionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PollResult contains the result of polling a prediction's status.
type PollResult struct {
	Status    Status
	OutputURL string // URL to download the output video (only set when succeeded)
	Error     string // Error message (only set when failed)
}
