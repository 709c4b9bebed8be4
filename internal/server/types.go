// Package server provides the HTTP API for the avatar video broker.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// CreateVideoRequest is the HTTP request body for creating a generation request.
type CreateVideoRequest struct {
	// UserID identifies the requesting user.
	UserID string `json:"user_id" validate:"required,max=128"`
	// ImageBase64 is the base64-encoded reference image.
	ImageBase64 string `json:"image_base64" validate:"required,base64"`
	// AudioBase64 is the base64-encoded speech audio. Optional; when absent,
	// Text must be set and speech is synthesized.
	AudioBase64 string `json:"audio_base64,omitempty" validate:"omitempty,base64"`
	// Text is the text to speak when no audio is provided.
	Text string `json:"text,omitempty" validate:"required_without=AudioBase64,max=5000"`
	// Prompt is the scene description.
	Prompt string `json:"prompt,omitempty" validate:"max=2000"`
	// Emotion is an optional emotion tag.
	Emotion string `json:"emotion,omitempty" validate:"omitempty,oneof=happy sad neutral excited calm"`
	// Style is an optional style tag.
	Style string `json:"style,omitempty" validate:"omitempty,oneof=podcast interview testimonial presentation"`
	// Tier selects the backend preference order.
	Tier string `json:"tier,omitempty" validate:"omitempty,oneof=free standard premium"`
	// Settings is the free-form generation settings bag
	// (num_inference_steps, num_frames, resolution, seed...).
	Settings map[string]any `json:"settings,omitempty"`
}

// CreateVideoResponse is the HTTP response after accepting a request.
type CreateVideoResponse struct {
	// ID is the unique identifier for the created record.
	ID string `json:"id"`
	// Status is the initial lifecycle state.
	Status string `json:"status"`
}

// VideoResponse is the HTTP response for getting record details.
type VideoResponse struct {
	ID                string         `json:"id"`
	UserID            string         `json:"user_id"`
	Status            string         `json:"status"`
	Tier              string         `json:"tier"`
	Prompt            string         `json:"prompt,omitempty"`
	Emotion           string         `json:"emotion,omitempty"`
	Style             string         `json:"style,omitempty"`
	OutputVideoURL    string         `json:"output_video_url,omitempty"`
	Duration          float64        `json:"duration,omitempty"`
	Error             string         `json:"error,omitempty"`
	Settings          map[string]any `json:"settings,omitempty"`
	CreatedAt         string         `json:"created_at"`
	StartedAt         string         `json:"started_at,omitempty"`
	CompletedAt       string         `json:"completed_at,omitempty"`
	ProcessingSeconds float64        `json:"processing_seconds,omitempty"`
}

// ListVideosResponse is the HTTP response for listing records.
type ListVideosResponse struct {
	Videos []VideoResponse `json:"videos"`
	Count  int             `json:"count"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Backends lists the configured backend names.
	Backends []string `json:"backends"`
}
