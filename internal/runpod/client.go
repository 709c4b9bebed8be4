package runpod

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Static errors for RunPod client operations.
var (
	// ErrEndpointIDRequired is returned when the endpoint ID is not provided.
	ErrEndpointIDRequired = errors.New("runpod: endpoint ID is required")
	// ErrJobIDRequired is returned when the job ID is not provided.
	ErrJobIDRequired = errors.New("runpod: job ID is required")
	// ErrNoJobIDReturned is returned when the submit response contains no job ID.
	ErrNoJobIDReturned = errors.New("runpod: submit failed: no job ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("runpod: submit failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("runpod: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("runpod: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("runpod: request failed")
)

// Client defines the interface for interacting with the RunPod API.
type Client interface {
	// Configured reports whether the client has credentials.
	Configured() bool

	// Submit sends a generation job to RunPod and returns the job ID.
	Submit(ctx context.Context, image, audio []byte, in SubmitInput) (jobID string, err error)

	// Poll checks the status of a job and returns the result.
	Poll(ctx context.Context, jobID string) (PollResult, error)

	// Cancel requests cancellation of an in-flight job.
	Cancel(ctx context.Context, jobID string) error
}

// HTTPClient is the HTTP implementation of the RunPod Client interface.
type HTTPClient struct {
	apiKey     string
	endpointID string
	baseURL    string
	httpClient *http.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the RunPod API.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = url
	}
}

// NewClient creates a new RunPod HTTP client. The endpoint ID must be
// provided; the API key may be empty, in which case the client reports
// itself as unconfigured and refuses to submit.
func NewClient(endpointID string, opts ...ClientOption) (*HTTPClient, error) {
	if endpointID == "" {
		return nil, ErrEndpointIDRequired
	}

	c := &HTTPClient{
		endpointID: endpointID,
		baseURL:    "https://api.runpod.ai/v2",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Configured reports whether both the API key and endpoint ID are present.
func (c *HTTPClient) Configured() bool {
	return c.apiKey != "" && c.endpointID != ""
}

// Submit sends a generation job to RunPod and returns the job ID.
func (c *HTTPClient) Submit(ctx context.Context, image, audio []byte, in SubmitInput) (string, error) {
	def := DefaultSubmitInput()
	if in.Steps <= 0 {
		in.Steps = def.Steps
	}
	if in.Frames <= 0 {
		in.Frames = def.Frames
	}
	if in.Resolution == "" {
		in.Resolution = def.Resolution
	}

	reqBody := runRequest{
		Input: runInput{
			ReferenceImage: base64.StdEncoding.EncodeToString(image),
			Prompt:         in.Prompt,
			Settings: runSettings{
				NumInferenceSteps: in.Steps,
				NumFrames:         in.Frames,
				Resolution:        in.Resolution,
				Seed:              in.Seed,
			},
		},
	}
	if len(audio) > 0 {
		reqBody.Input.WavBase64 = base64.StdEncoding.EncodeToString(audio)
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("runpod: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/run", c.baseURL, c.endpointID)

	var resp runResponse
	if err := c.doRequest(ctx, http.MethodPost, url, bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.ID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
		}
		return "", ErrNoJobIDReturned
	}

	return resp.ID, nil
}

// Poll checks the status of a job and returns the result. It performs a
// single status request; pacing and retries belong to the caller.
func (c *HTTPClient) Poll(ctx context.Context, jobID string) (PollResult, error) {
	if jobID == "" {
		return PollResult{}, ErrJobIDRequired
	}

	url := fmt.Sprintf("%s/%s/status/%s", c.baseURL, c.endpointID, jobID)

	var resp statusResponse
	if err := c.doRequest(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return PollResult{}, err
	}

	var mapped Status
	switch resp.Status {
	case "IN_QUEUE":
		mapped = StatusInQueue
	case "IN_PROGRESS":
		mapped = StatusInProgress
	case "RUNNING":
		mapped = StatusRunning
	case "COMPLETED":
		mapped = StatusCompleted
	case "FAILED":
		mapped = StatusFailed
	case "CANCELLED":
		mapped = StatusCancelled
	case "TIMED_OUT":
		mapped = StatusTimedOut
	default:
		mapped = Status(resp.Status)
	}

	result := PollResult{
		Status: mapped,
	}

	switch result.Status {
	case StatusCompleted:
		// The handler reports generation failures inside a COMPLETED
		// envelope; treat those as failures.
		if resp.Output.Status == "failed" {
			result.Status = StatusFailed
			result.Error = resp.Output.Error
			break
		}
		result.VideoBase64 = resp.Output.Video
		result.Duration = resp.Output.Duration
	case StatusFailed:
		result.Error = resp.Error
	}

	return result, nil
}

// Cancel requests cancellation of an in-flight job.
func (c *HTTPClient) Cancel(ctx context.Context, jobID string) error {
	if jobID == "" {
		return ErrJobIDRequired
	}

	url := fmt.Sprintf("%s/%s/cancel/%s", c.baseURL, c.endpointID, jobID)

	var resp cancelResponse
	if err := c.doRequest(ctx, http.MethodPost, url, nil, &resp); err != nil {
		return err
	}
	return nil
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("runpod: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("runpod: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("runpod: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("runpod: unmarshal response: %w", err)
		}
	}

	return nil
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
