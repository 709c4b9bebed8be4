package replicate

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

// Static errors for Replicate client operations.
var (
	// ErrPredictionIDRequired is returned when the prediction ID is not provided.
	ErrPredictionIDRequired = errors.New("replicate: prediction ID is required")
	// ErrNoPredictionID is returned when the create response contains no prediction ID.
	ErrNoPredictionID = errors.New("replicate: submit failed: no prediction ID returned")
	// ErrSubmitFailed is returned when the create operation fails.
	ErrSubmitFailed = errors.New("replicate: submit failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("replicate: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("replicate: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("replicate: request failed")
	// ErrUnexpectedOutput is returned when a succeeded prediction carries an
	// output shape no known model produces.
	ErrUnexpectedOutput = errors.New("replicate: unexpected output format")
)

// Client defines the interface for interacting with the Replicate API.
type Client interface {
	// Configured reports whether the client has an API token.
	Configured() bool

	// Submit creates a prediction and returns its ID.
	Submit(ctx context.Context, image, audio []byte, model Model) (predictionID string, err error)

	// Poll checks the status of a prediction and returns the result.
	Poll(ctx context.Context, predictionID string) (PollResult, error)

	// Cancel requests cancellation of an in-flight prediction.
	Cancel(ctx context.Context, predictionID string) error
}

// HTTPClient is the HTTP implementation of the Replicate Client interface.
type HTTPClient struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithToken sets the API token for authentication.
func WithToken(token string) ClientOption {
	return func(hc *HTTPClient) {
		hc.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the Replicate API.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = url
	}
}

// NewClient creates a new Replicate HTTP client. The token may be empty, in
// which case the client reports itself as unconfigured and refuses to submit.
func NewClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    "https://api.replicate.com/v1",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Configured reports whether the API token is present.
func (c *HTTPClient) Configured() bool {
	return c.token != ""
}

// Submit creates a prediction and returns its ID. Inputs are passed as
// base64 data URIs with MIME types sniffed from the leading bytes.
func (c *HTTPClient) Submit(ctx context.Context, image, audio []byte, model Model) (string, error) {
	imageURI := dataURI(sniffImageMIME(image), image)
	audioURI := dataURI(sniffAudioMIME(audio), audio)

	reqBody := predictionRequest{
		Version: model.Version(),
		Input:   modelInput(model, imageURI, audioURI),
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("replicate: marshal request: %w", err)
	}

	var resp predictionResponse
	if err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/predictions", bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.ID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
		}
		return "", ErrNoPredictionID
	}

	return resp.ID, nil
}

// Poll checks the status of a prediction and returns the result. It performs
// a single status request; pacing and retries belong to the caller.
func (c *HTTPClient) Poll(ctx context.Context, predictionID string) (PollResult, error) {
	if predictionID == "" {
		return PollResult{}, ErrPredictionIDRequired
	}

	url := fmt.Sprintf("%s/predictions/%s", c.baseURL, predictionID)

	var resp predictionResponse
	if err := c.doRequest(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return PollResult{}, err
	}

	var mapped Status
	switch resp.Status {
	case "starting":
		mapped = StatusStarting
	case "processing":
		mapped = StatusProcessing
	case "succeeded":
		mapped = StatusSucceeded
	case "failed":
		mapped = StatusFailed
	case "canceled":
		mapped = StatusCanceled
	default:
		mapped = Status(resp.Status)
	}

	result := PollResult{
		Status: mapped,
	}

	switch result.Status {
	case StatusSucceeded:
		url, err := extractOutputURL(resp.Output)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.OutputURL = url
		}
	case StatusFailed:
		result.Error = resp.Error
	}

	return result, nil
}

// Cancel requests cancellation of an in-flight prediction.
func (c *HTTPClient) Cancel(ctx context.Context, predictionID string) error {
	if predictionID == "" {
		return ErrPredictionIDRequired
	}

	url := fmt.Sprintf("%s/predictions/%s/cancel", c.baseURL, predictionID)
	return c.doRequest(ctx, http.MethodPost, url, nil, nil)
}

// extractOutputURL pulls the video URL out of the model-specific output
// shape: a plain string, a non-empty list, or an object keyed by video or
// output.
func extractOutputURL(output any) (string, error) {
	switch v := output.(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok && s != "" {
				return s, nil
			}
		}
	case map[string]any:
		for _, key := range []string{"video", "output"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %v", ErrUnexpectedOutput, output)
}

// modelInput builds the input payload for the given model. Field names vary
// per model.
func modelInput(model Model, imageURI, audioURI string) map[string]any {
	switch model {
	case ModelSadTalker:
		return map[string]any{
			"source_image": imageURI,
			"driven_audio": audioURI,
			"enhancer":     "gfpgan",
		}
	case ModelWav2Lip:
		return map[string]any{
			"face":  imageURI,
			"audio": audioURI,
		}
	case ModelVideoRetalking:
		return map[string]any{
			"face":        imageURI,
			"input_audio": audioURI,
		}
	default:
		return map[string]any{
			"source_image": imageURI,
			"driven_audio": audioURI,
		}
	}
}

// dataURI encodes data as a base64 data URI with the given MIME type.
func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// sniffImageMIME inspects leading magic bytes to pick an image MIME type.
func sniffImageMIME(data []byte) string {
	if bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) {
		return "image/png"
	}
	return "image/jpeg"
}

// sniffAudioMIME inspects leading magic bytes to pick an audio MIME type.
func sniffAudioMIME(data []byte) string {
	if bytes.HasPrefix(data, []byte("RIFF")) {
		return "audio/wav"
	}
	return "audio/mpeg"
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("replicate: create request: %w", err)
	}

	// Replicate uses Token auth rather than Bearer.
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("replicate: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("replicate: read response: %w", err)
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
			return fmt.Errorf("replicate: unmarshal response: %w", err)
		}
	}

	return nil
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
