package vastai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// Static errors for Vast.ai client operations.
var (
	// ErrAPIKeyRequired is returned when an operation needs credentials that
	// are not present.
	ErrAPIKeyRequired = errors.New("vastai: API key is required")
	// ErrNoOffers is returned when no marketplace offer satisfies the query.
	ErrNoOffers = errors.New("vastai: no suitable GPU offers found")
	// ErrNoInstanceID is returned when renting an offer yields no contract ID.
	ErrNoInstanceID = errors.New("vastai: create instance returned no contract")
	// ErrInstanceNotReady is returned when an instance fails to boot within
	// the readiness budget.
	ErrInstanceNotReady = errors.New("vastai: instance failed to become ready")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("vastai: server error")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("vastai: request failed")
)

// defaultDockerImage is the image instances boot with.
const defaultDockerImage = "pytorch/pytorch:2.1.0-cuda12.1-cudnn8-runtime"

// gpuPreference is the order in which GPU models are tried when searching.
var gpuPreference = []string{"A100_PCIE", "A100_SXM4", "RTX_4090"}

// Client is the HTTP client for the Vast.ai marketplace API.
type Client struct {
	apiKey      string
	baseURL     string
	dockerImage string
	httpClient  *http.Client

	// readyTimeout bounds the instance boot wait; readyInterval paces it.
	readyTimeout  time.Duration
	readyInterval time.Duration

	// sleep is injectable so readiness waits are testable without wall-clock
	// delay.
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the Vast.ai API.
func WithBaseURL(url string) ClientOption {
	return func(cl *Client) {
		cl.baseURL = url
	}
}

// WithDockerImage sets the image instances boot with.
func WithDockerImage(image string) ClientOption {
	return func(cl *Client) {
		cl.dockerImage = image
	}
}

// WithReadyTimeout sets the instance readiness budget.
func WithReadyTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.readyTimeout = d
	}
}

// WithReadyInterval sets the pacing of readiness checks.
func WithReadyInterval(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.readyInterval = d
	}
}

// NewClient creates a new Vast.ai client. The API key may be empty, in which
// case the client reports itself as unconfigured and refuses all operations.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:        apiKey,
		baseURL:       "https://console.vast.ai/api/v0",
		dockerImage:   defaultDockerImage,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		readyTimeout:  5 * time.Minute,
		readyInterval: 10 * time.Second,
		sleep:         sleepCtx,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Configured reports whether the API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// SearchOffers queries the marketplace for rentable offers matching the
// thresholds: verified hosts only, CUDA 12+, at least 100 Mbps down, 90%+
// reliability. Results are sorted by price, cheapest first, capped at ten.
func (c *Client) SearchOffers(ctx context.Context, q OfferQuery) ([]Offer, error) {
	if !c.Configured() {
		return nil, ErrAPIKeyRequired
	}

	query := map[string]map[string]any{
		"verified":     {"eq": true},
		"rentable":     {"eq": true},
		"num_gpus":     {"gte": q.NumGPUs},
		"gpu_ram":      {"gte": q.MinGPURAMGb * 1024}, // API expects MB
		"dph_total":    {"lte": q.MaxPricePerHr},
		"cuda_vers":    {"gte": 12.0},
		"inet_down":    {"gte": 100},
		"reliability2": {"gte": 0.9},
	}
	if q.GPUName != "" {
		query["gpu_name"] = map[string]any{"eq": q.GPUName}
	}

	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("vastai: marshal offer query: %w", err)
	}

	var resp offersResponse
	endpoint := "bundles?q=" + url.QueryEscape(string(queryJSON))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	offers := resp.Offers
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].PricePerHr < offers[j].PricePerHr
	})
	if len(offers) > 10 {
		offers = offers[:10]
	}

	return offers, nil
}

// FindCheapestOffer walks the GPU preference list and returns the cheapest
// acceptable offer. Returns ErrNoOffers when nothing matches.
func (c *Client) FindCheapestOffer(ctx context.Context) (Offer, error) {
	q := DefaultOfferQuery()
	for _, gpu := range gpuPreference {
		q.GPUName = gpu
		offers, err := c.SearchOffers(ctx, q)
		if err != nil {
			continue
		}
		if len(offers) > 0 {
			return offers[0], nil
		}
	}
	return Offer{}, ErrNoOffers
}

// CreateInstance rents the offer and returns the new instance ID.
func (c *Client) CreateInstance(ctx context.Context, offerID int64, onStart string) (int64, error) {
	if !c.Configured() {
		return 0, ErrAPIKeyRequired
	}

	reqBody := createInstanceRequest{
		ClientID: "me",
		Image:    c.dockerImage,
		Disk:     100, // Model weights need headroom
		RunType:  "ssh",
		OnStart:  onStart,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("vastai: marshal create request: %w", err)
	}

	var resp createInstanceResponse
	endpoint := fmt.Sprintf("asks/%d/", offerID)
	if err := c.doRequest(ctx, http.MethodPut, endpoint, bodyBytes, &resp); err != nil {
		return 0, err
	}

	if resp.NewContract == 0 {
		return 0, ErrNoInstanceID
	}

	return resp.NewContract, nil
}

// GetInstance fetches the current state of an instance.
func (c *Client) GetInstance(ctx context.Context, instanceID int64) (Instance, error) {
	if !c.Configured() {
		return Instance{}, ErrAPIKeyRequired
	}

	var inst Instance
	endpoint := fmt.Sprintf("instances/%d/", instanceID)
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &inst); err != nil {
		return Instance{}, err
	}
	return inst, nil
}

// DestroyInstance terminates an instance. Returns false when the API call
// fails; callers treat destruction as best-effort but must always attempt it.
func (c *Client) DestroyInstance(ctx context.Context, instanceID int64) bool {
	if !c.Configured() {
		return false
	}

	endpoint := fmt.Sprintf("instances/%d/", instanceID)
	if err := c.doRequest(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return false
	}
	return true
}

// WaitInstanceReady polls the instance until it is running and reachable or
// the readiness budget elapses.
func (c *Client) WaitInstanceReady(ctx context.Context, instanceID int64) (Instance, error) {
	deadline := time.Now().Add(c.readyTimeout)

	for time.Now().Before(deadline) {
		inst, err := c.GetInstance(ctx, instanceID)
		if err == nil && inst.Running() {
			return inst, nil
		}

		if err := c.sleep(ctx, c.readyInterval); err != nil {
			return Instance{}, fmt.Errorf("vastai: readiness wait cancelled: %w", err)
		}
	}

	return Instance{}, ErrInstanceNotReady
}

// doRequest performs a single HTTP request against the marketplace API.
// Vast.ai authenticates via an api_key query parameter rather than a header.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	sep := "?"
	if bytes.ContainsRune([]byte(endpoint), '?') {
		sep = "&"
	}
	reqURL := fmt.Sprintf("%s/%s%sapi_key=%s", c.baseURL, endpoint, sep, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("vastai: create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vastai: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("vastai: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("vastai: unmarshal response: %w", err)
		}
	}

	return nil
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
