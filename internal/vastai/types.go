// Package vastai provides a client for the Vast.ai GPU marketplace. Unlike
// the serverless providers, running work here means renting an instance:
// search priced offers, create an instance from the cheapest acceptable one,
// wait for it to boot, run the job, and always destroy the instance.
package vastai

// Offer is a rentable GPU listing on the marketplace.
type Offer struct {
	ID          int64   `json:"id"`
	GPUName     string  `json:"gpu_name"`
	NumGPUs     int     `json:"num_gpus"`
	GPURAMMb    int     `json:"gpu_ram"`
	PricePerHr  float64 `json:"dph_total"`
	CUDAVersion float64 `json:"cuda_vers"`
	InetDown    float64 `json:"inet_down"`
	Reliability float64 `json:"reliability2"`
	Verified    bool    `json:"verified"`
}

// OfferQuery holds the thresholds for an offer search.
type OfferQuery struct {
	GPUName       string  // GPU model (A100_PCIE, A100_SXM4, RTX_4090); empty matches any
	MinGPURAMGb   int     // Minimum GPU RAM in GB
	NumGPUs       int     // Number of GPUs needed
	MaxPricePerHr float64 // Maximum price per hour in USD
}

// DefaultOfferQuery returns the search thresholds used when the caller does
// not override them.
func DefaultOfferQuery() OfferQuery {
	return OfferQuery{
		MinGPURAMGb:   24,
		NumGPUs:       1,
		MaxPricePerHr: 3.0,
	}
}

// offersResponse represents the response from the bundles search endpoint.
type offersResponse struct {
	Offers []Offer `json:"offers"`
}

// createInstanceRequest represents the body for renting an offer.
type createInstanceRequest struct {
	ClientID string `json:"client_id"`
	Image    string `json:"image"`
	Disk     int    `json:"disk"`
	RunType  string `json:"runtype"`
	OnStart  string `json:"onstart,omitempty"`
}

// createInstanceResponse represents the response from renting an offer.
// The instance ID arrives as new_contract.
type createInstanceResponse struct {
	Success     bool  `json:"success"`
	NewContract int64 `json:"new_contract"`
}

// Instance represents a rented instance's state.
type Instance struct {
	ID           int64  `json:"id"`
	ActualStatus string `json:"actual_status"`
	SSHHost      string `json:"ssh_host"`
	SSHPort      int    `json:"ssh_port"`
	GPUName      string `json:"gpu_name"`
}

// Running reports whether the instance has booted and is reachable.
func (i Instance) Running() bool {
	return i.ActualStatus == "running" && i.SSHHost != "" && i.SSHPort != 0
}
