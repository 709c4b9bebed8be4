// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// ErrNoBackendConfigured is returned when no generation backend has
// credentials. The broker cannot do useful work without at least one.
var ErrNoBackendConfigured = errors.New("config: at least one backend (RunPod, Replicate, Vast.ai) must be configured")

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port          int    `env:"PORT, default=8080" json:"port"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL, default=http://localhost:8080" json:"public_base_url"`

	// Backend credentials. All optional individually; at least one backend
	// must be configured.
	RunPodAPIKey      string `env:"RUNPOD_API_KEY" json:"-"`     // Masked in JSON
	RunPodEndpointID  string `env:"RUNPOD_ENDPOINT_ID" json:"runpod_endpoint_id,omitempty"`
	ReplicateAPIToken string `env:"REPLICATE_API_TOKEN" json:"-"` // Masked in JSON
	ReplicateModel    string `env:"REPLICATE_MODEL, default=sadtalker" json:"replicate_model"`
	VastAIAPIKey      string `env:"VASTAI_API_KEY" json:"-"` // Masked in JSON

	// TTS credentials (optional; text-only requests fall back to silent audio)
	OpenAIAPIKey     string `env:"OPENAI_API_KEY" json:"-"`     // Masked in JSON
	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY" json:"-"` // Masked in JSON

	// Storage settings
	DataDir      string `env:"DATA_DIR, default=/tmp/avatar-broker" json:"data_dir"`
	DatabasePath string `env:"DATABASE_PATH, default=/tmp/avatar-broker/broker.db" json:"database_path"`

	// Optional S3 settings; local disk is used when unset
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Polling bounds
	PollTimeoutSec      int `env:"POLL_TIMEOUT_SEC, default=300" json:"poll_timeout_sec"`
	PollIntervalSec     int `env:"POLL_INTERVAL_SEC, default=2" json:"poll_interval_sec"`
	PollErrorBackoffSec int `env:"POLL_ERROR_BACKOFF_SEC, default=5" json:"poll_error_backoff_sec"`

	// Dispatch settings
	WorkerCount int `env:"WORKER_COUNT, default=4" json:"worker_count"`
	QueueSize   int `env:"QUEUE_SIZE, default=64" json:"queue_size"`

	// Reconciler settings
	ReconcileIntervalSec int `env:"RECONCILE_INTERVAL_SEC, default=60" json:"reconcile_interval_sec"`
	StaleProcessingSec   int `env:"STALE_PROCESSING_SEC, default=900" json:"stale_processing_sec"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// RunPodEnabled returns true if RunPod credentials are provided.
func (c *Config) RunPodEnabled() bool {
	return c.RunPodAPIKey != "" && c.RunPodEndpointID != ""
}

// ReplicateEnabled returns true if a Replicate token is provided.
func (c *Config) ReplicateEnabled() bool {
	return c.ReplicateAPIToken != ""
}

// VastAIEnabled returns true if a Vast.ai key is provided.
func (c *Config) VastAIEnabled() bool {
	return c.VastAIAPIKey != ""
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// PollTimeout returns the overall polling budget.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSec) * time.Second
}

// PollInterval returns the pause between status checks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// PollErrorBackoff returns the pause after a failed status check.
func (c *Config) PollErrorBackoff() time.Duration {
	return time.Duration(c.PollErrorBackoffSec) * time.Second
}

// ReconcileInterval returns how often the reconciler sweeps.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSec) * time.Second
}

// StaleProcessingAge returns how long a record may sit in processing before
// the reconciler fails it.
func (c *Config) StaleProcessingAge() time.Duration {
	return time.Duration(c.StaleProcessingSec) * time.Second
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration can support at least one backend.
func (c *Config) Validate() error {
	if !c.RunPodEnabled() && !c.ReplicateEnabled() && !c.VastAIEnabled() {
		return ErrNoBackendConfigured
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, PublicBaseURL: %s, RunPod: %t, Replicate: %t, VastAI: %t, DataDir: %s, DatabasePath: %s, S3Bucket: %s, Workers: %d, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.PublicBaseURL,
		c.RunPodEnabled(),
		c.ReplicateEnabled(),
		c.VastAIEnabled(),
		c.DataDir,
		c.DatabasePath,
		c.S3Bucket,
		c.WorkerCount,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
