package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// LocalFilesDir, when set, serves stored artifacts under /files/ from
	// this directory. Left empty when S3 storage is used.
	LocalFilesDir string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /api/v1/videos", h.CreateVideo)
	mux.HandleFunc("GET /api/v1/videos", h.ListVideos)
	mux.HandleFunc("GET /api/v1/videos/{id}", h.GetVideo)
	mux.HandleFunc("GET /api/v1/videos/{id}/download", h.DownloadVideo)
	mux.HandleFunc("POST /api/v1/videos/{id}/cancel", h.CancelVideo)
	mux.HandleFunc("DELETE /api/v1/videos/{id}", h.DeleteVideo)

	if cfg.LocalFilesDir != "" {
		mux.Handle("GET /files/", http.StripPrefix("/files/", http.FileServer(http.Dir(cfg.LocalFilesDir))))
	}

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
