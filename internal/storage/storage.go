// Package storage provides the artifact storage port for the broker and
// implementations for local disk and S3. The orchestrator downloads input
// artifacts and uploads the output video without knowing which backend holds
// them.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Storage defines the interface for artifact storage.
type Storage interface {
	// Upload stores data under key and returns the public URL.
	Upload(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)

	// Download reads the object stored under key.
	// Returns ErrNotFound if the key does not exist.
	Download(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object stored under key. Returns false when the key
	// did not exist; that is not an error.
	Delete(ctx context.Context, key string) (bool, error)

	// KeyFromURL maps a URL produced by Upload back to its storage key.
	// Returns false when the URL does not belong to this store.
	KeyFromURL(url string) (string, bool)
}
