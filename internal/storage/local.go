package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage implements the Storage interface on local disk. Uploaded
// objects are addressable under the server's /files/ route, so URLs are
// built from a public base URL.
type LocalStorage struct {
	baseDir       string
	publicBaseURL string
}

// NewLocalStorage creates a new LocalStorage instance rooted at baseDir.
// If baseDir is empty, a directory under os.TempDir() is used. The directory
// is created if it doesn't exist.
func NewLocalStorage(baseDir, publicBaseURL string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "avatar-broker")
	}

	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &LocalStorage{
		baseDir:       baseDir,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

// BaseDir returns the storage root, used by the file-serving route.
func (s *LocalStorage) BaseDir() string {
	return s.baseDir
}

// Upload stores data under key and returns its public URL.
func (s *LocalStorage) Upload(ctx context.Context, key, _ string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path, err := s.safePath(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 - path is validated against the base dir
	if err != nil {
		return "", fmt.Errorf("create object file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write object file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close object file: %w", err)
	}

	return s.publicBaseURL + "/files/" + key, nil
}

// Download reads the object stored under key.
func (s *LocalStorage) Download(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path, err := s.safePath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is validated against the base dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read object file: %w", err)
	}

	return data, nil
}

// Delete removes the object stored under key.
func (s *LocalStorage) Delete(_ context.Context, key string) (bool, error) {
	path, err := s.safePath(key)
	if err != nil {
		return false, err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("remove object file: %w", err)
	}
	return true, nil
}

// KeyFromURL strips the public prefix off a URL produced by Upload.
func (s *LocalStorage) KeyFromURL(url string) (string, bool) {
	prefix := s.publicBaseURL + "/files/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

// safePath resolves key under the base directory, rejecting traversal.
func (s *LocalStorage) safePath(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	path := filepath.Join(s.baseDir, clean)
	if !strings.HasPrefix(path, s.baseDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return path, nil
}
