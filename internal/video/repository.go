package video

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record cannot be found by ID.
var ErrNotFound = errors.New("video: record not found")

// ErrTerminalConflict is returned by Save when the stored record is already
// terminal and the write would change its status. Terminal states are
// absorbing in the store, not just on a single in-memory instance: a run
// holding a stale clone cannot overwrite a cancellation, and vice versa.
var ErrTerminalConflict = errors.New("video: stored record is already in a terminal state")

// Repository defines the interface for record persistence. It acts as a
// port in the hexagonal architecture pattern.
type Repository interface {
	// Save persists a record. If the record already exists, it is updated.
	// A write that would change the status of a stored terminal record is
	// rejected with ErrTerminalConflict.
	Save(ctx context.Context, rec *Record) error

	// FindByID retrieves a record by its unique identifier.
	// Returns ErrNotFound if the record does not exist.
	FindByID(ctx context.Context, id string) (*Record, error)

	// List returns all records.
	List(ctx context.Context) ([]*Record, error)

	// Delete removes a record from storage.
	// Returns ErrNotFound if the record does not exist.
	Delete(ctx context.Context, id string) error

	// StaleProcessing returns records still in processing whose run started
	// before the cutoff. Used by the reconciler to fail crashed runs.
	StaleProcessing(ctx context.Context, cutoff time.Time) ([]*Record, error)
}
