package video

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses a map with RWMutex for thread-safe access.
// Suitable for development and testing; use the SQLite store in production.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryRepository creates a new in-memory record repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*Record),
	}
}

// Save persists a record to the in-memory storage.
// Creates a clone to avoid external mutations.
func (r *MemoryRepository) Save(_ context.Context, rec *Record) error {
	c := rec.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[c.ID]; ok &&
		existing.Status.IsTerminal() && existing.Status != c.Status {
		return ErrTerminalConflict
	}
	r.records[c.ID] = c
	return nil
}

// FindByID retrieves a record by its ID.
// Returns a clone to prevent external mutations.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns all records in the repository.
func (r *MemoryRepository) List(_ context.Context) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		result = append(result, rec.Clone())
	}
	return result, nil
}

// Delete removes a record from storage.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return ErrNotFound
	}
	delete(r.records, id)
	return nil
}

// StaleProcessing returns processing records whose run started before the
// cutoff.
func (r *MemoryRepository) StaleProcessing(_ context.Context, cutoff time.Time) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Record
	for _, rec := range r.records {
		if rec.Status == StatusProcessing && !rec.StartedAt.IsZero() && rec.StartedAt.Before(cutoff) {
			result = append(result, rec.Clone())
		}
	}
	return result, nil
}
