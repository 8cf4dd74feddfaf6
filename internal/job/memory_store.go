package job

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "BrowserUse-Gateway/internal/errors"
)

// maxIDAttempts bounds how often Create redraws an id that is already taken.
const maxIDAttempts = 8

// MemoryStore keeps jobs in a map guarded by one RWMutex. Records live for
// the lifetime of the process unless Sweep evicts them.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	newID func() string
	now   func() time.Time
}

// MemoryStoreOption customises a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithIDGenerator replaces the UUIDv4 generator.
func WithIDGenerator(gen func() string) MemoryStoreOption {
	return func(m *MemoryStore) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{
		jobs:  make(map[string]*Job),
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, objective string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := m.newID()
		if id == "" {
			continue
		}
		if _, taken := m.jobs[id]; taken {
			continue
		}
		record := &Job{
			ID:        id,
			Objective: objective,
			Status:    StatusProcessing,
			CreatedAt: m.now().Unix(),
		}
		m.jobs[id] = record
		return record.clone(), nil
	}
	return nil, xerrors.New(xerrors.CodeUnknown, "could not allocate a unique job id")
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return record.clone(), nil
}

// Complete implements Store.
func (m *MemoryStore) Complete(_ context.Context, id string, outcome Outcome, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if record.Status == StatusCompleted {
		return ErrJobCompleted
	}
	outcome.Result = cloneRaw(outcome.Result)
	record.Status = StatusCompleted
	record.Outcome = &outcome
	record.Message = message
	record.CompletedAt = m.now().Unix()
	return nil
}

// Stats implements Store.
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{Total: len(m.jobs)}
	for _, record := range m.jobs {
		switch record.Status {
		case StatusProcessing:
			stats.Processing++
		case StatusCompleted:
			stats.Completed++
			if record.Outcome != nil && !record.Outcome.OK() {
				stats.Failed++
			}
		}
	}
	return stats, nil
}

// Sweep implements Store. Processing jobs are never evicted.
func (m *MemoryStore) Sweep(_ context.Context, completedBefore time.Time) (int, error) {
	cutoff := completedBefore.Unix()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, record := range m.jobs {
		if record.Status == StatusCompleted && record.CompletedAt < cutoff {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
