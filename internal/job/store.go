package job

import (
	"context"
	"time"
)

// Store is the single source of truth for job status. Implementations make
// Create, Get and Complete atomic with respect to each other.
type Store interface {
	// Create allocates a fresh id and records the objective as processing.
	Create(ctx context.Context, objective string) (*Job, error)
	// Get returns a copy of the job or ErrJobNotFound.
	Get(ctx context.Context, id string) (*Job, error)
	// Complete moves a processing job to completed exactly once.
	Complete(ctx context.Context, id string, outcome Outcome, message string) error
	Stats(ctx context.Context) (Stats, error)
	// Sweep evicts jobs completed before the cutoff and reports how many.
	Sweep(ctx context.Context, completedBefore time.Time) (int, error)
	Close() error
}
