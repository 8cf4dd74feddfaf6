package job

import (
	"context"
)

// Handler processes one job id taken from a queue.
type Handler func(ctx context.Context, jobID string) error

// Producer enqueues job ids. Publish must not wait for execution.
type Producer interface {
	Publish(ctx context.Context, jobID string) error
	Close() error
}

// Consumer feeds job ids to workerCount loops. Each loop hands one id to the
// handler and waits for it to return before taking the next.
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue is both ends of the work queue.
type Queue interface {
	Producer
	Consumer
}

// Lengther is implemented by queues that can report their backlog.
type Lengther interface {
	Len() int
}
