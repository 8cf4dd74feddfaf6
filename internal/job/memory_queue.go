package job

import (
	"context"
	"sync"

	xerrors "BrowserUse-Gateway/internal/errors"
)

// ErrQueueClosed is returned by Publish after Close.
var ErrQueueClosed = xerrors.New(xerrors.CodeQueueFailure, "queue closed", xerrors.WithRetryable(false))

// MemoryQueue is an unbounded in-process FIFO. Publish never blocks.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []string
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Publish appends the id to the tail of the queue.
func (q *MemoryQueue) Publish(_ context.Context, jobID string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, jobID)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Len returns the number of ids waiting for a worker.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Consume runs workerCount loops until ctx is cancelled or the queue is
// closed and drained.
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				if jobID, ok := q.pop(); ok {
					_ = handler(ctx, jobID)
					continue
				}
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					if q.Len() == 0 {
						return
					}
				case <-q.wake:
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
	case <-q.done:
	}
	wg.Wait()
	return ctx.Err()
}

// Close stops accepting new ids. Ids already queued are still delivered.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

func (q *MemoryQueue) pop() (string, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return "", false
	}
	jobID := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	remaining := len(q.items)
	q.mu.Unlock()

	// Pass the wake-up on so an idle worker picks up the rest.
	if remaining > 0 {
		q.signal()
	}
	return jobID, true
}

func (q *MemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

var (
	_ Queue    = (*MemoryQueue)(nil)
	_ Lengther = (*MemoryQueue)(nil)
)
