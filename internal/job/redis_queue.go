package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "BrowserUse-Gateway/internal/errors"
	"BrowserUse-Gateway/pkg/logger"
)

// RedisQueueConfig describes the Redis list backing the queue.
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue is a FIFO on a Redis list: LPUSH to publish, BRPOP to consume.
// The list must be dedicated to one gateway process, because job records
// live in that process's store.
type RedisQueue struct {
	client     *redis.Client
	queue      string
	wait       time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
}

const (
	defaultRedisRetryDelay = time.Second
	maxRedisRetryDelay     = 30 * time.Second
)

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "connect to redis")
	}
	return newRedisQueue(client, cfg), nil
}

func newRedisQueue(client *redis.Client, cfg RedisQueueConfig) *RedisQueue {
	queue := cfg.Queue
	if queue == "" {
		queue = "browseruse:jobs"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{
		client:     client,
		queue:      queue,
		wait:       wait,
		retryDelay: defaultRedisRetryDelay,
		logger:     logger.Named("redis_queue"),
	}
}

// Publish pushes the id onto the head of the list.
func (q *RedisQueue) Publish(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.queue, jobID).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "redis publish")
	}
	return nil
}

// Len reports the backlog, or 0 when Redis cannot be reached.
func (q *RedisQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := q.client.LLen(ctx, q.queue).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// Consume pops ids from the tail of the list with BRPOP. Errors talking to
// Redis are logged and retried with a capped backoff; Consume returns when ctx
// ends or the client is closed.
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			q.consumeLoop(ctx, worker, handler)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

func (q *RedisQueue) consumeLoop(ctx context.Context, worker int, handler Handler) {
	delay := q.retryDelay
	for {
		if ctx.Err() != nil {
			return
		}
		values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				continue
			case ctx.Err() != nil, errors.Is(err, redis.ErrClosed):
				return
			}
			q.logger.Warn("redis consume failed, retrying",
				slog.Int("worker", worker),
				slog.Duration("retry_in", delay),
				slog.Any("error", err),
			)
			if !pause(ctx, delay) {
				return
			}
			delay = min(delay*2, maxRedisRetryDelay)
			continue
		}
		delay = q.retryDelay
		if len(values) != 2 {
			continue
		}
		jobID := values[1]
		if handlerErr := handler(ctx, jobID); handlerErr != nil && xerrors.RetryableError(handlerErr) {
			_ = q.client.RPush(ctx, q.queue, jobID).Err()
		}
	}
}

// pause waits for d and reports false when ctx ended first.
func pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close closes the Redis client.
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

var (
	_ Queue    = (*RedisQueue)(nil)
	_ Lengther = (*RedisQueue)(nil)
)
