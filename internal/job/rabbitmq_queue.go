package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "BrowserUse-Gateway/internal/errors"
	"BrowserUse-Gateway/pkg/logger"
)

// RabbitMQConfig describes the RabbitMQ queue.
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Durable    bool
	AutoDelete bool
}

const (
	rabbitReconnectAttempts = 5
	rabbitReconnectDelay    = time.Second
)

// RabbitMQQueue publishes job ids to a RabbitMQ queue and consumes them with
// manual acknowledgement. Like RedisQueue it serves a single gateway process.
type RabbitMQQueue struct {
	cfg            RabbitMQConfig
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// NewRabbitMQQueue dials the broker and declares the queue.
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "rabbitmq url is empty")
	}
	if cfg.Queue == "" {
		cfg.Queue = "browseruse.jobs"
	}
	q := &RabbitMQQueue{
		cfg:            cfg,
		reconnectDelay: rabbitReconnectDelay,
		logger:         logger.Named("rabbitmq_queue"),
	}
	conn, ch, err := q.dial()
	if err != nil {
		return nil, err
	}
	q.conn, q.ch = conn, ch
	return q, nil
}

func (q *RabbitMQQueue) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(q.cfg.URL)
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "connect to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "open rabbitmq channel")
	}
	if _, err := ch.QueueDeclare(q.cfg.Queue, q.cfg.Durable, q.cfg.AutoDelete, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "declare rabbitmq queue")
	}
	return conn, ch, nil
}

// reconnect replaces a dead connection, retrying with a doubling delay.
func (q *RabbitMQQueue) reconnect(ctx context.Context) error {
	delay := q.reconnectDelay
	var lastErr error
	for attempt := 1; attempt <= rabbitReconnectAttempts; attempt++ {
		conn, ch, err := q.dial()
		if err == nil {
			q.mu.Lock()
			if q.closed {
				q.mu.Unlock()
				_ = conn.Close()
				return ErrQueueClosed
			}
			old := q.conn
			q.conn, q.ch = conn, ch
			q.mu.Unlock()
			if old != nil {
				_ = old.Close()
			}
			q.logger.Info("rabbitmq reconnected", slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		q.logger.Warn("rabbitmq reconnect failed",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.Any("error", err),
		)
		if !pause(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
	}
	return xerrors.Wrap(xerrors.CodeQueueFailure, lastErr, "rabbitmq unavailable")
}

// channel returns the live channel, or nil when the broker link is down.
func (q *RabbitMQQueue) channel() *amqp.Channel {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.ch == nil || q.ch.IsClosed() {
		return nil
	}
	return q.ch
}

// invalidate drops the current channel so the next subscribe reconnects.
func (q *RabbitMQQueue) invalidate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		_ = q.ch.Close()
		q.ch = nil
	}
}

// Publish sends the id to the default exchange.
func (q *RabbitMQQueue) Publish(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.ch == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "rabbitmq channel unavailable")
	}
	err := q.ch.PublishWithContext(ctx, "", q.cfg.Queue, false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte(jobID),
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "rabbitmq publish")
	}
	return nil
}

// Len reports the number of ready messages.
func (q *RabbitMQQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch == nil {
		return 0
	}
	state, err := q.ch.QueueDeclarePassive(q.cfg.Queue, q.cfg.Durable, q.cfg.AutoDelete, false, false, nil)
	if err != nil {
		return 0
	}
	return state.Messages
}

// Consume limits unacknowledged deliveries to workerCount so the broker never
// hands a worker a second job before the first is done. When the broker drops
// the deliveries Consume reconnects and subscribes again; it returns an error
// once reconnecting gives up.
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	for {
		msgs, err := q.subscribe(ctx, workerCount)
		if err != nil {
			return err
		}
		err = serveDeliveries(ctx, msgs, workerCount, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		q.logger.Warn("rabbitmq deliveries closed, resubscribing", slog.Any("error", err))
		q.invalidate()
		if !pause(ctx, q.reconnectDelay) {
			return ctx.Err()
		}
	}
}

func (q *RabbitMQQueue) subscribe(ctx context.Context, workerCount int) (<-chan amqp.Delivery, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}
	ch := q.channel()
	if ch == nil {
		if err := q.reconnect(ctx); err != nil {
			return nil, err
		}
		if ch = q.channel(); ch == nil {
			return nil, xerrors.New(xerrors.CodeQueueFailure, "rabbitmq channel closed after reconnect")
		}
	}
	if err := ch.Qos(workerCount, 0, false); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "set rabbitmq qos")
	}
	msgs, err := ch.Consume(q.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "subscribe to rabbitmq queue")
	}
	return msgs, nil
}

// serveDeliveries runs workerCount loops over msgs. It returns ctx.Err() when
// ctx ends, or a queue failure once msgs is closed and every loop has stopped.
func serveDeliveries(ctx context.Context, msgs <-chan amqp.Delivery, workerCount int, handler Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					if err := handler(ctx, string(msg.Body)); err != nil && xerrors.RetryableError(err) {
						_ = msg.Nack(false, true)
						continue
					}
					_ = msg.Ack(false)
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		<-done
		return ctx.Err()
	case <-done:
		if err := ctx.Err(); err != nil {
			return err
		}
		return xerrors.New(xerrors.CodeQueueFailure, "rabbitmq deliveries closed")
	}
}

// Close closes the channel and the connection.
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.ch != nil {
		_ = q.ch.Close()
		q.ch = nil
	}
	if q.conn != nil {
		err := q.conn.Close()
		q.conn = nil
		return err
	}
	return nil
}

func (q *RabbitMQQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

var (
	_ Queue    = (*RabbitMQQueue)(nil)
	_ Lengther = (*RabbitMQQueue)(nil)
)
