package job

import (
	"context"
	"log/slog"
	"strings"
	"time"

	xerrors "BrowserUse-Gateway/internal/errors"
	"BrowserUse-Gateway/pkg/logger"
)

// Service is the submission and query side of the gateway.
type Service struct {
	store    Store
	producer Producer
	recorder Recorder
	logger   *slog.Logger
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithSubmissionRecorder counts accepted submissions.
func WithSubmissionRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService wires a store to the queue producer.
func NewService(store Store, producer Producer, opts ...ServiceOption) *Service {
	s := &Service{store: store, producer: producer, recorder: noopRecorder{}, logger: logger.Named("job_service")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit records a new job and hands its id to the workers. The job is
// visible as processing before Submit returns. A blank objective is rejected
// without touching the store.
//
// When the queue refuses the id the job is completed as failed, so no record
// is left processing forever, and a CodeJobPublish error is returned.
func (s *Service) Submit(ctx context.Context, objective string) (*Job, error) {
	if strings.TrimSpace(objective) == "" {
		return nil, xerrors.New(CodeJobValidation, "")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "job service not initialized")
	}

	record, err := s.store.Create(ctx, objective)
	if err != nil {
		return nil, err
	}
	if err := s.producer.Publish(ctx, record.ID); err != nil {
		s.logger.Error("enqueue job failed", slog.Any("error", err), slog.String("job_id", record.ID))
		wrapped := xerrors.Wrap(CodeJobPublish, err, "enqueue failed")
		if completeErr := s.store.Complete(ctx, record.ID, Failed("enqueue failed: "+err.Error()), "Objective failed: "+objective); completeErr != nil {
			s.logger.Error("mark unqueued job failed",
				slog.Any("error", completeErr),
				slog.String("job_id", record.ID),
			)
		}
		return nil, wrapped
	}
	s.recorder.JobSubmitted()
	logger.Audit().Info("job_submitted",
		slog.String("job_id", record.ID),
		slog.String("objective", objective),
	)
	return record, nil
}

// Get returns a snapshot of the job.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "job store not initialized")
	}
	return s.store.Get(ctx, id)
}

// Stats counts jobs per status.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "job store not initialized")
	}
	return s.store.Stats(ctx)
}

// Close releases the producer and the store.
func (s *Service) Close() error {
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			return err
		}
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// WaitUntilCompleted polls the job until it completes or ctx ends. On ctx
// expiry it returns the last snapshot together with ctx.Err().
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		record, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if record.Completed() {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return record, ctx.Err()
		case <-ticker.C:
		}
	}
}
