package job

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"BrowserUse-Gateway/internal/automation"
	xerrors "BrowserUse-Gateway/internal/errors"
	"BrowserUse-Gateway/internal/observability/alerting"
	"BrowserUse-Gateway/pkg/logger"
)

// Recorder receives execution measurements.
type Recorder interface {
	JobSubmitted()
	ExecutionStarted()
	ExecutionFinished(kind OutcomeKind, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) JobSubmitted()                             {}
func (noopRecorder) ExecutionStarted()                         {}
func (noopRecorder) ExecutionFinished(OutcomeKind, time.Duration) {}

// Processor is the execution worker pool. It takes job ids from a Consumer,
// runs each objective on the engine and writes the outcome to the store.
//
// With one worker (the default) at most one execution runs at any instant.
// More workers are only safe with an engine that supports concurrent
// independent sessions.
type Processor struct {
	engine           automation.Engine
	engineConfig     automation.Config
	store            Store
	consumer         Consumer
	workerCount      int
	executionTimeout time.Duration
	logger           *slog.Logger
	alerter          alerting.Dispatcher
	recorder         Recorder
}

// ProcessorOption customises a Processor.
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the logger.
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithWorkerCount sets the number of worker loops. Each loop finishes one job
// before taking the next, so more than one loop requires an engine that can
// run independent sessions concurrently.
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithEngineConfig sets the configuration forwarded on every execution.
func WithEngineConfig(cfg automation.Config) ProcessorOption {
	return func(p *Processor) {
		p.engineConfig = cfg
	}
}

// WithExecutionTimeout bounds each execution. Zero leaves it unbounded.
func WithExecutionTimeout(timeout time.Duration) ProcessorOption {
	return func(p *Processor) {
		if timeout > 0 {
			p.executionTimeout = timeout
		}
	}
}

// WithAlertDispatcher sends an alert for every failed execution.
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithRecorder sets the execution metrics sink.
func WithRecorder(r Recorder) ProcessorOption {
	return func(p *Processor) {
		if r != nil {
			p.recorder = r
		}
	}
}

// NewProcessor builds a Processor.
func NewProcessor(engine automation.Engine, store Store, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		engine:      engine,
		store:       store,
		consumer:    consumer,
		workerCount: 1,
		recorder:    noopRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("processor")
	}
	return p
}

// WorkerCount returns the configured pool size.
func (p *Processor) WorkerCount() int {
	return p.workerCount
}

// Start runs the worker loops until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "processor has no consumer")
	}
	p.logger.Info("worker pool starting", slog.Int("workers", p.workerCount))
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.engine == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "processor not initialized")
	}
	record, err := p.store.Get(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) {
			p.logger.Debug("skipping unknown job", slog.String("job_id", jobID))
			return nil
		}
		p.logger.Error("load job failed", slog.Any("error", err), slog.String("job_id", jobID))
		return err
	}
	if record.Completed() {
		p.logger.Debug("skipping completed job", slog.String("job_id", jobID))
		return nil
	}

	p.recorder.ExecutionStarted()
	started := time.Now()
	outcome := p.execute(ctx, record)
	elapsed := time.Since(started)
	p.recorder.ExecutionFinished(outcome.Kind, elapsed)

	message := completionMessage(record.Objective, outcome)
	if err := p.store.Complete(ctx, record.ID, outcome, message); err != nil {
		if stdErrors.Is(err, ErrJobCompleted) {
			p.logger.Warn("job completed concurrently", slog.String("job_id", record.ID))
			return nil
		}
		p.logger.Error("record job outcome failed", slog.Any("error", err), slog.String("job_id", record.ID))
		return err
	}

	if outcome.OK() {
		logger.Audit().Info("job_completed",
			slog.String("job_id", record.ID),
			slog.String("objective", record.Objective),
			slog.Duration("elapsed", elapsed),
		)
		return nil
	}
	logger.Audit().Warn("job_failed",
		slog.String("job_id", record.ID),
		slog.String("objective", record.Objective),
		slog.String("reason", outcome.Reason),
		slog.Duration("elapsed", elapsed),
	)
	p.emitAlert(ctx, record, outcome)
	return nil
}

// execute runs the engine for one job. Any error or panic from the engine
// becomes a failed outcome so the job still completes and the worker lives on.
func (p *Processor) execute(ctx context.Context, record *Job) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("automation engine panicked",
				slog.String("job_id", record.ID),
				slog.Any("panic", r),
			)
			outcome = Failed(fmt.Sprintf("automation engine panicked: %v", r))
		}
	}()

	execCtx, cancel := context.WithCancel(WithJobID(ctx, record.ID))
	if p.executionTimeout > 0 {
		cancel()
		execCtx, cancel = context.WithTimeout(WithJobID(ctx, record.ID), p.executionTimeout)
	}
	defer cancel()

	result, err := p.engine.ExecuteObjective(execCtx, record.Objective, p.engineConfig)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) && p.executionTimeout > 0 {
			return Failed(fmt.Sprintf("execution exceeded %s: %v", p.executionTimeout, err))
		}
		return Failed(err.Error())
	}
	return Succeeded(result)
}

func completionMessage(objective string, outcome Outcome) string {
	if outcome.OK() {
		return "Objective completed: " + objective
	}
	return "Objective failed: " + objective
}

func (p *Processor) emitAlert(ctx context.Context, record *Job, outcome Outcome) {
	if p.alerter == nil {
		return
	}
	attrs := xerrors.AttributesOf(CodeJobExecution)
	event := alerting.Event{
		Code:       CodeJobExecution,
		Message:    outcome.Reason,
		Severity:   attrs.Severity,
		JobID:      record.ID,
		Objective:  record.Objective,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("alert dispatch failed", slog.Any("error", err), slog.String("job_id", record.ID))
	}
}
