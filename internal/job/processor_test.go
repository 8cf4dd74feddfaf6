package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"BrowserUse-Gateway/internal/automation"
	"BrowserUse-Gateway/internal/observability/alerting"
)

type fakeEngine struct {
	latency   time.Duration
	running   atomic.Int32
	peak      atomic.Int32
	processed atomic.Int32
	mu        sync.Mutex
	seen      []automation.Config
	jobIDs    []string
}

func (f *fakeEngine) ExecuteObjective(ctx context.Context, objective string, cfg automation.Config) (automation.Result, error) {
	now := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.peak.Load()
		if now <= peak || f.peak.CompareAndSwap(peak, now) {
			break
		}
	}
	id, _ := JobIDFromContext(ctx)
	f.mu.Lock()
	f.seen = append(f.seen, cfg)
	f.jobIDs = append(f.jobIDs, id)
	f.mu.Unlock()

	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	defer f.processed.Add(1)
	switch {
	case strings.HasPrefix(objective, "fail"):
		return nil, errors.New("browser crashed")
	case strings.HasPrefix(objective, "panic"):
		panic("nil session")
	}
	return json.RawMessage(fmt.Sprintf(`{"objective":%q}`, objective)), nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type countingRecorder struct {
	submitted atomic.Int32
	ok        atomic.Int32
	failed    atomic.Int32
}

func (c *countingRecorder) JobSubmitted()     { c.submitted.Add(1) }
func (c *countingRecorder) ExecutionStarted() {}
func (c *countingRecorder) ExecutionFinished(kind OutcomeKind, _ time.Duration) {
	if kind == OutcomeOK {
		c.ok.Add(1)
		return
	}
	c.failed.Add(1)
}

func startProcessor(t *testing.T, ctx context.Context, p *Processor) {
	t.Helper()
	go func() {
		if err := p.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()
}

func waitCompleted(t *testing.T, svc *Service, id string) *Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	record, err := svc.WaitUntilCompleted(ctx, id, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("job %s did not complete: %v", id, err)
	}
	return record
}

func TestProcessorSurvivesEngineErrorsAndPanics(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue()
	engine := &fakeEngine{}
	alerts := &recordingDispatcher{}
	recorder := &countingRecorder{}
	svc := NewService(store, queue, WithSubmissionRecorder(recorder))
	startProcessor(t, ctx, NewProcessor(engine, store, queue, WithAlertDispatcher(alerts), WithRecorder(recorder)))

	failing, _ := svc.Submit(ctx, "fail the checkout")
	panicking, _ := svc.Submit(ctx, "panic on login")
	healthy, _ := svc.Submit(ctx, "find a flight")

	got := waitCompleted(t, svc, failing.ID)
	if got.Outcome.OK() || got.Outcome.Reason != "browser crashed" {
		t.Fatalf("unexpected outcome %+v", got.Outcome)
	}
	if got.Message != "Objective failed: fail the checkout" {
		t.Fatalf("unexpected message %q", got.Message)
	}
	if string(got.Outcome.Results()) != "{}" {
		t.Fatalf("failed job results = %s", got.Outcome.Results())
	}

	got = waitCompleted(t, svc, panicking.ID)
	if got.Outcome.OK() || !strings.Contains(got.Outcome.Reason, "nil session") {
		t.Fatalf("panic not captured: %+v", got.Outcome)
	}

	got = waitCompleted(t, svc, healthy.ID)
	if !got.Outcome.OK() || got.Message != "Objective completed: find a flight" {
		t.Fatalf("worker did not recover: %+v", got)
	}

	alerts.mu.Lock()
	defer alerts.mu.Unlock()
	if len(alerts.events) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts.events))
	}
	if alerts.events[0].JobID != failing.ID || alerts.events[0].Code != CodeJobExecution {
		t.Fatalf("unexpected alert %+v", alerts.events[0])
	}
	if recorder.submitted.Load() != 3 || recorder.ok.Load() != 1 || recorder.failed.Load() != 2 {
		t.Fatalf("recorder counts submitted=%d ok=%d failed=%d",
			recorder.submitted.Load(), recorder.ok.Load(), recorder.failed.Load())
	}
}

func TestProcessorSingleWorkerSerializesExecutions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue()
	engine := &fakeEngine{latency: 5 * time.Millisecond}
	svc := NewService(store, queue)
	p := NewProcessor(engine, store, queue)
	if p.WorkerCount() != 1 {
		t.Fatalf("default worker count = %d", p.WorkerCount())
	}
	startProcessor(t, ctx, p)

	var ids []string
	for i := 0; i < 10; i++ {
		record, err := svc.Submit(ctx, fmt.Sprintf("objective-%d", i))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, record.ID)
	}
	for _, id := range ids {
		waitCompleted(t, svc, id)
	}
	if peak := engine.peak.Load(); peak != 1 {
		t.Fatalf("expected one execution at a time, saw %d", peak)
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()
	for i, id := range engine.jobIDs {
		if id != ids[i] {
			t.Fatalf("execution %d ran job %s, want %s", i, id, ids[i])
		}
	}
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue()
	engine := &fakeEngine{latency: 2 * time.Millisecond}
	svc := NewService(store, queue)
	startProcessor(t, ctx, NewProcessor(engine, store, queue, WithWorkerCount(8),
		WithEngineConfig(automation.Config{ModelName: "gpt-4o", UseVision: true})))

	total := 200
	for i := 0; i < total; i++ {
		if _, err := svc.Submit(ctx, fmt.Sprintf("objective-%d", i)); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for int(engine.processed.Load()) < total {
		select {
		case <-deadline:
			t.Fatalf("jobs not processed in time, completed %d", engine.processed.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
	if engine.peak.Load() > 8 {
		t.Fatalf("more executions than workers: %d", engine.peak.Load())
	}
	engine.mu.Lock()
	cfg := engine.seen[0]
	engine.mu.Unlock()
	if cfg.ModelName != "gpt-4o" || !cfg.UseVision {
		t.Fatalf("engine config not forwarded: %+v", cfg)
	}
}

func TestProcessorExecutionTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue()
	engine := &fakeEngine{latency: time.Second}
	svc := NewService(store, queue)
	startProcessor(t, ctx, NewProcessor(engine, store, queue, WithExecutionTimeout(20*time.Millisecond)))

	record, _ := svc.Submit(ctx, "slow objective")
	got := waitCompleted(t, svc, record.ID)
	if got.Outcome.OK() || !strings.Contains(got.Outcome.Reason, "exceeded") {
		t.Fatalf("expected timeout failure, got %+v", got.Outcome)
	}
}

func TestProcessorSkipsUnknownAndCompletedIDs(t *testing.T) {
	store := NewMemoryStore()
	engine := &fakeEngine{}
	p := NewProcessor(engine, store, nil)
	ctx := context.Background()

	if err := p.handle(ctx, "missing"); err != nil {
		t.Fatalf("unknown id: %v", err)
	}
	record, _ := store.Create(ctx, "done already")
	_ = store.Complete(ctx, record.ID, Succeeded(nil), "done")
	if err := p.handle(ctx, record.ID); err != nil {
		t.Fatalf("completed id: %v", err)
	}
	if engine.processed.Load() != 0 {
		t.Fatalf("engine ran %d times", engine.processed.Load())
	}
	if err := p.Start(ctx); err == nil {
		t.Fatal("expected error without a consumer")
	}
}
