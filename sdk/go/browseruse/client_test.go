package browseruse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeGateway completes a task after doneAfter queries.
type fakeGateway struct {
	doneAfter int32
	outcome   string
	queries   atomic.Int32
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/submit":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if strings.TrimSpace(body["objective"]) == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":"error","message":"No objective provided."}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"processing","task_id":"task-1"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/query/task-1":
		n := g.queries.Add(1)
		if g.doneAfter == 0 || n < g.doneAfter {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"status":"processing"}`))
			return
		}
		outcome := g.outcome
		if outcome == "" {
			outcome = "ok"
		}
		resp := map[string]any{
			"status": "completed", "task_id": "task-1", "objective": "demo",
			"message": "Objective completed: demo", "results": map[string]any{"ok": true}, "outcome": outcome,
		}
		if outcome != "ok" {
			resp["message"] = "Objective failed: demo"
			resp["results"] = map[string]any{}
			resp["error"] = "browser crashed"
		}
		_ = json.NewEncoder(w).Encode(resp)
	case r.URL.Path == "/probe":
		_, _ = w.Write([]byte("the service is alive"))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"error","message":"Task ID not found"}`))
	}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestRunCompletes(t *testing.T) {
	gw := &fakeGateway{doneAfter: 3}
	c := newTestClient(t, gw)

	out := c.Run(context.Background(), "demo", PollOptions{Interval: 5 * time.Millisecond, Timeout: 5 * time.Second})
	if out.State != StateCompleted {
		t.Fatalf("state = %s (%s)", out.State, out.Message)
	}
	if out.TaskID != "task-1" || out.Polls != 3 || out.Message != "Objective completed: demo" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if string(out.Status.Results) != `{"ok":true}` {
		t.Fatalf("results = %s", out.Status.Results)
	}
}

func TestRunReportsExecutionFailure(t *testing.T) {
	c := newTestClient(t, &fakeGateway{doneAfter: 1, outcome: "failed"})
	out := c.Run(context.Background(), "demo", PollOptions{Interval: time.Millisecond})
	if out.State != StateExecutionFailed {
		t.Fatalf("state = %s", out.State)
	}
	if !strings.Contains(out.Message, "browser crashed") {
		t.Fatalf("message = %q", out.Message)
	}
}

func TestRunReportsSubmissionFailure(t *testing.T) {
	c := newTestClient(t, &fakeGateway{})
	out := c.Run(context.Background(), "  ", PollOptions{})
	if out.State != StateSubmissionFailed || out.TaskID != "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	var apiErr *APIError
	if !errors.As(out.Err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "No objective provided." {
		t.Fatalf("unexpected error %v", out.Err)
	}
	if !strings.HasPrefix(out.Message, "failed to submit") {
		t.Fatalf("message = %q", out.Message)
	}
}

func TestRunSubmissionTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := NewClient(srv.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	out := c.Run(context.Background(), "demo", PollOptions{})
	if out.State != StateSubmissionFailed {
		t.Fatalf("state = %s", out.State)
	}
}

func TestRunStopsOnQueryError(t *testing.T) {
	var queries atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/submit" {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"status":"processing","task_id":"gone"}`))
			return
		}
		queries.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"error","message":"Task ID not found"}`))
	}))

	out := c.Run(context.Background(), "demo", PollOptions{Interval: time.Millisecond})
	if out.State != StateQueryFailed {
		t.Fatalf("state = %s", out.State)
	}
	if queries.Load() != 1 {
		t.Fatalf("query retried %d times", queries.Load())
	}
}

func TestRunStopsOnUnrecognizedStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/submit" {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"status":"processing","task_id":"t"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"paused"}`))
	}))
	out := c.Run(context.Background(), "demo", PollOptions{Interval: time.Millisecond})
	if out.State != StateQueryFailed {
		t.Fatalf("state = %s", out.State)
	}
}

func TestRunTimesOutAtBudget(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestClient(t, gw)

	const budget = 120 * time.Millisecond
	started := time.Now()
	out := c.Run(context.Background(), "demo", PollOptions{Interval: 50 * time.Millisecond, Timeout: budget})
	took := time.Since(started)

	if out.State != StateTimedOut {
		t.Fatalf("state = %s", out.State)
	}
	if out.Elapsed < budget {
		t.Fatalf("timed out early after %s", out.Elapsed)
	}
	if took > budget+100*time.Millisecond {
		t.Fatalf("timed out late after %s", took)
	}
	// 0ms, 50ms and 100ms; the budget ends during the last sleep.
	if out.Polls < 2 || out.Polls > 3 {
		t.Fatalf("polls = %d", out.Polls)
	}
}

func TestRunTimesOutWhileQueryIsSlow(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/submit" {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"status":"processing","task_id":"slow"}`))
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"processing"}`))
	}))

	const budget = 100 * time.Millisecond
	started := time.Now()
	out := c.Run(context.Background(), "demo", PollOptions{Interval: 10 * time.Millisecond, Timeout: budget})
	took := time.Since(started)

	if out.State != StateTimedOut {
		t.Fatalf("state = %s (%s)", out.State, out.Message)
	}
	if out.Elapsed < budget {
		t.Fatalf("timed out early after %s", out.Elapsed)
	}
	if took > budget+150*time.Millisecond {
		t.Fatalf("slow query overran the budget: %s", took)
	}
	if !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", out.Err)
	}
}

func TestQueryEscapesTaskID(t *testing.T) {
	var requestURI atomic.Value
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestURI.Store(r.RequestURI)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"processing"}`))
	}))

	if _, err := c.Query(context.Background(), "a b/c"); err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := requestURI.Load(); got != "/query/a%20b%2Fc" {
		t.Fatalf("request uri = %v", got)
	}
}

func TestRunHonoursContext(t *testing.T) {
	c := newTestClient(t, &fakeGateway{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	out := c.Run(ctx, "demo", PollOptions{Interval: 10 * time.Millisecond, Timeout: time.Minute})
	if out.State != StateCancelled {
		t.Fatalf("state = %s", out.State)
	}
	if out.Message == "" {
		t.Fatal("missing message")
	}
}

func TestPollOptionsBackoff(t *testing.T) {
	opts := PollOptions{Interval: time.Second, Backoff: 2, MaxInterval: 3 * time.Second}.withDefaults()
	if got := opts.next(time.Second); got != 2*time.Second {
		t.Fatalf("next = %s", got)
	}
	if got := opts.next(2 * time.Second); got != 3*time.Second {
		t.Fatalf("capped next = %s", got)
	}
	fixed := PollOptions{}.withDefaults()
	if fixed.Interval != DefaultPollInterval || fixed.Timeout != DefaultPollTimeout {
		t.Fatalf("defaults = %+v", fixed)
	}
	if got := fixed.next(fixed.Interval); got != DefaultPollInterval {
		t.Fatalf("fixed next = %s", got)
	}
}

func TestProbeAndBadURL(t *testing.T) {
	c := newTestClient(t, &fakeGateway{})
	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if _, err := NewClient("not a url", nil); err == nil {
		t.Fatal("expected invalid url error")
	}
}
