package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BrowserUse-Gateway/internal/job"
)

func TestObserveHTTPRequest(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest("submit", http.MethodPost, http.StatusAccepted, 20*time.Millisecond)
	m.ObserveHTTPRequest("submit", http.MethodPost, http.StatusServiceUnavailable, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("submit", http.MethodPost, "202")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("submit", http.MethodPost)))
}

func TestJobRecorder(t *testing.T) {
	m := New()
	m.JobSubmitted()
	m.ExecutionStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.running))
	m.ExecutionFinished(job.OutcomeFailed, 3*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.submitted))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.running))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completed.WithLabelValues("failed")))
}

func TestHandlerExposesStoreAndQueueGauges(t *testing.T) {
	m := New()
	store := job.NewMemoryStore()
	queue := job.NewMemoryQueue()
	m.TrackStore(store)
	m.TrackQueue(queue)

	ctx := context.Background()
	record, err := store.Create(ctx, "a")
	require.NoError(t, err)
	_, err = store.Create(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, record.ID, job.Failed("boom"), "failed"))
	require.NoError(t, queue.Publish(ctx, "x"))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `browseruse_jobs{status="processing"} 1`)
	assert.Contains(t, text, `browseruse_jobs{status="failed"} 1`)
	assert.Contains(t, text, `browseruse_queue_depth 1`)
}
