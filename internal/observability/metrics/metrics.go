// Package metrics exposes the gateway's Prometheus metrics. Each Metrics value
// owns its registry so tests and embedded servers do not collide on the
// global one.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"BrowserUse-Gateway/internal/job"
)

const namespace = "browseruse"

// Metrics holds the HTTP and job collectors.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	submitted prometheus.Counter
	completed *prometheus.CounterVec
	execution prometheus.Histogram
	running   prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_request_errors_total",
			Help:      "Total number of HTTP requests that resulted in a server error.",
		}, []string{"handler", "method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler", "method"}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted for execution.",
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Jobs that reached the completed state, by outcome.",
		}, []string{"outcome"}),
		execution: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_execution_seconds",
			Help:      "Wall time of one engine execution.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_executions_running",
			Help:      "Executions currently inside the engine.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.failures, m.latency,
		m.submitted, m.completed, m.execution, m.running,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records one finished request.
func (m *Metrics) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= http.StatusInternalServerError {
		m.failures.WithLabelValues(handler, method).Inc()
	}
	m.latency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// JobSubmitted implements job.Recorder.
func (m *Metrics) JobSubmitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

// ExecutionStarted implements job.Recorder.
func (m *Metrics) ExecutionStarted() {
	if m == nil {
		return
	}
	m.running.Inc()
}

// ExecutionFinished implements job.Recorder.
func (m *Metrics) ExecutionFinished(kind job.OutcomeKind, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.running.Dec()
	m.completed.WithLabelValues(string(kind)).Inc()
	m.execution.Observe(elapsed.Seconds())
}

// TrackStore exports browseruse_jobs{status} from store stats at scrape time.
func (m *Metrics) TrackStore(store job.Store) {
	read := func(pick func(job.Stats) int) func() float64 {
		return func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			stats, err := store.Stats(ctx)
			if err != nil {
				return 0
			}
			return float64(pick(stats))
		}
	}
	gauge := func(status string, pick func(job.Stats) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "jobs",
			Help:        "Jobs held by the store, by status.",
			ConstLabels: prometheus.Labels{"status": status},
		}, read(pick))
	}
	m.registry.MustRegister(
		gauge(string(job.StatusProcessing), func(s job.Stats) int { return s.Processing }),
		gauge(string(job.StatusCompleted), func(s job.Stats) int { return s.Completed }),
		gauge("failed", func(s job.Stats) int { return s.Failed }),
	)
}

// TrackQueue exports browseruse_queue_depth.
func (m *Metrics) TrackQueue(queue job.Lengther) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Job ids waiting for a worker.",
	}, func() float64 { return float64(queue.Len()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// StartServer serves /metrics on its own listener until ctx ends.
func (m *Metrics) StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

var _ job.Recorder = (*Metrics)(nil)
