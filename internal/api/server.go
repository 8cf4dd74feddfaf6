package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"BrowserUse-Gateway/internal/job"
	"BrowserUse-Gateway/internal/observability/metrics"
	"BrowserUse-Gateway/pkg/logger"
)

const (
	defaultInvokeTimeout   = 5 * time.Minute
	defaultShutdownTimeout = 5 * time.Second
	defaultInvokePoll      = 250 * time.Millisecond
	maxBodyBytes           = 1 << 20
)

// Server serves the submission, status, probe and invoke endpoints.
type Server struct {
	addr            string
	service         *job.Service
	metrics         *metrics.Metrics
	mountMetrics    bool
	invokeTimeout   time.Duration
	invokePoll      time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// Option customises a Server.
type Option func(*Server)

// WithMetrics instruments every route. When mount is true /metrics is served
// from the same router.
func WithMetrics(m *metrics.Metrics, mount bool) Option {
	return func(s *Server) {
		s.metrics = m
		s.mountMetrics = mount && m != nil
	}
}

// WithInvokeTimeout bounds how long /browser_use_invoke waits for a result.
func WithInvokeTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.invokeTimeout = d
		}
	}
}

// WithInvokePollInterval sets how often /browser_use_invoke checks the job.
func WithInvokePollInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.invokePoll = d
		}
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer builds the API server.
func NewServer(addr string, svc *job.Service, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		service:         svc,
		invokeTimeout:   defaultInvokeTimeout,
		invokePoll:      defaultInvokePoll,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	return s
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/probe", s.handleProbe).Methods(http.MethodGet).Name("probe")
	r.HandleFunc("/submit", s.handleSubmit).Methods(http.MethodPost).Name("submit")
	r.HandleFunc("/query/{task_id}", s.handleQuery).Methods(http.MethodGet).Name("query")
	r.HandleFunc("/browser_use_invoke", s.handleInvoke).Methods(http.MethodPost).Name("invoke")
	if s.mountMetrics {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet).Name("metrics")
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Status: "error", Message: "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Status: "error", Message: "method not allowed"})
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Router()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("api server listening", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
