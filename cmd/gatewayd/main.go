package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"BrowserUse-Gateway/internal/api"
	"BrowserUse-Gateway/internal/automation"
	"BrowserUse-Gateway/internal/automation/pythonbridge"
	"BrowserUse-Gateway/internal/automation/remote"
	"BrowserUse-Gateway/internal/config"
	"BrowserUse-Gateway/internal/job"
	"BrowserUse-Gateway/internal/observability/alerting"
	"BrowserUse-Gateway/internal/observability/metrics"
	"BrowserUse-Gateway/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("GATEWAY_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("gatewayd: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging.Logger()); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	lg := logger.Named("gatewayd")

	engine, err := newEngine(cfg.Engine)
	if err != nil {
		return err
	}

	queue, err := newQueue(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	store := job.NewMemoryStore()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		m.TrackStore(store)
		if l, ok := queue.(job.Lengther); ok {
			m.TrackQueue(l)
		}
	}

	service := job.NewService(store, queue, job.WithSubmissionRecorder(recorderOf(m)))
	defer func() {
		if err := service.Close(); err != nil {
			lg.Error("close job service", slog.Any("error", err))
		}
	}()

	processor := job.NewProcessor(engine, store, queue,
		job.WithWorkerCount(cfg.Worker.Count),
		job.WithExecutionTimeout(cfg.Worker.ExecutionTimeout),
		job.WithEngineConfig(automation.Config{
			ModelName: cfg.Engine.ModelName,
			APIKey:    cfg.Engine.APIKey(),
			UseVision: cfg.Engine.UseVision,
		}),
		job.WithAlertDispatcher(newAlerts(cfg.Alerting)),
		job.WithRecorder(recorderOf(m)),
	)

	server := api.NewServer(cfg.Server.Address, service,
		api.WithMetrics(m, cfg.Metrics.Address == ""),
		api.WithInvokeTimeout(cfg.Server.InvokeTimeout),
		api.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	lg.Info("gateway starting",
		slog.String("address", cfg.Server.Address),
		slog.String("queue", cfg.Queue.Driver),
		slog.String("engine", cfg.Engine.Driver),
		slog.Int("workers", cfg.Worker.Count),
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return ignoreCanceled(processor.Start(gctx)) })
	group.Go(func() error { return ignoreCanceled(server.Start(gctx)) })
	group.Go(func() error {
		return job.RunRetention(gctx, store, cfg.Store.Retention, cfg.Store.SweepInterval)
	})
	if m != nil && cfg.Metrics.Address != "" {
		group.Go(func() error { return m.StartServer(gctx, cfg.Metrics.Address) })
	}

	err = group.Wait()
	lg.Info("gateway stopped")
	return err
}

func newEngine(cfg config.EngineConfig) (automation.Engine, error) {
	switch cfg.Driver {
	case "python_bridge":
		return pythonbridge.NewEngine(cfg.Python.PythonExecutable, cfg.Python.ScriptPath, cfg.Python.WorkingDir)
	case "remote":
		return remote.NewEngine(remote.Config{
			BaseURL: cfg.Remote.BaseURL,
			Path:    cfg.Remote.Path,
			Timeout: cfg.Remote.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown engine driver %q", cfg.Driver)
	}
}

func newQueue(ctx context.Context, cfg config.QueueConfig) (job.Queue, error) {
	switch cfg.Driver {
	case "memory":
		return job.NewMemoryQueue(), nil
	case "redis":
		return job.NewRedisQueue(ctx, job.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: cfg.Redis.BlockWait,
		})
	case "rabbitmq":
		return job.NewRabbitMQQueue(job.RabbitMQConfig{
			URL:     cfg.RabbitMQ.URL,
			Queue:   cfg.RabbitMQ.Queue,
			Durable: cfg.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

func newAlerts(cfg config.AlertingConfig) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.LogEvents {
		notifiers = append(notifiers, &alerting.LogNotifier{})
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.WebhookURL})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}

// recorderOf avoids handing a typed nil *Metrics to the job package.
func recorderOf(m *metrics.Metrics) job.Recorder {
	if m == nil {
		return nil
	}
	return m
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
