package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"BrowserUse-Gateway/internal/automation/pythonbridge"
	"BrowserUse-Gateway/pkg/logger"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GATEWAY_"

// Config is the full gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Queue    QueueConfig    `yaml:"queue" envPrefix:"QUEUE_"`
	Worker   WorkerConfig   `yaml:"worker" envPrefix:"WORKER_"`
	Store    StoreConfig    `yaml:"store" envPrefix:"STORE_"`
	Engine   EngineConfig   `yaml:"engine" envPrefix:"ENGINE_"`
	Logging  LoggingConfig  `yaml:"logging" envPrefix:"LOG_"`
	Metrics  MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
	Alerting AlertingConfig `yaml:"alerting" envPrefix:"ALERT_"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address string `yaml:"address" env:"ADDRESS"`
	// InvokeTimeout bounds how long POST /browser_use_invoke waits.
	InvokeTimeout   time.Duration `yaml:"invoke_timeout" env:"INVOKE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// QueueConfig selects the work queue driver.
type QueueConfig struct {
	Driver   string         `yaml:"driver" env:"DRIVER"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq" envPrefix:"RABBITMQ_"`
}

type RedisConfig struct {
	Address   string        `yaml:"address" env:"ADDRESS"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	DB        int           `yaml:"db" env:"DB"`
	Queue     string        `yaml:"queue" env:"QUEUE"`
	BlockWait time.Duration `yaml:"block_wait" env:"BLOCK_WAIT"`
}

type RabbitMQConfig struct {
	URL     string `yaml:"url" env:"URL"`
	Queue   string `yaml:"queue" env:"QUEUE"`
	Durable bool   `yaml:"durable" env:"DURABLE"`
}

// WorkerConfig sizes the execution pool.
type WorkerConfig struct {
	Count int `yaml:"count" env:"COUNT"`
	// ExecutionTimeout bounds one engine call. Zero means unbounded.
	ExecutionTimeout time.Duration `yaml:"execution_timeout" env:"EXECUTION_TIMEOUT"`
}

// StoreConfig controls retention of completed jobs. Zero retention keeps
// them for the life of the process.
type StoreConfig struct {
	Retention     time.Duration `yaml:"retention" env:"RETENTION"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// EngineConfig selects and configures the automation engine.
type EngineConfig struct {
	Driver    string             `yaml:"driver" env:"DRIVER"`
	ModelName string             `yaml:"model_name" env:"MODEL_NAME"`
	APIKeyEnv string             `yaml:"api_key_env" env:"API_KEY_ENV"`
	UseVision bool               `yaml:"use_vision" env:"USE_VISION"`
	Python    PythonBridgeConfig `yaml:"python_bridge" envPrefix:"PYTHON_"`
	Remote    RemoteConfig       `yaml:"remote" envPrefix:"REMOTE_"`
}

// APIKey reads the key from the variable named by APIKeyEnv.
func (e EngineConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

type PythonBridgeConfig struct {
	PythonExecutable string `yaml:"python_executable" env:"EXECUTABLE"`
	ScriptPath       string `yaml:"script_path" env:"SCRIPT_PATH"`
	WorkingDir       string `yaml:"working_dir" env:"WORKING_DIR"`
}

type RemoteConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Path    string        `yaml:"path" env:"PATH"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type LoggingConfig struct {
	Level       string      `yaml:"level" env:"LEVEL"`
	Format      string      `yaml:"format" env:"FORMAT"`
	OutputPaths []string    `yaml:"output_paths" env:"OUTPUT_PATHS" envSeparator:","`
	AddSource   bool        `yaml:"add_source" env:"ADD_SOURCE"`
	Audit       AuditConfig `yaml:"audit" envPrefix:"AUDIT_"`
}

type AuditConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ENABLED"`
	Path       string `yaml:"path" env:"PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
}

// Logger converts the section to the logger package's configuration.
func (l LoggingConfig) Logger() logger.Config {
	return logger.Config{
		Level:       l.Level,
		Format:      l.Format,
		OutputPaths: append([]string(nil), l.OutputPaths...),
		AddSource:   l.AddSource,
		Audit: logger.AuditConfig{
			Enabled:    l.Audit.Enabled,
			Path:       l.Audit.Path,
			MaxSizeMB:  l.Audit.MaxSizeMB,
			MaxBackups: l.Audit.MaxBackups,
			MaxAgeDays: l.Audit.MaxAgeDays,
		},
	}
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Address serves /metrics on a separate listener. Empty mounts it on the
	// API server.
	Address string `yaml:"address" env:"ADDRESS"`
}

type AlertingConfig struct {
	WebhookURL string `yaml:"webhook_url" env:"WEBHOOK_URL"`
	LogEvents  bool   `yaml:"log_events" env:"LOG_EVENTS"`
}

// Load reads the YAML file at path, applies .env and environment overrides,
// fills defaults and validates the result. An empty path skips the file.
// Relative paths inside the file resolve against the file's directory.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	baseDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		baseDir = filepath.Dir(path)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return fmt.Errorf("load .env file: %w", err)
		}
	}
	return nil
}

func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":4999"
	}
	if c.Server.InvokeTimeout == 0 {
		c.Server.InvokeTimeout = 5 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}

	c.Queue.Driver = strings.ToLower(strings.TrimSpace(c.Queue.Driver))
	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}

	if c.Worker.Count == 0 {
		c.Worker.Count = 1
	}
	if c.Store.Retention > 0 && c.Store.SweepInterval == 0 {
		c.Store.SweepInterval = time.Minute
	}

	c.Engine.Driver = strings.ToLower(strings.TrimSpace(c.Engine.Driver))
	if c.Engine.Driver == "" {
		c.Engine.Driver = "python_bridge"
	}
	if c.Engine.ModelName == "" {
		c.Engine.ModelName = "gpt-4o-mini"
	}
	if c.Engine.APIKeyEnv == "" {
		c.Engine.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Engine.Python.PythonExecutable == "" {
		c.Engine.Python.PythonExecutable = "python3"
	}
	c.Engine.Python.WorkingDir = resolve(baseDir, c.Engine.Python.WorkingDir)
	c.Engine.Python.ScriptPath = pythonbridge.ResolveScriptPath(baseDir, c.Engine.Python.ScriptPath)

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" {
		c.Logging.Audit.Path = resolve(baseDir, c.Logging.Audit.Path)
	}
}

func resolve(baseDir, path string) string {
	if path == "" {
		return baseDir
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Validate rejects unknown drivers and out-of-range values.
func (c *Config) Validate() error {
	var errs []error
	switch c.Queue.Driver {
	case "memory":
	case "redis":
		if c.Queue.Redis.Address == "" {
			errs = append(errs, errors.New("queue.redis.address is required"))
		}
		if wait := c.Queue.Redis.BlockWait; wait != 0 && wait < time.Second {
			errs = append(errs, fmt.Errorf("queue.redis.block_wait must be 0 or at least 1s, got %s", wait))
		}
	case "rabbitmq":
		if c.Queue.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("queue.rabbitmq.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue driver %q", c.Queue.Driver))
	}

	switch c.Engine.Driver {
	case "python_bridge":
		if c.Engine.Python.ScriptPath == "" {
			errs = append(errs, errors.New("engine.python_bridge.script_path is required"))
		}
	case "remote":
		if c.Engine.Remote.BaseURL == "" {
			errs = append(errs, errors.New("engine.remote.base_url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown engine driver %q", c.Engine.Driver))
	}

	if c.Worker.Count < 1 {
		errs = append(errs, fmt.Errorf("worker.count must be at least 1, got %d", c.Worker.Count))
	}
	durations := map[string]time.Duration{
		"server.invoke_timeout":    c.Server.InvokeTimeout,
		"server.shutdown_timeout":  c.Server.ShutdownTimeout,
		"worker.execution_timeout": c.Worker.ExecutionTimeout,
		"store.retention":          c.Store.Retention,
		"store.sweep_interval":     c.Store.SweepInterval,
		"engine.remote.timeout":    c.Engine.Remote.Timeout,
	}
	for name, d := range durations {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		errs = append(errs, errors.New("logging.audit.path is required when audit is enabled"))
	}
	return errors.Join(errs...)
}
