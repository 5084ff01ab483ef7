package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/dshills/eventbroker/internal/broker"
	"github.com/dshills/eventbroker/internal/broker/handler"
	"github.com/dshills/eventbroker/internal/config/loader"
)

// Config is the configuration of a broker process.
type Config struct {
	// Pool sizes the shared fire-and-forget pool.
	Pool PoolConfig `yaml:"pool"`

	// Background sizes the queue of each background handler.
	Background BackgroundConfig `yaml:"background"`

	// Logging selects the zap logger.
	Logging LoggingConfig `yaml:"logging"`

	// Manifest points to a declaration manifest.
	Manifest ManifestConfig `yaml:"manifest"`

	// ShutdownTimeout bounds Dispose when the process exits.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PoolConfig configures the fire-and-forget pool.
type PoolConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queueSize"`
}

// BackgroundConfig configures background handlers.
type BackgroundConfig struct {
	QueueSize int `yaml:"queueSize"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`
}

// ManifestConfig locates the declaration manifest.
type ManifestConfig struct {
	// Path of a YAML or TOML manifest. Empty disables the manifest.
	Path string `yaml:"path"`

	// Watch reloads the manifest when the file changes.
	Watch bool `yaml:"watch"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Workers:   4,
			QueueSize: 1024,
		},
		Background: BackgroundConfig{
			QueueSize: 256,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		ShutdownTimeout: 5 * time.Second,
	}
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	fs        loader.FileSystem
	envPrefix string
	env       bool
}

// WithFileSystem reads the config file from fsys.
func WithFileSystem(fsys loader.FileSystem) LoadOption {
	return func(o *loadOptions) {
		o.fs = fsys
	}
}

// WithEnvPrefix changes the environment variable prefix.
func WithEnvPrefix(prefix string) LoadOption {
	return func(o *loadOptions) {
		o.envPrefix = prefix
	}
}

// WithoutEnv ignores the environment.
func WithoutEnv() LoadOption {
	return func(o *loadOptions) {
		o.env = false
	}
}

// Load builds the configuration from the defaults, the file at path and
// the environment, then validates it. An empty path skips the file.
func Load(path string, opts ...LoadOption) (*Config, error) {
	o := loadOptions{
		fs:        loader.Disk{},
		envPrefix: loader.DefaultEnvPrefix,
		env:       true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var raw map[string]any
	if path != "" {
		fl, err := loader.ForPath(o.fs, path)
		if err != nil {
			return nil, err
		}
		raw, err = fl.Load()
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
	}

	if o.env {
		env, err := loader.NewEnvLoader(o.envPrefix).Load()
		if err != nil {
			return nil, fmt.Errorf("loading environment: %w", err)
		}
		raw = loader.Merge(raw, env)
	}

	cfg := Default()
	if err := decode(raw, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays raw onto cfg. The generic map is re-encoded as YAML so
// that both file formats and the environment share one set of field tags.
func decode(raw map[string]any, cfg *Config) error {
	if len(raw) == 0 {
		return nil
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	return nil
}

// Validate reports every unusable setting.
func (c *Config) Validate() error {
	var err error
	invalid := func(path, msg string, value any) {
		err = multierr.Append(err, &ValidationError{Path: path, Message: msg, Value: value})
	}

	if c.Pool.Workers < 1 {
		invalid("pool.workers", "must be at least 1", c.Pool.Workers)
	}
	if c.Pool.QueueSize < 1 {
		invalid("pool.queueSize", "must be at least 1", c.Pool.QueueSize)
	}
	if c.Background.QueueSize < 1 {
		invalid("background.queueSize", "must be at least 1", c.Background.QueueSize)
	}
	if _, lerr := zapcore.ParseLevel(c.Logging.Level); lerr != nil {
		invalid("logging.level", "unknown level", c.Logging.Level)
	}
	if c.ShutdownTimeout <= 0 {
		invalid("shutdownTimeout", "must be positive", c.ShutdownTimeout)
	}
	if c.Manifest.Path != "" {
		switch strings.ToLower(filepath.Ext(c.Manifest.Path)) {
		case ".yaml", ".yml", ".toml":
		default:
			invalid("manifest.path", "must be a .yaml, .yml or .toml file", c.Manifest.Path)
		}
	} else if c.Manifest.Watch {
		invalid("manifest.watch", "requires manifest.path", c.Manifest.Watch)
	}
	return err
}

// NewLogger builds the zap logger selected by the logging section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, errors.Join(ErrValidationFailed, err)
	}

	cfg := zap.NewProductionConfig()
	if c.Logging.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg.DisableStacktrace = level > zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// BrokerOptions returns the broker options for this configuration.
func (c *Config) BrokerOptions(logger *zap.Logger) []broker.Option {
	return []broker.Option{
		broker.WithLogger(logger),
		broker.WithPoolWorkers(c.Pool.Workers),
		broker.WithPoolQueueSize(c.Pool.QueueSize),
	}
}

// BackgroundOptions returns the options for background handlers.
func (c *Config) BackgroundOptions() []handler.PoolOption {
	return []handler.PoolOption{
		handler.WithQueueSize(c.Background.QueueSize),
	}
}
