// Package app hosts a broker process. It wires configuration, logging,
// the declaration manifest, the broker and the UI dispatcher together and
// manages their lifecycle.
package app

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dshills/eventbroker/internal/broker"
	"github.com/dshills/eventbroker/internal/broker/manifest"
	"github.com/dshills/eventbroker/internal/broker/uithread"
	"github.com/dshills/eventbroker/internal/config"
)

// Application is the central coordinator of a broker process.
type Application struct {
	mu sync.Mutex

	config    *config.Config
	logger    *zap.Logger
	inspector *manifest.Inspector
	broker    *broker.Broker
	ui        *uithread.Dispatcher

	// cancel stops the background goroutines (UI loop, manifest watch).
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running      atomic.Bool
	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error

	opts Options
}

// Options configures the application.
type Options struct {
	// ConfigPath is the path to a YAML or TOML configuration file.
	ConfigPath string

	// LogLevel overrides logging.level when set.
	LogLevel string

	// ManifestPath overrides manifest.path when set.
	ManifestPath string

	// Logger replaces the logger built from the configuration.
	Logger *zap.Logger

	// Extensions are added to the broker.
	Extensions []broker.Extension
}

// New creates an Application with every component started except the
// UI loop, which runs inside Run.
func New(opts Options) (*Application, error) {
	app := &Application{
		opts: opts,
		done: make(chan struct{}),
	}

	if err := newBootstrapper(app).bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// Config returns the effective configuration.
func (app *Application) Config() *config.Config { return app.config }

// Logger returns the process logger.
func (app *Application) Logger() *zap.Logger { return app.logger }

// Broker returns the broker.
func (app *Application) Broker() *broker.Broker { return app.broker }

// Inspector returns the manifest inspector.
func (app *Application) Inspector() *manifest.Inspector { return app.inspector }

// UI returns the UI dispatcher. Work posted to it runs once Run started.
func (app *Application) UI() *uithread.Dispatcher { return app.ui }
