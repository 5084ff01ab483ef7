package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/dshills/eventbroker/internal/broker"
	"github.com/dshills/eventbroker/internal/broker/logging"
	"github.com/dshills/eventbroker/internal/broker/manifest"
	"github.com/dshills/eventbroker/internal/broker/uithread"
	"github.com/dshills/eventbroker/internal/config"
)

// bootstrapper handles component initialization with cleanup on failure.
type bootstrapper struct {
	app       *Application
	opts      Options
	initOrder []string
}

func newBootstrapper(app *Application) *bootstrapper {
	return &bootstrapper{
		app:       app,
		opts:      app.opts,
		initOrder: make([]string, 0, 5),
	}
}

// bootstrap initializes all components in dependency order. On failure
// the components already initialized are torn down.
func (b *bootstrapper) bootstrap() error {
	steps := []struct {
		name string
		init func() error
	}{
		{"config", b.initConfig},
		{"logger", b.initLogger},
		{"manifest", b.initManifest},
		{"broker", b.initBroker},
		{"ui", b.initUI},
	}

	for _, step := range steps {
		if err := step.init(); err != nil {
			b.cleanup()
			return &InitError{Component: step.name, Err: err}
		}
		b.initOrder = append(b.initOrder, step.name)
	}
	return nil
}

func (b *bootstrapper) initConfig() error {
	cfg, err := config.Load(b.opts.ConfigPath)
	if err != nil {
		return err
	}
	if b.opts.LogLevel != "" {
		cfg.Logging.Level = b.opts.LogLevel
	}
	if b.opts.ManifestPath != "" {
		cfg.Manifest.Path = b.opts.ManifestPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	b.app.config = cfg
	return nil
}

func (b *bootstrapper) initLogger() error {
	if b.opts.Logger != nil {
		b.app.logger = b.opts.Logger
		return nil
	}
	logger, err := b.app.config.NewLogger()
	if err != nil {
		return err
	}
	b.app.logger = logger
	return nil
}

func (b *bootstrapper) initManifest() error {
	cfg := b.app.config
	m := &manifest.Manifest{}
	if cfg.Manifest.Path != "" {
		var err error
		if m, err = manifest.Load(cfg.Manifest.Path); err != nil {
			return err
		}
	}

	in, err := manifest.NewInspector(m, manifest.WithBackgroundOptions(cfg.BackgroundOptions()...))
	if err != nil {
		return err
	}
	b.app.inspector = in
	return nil
}

func (b *bootstrapper) initBroker() error {
	opts := b.app.config.BrokerOptions(b.app.logger)
	opts = append(opts,
		broker.WithInspector(broker.Inspectors(broker.DeclarerInspector{}, b.app.inspector)),
		broker.WithExtensions(logging.New(b.app.logger)),
		broker.WithExtensions(b.opts.Extensions...),
	)
	b.app.broker = broker.New(opts...)
	return nil
}

func (b *bootstrapper) initUI() error {
	b.app.ui = uithread.New()
	return nil
}

// cleanup tears down initialized components in reverse order.
func (b *bootstrapper) cleanup() {
	for i := len(b.initOrder) - 1; i >= 0; i-- {
		switch b.initOrder[i] {
		case "ui":
			b.app.ui.Stop()
		case "broker":
			if err := b.app.broker.Dispose(context.Background()); err != nil {
				b.app.logger.Warn("disposing broker after failed start", zap.Error(err))
			}
		case "logger":
			_ = b.app.logger.Sync()
		}
	}
}
