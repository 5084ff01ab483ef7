package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/dshills/eventbroker/internal/broker/manifest"
)

// Run starts the UI loop and, when configured, the manifest watch, then
// blocks until ctx is done or Shutdown is called. It returns the result
// of the shutdown.
func (app *Application) Run(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.mu.Lock()
	select {
	case <-app.done:
		app.mu.Unlock()
		app.running.Store(false)
		return app.Shutdown()
	default:
	}
	app.cancel = cancel

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.ui.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			app.logger.Error("ui loop stopped", zap.Error(err))
		}
	}()

	cfg := app.config.Manifest
	if cfg.Watch && cfg.Path != "" {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := manifest.Watch(runCtx, cfg.Path, app.inspector, app.logger); err != nil {
				app.logger.Error("manifest watch stopped", zap.Error(err))
			}
		}()
	}
	app.mu.Unlock()

	app.logger.Info("broker running",
		zap.Int("pool_workers", app.config.Pool.Workers),
		zap.String("manifest", cfg.Path),
		zap.Bool("watch", cfg.Watch),
	)

	select {
	case <-runCtx.Done():
	case <-app.done:
	}
	return app.Shutdown()
}

// IsRunning reports whether Run is active.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Done is closed when shutdown begins.
func (app *Application) Done() <-chan struct{} {
	return app.done
}

// Shutdown stops the background goroutines and disposes the broker within
// the configured shutdown timeout. It is safe to call more than once and
// from any goroutine; later calls return the first result.
func (app *Application) Shutdown() error {
	app.shutdownOnce.Do(func() {
		app.shutdownErr = app.shutdownComponents()
	})
	return app.shutdownErr
}

func (app *Application) shutdownComponents() error {
	app.mu.Lock()
	close(app.done)
	cancel := app.cancel
	app.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	app.ui.Stop()
	app.wg.Wait()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancelTimeout()

	err := app.broker.Dispose(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = errors.Join(ErrShutdownTimeout, err)
	}
	app.running.Store(false)

	stats := app.broker.Stats()
	app.logger.Info("broker stopped",
		zap.Uint64("fired", stats.Fired),
		zap.Uint64("relayed", stats.Relayed),
		zap.Uint64("dropped", stats.Dropped),
	)
	// Sync fails on terminals; there is nothing left to report it to.
	_ = app.logger.Sync()

	if err != nil {
		return &ComponentError{Component: "broker", Action: "dispose", Err: err}
	}
	return nil
}
