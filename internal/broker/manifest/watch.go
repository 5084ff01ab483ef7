package manifest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchOption configures Watch.
type WatchOption func(*watchConfig)

type watchConfig struct {
	delay    time.Duration
	onReload func(m *Manifest, err error)
}

// WithDebounce sets how long the file must stay quiet before a reload.
// Editors often write a file in several steps.
func WithDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithReloadHook sets a function called after every reload attempt.
func WithReloadHook(fn func(m *Manifest, err error)) WatchOption {
	return func(c *watchConfig) {
		c.onReload = fn
	}
}

// Watch reloads the manifest at path into in whenever the file changes,
// until ctx is done. A manifest that fails to load or compile is logged
// and the previous one stays in use.
//
// The parent directory is watched rather than the file so that editors
// replacing the file through a rename are noticed.
func Watch(ctx context.Context, path string, in *Inspector, logger *zap.Logger, opts ...WatchOption) error {
	cfg := watchConfig{delay: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating manifest watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	logger = logger.With(zap.String("manifest", abs))
	logger.Debug("watching manifest")

	timer := time.NewTimer(cfg.delay)
	timer.Stop()
	defer timer.Stop()

	reload := func() {
		m, err := Load(abs)
		if err == nil {
			err = in.Swap(m)
		}
		if err != nil {
			logger.Warn("manifest reload failed, keeping previous", zap.Error(err))
		} else {
			logger.Info("manifest reloaded", zap.Int("types", len(m.Types)))
		}
		if cfg.onReload != nil {
			cfg.onReload(m, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				timer.Reset(cfg.delay)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("manifest watcher error", zap.Error(err))

		case <-timer.C:
			reload()
		}
	}
}
