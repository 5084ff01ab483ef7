package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/eventbroker/internal/broker"
	"github.com/dshills/eventbroker/internal/config"
)

func newTestApp(t *testing.T, opts Options) (*Application, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	opts.Logger = zap.New(core)
	app, err := New(opts)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return app, logs
}

func TestNewApplication(t *testing.T) {
	defer goleak.VerifyNone(t)

	app, _ := newTestApp(t, Options{})
	defer app.Shutdown()

	if app.Config() == nil {
		t.Error("expected config to be initialized")
	}
	if app.Broker() == nil {
		t.Error("expected broker to be initialized")
	}
	if app.Inspector() == nil {
		t.Error("expected inspector to be initialized")
	}
	if app.UI() == nil {
		t.Error("expected ui dispatcher to be initialized")
	}
	if app.IsRunning() {
		t.Error("expected IsRunning() to be false before Run()")
	}
}

func TestNew_Overrides(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "broker.yaml")
	if err := os.WriteFile(manifestPath, []byte("types: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	app, _ := newTestApp(t, Options{LogLevel: "debug", ManifestPath: manifestPath})
	defer app.Shutdown()

	if got := app.Config().Logging.Level; got != "debug" {
		t.Errorf("Logging.Level = %q, want %q", got, "debug")
	}
	if got := app.Config().Manifest.Path; got != manifestPath {
		t.Errorf("Manifest.Path = %q, want %q", got, manifestPath)
	}
}

func TestNew_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		opts      Options
		component string
		target    error
	}{
		{
			name:      "missing config",
			opts:      Options{ConfigPath: filepath.Join(dir, "absent.yaml")},
			component: "config",
			target:    config.ErrFileNotFound,
		},
		{
			name:      "invalid log level",
			opts:      Options{LogLevel: "loud"},
			component: "config",
			target:    config.ErrValidationFailed,
		},
		{
			name:      "missing manifest",
			opts:      Options{ManifestPath: filepath.Join(dir, "absent.yaml")},
			component: "manifest",
			target:    os.ErrNotExist,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			tt.opts.Logger = zap.NewNop()
			app, err := New(tt.opts)
			if err == nil {
				app.Shutdown()
				t.Fatal("New() succeeded, want error")
			}
			var initErr *InitError
			if !errors.As(err, &initErr) {
				t.Fatalf("New() error = %T, want *InitError", err)
			}
			if initErr.Component != tt.component {
				t.Errorf("InitError.Component = %q, want %q", initErr.Component, tt.component)
			}
			if !errors.Is(err, tt.target) {
				t.Errorf("New() error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestApplication_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	app, logs := newTestApp(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for logs.FilterMessage("broker running").Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("Run() did not start")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if !app.IsRunning() {
		t.Error("expected IsRunning() to be true during Run()")
	}
	if err := app.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want %v", err, ErrAlreadyRunning)
	}

	// Work posted to the UI dispatcher runs while the application runs.
	if err := app.UI().Invoke(ctx, func(context.Context) error { return nil }); err != nil {
		t.Errorf("UI().Invoke() = %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if app.IsRunning() {
		t.Error("expected IsRunning() to be false after Run()")
	}
	if !app.Broker().IsDisposed() {
		t.Error("expected broker to be disposed")
	}
	if logs.FilterMessage("broker stopped").Len() != 1 {
		t.Error("expected one \"broker stopped\" log entry")
	}
}

func TestApplication_ShutdownIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	app, logs := newTestApp(t, Options{})

	for range 3 {
		if err := app.Shutdown(); err != nil {
			t.Errorf("Shutdown() = %v, want nil", err)
		}
	}
	select {
	case <-app.Done():
	default:
		t.Error("expected Done() to be closed")
	}
	if n := logs.FilterMessage("broker stopped").Len(); n != 1 {
		t.Errorf("\"broker stopped\" logged %d times, want 1", n)
	}
}

func TestApplication_ShutdownStopsRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	app, _ := newTestApp(t, Options{})

	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(context.Background()) }()

	if err := app.Shutdown(); err != nil {
		t.Errorf("Shutdown() = %v, want nil", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Shutdown()")
	}
}

type countingExtension struct {
	broker.NopExtension
	registered int
}

func (e *countingExtension) RegisteredItem(any) { e.registered++ }

func TestNew_Extensions(t *testing.T) {
	ext := &countingExtension{}
	app, _ := newTestApp(t, Options{Extensions: []broker.Extension{ext}})
	defer app.Shutdown()

	doc := &document{topic: "topic://test/changed"}
	if err := app.Broker().Register(doc); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if ext.registered != 1 {
		t.Errorf("RegisteredItem called %d times, want 1", ext.registered)
	}
}

func TestRunScenarios(t *testing.T) {
	defer goleak.VerifyNone(t)

	app, _ := newTestApp(t, Options{})
	defer app.Shutdown()

	var out bytes.Buffer
	if err := app.RunScenarios(context.Background(), &out); err != nil {
		t.Fatalf("RunScenarios() = %v\n%s", err, out.String())
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(Scenarios()) {
		t.Fatalf("RunScenarios() wrote %d lines, want %d", len(lines), len(Scenarios()))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "PASS ") {
			t.Errorf("unexpected line %q", line)
		}
	}
	if n := len(app.Broker().Topics()); n != 0 {
		t.Errorf("Topics() after scenarios = %d, want 0", n)
	}
}

func TestRunScenarios_Selected(t *testing.T) {
	app, _ := newTestApp(t, Options{})
	defer app.Shutdown()

	var out bytes.Buffer
	if err := app.RunScenarios(context.Background(), &out, "c", "E"); err != nil {
		t.Fatalf("RunScenarios() = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "PASS C") || !strings.Contains(got, "PASS E") {
		t.Errorf("RunScenarios() output = %q, want C and E", got)
	}
	if strings.Contains(got, "PASS A") {
		t.Errorf("RunScenarios() ran an unselected scenario: %q", got)
	}
}

func TestErrors(t *testing.T) {
	inner := errors.New("boom")

	initErr := &InitError{Component: "broker", Err: inner}
	if got, want := initErr.Error(), "initializing broker: boom"; got != want {
		t.Errorf("InitError.Error() = %q, want %q", got, want)
	}
	if !errors.Is(initErr, inner) {
		t.Error("InitError should unwrap to its cause")
	}

	tests := []struct {
		err  *ComponentError
		want string
	}{
		{&ComponentError{Component: "broker", Action: "dispose", Err: inner}, "broker: dispose: boom"},
		{&ComponentError{Component: "ui", Err: inner}, "ui: boom"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("ComponentError.Error() = %q, want %q", got, tt.want)
		}
		if !errors.Is(tt.err, inner) {
			t.Error("ComponentError should unwrap to its cause")
		}
	}
}

func TestRunScenarios_CombinesFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	app, _ := newTestApp(t, Options{})
	defer app.Shutdown()

	errFirst, errSecond := errors.New("first"), errors.New("second")
	scenarios := []Scenario{
		{"X", "fails first", func(context.Context, *broker.Broker) error { return errFirst }},
		{"Y", "passes", func(context.Context, *broker.Broker) error { return nil }},
		{"Z", "fails second", func(context.Context, *broker.Broker) error { return errSecond }},
	}

	var out bytes.Buffer
	err := runScenarios(context.Background(), &out, app.Broker(), scenarios, nil)
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("multierr.Errors() = %d errors, want 2: %v", len(errs), err)
	}
	if !errors.Is(errs[0], errFirst) || !errors.Is(errs[1], errSecond) {
		t.Errorf("runScenarios() = %v, want first then second", err)
	}
	if !strings.Contains(errs[0].Error(), "scenario X") {
		t.Errorf("errs[0] = %q, want it to name scenario X", errs[0])
	}
	if got := strings.Count(out.String(), "FAIL "); got != 2 {
		t.Errorf("output has %d FAIL lines, want 2:\n%s", got, out.String())
	}
}
