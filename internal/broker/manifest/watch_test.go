package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type reload struct {
	m   *Manifest
	err error
}

func TestWatch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "types.yaml")
	writeFile(t, path, "types: []\n")

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	in, err := NewInspector(m)
	if err != nil {
		t.Fatalf("NewInspector() error = %v", err)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	reloads := make(chan reload, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, in, zap.New(core),
			WithDebounce(50*time.Millisecond),
			WithReloadHook(func(m *Manifest, err error) { reloads <- reload{m, err} }),
		)
	}()
	// Give the watcher time to register before the first write.
	time.Sleep(50 * time.Millisecond)

	writeFile(t, path, clockYAML)
	r := nextReload(t, reloads)
	if r.err != nil {
		t.Fatalf("reload error = %v", r.err)
	}
	if got := len(in.Manifest().Types); got != 2 {
		t.Errorf("Manifest() has %d types after reload, want 2", got)
	}

	writeFile(t, path, "types:\n  - type: \"\"\n")
	r = nextReload(t, reloads)
	if r.err == nil {
		t.Fatal("reloading an invalid manifest should fail")
	}
	if got := len(in.Manifest().Types); got != 2 {
		t.Errorf("Manifest() has %d types after a failed reload, want the previous 2", got)
	}
	if logs.FilterMessage("manifest reload failed, keeping previous").Len() != 1 {
		t.Errorf("failed reload not logged: %v", logs.All())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() returned %v, want nil after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	in, _ := NewInspector(nil)
	path := filepath.Join(t.TempDir(), "missing", "types.yaml")

	if err := Watch(context.Background(), path, in, nil); err == nil {
		t.Error("Watch() should fail when the directory does not exist")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func nextReload(t *testing.T, reloads <-chan reload) reload {
	t.Helper()
	select {
	case r := <-reloads:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("manifest was not reloaded")
		return reload{}
	}
}
