package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testManifest = `types:
  - type: "*app.Clock"
    publications:
      - topic: topic://clock/tick
        event: Tick
  - type: "*app.View"
    subscriptions:
      - topic: topic://clock/tick
        method: OnTick
        handler: background
      - topic: topic://clock/alarm
        method: OnAlarm
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "broker.yaml")
	if err := os.WriteFile(path, []byte(testManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDemoCommand(t *testing.T) {
	out, err := execute(t, "demo", "--log-level", "error")
	if err != nil {
		t.Fatalf("demo failed: %v\n%s", err, out)
	}
	if got := strings.Count(out, "PASS "); got != 5 {
		t.Errorf("demo reported %d passes, want 5:\n%s", got, out)
	}
}

func TestDemoCommand_InvalidLogLevel(t *testing.T) {
	if _, err := execute(t, "demo", "--log-level", "loud"); err == nil {
		t.Error("demo with an invalid log level succeeded, want error")
	}
}

func TestInspectCommand(t *testing.T) {
	path := writeManifest(t)

	out, err := execute(t, "inspect", path)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("inspect printed %d lines, want 3:\n%s", len(lines), out)
	}
	if fields := strings.Fields(lines[2]); len(fields) != 3 || fields[0] != "*app.View" || fields[2] != "2" {
		t.Errorf("inspect row = %q, want *app.View with 2 subscriptions", lines[2])
	}
}

func TestInspectCommand_Output(t *testing.T) {
	path := writeManifest(t)

	out, err := execute(t, "inspect", path, "--output", "toml")
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if !strings.Contains(out, "[[types]]") || !strings.Contains(out, "OnAlarm") {
		t.Errorf("inspect --output toml = %q", out)
	}

	if _, err := execute(t, "inspect", path, "--output", "json"); err == nil {
		t.Error("inspect --output json succeeded, want error")
	}
}

func TestInspectCommand_Errors(t *testing.T) {
	if _, err := execute(t, "inspect"); err == nil {
		t.Error("inspect without arguments succeeded, want error")
	}
	if _, err := execute(t, "inspect", filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("inspect of a missing file succeeded, want error")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "eventbroker "+version) {
		t.Errorf("version = %q", out)
	}
}
