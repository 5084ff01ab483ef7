package handler

import (
	"context"
	"errors"
	"testing"
)

func TestExecute(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name     string
		fn       func(context.Context) error
		success  bool
		panicked bool
		wantErr  error
	}{
		{"success", func(context.Context) error { return nil }, true, false, nil},
		{"error", func(context.Context) error { return errBoom }, false, false, errBoom},
		{"panic with value", func(context.Context) error { panic("kaboom") }, false, true, nil},
		{"panic with error", func(context.Context) error { panic(errBoom) }, false, true, errBoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Execute(context.Background(), tt.fn)

			if res.IsSuccess() != tt.success {
				t.Errorf("IsSuccess() = %v, want %v", res.IsSuccess(), tt.success)
			}
			if res.Panicked != tt.panicked {
				t.Errorf("Panicked = %v, want %v", res.Panicked, tt.panicked)
			}
			if tt.panicked {
				var pe *PanicError
				if !errors.As(res.Err(), &pe) || len(pe.Stack) == 0 {
					t.Errorf("Err() = %v, want *PanicError with stack", res.Err())
				}
			}
			if tt.wantErr != nil && !errors.Is(res.Err(), tt.wantErr) {
				t.Errorf("Err() = %v, want %v", res.Err(), tt.wantErr)
			}
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		kind Kind
		name string
		sync bool
	}{
		{KindInline, "inline", true},
		{KindBackground, "background", false},
		{KindUISync, "ui", true},
		{KindUIAsync, "ui-async", false},
		{KindPool, "pool", false},
		{Kind(42), "unknown", false},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.name {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.name)
		}
		if got := tt.kind.Synchronous(); got != tt.sync {
			t.Errorf("Kind(%d).Synchronous() = %v, want %v", tt.kind, got, tt.sync)
		}
	}
}
