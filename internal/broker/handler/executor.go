package handler

import (
	"context"
	"runtime/debug"
	"time"
)

// Result represents the outcome of one subscriber call.
type Result struct {
	// Error is the error returned by the call, if any.
	Error error

	// Panicked is true if the call panicked.
	Panicked bool

	// PanicValue is the value passed to panic(), if Panicked is true.
	PanicValue any

	// PanicStack is the stack trace at the point of panic.
	PanicStack []byte

	// Duration is how long the call took.
	Duration time.Duration
}

// IsSuccess returns true if the call completed without error or panic.
func (r Result) IsSuccess() bool {
	return r.Error == nil && !r.Panicked
}

// Err returns the failure as an error: the returned error, a *PanicError,
// or nil on success.
func (r Result) Err() error {
	if r.Panicked {
		return &PanicError{Value: r.PanicValue, Stack: r.PanicStack}
	}
	return r.Error
}

// Execute runs fn, recovering from panics and capturing timing
// information. The context is passed through untouched; cancellation is
// the callee's concern.
func Execute(ctx context.Context, fn func(ctx context.Context) error) (result Result) {
	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = debug.Stack()
		}
	}()

	result.Error = fn(ctx)
	return result
}
