package handler

import (
	"errors"
	"fmt"
)

// Sentinel errors for the handler package.
var (
	// ErrQueueFull is returned when a worker queue cannot accept more calls.
	ErrQueueFull = errors.New("handler queue is full")

	// ErrStopped is returned when a call is handed to a stopped worker.
	ErrStopped = errors.New("handler worker is stopped")

	// ErrAlreadyRunning is returned when Start is called on a running pool.
	ErrAlreadyRunning = errors.New("handler pool is already running")

	// ErrNotOnUIThread is returned when a UI-affine subscription is
	// registered outside of the designated UI goroutine.
	ErrNotOnUIThread = errors.New("ui handler must be registered on the ui goroutine")

	// ErrNoPool is returned when a fire-and-forget handler has no pool.
	ErrNoPool = errors.New("no worker pool available")
)

// PanicError wraps a value recovered from a panicking subscriber method.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("subscriber panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
