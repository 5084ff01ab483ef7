package app

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrShutdownTimeout is joined to the dispose error when the broker
	// did not stop within the shutdown timeout.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// InitError reports the component that failed while New was bootstrapping.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializing %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// ComponentError reports a failed action of a running component.
type ComponentError struct {
	Component string // "broker", "manifest", "ui"
	Action    string // optional, e.g. "dispose"
	Err       error
}

func (e *ComponentError) Error() string {
	if e.Action == "" {
		return e.Component + ": " + e.Err.Error()
	}
	return e.Component + ": " + e.Action + ": " + e.Err.Error()
}

func (e *ComponentError) Unwrap() error { return e.Err }
