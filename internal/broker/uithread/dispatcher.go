// Package uithread provides a designated single-goroutine execution
// context, the equivalent of a UI thread.
//
// A Dispatcher owns one goroutine, the one calling Run. Work is marshaled
// to it with Post (fire and forget) or Invoke (wait for completion). Every
// function executed by the loop receives a context marked with the
// dispatcher, so code can tell whether it is already running on it:
//
//	ui := uithread.New()
//	go ui.Run(ctx)
//
//	ui.Invoke(ctx, func(ctx context.Context) error {
//	    // ctx carries ui; registration of UI-affine subscriptions succeeds here.
//	    return b.RegisterContext(ctx, window)
//	})
package uithread

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// Sentinel errors for the uithread package.
var (
	// ErrStopped is returned when work is marshaled to a stopped dispatcher.
	ErrStopped = errors.New("ui dispatcher is stopped")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("ui dispatcher is already running")
)

type contextKey struct{}

// task is one unit of work for the loop. done is nil for posted work.
type task struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Dispatcher runs functions on one designated goroutine in FIFO order.
type Dispatcher struct {
	tasks chan task

	mu      sync.Mutex
	running bool
	stopped chan struct{}
	once    sync.Once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithQueueSize sets how many posted functions may wait for the loop.
func WithQueueSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.tasks = make(chan task, size)
		}
	}
}

// New creates a dispatcher. Nothing runs until Run is called.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tasks:   make(chan task, 256),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FromContext returns the dispatcher whose loop is executing the caller,
// if any.
func FromContext(ctx context.Context) (*Dispatcher, bool) {
	d, ok := ctx.Value(contextKey{}).(*Dispatcher)
	return d, ok
}

// OnThread reports whether ctx was handed out by this dispatcher's loop.
func (d *Dispatcher) OnThread(ctx context.Context) bool {
	cur, ok := FromContext(ctx)
	return ok && cur == d
}

// Run executes queued functions on the calling goroutine until ctx is
// done or Stop is called. Functions still queued when Run returns are
// discarded; waiting Invoke callers receive ErrStopped.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	d.mu.Unlock()

	defer d.Stop()

	loopCtx := context.WithValue(ctx, contextKey{}, d)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopped:
			return nil
		case t := <-d.tasks:
			err := d.execute(loopCtx, t.fn)
			if t.done != nil {
				t.done <- err
			}
		}
	}
}

// execute runs fn and keeps the loop alive when it panics.
func (d *Dispatcher) execute(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ui task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Stop ends the loop. It is safe to call more than once.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		close(d.stopped)
	})
}

// Post queues fn for execution on the loop and returns immediately.
func (d *Dispatcher) Post(fn func(ctx context.Context)) error {
	t := task{fn: func(ctx context.Context) error {
		fn(ctx)
		return nil
	}}

	select {
	case <-d.stopped:
		return ErrStopped
	default:
	}

	select {
	case d.tasks <- t:
		return nil
	case <-d.stopped:
		return ErrStopped
	}
}

// Invoke runs fn on the loop and waits for its result. When ctx already
// belongs to the loop, fn runs in place so that the loop never waits on
// itself.
func (d *Dispatcher) Invoke(ctx context.Context, fn func(ctx context.Context) error) error {
	if d.OnThread(ctx) {
		return fn(ctx)
	}

	t := task{fn: fn, done: make(chan error, 1)}

	select {
	case d.tasks <- t:
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-d.stopped:
		// The loop may have finished the task right before stopping.
		select {
		case err := <-t.done:
			return err
		default:
			return ErrStopped
		}
	}
}
