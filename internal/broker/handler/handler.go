package handler

import (
	"context"
	"reflect"

	"go.uber.org/zap"
)

// Kind classifies when and where a handler runs the subscriber method
// relative to the firing call.
type Kind int

const (
	// KindInline runs the subscriber method on the firing goroutine.
	KindInline Kind = iota

	// KindBackground queues the call to a dedicated FIFO worker.
	KindBackground

	// KindUISync marshals the call to the UI goroutine and waits for it.
	KindUISync

	// KindUIAsync posts the call to the UI goroutine and returns.
	KindUIAsync

	// KindPool hands the call to the shared fire-and-forget worker pool.
	KindPool
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindInline:
		return "inline"
	case KindBackground:
		return "background"
	case KindUISync:
		return "ui"
	case KindUIAsync:
		return "ui-async"
	case KindPool:
		return "pool"
	default:
		return "unknown"
	}
}

// Synchronous reports whether the firing call blocks until the subscriber
// method returns. Only synchronous kinds make by-reference mutation of the
// event arguments visible to the publisher.
func (k Kind) Synchronous() bool {
	return k == KindInline || k == KindUISync
}

// Invoker calls the subscriber method for one relay. It returns the
// subscriber failure that no extension marked as handled, or nil.
type Invoker func(ctx context.Context) error

// MethodDescriptor describes a subscriber method bound to a topic.
type MethodDescriptor struct {
	// Name identifies the method, e.g. "(*Clock).OnTick".
	Name string

	// Receiver is the type the subscriber instance must be assignable to.
	// A nil receiver marks a function that is not bound to any instance.
	Receiver reflect.Type

	// Args is the event-argument type the method accepts.
	Args reflect.Type

	// Invoke calls the method on target.
	Invoke func(target, sender, args any) error
}

// Host is the broker-side environment a handler is initialized with.
type Host interface {
	// Logger returns the broker logger.
	Logger() *zap.Logger

	// Pool returns the shared fire-and-forget pool.
	Pool() *Pool
}

// Handler is a dispatch strategy deciding the execution context of a
// subscriber invocation. One Handler value may serve many subscriptions.
type Handler interface {
	// Kind returns the threading semantics of the handler.
	Kind() Kind

	// Initialize is called once per subscription at registration time.
	// ctx is the registration context. Implementations must not retain
	// subscriber, which is only borrowed for the duration of the call.
	Initialize(ctx context.Context, subscriber any, method MethodDescriptor, host Host) error

	// Handle delivers one event. invoke performs the actual call, including
	// failure reporting; synchronous kinds return its result.
	Handle(ctx context.Context, topic string, subscriber, sender, args any, invoke Invoker) error
}

// Releaser is implemented by handlers owning resources per subscription.
// Release is called once for every successful Initialize when the
// subscription is removed or the broker is disposed.
type Releaser interface {
	Release(ctx context.Context) error
}
