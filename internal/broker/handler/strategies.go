package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/eventbroker/internal/broker/uithread"
)

// Inline runs the subscriber method on the firing goroutine. The firing
// call blocks until the method returns and sees its failure.
type Inline struct{}

// OnPublisher returns the inline handler.
func OnPublisher() Inline {
	return Inline{}
}

// Kind implements Handler.
func (Inline) Kind() Kind { return KindInline }

// Initialize implements Handler.
func (Inline) Initialize(context.Context, any, MethodDescriptor, Host) error { return nil }

// Handle implements Handler.
func (Inline) Handle(ctx context.Context, _ string, _, _, _ any, invoke Invoker) error {
	return invoke(ctx)
}

// Background runs calls on one dedicated worker in FIFO order. Every
// subscription initialized with the same Background value shares its
// worker; the worker stops when the last of them is released.
type Background struct {
	opts []PoolOption

	mu   sync.Mutex
	pool *Pool
	refs int
}

// OnBackground returns a handler owning a single-worker queue.
func OnBackground(opts ...PoolOption) *Background {
	return &Background{opts: opts}
}

// Kind implements Handler.
func (h *Background) Kind() Kind { return KindBackground }

// Initialize starts the worker on first use.
func (h *Background) Initialize(_ context.Context, _ any, _ MethodDescriptor, host Host) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pool == nil {
		opts := append([]PoolOption{WithLogger(host.Logger())}, h.opts...)
		opts = append(opts, WithWorkerCount(1))
		pool := NewPool(opts...)
		if err := pool.Start(); err != nil {
			return err
		}
		h.pool = pool
	}
	h.refs++
	return nil
}

// Handle queues the call and returns immediately.
func (h *Background) Handle(ctx context.Context, topic string, _, _, _ any, invoke Invoker) error {
	h.mu.Lock()
	pool := h.pool
	h.mu.Unlock()

	if pool == nil {
		return ErrStopped
	}
	return pool.Enqueue(ctx, topic, invoke)
}

// Release drops one reference and stops the worker after the last one,
// letting queued calls drain first.
func (h *Background) Release(ctx context.Context) error {
	h.mu.Lock()
	if h.refs > 0 {
		h.refs--
	}
	if h.refs > 0 || h.pool == nil {
		h.mu.Unlock()
		return nil
	}
	pool := h.pool
	h.pool = nil
	h.mu.Unlock()

	return pool.Stop(ctx)
}

// Stats returns the worker statistics; zero when no worker is running.
func (h *Background) Stats() PoolStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pool == nil {
		return PoolStats{}
	}
	return h.pool.Stats()
}

// Pooled hands calls to the broker's shared pool. Calls complete in no
// particular order.
type Pooled struct {
	mu   sync.Mutex
	pool *Pool
}

// FireAndForget returns a handler dispatching onto the shared pool.
func FireAndForget() *Pooled {
	return &Pooled{}
}

// Kind implements Handler.
func (h *Pooled) Kind() Kind { return KindPool }

// Initialize captures the host pool.
func (h *Pooled) Initialize(_ context.Context, _ any, _ MethodDescriptor, host Host) error {
	pool := host.Pool()
	if pool == nil {
		return ErrNoPool
	}

	h.mu.Lock()
	h.pool = pool
	h.mu.Unlock()
	return nil
}

// Handle queues the call and returns immediately.
func (h *Pooled) Handle(ctx context.Context, topic string, _, _, _ any, invoke Invoker) error {
	h.mu.Lock()
	pool := h.pool
	h.mu.Unlock()

	if pool == nil {
		return ErrNoPool
	}
	return pool.Enqueue(ctx, topic, invoke)
}

// UserInterface runs calls on the UI goroutine captured at registration.
type UserInterface struct {
	async bool

	mu         sync.Mutex
	dispatcher *uithread.Dispatcher
	logger     *zap.Logger
}

// OnUserInterface returns a handler that marshals calls to the UI
// goroutine and waits for them.
func OnUserInterface() *UserInterface {
	return &UserInterface{}
}

// OnUserInterfaceAsync returns a handler that posts calls to the UI
// goroutine without waiting.
func OnUserInterfaceAsync() *UserInterface {
	return &UserInterface{async: true}
}

// Kind implements Handler.
func (h *UserInterface) Kind() Kind {
	if h.async {
		return KindUIAsync
	}
	return KindUISync
}

// Initialize captures the dispatcher running the registration. It fails
// when registration happens off the UI goroutine, or on a different one
// than a previous subscription sharing this handler.
func (h *UserInterface) Initialize(ctx context.Context, _ any, _ MethodDescriptor, host Host) error {
	d, ok := uithread.FromContext(ctx)
	if !ok {
		return ErrNotOnUIThread
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dispatcher != nil && h.dispatcher != d {
		return ErrNotOnUIThread
	}
	h.dispatcher = d
	h.logger = host.Logger()
	return nil
}

// Handle marshals the call to the UI goroutine.
func (h *UserInterface) Handle(ctx context.Context, topic string, _, _, _ any, invoke Invoker) error {
	h.mu.Lock()
	d, logger := h.dispatcher, h.logger
	h.mu.Unlock()

	if d == nil {
		return ErrNotOnUIThread
	}

	if !h.async {
		return d.Invoke(ctx, func(uctx context.Context) error {
			return invoke(uctx)
		})
	}

	return d.Post(func(uctx context.Context) {
		if err := invoke(uctx); err != nil {
			logger.Error("asynchronous subscriber failed",
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	})
}
