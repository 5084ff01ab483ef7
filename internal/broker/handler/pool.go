package handler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pool executes queued calls on a fixed set of worker goroutines.
// With one worker the pool preserves FIFO order; with more, calls
// complete in no particular order.
type Pool struct {
	// Configuration
	queueSize   int
	workerCount int
	logger      *zap.Logger

	// State
	mu      sync.RWMutex // protects queue creation/destruction and sends
	queue   chan call
	running atomic.Bool
	wg      sync.WaitGroup

	// Stats
	enqueued    atomic.Uint64
	processed   atomic.Uint64
	failed      atomic.Uint64
	dropped     atomic.Uint64
	totalTimeNs atomic.Int64
}

// call is one queued subscriber invocation.
type call struct {
	ctx    context.Context
	topic  string
	invoke Invoker
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithQueueSize sets the call queue size.
func WithQueueSize(size int) PoolOption {
	return func(p *Pool) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) PoolOption {
	return func(p *Pool) {
		if count > 0 {
			p.workerCount = count
		}
	}
}

// WithLogger sets the logger that receives failures no extension handled.
func WithLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a pool. Call Start before handing it calls.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		queueSize:   1024,
		workerCount: 4,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start starts the worker goroutines.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return ErrAlreadyRunning
	}

	p.queue = make(chan call, p.queueSize)
	p.running.Store(true)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(p.queue)
	}

	return nil
}

// Stop stops accepting calls and waits for the queued ones to finish or
// until the context is cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return ErrStopped
	}

	p.running.Store(false)
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue queues invoke for execution. The call outlives the firing
// context's cancellation; only its values are kept.
func (p *Pool) Enqueue(ctx context.Context, topic string, invoke Invoker) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		p.dropped.Add(1)
		return ErrStopped
	}

	c := call{
		ctx:    context.WithoutCancel(ctx),
		topic:  topic,
		invoke: invoke,
	}

	select {
	case p.queue <- c:
		p.enqueued.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// worker drains the queue it was started with.
func (p *Pool) worker(queue <-chan call) {
	defer p.wg.Done()

	for c := range queue {
		p.execute(c)
	}
}

// execute runs one call. Failures reaching this point were offered to the
// extensions already and nobody handled them, so they are logged and
// dropped: there is no caller left to return them to.
func (p *Pool) execute(c call) {
	result := Execute(c.ctx, func(ctx context.Context) error {
		return c.invoke(ctx)
	})

	p.processed.Add(1)
	p.totalTimeNs.Add(result.Duration.Nanoseconds())

	if err := result.Err(); err != nil {
		p.failed.Add(1)
		p.logger.Error("asynchronous subscriber failed",
			zap.String("topic", c.topic),
			zap.Error(err),
		)
	}
}

// IsRunning returns true if the pool accepts calls.
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// QueueDepth returns the current number of calls waiting in the queue.
func (p *Pool) QueueDepth() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		return 0
	}
	return len(p.queue)
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	processed := p.processed.Load()
	totalNs := p.totalTimeNs.Load()

	var avgNs int64
	if processed > 0 {
		avgNs = totalNs / int64(processed)
	}

	return PoolStats{
		Workers:       p.workerCount,
		QueueCapacity: p.queueSize,
		Enqueued:      p.enqueued.Load(),
		Processed:     processed,
		Failed:        p.failed.Load(),
		Dropped:       p.dropped.Load(),
		QueueDepth:    p.QueueDepth(),
		AvgDuration:   time.Duration(avgNs),
	}
}

// PoolStats contains statistics for a pool.
type PoolStats struct {
	// Workers is the number of worker goroutines.
	Workers int

	// QueueCapacity is the size of the call queue.
	QueueCapacity int

	// Enqueued is the total number of calls added to the queue.
	Enqueued uint64

	// Processed is the number of calls that have been executed.
	Processed uint64

	// Failed is the number of calls that ended with an unhandled failure.
	Failed uint64

	// Dropped is the number of calls rejected because the queue was full
	// or the pool was stopped.
	Dropped uint64

	// QueueDepth is the current number of calls waiting in the queue.
	QueueDepth int

	// AvgDuration is the average call duration.
	AvgDuration time.Duration
}
