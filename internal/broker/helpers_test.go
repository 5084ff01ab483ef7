package broker

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testTopic = "topic://test/changed"

// source publishes Changed on uri.
type source struct {
	name string
	uri  string
	opts []PublicationOption

	Changed Event[*EventArgs]
}

func (s *source) BrokerName() string { return s.name }

func (s *source) DeclareEvents(d *Declarations) {
	Publish(d, s.uri, &s.Changed, s.opts...)
}

// orderLog records names in call order across listeners.
type orderLog struct {
	mu    sync.Mutex
	names []string
}

func (o *orderLog) add(name string) {
	o.mu.Lock()
	o.names = append(o.names, name)
	o.mu.Unlock()
}

func (o *orderLog) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.names...)
}

// listener subscribes OnEvent to uri.
type listener struct {
	name      string
	uri       string
	opts      []SubscriptionOption
	fail      error
	panicWith any
	order     *orderLog

	calls atomic.Int32
	mu    sync.Mutex
	args  []*EventArgs
}

func (l *listener) BrokerName() string { return l.name }

func (l *listener) DeclareEvents(d *Declarations) {
	Subscribe(d, l.uri, (*listener).OnEvent, l.opts...)
}

func (l *listener) OnEvent(_ any, args *EventArgs) error {
	l.calls.Add(1)
	l.mu.Lock()
	l.args = append(l.args, args)
	l.mu.Unlock()
	if l.order != nil {
		l.order.add(l.name)
	}
	if l.panicWith != nil {
		panic(l.panicWith)
	}
	return l.fail
}

// cancelSource publishes Closing on uri.
type cancelSource struct {
	uri  string
	opts []PublicationOption

	Closing Event[*CancelEventArgs]
}

func (s *cancelSource) DeclareEvents(d *Declarations) {
	Publish(d, s.uri, &s.Closing, s.opts...)
}

// canceler subscribes OnClosing to uri and cancels when asked to.
type canceler struct {
	uri    string
	cancel bool
	opts   []SubscriptionOption

	calls atomic.Int32
}

func (c *canceler) DeclareEvents(d *Declarations) {
	Subscribe(d, c.uri, (*canceler).OnClosing, c.opts...)
}

func (c *canceler) OnClosing(_ any, args *CancelEventArgs) error {
	c.calls.Add(1)
	if c.cancel {
		args.Cancel = true
	}
	return nil
}

// recorder is an extension writing every callback into a log.
type recorder struct {
	NopExtension

	prefix   string
	handle   bool
	shared   *orderLog
	failures chan *ExceptionContext

	mu  sync.Mutex
	log []string
}

func (r *recorder) add(entry string) {
	r.mu.Lock()
	r.log = append(r.log, entry)
	r.mu.Unlock()
	if r.shared != nil {
		r.shared.add(r.prefix + entry)
	}
}

func (r *recorder) entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

func (r *recorder) has(entry string) bool {
	for _, e := range r.entries() {
		if e == entry {
			return true
		}
	}
	return false
}

func (r *recorder) Disposing(*Broker)      { r.add("Disposing") }
func (r *recorder) CreatedTopic(t *Topic)  { r.add("CreatedTopic " + t.URI()) }
func (r *recorder) DisposedTopic(t *Topic) { r.add("DisposedTopic " + t.URI()) }
func (r *recorder) RegisteredItem(any)     { r.add("RegisteredItem") }
func (r *recorder) UnregisteredItem(any)   { r.add("UnregisteredItem") }

func (r *recorder) CreatedPublication(_ *Topic, p *Publication) {
	r.add("CreatedPublication " + p.EventName())
}

func (r *recorder) AddedPublication(_ *Topic, p *Publication) {
	r.add("AddedPublication " + p.EventName())
}

func (r *recorder) RemovedPublication(_ *Topic, p *Publication) {
	r.add("RemovedPublication " + p.EventName())
}

func (r *recorder) CreatedSubscription(_ *Topic, s *Subscription) {
	r.add("CreatedSubscription " + s.Name())
}

func (r *recorder) AddedSubscription(_ *Topic, s *Subscription) {
	r.add("AddedSubscription " + s.Name())
}

func (r *recorder) RemovedSubscription(_ *Topic, s *Subscription) {
	r.add("RemovedSubscription " + s.Name())
}

func (r *recorder) FiringEvent(t *Topic, _ *Publication, _, _ any) {
	r.add("FiringEvent " + t.URI())
}

func (r *recorder) FiredEvent(t *Topic, _ *Publication, _, _ any) {
	r.add("FiredEvent " + t.URI())
}

func (r *recorder) RelayingEvent(_ *Topic, _ *Publication, s *Subscription, _, _ any) {
	r.add("RelayingEvent " + s.Name())
}

func (r *recorder) RelayedEvent(_ *Topic, _ *Publication, s *Subscription, _, _ any) {
	r.add("RelayedEvent " + s.Name())
}

func (r *recorder) SkippedEvent(_ *Topic, _ *Publication, s *Subscription, _, _ any) {
	r.add("SkippedEvent " + s.Name())
}

func (r *recorder) SubscriberExceptionOccurred(ec *ExceptionContext) {
	r.add("SubscriberExceptionOccurred " + ec.Subscription.Name())
	if r.handle {
		ec.Handled = true
	}
	if r.failures != nil {
		r.failures <- ec
	}
}

// newTestBroker returns a broker disposed at the end of the test.
func newTestBroker(t *testing.T, opts ...Option) *Broker {
	t.Helper()
	b := New(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.Dispose(ctx); err != nil {
			t.Errorf("Dispose() failed: %v", err)
		}
	})
	return b
}

func mustRegister(t *testing.T, b *Broker, instances ...any) {
	t.Helper()
	for _, in := range instances {
		if err := b.Register(in); err != nil {
			t.Fatalf("Register(%T) failed: %v", in, err)
		}
	}
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
