package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/dshills/eventbroker/internal/broker"
	"github.com/dshills/eventbroker/internal/broker/matcher"
)

// Scenario is one self-checking demonstration of broker behavior.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, b *broker.Broker) error
}

// Scenarios returns the demonstrations in order.
func Scenarios() []Scenario {
	return []Scenario{
		{"A", "inline delivery before Raise returns", scenarioInline},
		{"B", "canceled arguments skip later subscribers", scenarioCancel},
		{"C", "scope routing reaches twins and children only", scenarioScope},
		{"D", "two publishers share one topic", scenarioSharedTopic},
		{"E", "unhandled failures reach the publisher, handled ones do not", scenarioFailure},
	}
}

// RunScenarios runs the named scenarios, or all when names is empty, and
// writes one PASS or FAIL line per scenario to w. The returned error
// combines the failures; multierr.Errors splits it again.
func (app *Application) RunScenarios(ctx context.Context, w io.Writer, names ...string) error {
	return runScenarios(ctx, w, app.broker, Scenarios(), names)
}

func runScenarios(ctx context.Context, w io.Writer, b *broker.Broker, scenarios []Scenario, names []string) error {
	var failed []error
	for _, s := range scenarios {
		if len(names) > 0 && !slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, s.Name) }) {
			continue
		}
		if err := s.Run(ctx, b); err != nil {
			fmt.Fprintf(w, "FAIL %s  %s: %v\n", s.Name, s.Description, err)
			failed = append(failed, fmt.Errorf("scenario %s: %w", s.Name, err))
			continue
		}
		fmt.Fprintf(w, "PASS %s  %s\n", s.Name, s.Description)
	}
	return multierr.Combine(failed...)
}

// document publishes a change event to its topic.
type document struct {
	topic   string
	Changed broker.Event[*broker.EventArgs]
}

func (d *document) DeclareEvents(decl *broker.Declarations) {
	broker.Publish(decl, d.topic, &d.Changed)
}

// documentView counts the change events it receives.
type documentView struct {
	topic    string
	calls    atomic.Int32
	lastArgs atomic.Pointer[broker.EventArgs]
}

func (v *documentView) DeclareEvents(decl *broker.Declarations) {
	broker.Subscribe(decl, v.topic, (*documentView).OnChanged,
		broker.WithSubscriptionMatchers(matcher.AlwaysTrue()),
	)
}

func (v *documentView) OnChanged(_ any, args *broker.EventArgs) error {
	v.lastArgs.Store(args)
	v.calls.Add(1)
	return nil
}

func scenarioInline(ctx context.Context, b *broker.Broker) error {
	const topic = "topic://demo/a/changed"
	doc := &document{topic: topic}
	view := &documentView{topic: topic}
	if err := registerAll(ctx, b, doc, view); err != nil {
		return err
	}
	defer unregisterAll(b, doc, view)

	if err := doc.Changed.RaiseContext(ctx, doc, broker.Empty); err != nil {
		return err
	}
	if n := view.calls.Load(); n != 1 {
		return fmt.Errorf("view called %d times before Raise returned, want 1", n)
	}
	if view.lastArgs.Load() != broker.Empty {
		return errors.New("view did not receive the published arguments")
	}
	return nil
}

// closer asks whether it may close.
type closer struct {
	Closing broker.Event[*broker.CancelEventArgs]
}

func (c *closer) DeclareEvents(decl *broker.Declarations) {
	broker.Publish(decl, "topic://demo/b/closing", &c.Closing)
}

// vetoer cancels every close request.
type vetoer struct {
	topic  string
	vetoes atomic.Int32
}

func (v *vetoer) DeclareEvents(decl *broker.Declarations) {
	broker.Subscribe(decl, v.topic, (*vetoer).OnClosing)
}

func (v *vetoer) OnClosing(_ any, args *broker.CancelEventArgs) error {
	args.Cancel = true
	v.vetoes.Add(1)
	return nil
}

// closeListener only wants close requests nobody vetoed.
type closeListener struct {
	topic string
	calls atomic.Int32
}

func (l *closeListener) DeclareEvents(decl *broker.Declarations) {
	broker.Subscribe(decl, l.topic, (*closeListener).OnClosing,
		broker.WithSubscriptionMatchers(matcher.NotAlreadyCanceled()),
	)
}

func (l *closeListener) OnClosing(any, *broker.CancelEventArgs) error {
	l.calls.Add(1)
	return nil
}

func scenarioCancel(ctx context.Context, b *broker.Broker) error {
	const topic = "topic://demo/b/closing"
	c, veto, listener := &closer{}, &vetoer{topic: topic}, &closeListener{topic: topic}
	if err := registerAll(ctx, b, c, veto, listener); err != nil {
		return err
	}
	defer unregisterAll(b, c, veto, listener)

	args := &broker.CancelEventArgs{}
	if err := c.Closing.RaiseContext(ctx, c, args); err != nil {
		return err
	}
	if !args.Cancel || veto.vetoes.Load() != 1 {
		return errors.New("close request was not vetoed")
	}
	if n := listener.calls.Load(); n != 0 {
		return fmt.Errorf("listener saw a canceled request %d times", n)
	}
	return nil
}

// node is a named publisher in a scope hierarchy.
type node struct {
	name    string
	Changed broker.Event[*broker.EventArgs]
}

func (n *node) BrokerName() string { return n.name }

func (n *node) DeclareEvents(decl *broker.Declarations) {
	broker.Publish(decl, "topic://demo/c/changed", &n.Changed,
		broker.WithPublicationMatchers(matcher.PublishToChildren()),
	)
}

// nodeListener is a named subscriber in a scope hierarchy.
type nodeListener struct {
	name  string
	calls atomic.Int32
}

func (l *nodeListener) BrokerName() string { return l.name }

func (l *nodeListener) DeclareEvents(decl *broker.Declarations) {
	broker.Subscribe(decl, "topic://demo/c/changed", (*nodeListener).OnChanged,
		broker.WithSubscriptionMatchers(matcher.AlwaysTrue()),
	)
}

func (l *nodeListener) OnChanged(any, *broker.EventArgs) error {
	l.calls.Add(1)
	return nil
}

func scenarioScope(ctx context.Context, b *broker.Broker) error {
	pub := &node{name: "Test.One"}
	listeners := []*nodeListener{
		{name: "Test"},
		{name: "Test.One"},
		{name: "Test.Two"},
		{name: "Test.One.Child"},
	}
	all := []any{pub}
	for _, l := range listeners {
		all = append(all, l)
	}
	if err := registerAll(ctx, b, all...); err != nil {
		return err
	}
	defer unregisterAll(b, all...)

	if err := pub.Changed.RaiseContext(ctx, pub, broker.Empty); err != nil {
		return err
	}

	want := map[string]int32{"Test": 0, "Test.One": 1, "Test.Two": 0, "Test.One.Child": 1}
	for _, l := range listeners {
		if got := l.calls.Load(); got != want[l.name] {
			return fmt.Errorf("%s received %d events, want %d", l.name, got, want[l.name])
		}
	}
	return nil
}

func scenarioSharedTopic(ctx context.Context, b *broker.Broker) error {
	const topic = "topic://demo/d/changed"
	first, second := &document{topic: topic}, &document{topic: topic}
	view := &documentView{topic: topic}
	if err := registerAll(ctx, b, first, second, view); err != nil {
		return err
	}
	defer unregisterAll(b, first, second, view)

	if err := first.Changed.RaiseContext(ctx, first, broker.Empty); err != nil {
		return err
	}
	if err := second.Changed.RaiseContext(ctx, second, broker.Empty); err != nil {
		return err
	}
	if n := view.calls.Load(); n != 2 {
		return fmt.Errorf("view called %d times, want 2", n)
	}
	return nil
}

var errDemoFailure = errors.New("subscriber refused the event")

// faulty fails every delivery.
type faulty struct{ topic string }

func (f *faulty) DeclareEvents(decl *broker.Declarations) {
	broker.Subscribe(decl, f.topic, (*faulty).OnChanged)
}

func (f *faulty) OnChanged(any, *broker.EventArgs) error { return errDemoFailure }

// failureHandler marks failures on one topic as handled.
type failureHandler struct {
	broker.NopExtension
	topic   string
	handled atomic.Int32
}

func (h *failureHandler) SubscriberExceptionOccurred(ec *broker.ExceptionContext) {
	if ec.Topic.URI() == h.topic {
		ec.Handled = true
		h.handled.Add(1)
	}
}

func scenarioFailure(ctx context.Context, b *broker.Broker) error {
	const unhandled, handled = "topic://demo/e/unhandled", "topic://demo/e/handled"

	doc, sub := &document{topic: unhandled}, &faulty{topic: unhandled}
	if err := registerAll(ctx, b, doc, sub); err != nil {
		return err
	}
	defer unregisterAll(b, doc, sub)

	err := doc.Changed.RaiseContext(ctx, doc, broker.Empty)
	var serr *broker.SubscriberError
	if !errors.As(err, &serr) || !errors.Is(err, errDemoFailure) {
		return fmt.Errorf("Raise() = %v, want the subscriber failure", err)
	}

	// Extensions cannot be removed; this one only reacts to its own topic.
	ext := &failureHandler{topic: handled}
	if err := b.AddExtension(ext); err != nil {
		return err
	}
	hdoc, hsub := &document{topic: handled}, &faulty{topic: handled}
	if err := registerAll(ctx, b, hdoc, hsub); err != nil {
		return err
	}
	defer unregisterAll(b, hdoc, hsub)

	if err := hdoc.Changed.RaiseContext(ctx, hdoc, broker.Empty); err != nil {
		return fmt.Errorf("Raise() = %v, want nil once an extension handled the failure", err)
	}
	if ext.handled.Load() != 1 {
		return errors.New("extension did not see the failure")
	}
	return nil
}

func registerAll(ctx context.Context, b *broker.Broker, items ...any) error {
	for i, item := range items {
		if err := b.RegisterContext(ctx, item); err != nil {
			unregisterAll(b, items[:i]...)
			return err
		}
	}
	return nil
}

// unregisterAll also keeps items reachable until the scenario is over.
func unregisterAll(b *broker.Broker, items ...any) {
	for _, item := range items {
		_ = b.Unregister(item)
	}
	runtime.KeepAlive(items)
}

// Compile-time check that the demo failure handler is an extension.
var _ broker.Extension = (*failureHandler)(nil)
