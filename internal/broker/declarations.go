package broker

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/dshills/eventbroker/internal/broker/handler"
	"github.com/dshills/eventbroker/internal/broker/matcher"
)

// PublicationDescriptor declares that an event of an instance publishes
// to a topic.
type PublicationDescriptor struct {
	// Topic is the topic URI.
	Topic string

	// Event is the event field of the instance.
	Event EventSource

	// Restriction limits the handler kinds of subscriptions.
	Restriction HandlerRestriction

	// Matchers are the publication-scoped matchers.
	Matchers []matcher.Matcher
}

// SubscriptionDescriptor declares that a method of an instance subscribes
// to a topic.
type SubscriptionDescriptor struct {
	// Topic is the topic URI.
	Topic string

	// Method is the subscriber method.
	Method handler.MethodDescriptor

	// Handler is the dispatch strategy; nil means inline.
	Handler handler.Handler

	// Matchers are the subscription-scoped matchers.
	Matchers []matcher.Matcher
}

// Declarations lists what one instance publishes and subscribes to.
type Declarations struct {
	Publications  []PublicationDescriptor
	Subscriptions []SubscriptionDescriptor
}

// Empty reports whether nothing is declared.
func (d *Declarations) Empty() bool {
	return len(d.Publications) == 0 && len(d.Subscriptions) == 0
}

// PublicationOption configures a publication declaration.
type PublicationOption func(*PublicationDescriptor)

// WithRestriction sets the handler restriction of a publication.
func WithRestriction(r HandlerRestriction) PublicationOption {
	return func(d *PublicationDescriptor) {
		d.Restriction = r
	}
}

// WithPublicationMatchers appends publication-scoped matchers.
func WithPublicationMatchers(ms ...matcher.Matcher) PublicationOption {
	return func(d *PublicationDescriptor) {
		d.Matchers = append(d.Matchers, ms...)
	}
}

// SubscriptionOption configures a subscription declaration.
type SubscriptionOption func(*SubscriptionDescriptor)

// WithHandler sets the dispatch strategy of a subscription.
func WithHandler(h handler.Handler) SubscriptionOption {
	return func(d *SubscriptionDescriptor) {
		d.Handler = h
	}
}

// WithSubscriptionMatchers appends subscription-scoped matchers.
func WithSubscriptionMatchers(ms ...matcher.Matcher) SubscriptionOption {
	return func(d *SubscriptionDescriptor) {
		d.Matchers = append(d.Matchers, ms...)
	}
}

// Publish declares that event publishes to the topic uri. event must be a
// field of the instance being declared.
func Publish[A any](d *Declarations, uri string, event *Event[A], opts ...PublicationOption) {
	desc := PublicationDescriptor{Topic: uri}
	if event != nil {
		desc.Event = event
	}
	for _, opt := range opts {
		opt(&desc)
	}
	d.Publications = append(d.Publications, desc)
}

// Subscribe declares that method subscribes to the topic uri. method is a
// method expression such as (*View).OnTick; the broker calls it with the
// registered instance as receiver, so no strong reference to the
// subscriber is captured.
func Subscribe[S, A any](d *Declarations, uri string, method func(S, any, A) error, opts ...SubscriptionOption) {
	desc := SubscriptionDescriptor{
		Topic:  uri,
		Method: Method(method),
	}
	for _, opt := range opts {
		opt(&desc)
	}
	d.Subscriptions = append(d.Subscriptions, desc)
}

// Method describes a method expression for use in a SubscriptionDescriptor.
func Method[S, A any](method func(S, any, A) error) handler.MethodDescriptor {
	md := handler.MethodDescriptor{
		Receiver: reflect.TypeFor[S](),
		Args:     reflect.TypeFor[A](),
	}
	if method == nil {
		return md
	}
	md.Name = funcName(method)
	md.Invoke = func(target, sender, args any) error {
		s, _ := target.(S)
		a, _ := args.(A)
		return method(s, sender, a)
	}
	return md
}

// funcName shortens the runtime name of fn to "(*Type).Method".
func funcName(fn any) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return "<unknown>"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

// Inspector produces the declarations of an instance.
type Inspector interface {
	Inspect(instance any) (Declarations, error)
}

// InspectorFunc adapts a function into an Inspector.
type InspectorFunc func(instance any) (Declarations, error)

// Inspect implements Inspector.
func (f InspectorFunc) Inspect(instance any) (Declarations, error) {
	return f(instance)
}

// Declarer is implemented by instances that declare their own events.
type Declarer interface {
	DeclareEvents(d *Declarations)
}

// DeclarerInspector inspects instances implementing Declarer. Other
// instances declare nothing.
type DeclarerInspector struct{}

// Inspect implements Inspector.
func (DeclarerInspector) Inspect(instance any) (Declarations, error) {
	var d Declarations
	if dec, ok := instance.(Declarer); ok {
		dec.DeclareEvents(&d)
	}
	return d, nil
}

// Inspectors chains inspectors; the declarations they return are
// concatenated in order.
func Inspectors(inspectors ...Inspector) Inspector {
	return InspectorFunc(func(instance any) (Declarations, error) {
		var all Declarations
		for _, in := range inspectors {
			d, err := in.Inspect(instance)
			if err != nil {
				return Declarations{}, err
			}
			all.Publications = append(all.Publications, d.Publications...)
			all.Subscriptions = append(all.Subscriptions, d.Subscriptions...)
		}
		return all, nil
	})
}
