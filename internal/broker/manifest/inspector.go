package manifest

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/dshills/eventbroker/internal/broker"
	"github.com/dshills/eventbroker/internal/broker/handler"
	"github.com/dshills/eventbroker/internal/broker/matcher"
)

// ErrUnknownMember is returned when a manifest names a field or method the
// type does not have.
var ErrUnknownMember = errors.New("unknown member")

var (
	anyType   = reflect.TypeFor[any]()
	errorType = reflect.TypeFor[error]()
)

// Inspector produces broker declarations from a manifest. It is safe for
// concurrent use; Swap replaces the manifest atomically.
type Inspector struct {
	background []handler.PoolOption
	current    atomic.Pointer[compiled]
}

// compiled is a manifest with its matchers and handlers built.
type compiled struct {
	manifest *Manifest
	types    map[string]*typeEntry
}

type typeEntry struct {
	pubs []pubEntry
	subs []subEntry
}

type pubEntry struct {
	topic       string
	field       string
	restriction broker.HandlerRestriction
	matchers    []matcher.Matcher
}

type subEntry struct {
	topic    string
	method   string
	handler  handler.Handler
	matchers []matcher.Matcher
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithBackgroundOptions configures the workers of background handlers.
func WithBackgroundOptions(opts ...handler.PoolOption) Option {
	return func(in *Inspector) {
		in.background = append(in.background, opts...)
	}
}

// NewInspector compiles m into an inspector.
func NewInspector(m *Manifest, opts ...Option) (*Inspector, error) {
	in := &Inspector{}
	for _, opt := range opts {
		opt(in)
	}
	if err := in.Swap(m); err != nil {
		return nil, err
	}
	return in, nil
}

// Manifest returns the manifest currently in use.
func (in *Inspector) Manifest() *Manifest {
	return in.current.Load().manifest
}

// Swap replaces the manifest. Instances registered earlier keep the
// declarations they were registered with. On error the previous manifest
// stays in use.
func (in *Inspector) Swap(m *Manifest) error {
	if m == nil {
		m = &Manifest{}
	}
	c, err := in.compile(m)
	if err != nil {
		return err
	}
	in.current.Store(c)
	return nil
}

func (in *Inspector) compile(m *Manifest) (*compiled, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	c := &compiled{manifest: m, types: make(map[string]*typeEntry, len(m.Types))}
	for _, ts := range m.Types {
		entry := &typeEntry{}
		for _, ps := range ts.Publications {
			restriction, err := restrictionOf(ps.Restriction)
			if err != nil {
				return nil, err
			}
			ms, err := buildMatchers(ps.Matchers)
			if err != nil {
				return nil, err
			}
			entry.pubs = append(entry.pubs, pubEntry{
				topic:       ps.Topic,
				field:       ps.Event,
				restriction: restriction,
				matchers:    ms,
			})
		}
		for _, ss := range ts.Subscriptions {
			h, err := newHandler(ss.Handler, in.background)
			if err != nil {
				return nil, err
			}
			ms, err := buildMatchers(ss.Matchers)
			if err != nil {
				return nil, err
			}
			entry.subs = append(entry.subs, subEntry{
				topic:    ss.Topic,
				method:   ss.Method,
				handler:  h,
				matchers: ms,
			})
		}
		c.types[ts.Type] = entry
	}
	return c, nil
}

// Inspect implements broker.Inspector. Types missing from the manifest
// declare nothing.
func (in *Inspector) Inspect(instance any) (broker.Declarations, error) {
	var d broker.Declarations

	t := reflect.TypeOf(instance)
	if t == nil {
		return d, nil
	}
	entry, ok := in.current.Load().types[t.String()]
	if !ok {
		return d, nil
	}

	v := reflect.ValueOf(instance)
	var errs error
	for _, pe := range entry.pubs {
		ev, err := eventField(v, pe.field)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		d.Publications = append(d.Publications, broker.PublicationDescriptor{
			Topic:       pe.topic,
			Event:       ev,
			Restriction: pe.restriction,
			Matchers:    pe.matchers,
		})
	}
	for _, se := range entry.subs {
		md, err := methodOf(t, se.method)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		d.Subscriptions = append(d.Subscriptions, broker.SubscriptionDescriptor{
			Topic:    se.topic,
			Method:   md,
			Handler:  se.handler,
			Matchers: se.matchers,
		})
	}
	if errs != nil {
		return broker.Declarations{}, errs
	}
	return d, nil
}

// eventField returns the broker.Event field name of the struct v points to.
func eventField(v reflect.Value, name string) (broker.EventSource, error) {
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("event %s: %w: %s is not a struct pointer", name, broker.ErrSignature, v.Type())
	}
	f := v.Elem().FieldByName(name)
	if !f.IsValid() {
		return nil, fmt.Errorf("event %s: %w", name, ErrUnknownMember)
	}
	if !f.CanAddr() || !f.Addr().CanInterface() {
		return nil, fmt.Errorf("event %s: %w: field is not exported", name, broker.ErrSignature)
	}
	ev, ok := f.Addr().Interface().(broker.EventSource)
	if !ok {
		return nil, fmt.Errorf("event %s: %w: %s is not a broker.Event", name, broker.ErrSignature, f.Type())
	}
	return ev, nil
}

// methodOf describes the method name of t, which must have the signature
// func(sender any, args A) error.
func methodOf(t reflect.Type, name string) (handler.MethodDescriptor, error) {
	m, ok := t.MethodByName(name)
	if !ok {
		return handler.MethodDescriptor{}, fmt.Errorf("method %s: %w", name, ErrUnknownMember)
	}
	ft := m.Type
	if ft.NumIn() != 3 || ft.In(1) != anyType || ft.NumOut() != 1 || ft.Out(0) != errorType {
		return handler.MethodDescriptor{}, fmt.Errorf("method %s: %w: %s", name, broker.ErrSignature, ft)
	}

	args := ft.In(2)
	fn := m.Func
	return handler.MethodDescriptor{
		Name:     methodName(t, name),
		Receiver: t,
		Args:     args,
		Invoke: func(target, sender, a any) error {
			in := []reflect.Value{
				reflect.ValueOf(target),
				valueOr(sender, anyType),
				valueOr(a, args),
			}
			err, _ := fn.Call(in)[0].Interface().(error)
			return err
		},
	}, nil
}

// valueOr returns the value of v, or the zero value of t for nil.
func valueOr(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(v)
}

// methodName renders "(*Type).Method" like method expressions are named.
func methodName(t reflect.Type, name string) string {
	if t.Kind() == reflect.Pointer {
		return fmt.Sprintf("(*%s).%s", t.Elem().Name(), name)
	}
	return fmt.Sprintf("%s.%s", t.Name(), name)
}
