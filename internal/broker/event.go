package broker

import (
	"context"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

// EventSource is the publisher-side end of a publication. It is
// implemented only by Event.
type EventSource interface {
	// ArgsType returns the event-argument type the event is raised with.
	ArgsType() reflect.Type

	bind(p *Publication)
	unbind(p *Publication)
}

// Event is a raiseable event embedded as a field in a publisher. The zero
// value is ready to use; raising an event that is not bound to any topic
// does nothing. An Event must not be copied after it has been bound.
type Event[A any] struct {
	mu   sync.Mutex
	pubs atomic.Pointer[[]*Publication]
}

// ArgsType implements EventSource.
func (e *Event[A]) ArgsType() reflect.Type {
	return reflect.TypeFor[A]()
}

// Raise fires every topic the event is bound to.
func (e *Event[A]) Raise(sender any, args A) error {
	return e.RaiseContext(context.Background(), sender, args)
}

// RaiseContext fires every topic the event is bound to, passing ctx to
// the handlers. It stops at the first failure a synchronous subscriber
// left unhandled, returned as a *SubscriberError. A synchronous handler
// that cannot deliver at all returns its own error unwrapped, e.g.
// uithread.ErrStopped once the UI dispatcher stopped.
func (e *Event[A]) RaiseContext(ctx context.Context, sender any, args A) error {
	pubs := e.pubs.Load()
	if pubs == nil {
		return nil
	}
	for _, p := range *pubs {
		if err := p.fire(ctx, sender, args); err != nil {
			return err
		}
	}
	return nil
}

// Bound reports whether the event is bound to at least one topic.
func (e *Event[A]) Bound() bool {
	pubs := e.pubs.Load()
	return pubs != nil && len(*pubs) > 0
}

func (e *Event[A]) bind(p *Publication) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var next []*Publication
	if cur := e.pubs.Load(); cur != nil {
		next = slices.Clone(*cur)
	}
	next = append(next, p)
	e.pubs.Store(&next)
}

func (e *Event[A]) unbind(p *Publication) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.pubs.Load()
	if cur == nil {
		return
	}
	next := slices.DeleteFunc(slices.Clone(*cur), func(q *Publication) bool { return q == p })
	e.pubs.Store(&next)
}
