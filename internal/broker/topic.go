package broker

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync/atomic"

	"github.com/dshills/eventbroker/internal/broker/matcher"
)

// Topic connects the publications and subscriptions sharing one URI.
// Both collections keep registration order. They are replaced, never
// modified, so firing reads a consistent snapshot without locking.
type Topic struct {
	uri    string
	broker *Broker

	pubs atomic.Pointer[[]*Publication]
	subs atomic.Pointer[[]*Subscription]
}

func newTopic(b *Broker, uri string) *Topic {
	return &Topic{uri: uri, broker: b}
}

// URI returns the topic URI.
func (t *Topic) URI() string { return t.uri }

// Publications returns the publications in registration order.
func (t *Topic) Publications() []*Publication {
	if p := t.pubs.Load(); p != nil {
		return *p
	}
	return nil
}

// Subscriptions returns the subscriptions in registration order.
func (t *Topic) Subscriptions() []*Subscription {
	if s := t.subs.Load(); s != nil {
		return *s
	}
	return nil
}

// DescribeTo writes a multi-line description of the topic.
func (t *Topic) DescribeTo(w io.Writer) {
	fmt.Fprintf(w, "topic %s\n", t.uri)
	for _, p := range t.Publications() {
		io.WriteString(w, "  ")
		p.DescribeTo(w)
		io.WriteString(w, "\n")
	}
	for _, s := range t.Subscriptions() {
		io.WriteString(w, "  ")
		s.DescribeTo(w)
		io.WriteString(w, "\n")
	}
}

func (t *Topic) empty() bool {
	return len(t.Publications()) == 0 && len(t.Subscriptions()) == 0
}

// The mutators below are called with the broker lock held.

func (t *Topic) addPublication(p *Publication) {
	next := append(slices.Clone(t.Publications()), p)
	t.pubs.Store(&next)
}

func (t *Topic) removePublication(p *Publication) {
	next := slices.DeleteFunc(slices.Clone(t.Publications()), func(q *Publication) bool { return q == p })
	t.pubs.Store(&next)
}

func (t *Topic) addSubscription(s *Subscription) {
	next := append(slices.Clone(t.Subscriptions()), s)
	t.subs.Store(&next)
}

func (t *Topic) removeSubscription(s *Subscription) {
	next := slices.DeleteFunc(slices.Clone(t.Subscriptions()), func(q *Subscription) bool { return q == s })
	t.subs.Store(&next)
}

// fire relays one event from pub to every live, matching subscription in
// registration order. An unhandled failure of a synchronous subscriber
// ends the pass and is returned.
func (t *Topic) fire(ctx context.Context, pub *Publication, sender, args any) error {
	b := t.broker
	exts := b.extensionList()
	globals := b.globalMatchers()

	b.fired.Add(1)
	for _, e := range exts {
		e.FiringEvent(t, pub, sender, args)
	}

	for _, sub := range t.Subscriptions() {
		subscriber := sub.Subscriber()
		if subscriber == nil {
			continue
		}

		if !matcher.All(globals, pub, sub, args) ||
			!matcher.All(pub.matchers, pub, sub, args) ||
			!matcher.All(sub.matchers, pub, sub, args) {
			b.skipped.Add(1)
			for _, e := range exts {
				e.SkippedEvent(t, pub, sub, sender, args)
			}
			continue
		}

		for _, e := range exts {
			e.RelayingEvent(t, pub, sub, sender, args)
		}
		accepted, err := sub.relay(ctx, pub, subscriber, sender, args)
		if err != nil {
			return err
		}
		if !accepted {
			continue
		}
		b.relayed.Add(1)
		for _, e := range exts {
			e.RelayedEvent(t, pub, sub, sender, args)
		}
	}

	for _, e := range exts {
		e.FiredEvent(t, pub, sender, args)
	}
	return nil
}

// subscriberFailed offers a subscriber failure to the extensions and
// returns it unless one of them handled it.
func (t *Topic) subscriberFailed(pub *Publication, sub *Subscription, sender, args any, err error) error {
	b := t.broker
	b.subscriberErrors.Add(1)

	ec := &ExceptionContext{
		Err:          err,
		Topic:        t,
		Publication:  pub,
		Subscription: sub,
		Sender:       sender,
		Args:         args,
	}
	for _, e := range b.extensionList() {
		e.SubscriberExceptionOccurred(ec)
	}
	if ec.Handled {
		return nil
	}
	return &SubscriberError{Topic: t.uri, Subscription: sub.method.Name, Err: err}
}
