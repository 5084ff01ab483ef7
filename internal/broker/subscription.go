package broker

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/eventbroker/internal/broker/handler"
	"github.com/dshills/eventbroker/internal/broker/matcher"
)

// Subscription is a method of a subscriber bound to a topic. It is
// immutable once added to its topic, and inert once its subscriber has
// been collected.
type Subscription struct {
	id    uuid.UUID
	topic *Topic

	subscriber instanceRef
	method     handler.MethodDescriptor
	handler    handler.Handler
	matchers   []matcher.Matcher
}

// ID returns the unique subscription id.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Topic returns the topic the subscription is bound to.
func (s *Subscription) Topic() *Topic { return s.topic }

// TopicURI returns the topic URI.
func (s *Subscription) TopicURI() string { return s.topic.uri }

// Subscriber returns the subscribing instance, or nil once collected.
func (s *Subscription) Subscriber() any { return s.subscriber.value() }

// Name returns the subscriber method name, e.g. "(*View).OnTick".
func (s *Subscription) Name() string { return s.method.Name }

// ArgsType returns the event-argument type the method accepts.
func (s *Subscription) ArgsType() reflect.Type { return s.method.Args }

// Handler returns the dispatch strategy.
func (s *Subscription) Handler() handler.Handler { return s.handler }

// Matchers returns the subscription-scoped matchers.
func (s *Subscription) Matchers() []matcher.Matcher { return s.matchers }

// DescribeTo writes a one-line description of the subscription.
func (s *Subscription) DescribeTo(w io.Writer) {
	fmt.Fprintf(w, "subscriber %s method %s args %v handler %s",
		s.subscriber.typeName(), s.method.Name, s.method.Args, s.handler.Kind())
	if !s.subscriber.alive() {
		io.WriteString(w, " (collected)")
	}
	describeMatchers(w, s.matchers)
}

// sameMethod reports whether t subscribes the same method of the same
// subscriber as s.
func (s *Subscription) sameMethod(t *Subscription) bool {
	return s.subscriber.ptr == t.subscriber.ptr && s.method.Name == t.method.Name
}

// relay hands one delivery to the handler and reports whether the handler
// accepted it. For synchronous handlers the returned error is the
// unhandled subscriber failure, or the handler's own refusal such as
// uithread.ErrStopped. Asynchronous handlers that refuse the delivery are
// logged and counted as dropped.
func (s *Subscription) relay(ctx context.Context, pub *Publication, subscriber, sender, args any) (bool, error) {
	t := s.topic
	invoke := func(ctx context.Context) error {
		res := handler.Execute(ctx, func(context.Context) error {
			return s.method.Invoke(subscriber, sender, args)
		})
		if res.IsSuccess() {
			return nil
		}
		return t.subscriberFailed(pub, s, sender, args, res.Err())
	}

	err := s.handler.Handle(ctx, t.uri, subscriber, sender, args, invoke)
	switch {
	case err == nil:
		return true, nil
	case s.handler.Kind().Synchronous():
		return false, err
	}

	b := t.broker
	b.dropped.Add(1)
	b.logger.Warn("delivery dropped",
		zap.String("topic", t.uri),
		zap.String("subscription", s.method.Name),
		zap.Stringer("handler", s.handler.Kind()),
		zap.Error(err),
	)
	return false, nil
}
