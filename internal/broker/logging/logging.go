// Package logging provides a broker extension writing every broker event
// to a zap logger.
//
// Lifecycle and relay events are logged at debug level, subscriber
// failures at error level (warn once an extension handled them):
//
//	b := broker.New(broker.WithExtensions(logging.New(logger)))
package logging

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/eventbroker/internal/broker"
)

// Extension logs broker events.
type Extension struct {
	logger *zap.Logger
}

var _ broker.Extension = (*Extension)(nil)

// New creates a logging extension. A nil logger discards everything.
func New(logger *zap.Logger) *Extension {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extension{logger: logger.Named("broker")}
}

func topicField(t *broker.Topic) zap.Field {
	return zap.String("topic", t.URI())
}

func publicationField(p *broker.Publication) zap.Field {
	return zap.String("publication", p.EventName())
}

func subscriptionField(s *broker.Subscription) zap.Field {
	return zap.String("subscription", s.Name())
}

func argsField(args any) zap.Field {
	return zap.String("args", fmt.Sprintf("%T", args))
}

// Disposing implements broker.Extension.
func (e *Extension) Disposing(b *broker.Broker) {
	e.logger.Debug("broker disposing", zap.Int("topics", len(b.Topics())))
}

// CreatedTopic implements broker.Extension.
func (e *Extension) CreatedTopic(t *broker.Topic) {
	e.logger.Debug("topic created", topicField(t))
}

// DisposedTopic implements broker.Extension.
func (e *Extension) DisposedTopic(t *broker.Topic) {
	e.logger.Debug("topic disposed", topicField(t))
}

// RegisteredItem implements broker.Extension.
func (e *Extension) RegisteredItem(item any) {
	e.logger.Debug("item registered", zap.String("type", fmt.Sprintf("%T", item)))
}

// UnregisteredItem implements broker.Extension.
func (e *Extension) UnregisteredItem(item any) {
	e.logger.Debug("item unregistered", zap.String("type", fmt.Sprintf("%T", item)))
}

// CreatedPublication implements broker.Extension.
func (e *Extension) CreatedPublication(t *broker.Topic, p *broker.Publication) {
	e.logger.Debug("publication created", topicField(t), publicationField(p),
		zap.Stringer("restriction", p.Restriction()),
	)
}

// AddedPublication implements broker.Extension.
func (e *Extension) AddedPublication(t *broker.Topic, p *broker.Publication) {
	e.logger.Debug("publication added", topicField(t), publicationField(p))
}

// RemovedPublication implements broker.Extension.
func (e *Extension) RemovedPublication(t *broker.Topic, p *broker.Publication) {
	e.logger.Debug("publication removed", topicField(t), publicationField(p))
}

// CreatedSubscription implements broker.Extension.
func (e *Extension) CreatedSubscription(t *broker.Topic, s *broker.Subscription) {
	e.logger.Debug("subscription created", topicField(t), subscriptionField(s),
		zap.Stringer("handler", s.Handler().Kind()),
	)
}

// AddedSubscription implements broker.Extension.
func (e *Extension) AddedSubscription(t *broker.Topic, s *broker.Subscription) {
	e.logger.Debug("subscription added", topicField(t), subscriptionField(s))
}

// RemovedSubscription implements broker.Extension.
func (e *Extension) RemovedSubscription(t *broker.Topic, s *broker.Subscription) {
	e.logger.Debug("subscription removed", topicField(t), subscriptionField(s))
}

// FiringEvent implements broker.Extension.
func (e *Extension) FiringEvent(t *broker.Topic, p *broker.Publication, _, args any) {
	e.logger.Debug("firing event", topicField(t), publicationField(p), argsField(args))
}

// FiredEvent implements broker.Extension.
func (e *Extension) FiredEvent(t *broker.Topic, p *broker.Publication, _, args any) {
	e.logger.Debug("fired event", topicField(t), publicationField(p), argsField(args))
}

// RelayingEvent implements broker.Extension.
func (e *Extension) RelayingEvent(t *broker.Topic, p *broker.Publication, s *broker.Subscription, _, _ any) {
	e.logger.Debug("relaying event", topicField(t), publicationField(p), subscriptionField(s))
}

// RelayedEvent implements broker.Extension.
func (e *Extension) RelayedEvent(t *broker.Topic, p *broker.Publication, s *broker.Subscription, _, _ any) {
	e.logger.Debug("relayed event", topicField(t), publicationField(p), subscriptionField(s))
}

// SkippedEvent implements broker.Extension.
func (e *Extension) SkippedEvent(t *broker.Topic, p *broker.Publication, s *broker.Subscription, _, _ any) {
	e.logger.Debug("skipped event", topicField(t), publicationField(p), subscriptionField(s))
}

// SubscriberExceptionOccurred implements broker.Extension. It never marks
// the failure handled.
func (e *Extension) SubscriberExceptionOccurred(ec *broker.ExceptionContext) {
	fields := []zap.Field{
		topicField(ec.Topic),
		subscriptionField(ec.Subscription),
		argsField(ec.Args),
		zap.Error(ec.Err),
	}
	if ec.Handled {
		e.logger.Warn("subscriber failed, handled", fields...)
		return
	}
	e.logger.Error("subscriber failed", fields...)
}
