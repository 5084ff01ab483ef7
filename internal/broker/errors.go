package broker

import (
	"errors"

	"github.com/dshills/eventbroker/internal/broker/handler"
)

// Sentinel errors for the broker.
var (
	// ErrDisposed is returned by every operation on a disposed broker.
	ErrDisposed = errors.New("broker is disposed")

	// ErrInvalidInstance is returned when an instance is not a non-nil
	// pointer to a struct with at least one field, or when the struct is
	// pointer-free and smaller than 16 bytes.
	ErrInvalidInstance = errors.New("instance must be a non-nil pointer to a non-empty struct")

	// ErrNotRegistered is returned when unregistering an unknown instance.
	ErrNotRegistered = errors.New("instance is not registered")

	// ErrInvalidTopic is returned for an empty topic URI.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrDuplicatePublication is returned when a publisher publishes the
	// same event twice on one topic.
	ErrDuplicatePublication = errors.New("duplicate publication")

	// ErrDuplicateSubscription is returned when a subscriber subscribes the
	// same method twice on one topic.
	ErrDuplicateSubscription = errors.New("duplicate subscription")

	// ErrSignature is returned when an event or method does not fit the
	// instance it is declared on.
	ErrSignature = errors.New("incompatible signature")

	// ErrStaticMember is returned when a declared event is not part of the
	// instance or a method has no receiver.
	ErrStaticMember = errors.New("member is not bound to the instance")

	// ErrEventArgsType is returned when the event-argument type of a
	// publication cannot be delivered to a subscription on the same topic.
	ErrEventArgsType = errors.New("incompatible event argument type")

	// ErrHandlerRestriction is returned when a synchronous-only publication
	// meets a subscription with an asynchronous handler.
	ErrHandlerRestriction = errors.New("handler kind not allowed by publication")

	// ErrNotOnUIThread is returned when a UI-affine subscription is
	// registered off the UI goroutine.
	ErrNotOnUIThread = handler.ErrNotOnUIThread
)

// RegistrationError describes why one declared member could not be
// registered.
type RegistrationError struct {
	// Topic is the topic URI of the declaration.
	Topic string

	// Member names the event or method, e.g. "Changed" or "(*View).OnTick".
	Member string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	return "registering " + e.Member + " on " + e.Topic + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// SubscriberError is a subscriber failure no extension handled.
type SubscriberError struct {
	// Topic is the topic that was fired.
	Topic string

	// Subscription names the subscriber method.
	Subscription string

	// Err is the error returned by the method, or a *handler.PanicError.
	Err error
}

// Error implements the error interface.
func (e *SubscriberError) Error() string {
	return "subscriber " + e.Subscription + " on " + e.Topic + " failed: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *SubscriberError) Unwrap() error {
	return e.Err
}
