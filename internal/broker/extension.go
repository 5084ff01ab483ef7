package broker

// Extension observes the broker. Every callback runs synchronously on the
// goroutine causing it, in the order extensions were added. Panics in
// extensions are not recovered.
//
// Lifecycle callbacks of Register and Unregister run after the broker lock
// is released, so extensions may call back into the broker.
//
// Embed NopExtension to implement only the callbacks of interest.
type Extension interface {
	// Disposing is called when Dispose starts.
	Disposing(b *Broker)

	// CreatedTopic is called when the first declaration for a URI is
	// registered.
	CreatedTopic(t *Topic)

	// DisposedTopic is called when the last publication or subscription
	// leaves a topic.
	DisposedTopic(t *Topic)

	// RegisteredItem is called once per newly registered instance.
	RegisteredItem(item any)

	// UnregisteredItem is called once per unregistered instance.
	UnregisteredItem(item any)

	CreatedPublication(t *Topic, p *Publication)
	AddedPublication(t *Topic, p *Publication)
	RemovedPublication(t *Topic, p *Publication)

	CreatedSubscription(t *Topic, s *Subscription)
	AddedSubscription(t *Topic, s *Subscription)
	RemovedSubscription(t *Topic, s *Subscription)

	// FiringEvent is called before the subscriptions of t are visited.
	FiringEvent(t *Topic, p *Publication, sender, args any)

	// FiredEvent is called after every subscription of t was visited. It
	// is not called when a synchronous subscriber failure ended the pass.
	FiredEvent(t *Topic, p *Publication, sender, args any)

	// RelayingEvent is called before the handler of s receives the event.
	RelayingEvent(t *Topic, p *Publication, s *Subscription, sender, args any)

	// RelayedEvent is called after the handler of s accepted the event.
	// For asynchronous handlers the method may not have run yet. It is not
	// called for a delivery the handler refused: an asynchronous refusal
	// is counted in Stats.Dropped, and a synchronous one (a UI handler
	// whose dispatcher stopped returns uithread.ErrStopped) ends the pass
	// without reaching SubscriberExceptionOccurred.
	RelayedEvent(t *Topic, p *Publication, s *Subscription, sender, args any)

	// SkippedEvent is called when a matcher rejected the delivery to s.
	SkippedEvent(t *Topic, p *Publication, s *Subscription, sender, args any)

	// SubscriberExceptionOccurred is called when a subscriber method
	// failed. Setting ec.Handled keeps the failure from propagating.
	// It runs on the goroutine executing the subscriber method.
	SubscriberExceptionOccurred(ec *ExceptionContext)
}

// ExceptionContext describes a subscriber failure.
type ExceptionContext struct {
	// Err is the error returned by the method, or a *handler.PanicError.
	Err error

	Topic        *Topic
	Publication  *Publication
	Subscription *Subscription
	Sender       any
	Args         any

	// Handled suppresses propagation when set by an extension.
	Handled bool
}

// NopExtension implements Extension with no-op callbacks.
type NopExtension struct{}

func (NopExtension) Disposing(*Broker)                                           {}
func (NopExtension) CreatedTopic(*Topic)                                         {}
func (NopExtension) DisposedTopic(*Topic)                                        {}
func (NopExtension) RegisteredItem(any)                                          {}
func (NopExtension) UnregisteredItem(any)                                        {}
func (NopExtension) CreatedPublication(*Topic, *Publication)                     {}
func (NopExtension) AddedPublication(*Topic, *Publication)                       {}
func (NopExtension) RemovedPublication(*Topic, *Publication)                     {}
func (NopExtension) CreatedSubscription(*Topic, *Subscription)                   {}
func (NopExtension) AddedSubscription(*Topic, *Subscription)                     {}
func (NopExtension) RemovedSubscription(*Topic, *Subscription)                   {}
func (NopExtension) FiringEvent(*Topic, *Publication, any, any)                  {}
func (NopExtension) FiredEvent(*Topic, *Publication, any, any)                   {}
func (NopExtension) RelayingEvent(*Topic, *Publication, *Subscription, any, any) {}
func (NopExtension) RelayedEvent(*Topic, *Publication, *Subscription, any, any)  {}
func (NopExtension) SkippedEvent(*Topic, *Publication, *Subscription, any, any)  {}
func (NopExtension) SubscriberExceptionOccurred(*ExceptionContext)               {}
