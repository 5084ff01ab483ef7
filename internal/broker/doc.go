// Package broker implements an in-process, topic-addressed event broker.
//
// Publishers expose Event fields and subscribers expose methods; neither
// knows about the other. Both declare what they publish and subscribe to,
// and the Broker wires them together on Register:
//
//	type Clock struct {
//	    Tick broker.Event[*TickArgs]
//	}
//
//	func (c *Clock) DeclareEvents(d *broker.Declarations) {
//	    broker.Publish(d, "topic://clock/tick", &c.Tick)
//	}
//
//	type View struct{}
//
//	func (v *View) OnTick(sender any, args *TickArgs) error { ... }
//
//	func (v *View) DeclareEvents(d *broker.Declarations) {
//	    broker.Subscribe(d, "topic://clock/tick", (*View).OnTick,
//	        broker.WithHandler(handler.OnBackground()),
//	    )
//	}
//
//	b := broker.New()
//	defer b.Dispose(ctx)
//	b.Register(clock)
//	b.Register(view)
//	clock.Tick.Raise(clock, &TickArgs{})
//
// # Delivery
//
// Raising an event fires every topic it is bound to. A subscription
// receives the event only if its subscriber is still alive and every
// global, publication and subscription matcher accepts it. Subscriptions
// are visited in registration order; the handler of each decides where
// and when the method runs (see package handler).
//
// # Lifetime
//
// The broker holds publishers and subscribers through weak pointers.
// Dropping the last reference to an instance is enough for it to be
// collected; its publications and subscriptions stop firing at once and
// are purged from their topics when the runtime runs the cleanup. A topic
// holding neither publications nor subscriptions is disposed.
//
// # Failures
//
// A subscriber method failing, by error or panic, is offered to every
// extension through an ExceptionContext. If none marks it handled, a
// synchronous handler returns it from the raising call as a
// *SubscriberError and later subscriptions of that pass are not reached.
// Asynchronous handlers log it and drop it.
package broker
