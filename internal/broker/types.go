package broker

import "github.com/dshills/eventbroker/internal/broker/handler"

// HandlerRestriction limits the handler kinds a publication relays to.
type HandlerRestriction int

const (
	// Unrestricted accepts subscriptions with any handler.
	Unrestricted HandlerRestriction = iota

	// SynchronousOnly accepts only handlers running before Raise returns,
	// so that mutations of the arguments are visible to the publisher.
	SynchronousOnly
)

// String returns a human-readable restriction name.
func (r HandlerRestriction) String() string {
	switch r {
	case Unrestricted:
		return "unrestricted"
	case SynchronousOnly:
		return "synchronous-only"
	default:
		return "unknown"
	}
}

// Allows reports whether a subscription with handler kind k may bind to a
// publication restricted by r.
func (r HandlerRestriction) Allows(k handler.Kind) bool {
	return r != SynchronousOnly || k.Synchronous()
}

// Stats contains broker statistics.
type Stats struct {
	// Topics is the number of live topics.
	Topics int

	// Items is the number of registered instances.
	Items int

	// Fired is the number of fire passes over a topic.
	Fired uint64

	// Relayed is the number of deliveries a handler accepted.
	Relayed uint64

	// Skipped is the number of deliveries rejected by a matcher.
	Skipped uint64

	// SubscriberErrors is the number of failed subscriber calls.
	SubscriberErrors uint64

	// Dropped is the number of deliveries an asynchronous handler refused.
	Dropped uint64

	// Pool holds the shared fire-and-forget pool statistics.
	Pool handler.PoolStats
}
