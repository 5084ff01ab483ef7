// Package matcher provides the predicates deciding whether a publication
// relays an event to a subscription.
//
// A relay happens only if every global matcher, every matcher of the
// publication and every matcher of the subscription accept it. Matchers
// must be free of side effects and safe for concurrent use.
package matcher

import (
	"fmt"
	"io"
	"strings"
)

// Publication is the read-only view of a publication given to matchers.
// This mirrors the broker type to avoid circular imports.
type Publication interface {
	// Publisher returns the publishing instance, or nil once collected.
	Publisher() any

	// TopicURI returns the topic the publication is bound to.
	TopicURI() string
}

// Subscription is the read-only view of a subscription given to matchers.
type Subscription interface {
	// Subscriber returns the subscribing instance, or nil once collected.
	Subscriber() any

	// TopicURI returns the topic the subscription is bound to.
	TopicURI() string
}

// Matcher decides whether an event is relayed from pub to sub.
type Matcher interface {
	Match(pub Publication, sub Subscription, args any) bool
	DescribeTo(w io.Writer)
}

// Cancelable is implemented by event arguments carrying a cancel flag.
type Cancelable interface {
	Canceled() bool
}

// Describe renders the description of m.
func Describe(m Matcher) string {
	var sb strings.Builder
	m.DescribeTo(&sb)
	return sb.String()
}

// All returns true if every matcher accepts the event.
func All(matchers []Matcher, pub Publication, sub Subscription, args any) bool {
	for _, m := range matchers {
		if !m.Match(pub, sub, args) {
			return false
		}
	}
	return true
}

type alwaysTrue struct{}

// AlwaysTrue returns a matcher accepting every event.
func AlwaysTrue() Matcher { return alwaysTrue{} }

func (alwaysTrue) Match(Publication, Subscription, any) bool { return true }

func (alwaysTrue) DescribeTo(w io.Writer) { io.WriteString(w, "always") }

type notAlreadyCanceled struct{}

// NotAlreadyCanceled returns a matcher accepting only cancelable event
// arguments that nobody canceled yet. Subscribers registered after an
// inline subscriber that cancels are skipped.
func NotAlreadyCanceled() Matcher { return notAlreadyCanceled{} }

func (notAlreadyCanceled) Match(_ Publication, _ Subscription, args any) bool {
	c, ok := args.(Cancelable)
	return ok && !c.Canceled()
}

func (notAlreadyCanceled) DescribeTo(w io.Writer) { io.WriteString(w, "not already canceled") }

// Func adapts a predicate into a matcher with the given description.
func Func(description string, fn func(pub Publication, sub Subscription, args any) bool) Matcher {
	return funcMatcher{description: description, fn: fn}
}

type funcMatcher struct {
	description string
	fn          func(pub Publication, sub Subscription, args any) bool
}

func (m funcMatcher) Match(pub Publication, sub Subscription, args any) bool {
	return m.fn(pub, sub, args)
}

func (m funcMatcher) DescribeTo(w io.Writer) { io.WriteString(w, m.description) }

// And combines matchers with AND logic.
func And(matchers ...Matcher) Matcher { return and(matchers) }

type and []Matcher

func (m and) Match(pub Publication, sub Subscription, args any) bool {
	return All(m, pub, sub, args)
}

func (m and) DescribeTo(w io.Writer) { describeList(w, " and ", m) }

// Or combines matchers with OR logic.
func Or(matchers ...Matcher) Matcher { return or(matchers) }

type or []Matcher

func (m or) Match(pub Publication, sub Subscription, args any) bool {
	for _, mm := range m {
		if mm.Match(pub, sub, args) {
			return true
		}
	}
	return false
}

func (m or) DescribeTo(w io.Writer) { describeList(w, " or ", m) }

// Not negates a matcher.
func Not(m Matcher) Matcher { return not{m} }

type not struct{ m Matcher }

func (n not) Match(pub Publication, sub Subscription, args any) bool {
	return !n.m.Match(pub, sub, args)
}

func (n not) DescribeTo(w io.Writer) {
	io.WriteString(w, "not ")
	n.m.DescribeTo(w)
}

func describeList(w io.Writer, sep string, ms []Matcher) {
	io.WriteString(w, "(")
	for i, m := range ms {
		if i > 0 {
			io.WriteString(w, sep)
		}
		m.DescribeTo(w)
	}
	io.WriteString(w, ")")
}

// describef is a small helper for parameterized descriptions.
func describef(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
