package matcher

import (
	"io"
	"strings"
)

// Named is implemented by publishers and subscribers taking part in
// scope routing. Names are dot-segmented, e.g. "Shell.Editor.Tab1".
type Named interface {
	BrokerName() string
}

// nameOf returns the broker name of v; unnamed values have the root name "".
func nameOf(v any) string {
	if n, ok := v.(Named); ok {
		return n.BrokerName()
	}
	return ""
}

// withinScope reports whether name equals scope or lies below it. Only
// complete segments match: "Test.One" is within "Test" but "Test.Oner" is
// not within "Test.One". Everything is within the root scope "".
func withinScope(name, scope string) bool {
	if scope == "" {
		return true
	}
	if !strings.HasPrefix(name, scope) {
		return false
	}
	if len(name) == len(scope) {
		return true
	}
	return name[len(scope)] == '.'
}

type scope struct {
	description string
	match       func(publisher, subscriber string) bool
}

func (s scope) Match(pub Publication, sub Subscription, _ any) bool {
	return s.match(nameOf(pub.Publisher()), nameOf(sub.Subscriber()))
}

func (s scope) DescribeTo(w io.Writer) { io.WriteString(w, s.description) }

// PublishToChildren is a publication matcher relaying only to subscribers
// named like the publisher or below it.
func PublishToChildren() Matcher {
	return scope{
		description: "publish to children",
		match:       func(p, s string) bool { return withinScope(s, p) },
	}
}

// PublishToParents is a publication matcher relaying only to subscribers
// named like the publisher or above it.
func PublishToParents() Matcher {
	return scope{
		description: "publish to parents",
		match:       func(p, s string) bool { return withinScope(p, s) },
	}
}

// PublishGlobal is a publication matcher relaying to every subscriber.
func PublishGlobal() Matcher {
	return scope{
		description: "publish global",
		match:       func(string, string) bool { return true },
	}
}

// SubscribeToChildren is a subscription matcher accepting only publishers
// named like the subscriber or below it.
func SubscribeToChildren() Matcher {
	return scope{
		description: "subscribe to children",
		match:       func(p, s string) bool { return withinScope(p, s) },
	}
}

// SubscribeToParents is a subscription matcher accepting only publishers
// named like the subscriber or above it.
func SubscribeToParents() Matcher {
	return scope{
		description: "subscribe to parents",
		match:       func(p, s string) bool { return withinScope(s, p) },
	}
}

// SubscribeGlobal is a subscription matcher accepting every publisher.
func SubscribeGlobal() Matcher {
	return scope{
		description: "subscribe global",
		match:       func(string, string) bool { return true },
	}
}
