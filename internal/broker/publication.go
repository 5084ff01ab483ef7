package broker

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"github.com/google/uuid"

	"github.com/dshills/eventbroker/internal/broker/matcher"
)

// Publication is an event of a publisher bound to a topic. It is
// immutable once added to its topic.
type Publication struct {
	id    uuid.UUID
	topic *Topic

	publisher instanceRef
	eventType reflect.Type
	offset    uintptr
	eventName string
	argsType  reflect.Type

	restriction HandlerRestriction
	matchers    []matcher.Matcher
}

// anonymousPublication backs Broker.Fire, which fires a topic without a
// publisher event.
func anonymousPublication(t *Topic, args any) *Publication {
	return &Publication{
		id:        uuid.New(),
		topic:     t,
		eventName: "Fire",
		argsType:  reflect.TypeOf(args),
	}
}

// ID returns the unique publication id.
func (p *Publication) ID() uuid.UUID { return p.id }

// Topic returns the topic the publication is bound to.
func (p *Publication) Topic() *Topic { return p.topic }

// TopicURI returns the topic URI.
func (p *Publication) TopicURI() string { return p.topic.uri }

// Publisher returns the publishing instance, or nil once it has been
// collected or for publications made by Broker.Fire.
func (p *Publication) Publisher() any { return p.publisher.value() }

// EventName returns the name of the event field, e.g. "Changed".
func (p *Publication) EventName() string { return p.eventName }

// ArgsType returns the event-argument type.
func (p *Publication) ArgsType() reflect.Type { return p.argsType }

// Restriction returns the handler restriction.
func (p *Publication) Restriction() HandlerRestriction { return p.restriction }

// Matchers returns the publication-scoped matchers.
func (p *Publication) Matchers() []matcher.Matcher { return p.matchers }

// DescribeTo writes a one-line description of the publication.
func (p *Publication) DescribeTo(w io.Writer) {
	fmt.Fprintf(w, "publisher %s event %s args %v restriction %s",
		p.publisher.typeName(), p.eventName, p.argsType, p.restriction)
	if !p.publisher.alive() && p.publisher.typ != nil {
		io.WriteString(w, " (collected)")
	}
	describeMatchers(w, p.matchers)
}

func (p *Publication) fire(ctx context.Context, sender, args any) error {
	return p.topic.fire(ctx, p, sender, args)
}

// sameEvent reports whether q publishes the same event of the same
// publisher as p.
func (p *Publication) sameEvent(q *Publication) bool {
	return p.publisher.ptr == q.publisher.ptr && p.offset == q.offset
}

// unbind detaches the event of the live publisher from this publication.
func (p *Publication) unbind(publisher any) {
	if p.eventType == nil || publisher == nil {
		return
	}
	if src := eventAt(publisher, p.eventType, p.offset); src != nil {
		src.unbind(p)
	}
}

func describeMatchers(w io.Writer, ms []matcher.Matcher) {
	if len(ms) == 0 {
		return
	}
	io.WriteString(w, " matchers ")
	for i, m := range ms {
		if i > 0 {
			io.WriteString(w, ", ")
		}
		m.DescribeTo(w)
	}
}
