package broker

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/eventbroker/internal/broker/handler"
	"github.com/dshills/eventbroker/internal/broker/matcher"
)

// registration tracks what one instance contributed to the broker.
type registration struct {
	id      uuid.UUID
	ref     instanceRef
	pubs    []*Publication
	subs    []*Subscription
	cleanup runtime.Cleanup
}

// note is a deferred extension notification.
type note func(e Extension)

// Broker is the registry of topics. It is safe for concurrent use.
type Broker struct {
	logger    *zap.Logger
	inspector Inspector
	pool      *handler.Pool

	// mu guards topics and items. Firing never takes it.
	mu     sync.RWMutex
	topics map[string]*Topic
	items  map[weak.Pointer[byte]]*registration

	// listMu serializes appends to the copy-on-write lists.
	listMu     sync.Mutex
	matchers   atomic.Pointer[[]matcher.Matcher]
	extensions atomic.Pointer[[]Extension]

	disposed atomic.Bool

	// Stats
	fired            atomic.Uint64
	relayed          atomic.Uint64
	skipped          atomic.Uint64
	subscriberErrors atomic.Uint64
	dropped          atomic.Uint64
}

var _ handler.Host = (*Broker)(nil)

// New creates a broker and starts its fire-and-forget pool. Call Dispose
// to stop it.
func New(opts ...Option) *Broker {
	cfg := defaultBrokerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Broker{
		logger:    cfg.logger,
		inspector: cfg.inspector,
		topics:    make(map[string]*Topic),
		items:     make(map[weak.Pointer[byte]]*registration),
	}

	ms := slices.Clone(cfg.matchers)
	b.matchers.Store(&ms)
	exts := slices.Clone(cfg.extensions)
	b.extensions.Store(&exts)

	b.pool = handler.NewPool(
		handler.WithWorkerCount(cfg.poolWorkers),
		handler.WithQueueSize(cfg.poolQueueSize),
		handler.WithLogger(cfg.logger),
	)
	// A new pool always starts.
	_ = b.pool.Start()

	return b
}

// Logger returns the broker logger. It implements handler.Host.
func (b *Broker) Logger() *zap.Logger { return b.logger }

// Pool returns the shared fire-and-forget pool. It implements handler.Host.
func (b *Broker) Pool() *handler.Pool { return b.pool }

func (b *Broker) globalMatchers() []matcher.Matcher {
	if ms := b.matchers.Load(); ms != nil {
		return *ms
	}
	return nil
}

func (b *Broker) extensionList() []Extension {
	if exts := b.extensions.Load(); exts != nil {
		return *exts
	}
	return nil
}

// AddGlobalMatcher adds a matcher applied to every later delivery.
func (b *Broker) AddGlobalMatcher(m matcher.Matcher) error {
	if b.disposed.Load() {
		return ErrDisposed
	}
	b.listMu.Lock()
	defer b.listMu.Unlock()

	next := append(slices.Clone(b.globalMatchers()), m)
	b.matchers.Store(&next)
	return nil
}

// AddExtension adds an extension notified of every later broker event.
func (b *Broker) AddExtension(e Extension) error {
	if b.disposed.Load() {
		return ErrDisposed
	}
	b.listMu.Lock()
	defer b.listMu.Unlock()

	next := append(slices.Clone(b.extensionList()), e)
	b.extensions.Store(&next)
	return nil
}

func (b *Broker) notify(notes []note) {
	exts := b.extensionList()
	for _, n := range notes {
		for _, e := range exts {
			n(e)
		}
	}
}

// Register wires the declarations of instance into the broker. instance
// must be a pointer to a struct. A pointer-free struct smaller than 16
// bytes is rejected with ErrInvalidInstance: the runtime may pack it with
// other small objects, so its collection cannot be observed.
func (b *Broker) Register(instance any) error {
	return b.RegisterContext(context.Background(), instance)
}

// RegisterContext wires the declarations of instance into the broker. ctx
// is handed to handler initialization; UI-affine subscriptions require
// it to come from the UI dispatcher.
//
// Every declaration is validated before anything changes. On failure the
// broker is left as it was and the returned error combines one
// *RegistrationError per rejected declaration.
func (b *Broker) RegisterContext(ctx context.Context, instance any) error {
	if b.disposed.Load() {
		return ErrDisposed
	}
	ref, base, err := newRef(instance)
	if err != nil {
		return err
	}
	decls, err := b.inspector.Inspect(instance)
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", ref.typeName(), err)
	}

	b.mu.Lock()
	if b.disposed.Load() {
		b.mu.Unlock()
		return ErrDisposed
	}

	pl, err := b.planLocked(ctx, instance, ref, base, decls)
	if err != nil {
		b.mu.Unlock()
		return err
	}

	reg, known := b.items[ref.ptr]
	if !known {
		reg = &registration{id: uuid.New(), ref: ref}
		reg.cleanup = runtime.AddCleanup(base, b.collected, ref.ptr)
		b.items[ref.ptr] = reg
	}
	notes := b.commitLocked(reg, pl)
	b.mu.Unlock()

	if !known {
		notes = append(notes, func(e Extension) { e.RegisteredItem(instance) })
	}
	b.notify(notes)

	b.logger.Debug("registered instance",
		zap.String("type", ref.typeName()),
		zap.Stringer("id", reg.id),
		zap.Int("publications", len(pl.pubs)),
		zap.Int("subscriptions", len(pl.subs)),
	)
	return nil
}

type plannedPublication struct {
	uri   string
	event EventSource
	pub   *Publication
}

type plannedSubscription struct {
	uri string
	sub *Subscription
}

type plan struct {
	pubs []plannedPublication
	subs []plannedSubscription
}

// planLocked validates decls and builds, without publishing them, the
// publications and subscriptions of one registration. Handlers of the
// planned subscriptions are initialized last, once nothing else failed.
func (b *Broker) planLocked(ctx context.Context, instance any, ref instanceRef, base *byte, decls Declarations) (*plan, error) {
	pl := &plan{}
	var errs error
	fail := func(uri, member string, err error) {
		errs = multierr.Append(errs, &RegistrationError{Topic: uri, Member: member, Err: err})
	}

	for _, d := range decls.Publications {
		if d.Event == nil {
			fail(d.Topic, "<nil event>", ErrSignature)
			continue
		}
		et := reflect.TypeOf(d.Event)
		off, err := fieldOffset(ref, base, d.Event)
		if err != nil {
			fail(d.Topic, et.String(), err)
			continue
		}

		p := &Publication{
			id:          uuid.New(),
			publisher:   ref,
			eventType:   et,
			offset:      off,
			eventName:   fieldName(ref.typ.Elem(), off, et),
			argsType:    d.Event.ArgsType(),
			restriction: d.Restriction,
			matchers:    slices.Clone(d.Matchers),
		}

		switch {
		case d.Topic == "":
			fail(d.Topic, p.eventName, ErrInvalidTopic)
		case b.hasPublication(d.Topic, p) || slices.ContainsFunc(pl.pubs, func(q plannedPublication) bool {
			return q.uri == d.Topic && q.pub.sameEvent(p)
		}):
			fail(d.Topic, p.eventName, ErrDuplicatePublication)
		default:
			pl.pubs = append(pl.pubs, plannedPublication{uri: d.Topic, event: d.Event, pub: p})
		}
	}

	for _, d := range decls.Subscriptions {
		m := d.Method
		name := m.Name
		if name == "" {
			name = "<unnamed method>"
		}

		switch {
		case d.Topic == "":
			fail(d.Topic, name, ErrInvalidTopic)
			continue
		case m.Invoke == nil || m.Args == nil:
			fail(d.Topic, name, ErrSignature)
			continue
		case m.Receiver == nil:
			fail(d.Topic, name, ErrStaticMember)
			continue
		case !ref.typ.AssignableTo(m.Receiver):
			fail(d.Topic, name, fmt.Errorf("%w: %s is not assignable to receiver %s", ErrSignature, ref.typ, m.Receiver))
			continue
		}

		h := d.Handler
		if h == nil {
			h = handler.OnPublisher()
		}
		s := &Subscription{
			id:         uuid.New(),
			subscriber: ref,
			method:     m,
			handler:    h,
			matchers:   slices.Clone(d.Matchers),
		}

		if b.hasSubscription(d.Topic, s) || slices.ContainsFunc(pl.subs, func(q plannedSubscription) bool {
			return q.uri == d.Topic && q.sub.sameMethod(s)
		}) {
			fail(d.Topic, name, ErrDuplicateSubscription)
			continue
		}
		pl.subs = append(pl.subs, plannedSubscription{uri: d.Topic, sub: s})
	}

	// Every pair involving a new member must be deliverable.
	for _, pp := range pl.pubs {
		for _, s := range b.topicSubscriptions(pp.uri) {
			if !s.subscriber.alive() {
				continue
			}
			if err := compatible(pp.pub, s); err != nil {
				fail(pp.uri, pp.pub.eventName, err)
			}
		}
		for _, ps := range pl.subs {
			if ps.uri != pp.uri {
				continue
			}
			if err := compatible(pp.pub, ps.sub); err != nil {
				fail(ps.uri, ps.sub.method.Name, err)
			}
		}
	}
	for _, ps := range pl.subs {
		for _, p := range b.topicPublications(ps.uri) {
			if !p.publisher.alive() {
				continue
			}
			if err := compatible(p, ps.sub); err != nil {
				fail(ps.uri, ps.sub.method.Name, err)
			}
		}
	}

	if errs != nil {
		return nil, errs
	}

	var initialized []handler.Releaser
	for _, ps := range pl.subs {
		s := ps.sub
		if err := s.handler.Initialize(ctx, instance, s.method, b); err != nil {
			fail(ps.uri, s.method.Name, err)
			continue
		}
		if r, ok := s.handler.(handler.Releaser); ok {
			initialized = append(initialized, r)
		}
	}
	if errs != nil {
		if err := b.release(ctx, initialized); err != nil {
			b.logger.Warn("releasing handlers of failed registration", zap.Error(err))
		}
		return nil, errs
	}
	return pl, nil
}

// compatible checks that events of p can be delivered to s.
func compatible(p *Publication, s *Subscription) error {
	if !p.argsType.AssignableTo(s.method.Args) {
		return fmt.Errorf("%w: %s publishes %v, %s accepts %v",
			ErrEventArgsType, p.eventName, p.argsType, s.method.Name, s.method.Args)
	}
	if !p.restriction.Allows(s.handler.Kind()) {
		return fmt.Errorf("%w: %s is %s, %s uses a %s handler",
			ErrHandlerRestriction, p.eventName, p.restriction, s.method.Name, s.handler.Kind())
	}
	return nil
}

func (b *Broker) topicPublications(uri string) []*Publication {
	if t, ok := b.topics[uri]; ok {
		return t.Publications()
	}
	return nil
}

func (b *Broker) topicSubscriptions(uri string) []*Subscription {
	if t, ok := b.topics[uri]; ok {
		return t.Subscriptions()
	}
	return nil
}

func (b *Broker) hasPublication(uri string, p *Publication) bool {
	return slices.ContainsFunc(b.topicPublications(uri), p.sameEvent)
}

func (b *Broker) hasSubscription(uri string, s *Subscription) bool {
	return slices.ContainsFunc(b.topicSubscriptions(uri), s.sameMethod)
}

// commitLocked publishes a validated plan.
func (b *Broker) commitLocked(reg *registration, pl *plan) []note {
	var notes []note
	topicFor := func(uri string) *Topic {
		t, ok := b.topics[uri]
		if !ok {
			t = newTopic(b, uri)
			b.topics[uri] = t
			notes = append(notes, func(e Extension) { e.CreatedTopic(t) })
		}
		return t
	}

	for _, pp := range pl.pubs {
		t, p := topicFor(pp.uri), pp.pub
		p.topic = t
		notes = append(notes, func(e Extension) { e.CreatedPublication(t, p) })

		t.addPublication(p)
		pp.event.bind(p)
		reg.pubs = append(reg.pubs, p)
		notes = append(notes, func(e Extension) { e.AddedPublication(t, p) })
	}

	for _, ps := range pl.subs {
		t, s := topicFor(ps.uri), ps.sub
		s.topic = t
		notes = append(notes, func(e Extension) { e.CreatedSubscription(t, s) })

		t.addSubscription(s)
		reg.subs = append(reg.subs, s)
		notes = append(notes, func(e Extension) { e.AddedSubscription(t, s) })
	}
	return notes
}

// Unregister removes every publication and subscription of instance and
// releases their handlers.
func (b *Broker) Unregister(instance any) error {
	if b.disposed.Load() {
		return ErrDisposed
	}
	ref, _, err := newRef(instance)
	if err != nil {
		return err
	}

	b.mu.Lock()
	reg, ok := b.items[ref.ptr]
	if !ok {
		b.mu.Unlock()
		return ErrNotRegistered
	}
	delete(b.items, ref.ptr)
	reg.cleanup.Stop()
	notes, releasers := b.removeLocked(reg, instance)
	b.mu.Unlock()

	err = b.release(context.Background(), releasers)
	notes = append(notes, func(e Extension) { e.UnregisteredItem(instance) })
	b.notify(notes)

	b.logger.Debug("unregistered instance",
		zap.String("type", ref.typeName()),
		zap.Stringer("id", reg.id),
	)
	return err
}

// removeLocked takes the members of reg off their topics and disposes the
// topics left empty. live is the instance if it is still reachable.
func (b *Broker) removeLocked(reg *registration, live any) ([]note, []handler.Releaser) {
	var (
		notes     []note
		releasers []handler.Releaser
		touched   []*Topic
	)
	touch := func(t *Topic) {
		if !slices.Contains(touched, t) {
			touched = append(touched, t)
		}
	}

	for _, p := range reg.pubs {
		t := p.topic
		t.removePublication(p)
		p.unbind(live)
		touch(t)
		notes = append(notes, func(e Extension) { e.RemovedPublication(t, p) })
	}
	for _, s := range reg.subs {
		t := s.topic
		t.removeSubscription(s)
		if r, ok := s.handler.(handler.Releaser); ok {
			releasers = append(releasers, r)
		}
		touch(t)
		notes = append(notes, func(e Extension) { e.RemovedSubscription(t, s) })
	}

	for _, t := range touched {
		if t.empty() && b.topics[t.uri] == t {
			delete(b.topics, t.uri)
			notes = append(notes, func(e Extension) { e.DisposedTopic(t) })
		}
	}
	return notes, releasers
}

// collected runs on the runtime cleanup goroutine once a registered
// instance is unreachable.
func (b *Broker) collected(key weak.Pointer[byte]) {
	go b.purge(key)
}

func (b *Broker) purge(key weak.Pointer[byte]) {
	b.mu.Lock()
	reg, ok := b.items[key]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.items, key)
	notes, releasers := b.removeLocked(reg, nil)
	b.mu.Unlock()

	if err := b.release(context.Background(), releasers); err != nil {
		b.logger.Warn("releasing handlers of collected instance", zap.Error(err))
	}
	b.notify(notes)

	b.logger.Debug("purged collected instance",
		zap.String("type", reg.ref.typeName()),
		zap.Stringer("id", reg.id),
	)
}

// release releases handlers concurrently and combines their failures.
func (b *Broker) release(ctx context.Context, rs []handler.Releaser) error {
	errs := make([]error, len(rs))
	var g errgroup.Group
	for i, r := range rs {
		g.Go(func() error {
			errs[i] = r.Release(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return multierr.Combine(errs...)
}

// Fire fires the topic uri without a publisher event. Topics nobody
// declared are ignored. args must be deliverable to every subscription
// of the topic.
func (b *Broker) Fire(ctx context.Context, uri string, sender, args any) error {
	if b.disposed.Load() {
		return ErrDisposed
	}
	t, ok := b.Topic(uri)
	if !ok {
		return nil
	}

	if args != nil {
		at := reflect.TypeOf(args)
		for _, s := range t.Subscriptions() {
			if !at.AssignableTo(s.method.Args) {
				return fmt.Errorf("%w: %v cannot be delivered to %s", ErrEventArgsType, at, s.method.Name)
			}
		}
	}

	return t.fire(ctx, anonymousPublication(t, args), sender, args)
}

// Topic returns the topic for uri.
func (b *Broker) Topic(uri string) (*Topic, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.topics[uri]
	return t, ok
}

// Topics returns every live topic sorted by URI.
func (b *Broker) Topics() []*Topic {
	b.mu.RLock()
	topics := make([]*Topic, 0, len(b.topics))
	for _, t := range b.topics {
		topics = append(topics, t)
	}
	b.mu.RUnlock()

	sort.Slice(topics, func(i, j int) bool { return topics[i].uri < topics[j].uri })
	return topics
}

// Stats returns broker statistics.
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	topics, items := len(b.topics), len(b.items)
	b.mu.RUnlock()

	return Stats{
		Topics:           topics,
		Items:            items,
		Fired:            b.fired.Load(),
		Relayed:          b.relayed.Load(),
		Skipped:          b.skipped.Load(),
		SubscriberErrors: b.subscriberErrors.Load(),
		Dropped:          b.dropped.Load(),
		Pool:             b.pool.Stats(),
	}
}

// IsDisposed reports whether Dispose was called.
func (b *Broker) IsDisposed() bool {
	return b.disposed.Load()
}

// Dispose unbinds every event, drops every reference the broker holds,
// releases handlers and stops the shared pool. Queued calls drain until
// ctx is done. Later calls are no-ops.
func (b *Broker) Dispose(ctx context.Context) error {
	if !b.disposed.CompareAndSwap(false, true) {
		return nil
	}
	for _, e := range b.extensionList() {
		e.Disposing(b)
	}

	b.mu.Lock()
	var releasers []handler.Releaser
	for _, reg := range b.items {
		reg.cleanup.Stop()
		live := reg.ref.value()
		for _, p := range reg.pubs {
			p.unbind(live)
		}
		for _, s := range reg.subs {
			if r, ok := s.handler.(handler.Releaser); ok {
				releasers = append(releasers, r)
			}
		}
	}
	b.items = make(map[weak.Pointer[byte]]*registration)
	b.topics = make(map[string]*Topic)
	b.mu.Unlock()

	err := b.release(ctx, releasers)
	err = multierr.Append(err, b.pool.Stop(ctx))

	b.listMu.Lock()
	b.matchers.Store(&[]matcher.Matcher{})
	b.extensions.Store(&[]Extension{})
	b.listMu.Unlock()

	b.logger.Debug("broker disposed")
	return err
}
