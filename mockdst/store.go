package mockdst

import (
	"context"
	"sync"

	logging "github.com/sirupsen/logrus"
)

type (
	// SnapshotStore is the authoritative table of destination state: the
	// latest published endpoint snapshot and the latest published override
	// snapshot for each Dst, held in two independent namespaces. Each entry
	// is a latest-value topic that any number of subscribers can read
	// without affecting publishers or each other.
	SnapshotStore struct {
		endpoints map[Dst]*topic[Endpoints]
		overrides map[Dst]*topic[Overrides]
		closed    bool

		log *logging.Entry
		// This mutex protects modification of the maps themselves.
		sync.RWMutex
	}

	// topic retains only the most recent published value. Publishing bumps
	// the version and wakes waiting subscribers by closing the notify
	// channel; subscribers that are not waiting observe only the latest
	// value when they next poll. Publishing never blocks on subscribers.
	topic[T any] struct {
		mu          sync.Mutex
		current     T
		version     uint64
		closed      bool
		notify      chan struct{}
		subscribers int
		metrics     topicMetrics
	}

	// subscription is a private cursor into a topic. The zero seen version
	// guarantees the first call to next observes the topic's current value.
	subscription[T any] struct {
		topic *topic[T]
		seen  uint64
	}
)

// NewSnapshotStore creates an empty store. Destination topics are created
// lazily on first publish and destroyed only by an explicit retract.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		endpoints: make(map[Dst]*topic[Endpoints]),
		overrides: make(map[Dst]*topic[Overrides]),
		log:       logging.WithField("component", "snapshot-store"),
	}
}

// Seed populates the store from parsed startup configuration.
func (s *SnapshotStore) Seed(endpoints map[Dst]Endpoints, overrides map[Dst]Overrides) {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return
	}
	for dst, eps := range endpoints {
		s.log.Infof("seeding endpoints for %s", dst)
		s.endpoints[dst] = newTopic(eps, endpointsVecs.newMetrics(dstLabels(dst)))
	}
	for dst, ovs := range overrides {
		s.log.Infof("seeding overrides for %s", dst)
		s.overrides[dst] = newTopic(ovs, overridesVecs.newMetrics(dstLabels(dst)))
	}
}

// Close tears down every topic: all subscribers observe closure and the
// maps are emptied. Publisher handles outstanding at close time degrade to
// silent no-ops.
func (s *SnapshotStore) Close() {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for dst, t := range s.endpoints {
		t.close()
		endpointsVecs.unregister(dstLabels(dst))
	}
	for dst, t := range s.overrides {
		t.close()
		overridesVecs.unregister(dstLabels(dst))
	}
	s.endpoints = make(map[Dst]*topic[Endpoints])
	s.overrides = make(map[Dst]*topic[Overrides])
}

func (s *SnapshotStore) subscribeEndpoints(dst Dst) (*subscription[Endpoints], bool) {
	s.RLock()
	defer s.RUnlock()
	t, ok := s.endpoints[dst]
	if !ok {
		return nil, false
	}
	return t.subscribe(), true
}

func (s *SnapshotStore) subscribeOverrides(dst Dst) (*subscription[Overrides], bool) {
	s.RLock()
	defer s.RUnlock()
	t, ok := s.overrides[dst]
	if !ok {
		return nil, false
	}
	return t.subscribe(), true
}

/////////////////
/// Publisher ///
/////////////////

// Publisher is the writer handle to a SnapshotStore. It holds no ownership
// claim: once the store has been closed, every operation is a silent no-op,
// so a reconciler loop racing a shutdown never fails.
type Publisher struct {
	store *SnapshotStore
	log   *logging.Entry
}

// Publisher returns a write handle to the store.
func (s *SnapshotStore) Publisher() *Publisher {
	return &Publisher{
		store: s,
		log:   logging.WithField("component", "publisher"),
	}
}

// PublishEndpoints atomically replaces the endpoint snapshot for dst,
// creating its topic if absent.
func (p *Publisher) PublishEndpoints(dst Dst, endpoints Endpoints) {
	s := p.store
	s.Lock()
	defer s.Unlock()
	if s.closed {
		p.log.Debugf("dropping endpoints publish for %s: store closed", dst)
		return
	}
	t, ok := s.endpoints[dst]
	if !ok {
		p.log.Debugf("creating endpoints topic for %s", dst)
		s.endpoints[dst] = newTopic(endpoints, endpointsVecs.newMetrics(dstLabels(dst)))
		return
	}
	t.publish(endpoints)
}

// RetractEndpoints closes and removes the endpoint topic for dst, if any.
func (p *Publisher) RetractEndpoints(dst Dst) {
	s := p.store
	s.Lock()
	defer s.Unlock()
	if s.closed {
		p.log.Debugf("dropping endpoints retract for %s: store closed", dst)
		return
	}
	t, ok := s.endpoints[dst]
	if !ok {
		return
	}
	p.log.Debugf("retracting endpoints topic for %s", dst)
	t.close()
	delete(s.endpoints, dst)
	endpointsVecs.unregister(dstLabels(dst))
}

// PublishOverrides atomically replaces the override snapshot for dst,
// creating its topic if absent.
func (p *Publisher) PublishOverrides(dst Dst, overrides Overrides) {
	s := p.store
	s.Lock()
	defer s.Unlock()
	if s.closed {
		p.log.Debugf("dropping overrides publish for %s: store closed", dst)
		return
	}
	t, ok := s.overrides[dst]
	if !ok {
		p.log.Debugf("creating overrides topic for %s", dst)
		s.overrides[dst] = newTopic(overrides, overridesVecs.newMetrics(dstLabels(dst)))
		return
	}
	t.publish(overrides)
}

// RetractOverrides closes and removes the override topic for dst, if any.
func (p *Publisher) RetractOverrides(dst Dst) {
	s := p.store
	s.Lock()
	defer s.Unlock()
	if s.closed {
		p.log.Debugf("dropping overrides retract for %s: store closed", dst)
		return
	}
	t, ok := s.overrides[dst]
	if !ok {
		return
	}
	p.log.Debugf("retracting overrides topic for %s", dst)
	t.close()
	delete(s.overrides, dst)
	overridesVecs.unregister(dstLabels(dst))
}

/////////////
/// topic ///
/////////////

func newTopic[T any](initial T, metrics topicMetrics) *topic[T] {
	t := &topic[T]{
		current: initial,
		version: 1,
		notify:  make(chan struct{}),
		metrics: metrics,
	}
	t.metrics.incUpdates()
	t.metrics.setExists(true)
	return t
}

func (t *topic[T]) publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.current = v
	t.version++
	close(t.notify)
	t.notify = make(chan struct{})
	t.metrics.incUpdates()
}

func (t *topic[T]) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.metrics.setExists(false)
	close(t.notify)
}

func (t *topic[T]) subscribe() *subscription[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers++
	t.metrics.setSubscribers(t.subscribers)
	return &subscription[T]{topic: t}
}

// next blocks until a snapshot newer than the cursor is published, the
// topic closes, or ctx is done. A value published before closure is always
// delivered before closure is reported. ok is false once the topic has
// closed and no newer value remains.
func (s *subscription[T]) next(ctx context.Context) (v T, ok bool, err error) {
	t := s.topic
	for {
		t.mu.Lock()
		if t.version != s.seen {
			v, s.seen = t.current, t.version
			t.mu.Unlock()
			return v, true, nil
		}
		if t.closed {
			t.mu.Unlock()
			return v, false, nil
		}
		notify := t.notify
		t.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return v, false, ctx.Err()
		}
	}
}

// cancel releases the cursor. It only maintains the subscriber gauge; a
// subscription holds no other resources.
func (s *subscription[T]) cancel() {
	t := s.topic
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers--
	if !t.closed {
		t.metrics.setSubscribers(t.subscribers)
	}
}
