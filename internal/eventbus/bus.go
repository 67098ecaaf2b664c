package eventbus

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Topic identifies an event stream on the bus.
type Topic string

// Topics published by the update client core.
const (
	TopicState   Topic = "updates.state"   // controller state transitions
	TopicCheck   Topic = "updates.check"   // check-for-update completions
	TopicFetch   Topic = "updates.fetch"   // fetch completions
	TopicStorage Topic = "updates.storage" // storage bootstrap and directory changes
)

// Envelope is one published event.
type Envelope struct {
	Topic     Topic     `json:"topic"`
	Source    string    `json:"source"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer is notified synchronously of every published envelope. Observers
// must not block; they run on the publisher's goroutine.
type Observer interface {
	OnPublish(env Envelope)
}

// Bus is a topic-based publish/subscribe hub. Delivery is non-blocking: a
// full subscriber channel drops its oldest event rather than stalling the
// publisher.
type Bus struct {
	logger       *log.Logger
	observers    []Observer
	mu           sync.RWMutex
	subscribers  map[Topic]map[uint64]*Subscription
	nextID       uint64
	publishTotal atomic.Uint64
	droppedTotal atomic.Uint64
}

// Metrics is a point-in-time snapshot of bus-wide counters.
type Metrics struct {
	PublishTotal uint64
	DroppedTotal uint64
}

// Metrics reports cumulative publish and drop counts.
func (b *Bus) Metrics() Metrics {
	if b == nil {
		return Metrics{}
	}
	return Metrics{
		PublishTotal: b.publishTotal.Load(),
		DroppedTotal: b.droppedTotal.Load(),
	}
}

// New constructs an empty bus.
func New(opts ...Option) *Bus {
	bus := &Bus{
		logger:      log.Default(),
		subscribers: make(map[Topic]map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Option customises bus behaviour.
type Option func(*Bus)

// WithLogger overrides the logger used for drop warnings.
func WithLogger(logger *log.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver registers an observer for all published events.
func WithObserver(obs Observer) Option {
	return func(b *Bus) {
		if obs != nil {
			b.observers = append(b.observers, obs)
		}
	}
}

// Publish delivers the envelope to every subscriber of its topic. A nil bus
// is a no-op so components can publish unconditionally.
func (b *Bus) Publish(env Envelope) {
	if b == nil || env.Topic == "" {
		return
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}

	b.publishTotal.Add(1)
	for _, obs := range b.observers {
		obs.OnPublish(env)
	}

	b.mu.RLock()
	for _, sub := range b.subscribers[env.Topic] {
		sub.deliver(env, b)
	}
	b.mu.RUnlock()
}

// Subscribe registers a subscriber for the given topic. A buffer of zero or
// less selects a single-slot channel.
func (b *Bus) Subscribe(topic Topic, buffer int, name string) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}

	id := atomic.AddUint64(&b.nextID, 1)
	sub := &Subscription{
		topic: topic,
		id:    id,
		name:  name,
		ch:    make(chan Envelope, buffer),
		bus:   b,
	}

	b.mu.Lock()
	if _, exists := b.subscribers[topic]; !exists {
		b.subscribers[topic] = make(map[uint64]*Subscription)
	}
	b.subscribers[topic][id] = sub
	b.mu.Unlock()

	return sub
}

// Shutdown closes all subscriptions and empties the routing tables.
func (b *Bus) Shutdown() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subscribers {
		for id, sub := range subs {
			sub.closeLocked()
			delete(subs, id)
		}
		delete(b.subscribers, topic)
	}
}

// Subscription represents a consumer listening to one topic.
type Subscription struct {
	topic   Topic
	id      uint64
	name    string
	ch      chan Envelope
	bus     *Bus
	closed  atomic.Bool
	dropped atomic.Uint64
}

// C exposes the event channel.
func (s *Subscription) C() <-chan Envelope { return s.ch }

// Dropped reports how many events this subscription has lost to overflow.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close removes the subscription and closes the channel.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if subs, ok := s.bus.subscribers[s.topic]; ok {
		delete(subs, s.id)
	}
	close(s.ch)
}

func (s *Subscription) closeLocked() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.ch)
}

func (s *Subscription) deliver(env Envelope, b *Bus) {
	if s.closed.Load() {
		return
	}

	select {
	case s.ch <- env:
		return
	default:
	}

	// Channel full: drop the oldest event to make room for the new one.
	select {
	case <-s.ch:
	default:
	}

	select {
	case s.ch <- env:
	default:
	}

	count := s.dropped.Add(1)
	b.droppedTotal.Add(1)
	if b.logger != nil {
		name := s.name
		if name == "" {
			name = "subscription"
		}
		b.logger.Printf("[EventBus] dropped event #%d for %s on topic %s", count, name, s.topic)
	}
}
