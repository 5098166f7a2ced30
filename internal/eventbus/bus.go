package eventbus

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Bus routes envelopes from publishers to topic subscribers. Publishing never
// blocks: a full subscriber queue is relieved according to the topic strategy.
type Bus struct {
	logger     *log.Logger
	mu         sync.RWMutex
	subs       map[Topic]map[uint64]*Subscription
	buffers    map[Topic]int
	strategies map[Topic]DeliveryStrategy
	observers  []Observer
	nextID     atomic.Uint64

	published atomic.Uint64
	dropped   atomic.Uint64
}

// Observer sees every envelope published on the bus, before delivery.
type Observer interface {
	OnPublish(env Envelope)
}

// Metrics summarises bus traffic since construction.
type Metrics struct {
	PublishTotal uint64
	DroppedTotal uint64
}

// BusOption customises bus behaviour.
type BusOption func(*Bus)

// WithLogger overrides the logger used for drop warnings.
func WithLogger(logger *log.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTopicBuffer sets the default subscription buffer for a topic.
func WithTopicBuffer(topic Topic, size int) BusOption {
	return func(b *Bus) {
		if size <= 0 {
			size = 1
		}
		b.buffers[topic] = size
	}
}

// WithTopicStrategy overrides the delivery strategy of a topic.
func WithTopicStrategy(topic Topic, strategy DeliveryStrategy) BusOption {
	return func(b *Bus) {
		b.strategies[topic] = strategy
	}
}

// WithObserver registers an observer notified of every publish.
func WithObserver(o Observer) BusOption {
	return func(b *Bus) {
		if o != nil {
			b.observers = append(b.observers, o)
		}
	}
}

// New constructs a bus with default topic buffer sizes.
func New(opts ...BusOption) *Bus {
	b := &Bus{
		logger:     log.Default(),
		subs:       make(map[Topic]map[uint64]*Subscription),
		buffers:    make(map[Topic]int, len(defaultBuffers)),
		strategies: make(map[Topic]DeliveryStrategy),
	}
	for topic, size := range defaultBuffers {
		b.buffers[topic] = size
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) publish(ctx context.Context, env Envelope) {
	if env.Topic == "" {
		return
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	if env.Source == "" {
		env.Source = SourceUnknown
	}

	b.published.Add(1)
	for _, o := range b.observers {
		o.OnPublish(env)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[env.Topic] {
		sub.deliver(ctx, env, b.logger)
	}
}

// Metrics returns publish and drop totals.
func (b *Bus) Metrics() Metrics {
	return Metrics{PublishTotal: b.published.Load(), DroppedTotal: b.dropped.Load()}
}

// SubscriptionOption customises individual subscriptions.
type SubscriptionOption func(*subscriptionConfig)

type subscriptionConfig struct {
	bufferSize int
	name       string
	ctx        context.Context
}

// WithSubscriptionBuffer overrides the channel buffer for a subscription.
func WithSubscriptionBuffer(size int) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		if size > 0 {
			cfg.bufferSize = size
		}
	}
}

// WithSubscriptionName records a human friendly identifier used in logs.
func WithSubscriptionName(name string) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		cfg.name = name
	}
}

// WithContext closes the subscription once ctx is done.
func WithContext(ctx context.Context) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		cfg.ctx = ctx
	}
}

// Subscribe registers a subscriber for the given topic.
// If b is nil the returned Subscription has a closed channel.
func (b *Bus) Subscribe(topic Topic, opts ...SubscriptionOption) *Subscription {
	if b == nil {
		sub := &Subscription{ch: make(chan Envelope)}
		sub.closed.Store(true)
		close(sub.ch)
		return sub
	}

	cfg := subscriptionConfig{bufferSize: b.buffers[topic]}
	if cfg.bufferSize <= 0 {
		cfg.bufferSize = 1
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	sub := &Subscription{
		topic:    topic,
		id:       b.nextID.Add(1),
		name:     cfg.name,
		ch:       make(chan Envelope, cfg.bufferSize),
		bus:      b,
		strategy: strategyFor(topic, b.strategies),
	}

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]*Subscription)
	}
	b.subs[topic][sub.id] = sub
	b.mu.Unlock()

	if cfg.ctx != nil {
		go func() {
			<-cfg.ctx.Done()
			sub.Close()
		}()
	}
	return sub
}

// Shutdown closes all subscriptions. A nil bus is a no-op.
func (b *Bus) Shutdown() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, subs := range b.subs {
		for _, sub := range subs {
			sub.closeLocked()
		}
		delete(b.subs, topic)
	}
}

// Subscription represents a consumer listening to a topic.
type Subscription struct {
	topic    Topic
	id       uint64
	name     string
	ch       chan Envelope
	bus      *Bus
	strategy DeliveryStrategy
	closed   atomic.Bool
	dropped  atomic.Uint64
}

// C exposes the event channel. It is closed when the subscription closes.
func (s *Subscription) C() <-chan Envelope {
	return s.ch
}

// Dropped returns the number of events discarded for this subscriber.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close removes the subscription from the bus and closes its channel.
func (s *Subscription) Close() {
	if s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if subs, ok := s.bus.subs[s.topic]; ok {
		delete(subs, s.id)
	}
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// deliver runs under the bus read lock, so the channel cannot be closed
// concurrently.
func (s *Subscription) deliver(ctx context.Context, env Envelope, logger *log.Logger) {
	if s.closed.Load() || ctx.Err() != nil {
		return
	}

	select {
	case s.ch <- env:
		return
	default:
	}

	if s.strategy == StrategyDropNewest {
		s.recordDrop(logger, "drop-newest")
		return
	}

	select {
	case <-s.ch:
		s.recordDrop(logger, "drop-oldest")
	default:
	}
	select {
	case s.ch <- env:
	default:
		s.recordDrop(logger, "drop-current")
	}
}

func (s *Subscription) recordDrop(logger *log.Logger, reason string) {
	count := s.dropped.Add(1)
	if s.bus != nil {
		s.bus.dropped.Add(1)
	}
	if logger == nil {
		return
	}
	name := s.name
	if name == "" {
		name = "subscription"
	}
	logger.Printf("[eventbus] dropped event #%d for %s on topic %s (%s)", count, name, s.topic, reason)
}
