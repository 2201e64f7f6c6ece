package plugin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one message published on the bus.
type Event struct {
	ID        string
	Channel   string
	Payload   any
	Timestamp time.Time
}

// Subscription receives events for one channel.
type Subscription struct {
	id      string
	channel string
	events  chan Event
	mu      sync.RWMutex
	closed  bool
	bus     *Bus
}

// Events returns the channel events are delivered on. It is closed when the
// subscription or the bus closes.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Channel returns the subscribed channel name.
func (s *Subscription) Channel() string {
	return s.channel
}

// Close unsubscribes and closes the event channel. Safe to call repeatedly.
func (s *Subscription) Close() error {
	s.bus.remove(s)
	s.shutdown()
	return nil
}

// send delivers an event unless the subscription is closed or its buffer is
// full. The subscription's own lock serializes sends against Close, so a
// publish can never hit a closed channel.
func (s *Subscription) send(event Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.events)
		s.closed = true
	}
}

// Bus is an in-process pub/sub hub with buffered subscriber channels.
// Slow consumers have events dropped rather than blocking publishers.
type Bus struct {
	mu         sync.RWMutex
	channels   map[string]map[string]*Subscription
	bufferSize int
	closed     bool
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBufferSize sets the per-subscriber event buffer.
func WithBufferSize(size int) BusOption {
	return func(b *Bus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		channels:   make(map[string]map[string]*Subscription),
		bufferSize: 64,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe creates a subscription for a channel.
func (b *Bus) Subscribe(channel string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	sub := &Subscription{
		id:      uuid.New().String(),
		channel: channel,
		events:  make(chan Event, b.bufferSize),
		bus:     b,
	}

	subs, ok := b.channels[channel]
	if !ok {
		subs = make(map[string]*Subscription)
		b.channels[channel] = subs
	}
	subs[sub.id] = sub

	return sub, nil
}

// Publish delivers payload to every subscriber of the channel.
// No subscribers is not an error.
func (b *Bus) Publish(ctx context.Context, channel string, payload any) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}

	subs := make([]*Subscription, 0, len(b.channels[channel]))
	for _, sub := range b.channels[channel] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	event := Event{
		ID:        uuid.New().String(),
		Channel:   channel,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Full buffers and closed subscriptions drop the event.
		sub.send(event)
	}
	return nil
}

// Close shuts down the bus and all subscriptions.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	all := make([]*Subscription, 0)
	for _, subs := range b.channels {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	b.channels = make(map[string]map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.shutdown()
	}
	return nil
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.channels[sub.channel]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.channels, sub.channel)
		}
	}
}

// SubscriberCount returns the number of subscribers for a channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}
