// Package broadcast relays attendance change-events to every connected subscriber.
//
// Delivery is at-most-once: there is no acknowledgement, retry or history, so a
// subscriber that joins after an event, or whose handler fails, never sees it.
package broadcast

import (
	"context"
	"log"
	"sync"
	"time"

	"rollcall/internal/model"
)

// Publisher is what mutation code depends on to emit events.
type Publisher interface {
	Publish(ctx context.Context, ev model.ChangeEvent) error
}

// Handler receives one event. Returning an error drops the subscription.
type Handler func(ctx context.Context, ev model.ChangeEvent) error

// Observer is notified of bus activity; metrics implement it.
type Observer interface {
	Published(t model.EventType)
	Subscribers(n int)
	Dropped()
}

type nopObserver struct{}

func (nopObserver) Published(model.EventType) {}
func (nopObserver) Subscribers(int)           {}
func (nopObserver) Dropped()                  {}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id      uint64
	name    string
	handler Handler
}

// Name identifies the subscriber in logs.
func (s *Subscription) Name() string { return s.name }

// Bus is a process-wide fan-out point. It is created once by the composition root
// and passed to whoever publishes or subscribes.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	next    uint64
	obs     Observer
	verbose bool
	now     func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithObserver reports activity to o.
func WithObserver(o Observer) Option {
	return func(b *Bus) {
		if o != nil {
			b.obs = o
		}
	}
}

// WithVerboseLog logs subscription changes and drops.
func WithVerboseLog(v bool) Option {
	return func(b *Bus) { b.verbose = v }
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs: make(map[uint64]*Subscription),
		obs:  nopObserver{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for every event published from now on.
func (b *Bus) Subscribe(name string, h Handler) *Subscription {
	b.mu.Lock()
	b.next++
	s := &Subscription{id: b.next, name: name, handler: h}
	b.subs[s.id] = s
	n := len(b.subs)
	b.mu.Unlock()

	b.obs.Subscribers(n)
	if b.verbose {
		log.Printf("broadcast: %s subscribed (%d connected)", name, n)
	}
	return s
}

// Unsubscribe removes s. Removing an unknown or already removed subscription is a no-op.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	_, ok := b.subs[s.id]
	delete(b.subs, s.id)
	n := len(b.subs)
	b.mu.Unlock()

	if !ok {
		return
	}
	b.obs.Subscribers(n)
	if b.verbose {
		log.Printf("broadcast: %s unsubscribed (%d connected)", s.name, n)
	}
}

// Len returns the number of current subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers ev synchronously to the subscribers registered when the call
// starts. A failing handler is dropped; the others still receive the event.
// The only error returned is for a malformed event.
func (b *Bus) Publish(ctx context.Context, ev model.ChangeEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now().UTC()
	}

	b.mu.RLock()
	snapshot := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		snapshot = append(snapshot, s)
	}
	b.mu.RUnlock()

	b.obs.Published(ev.Type)
	for _, s := range snapshot {
		if err := s.handler(ctx, ev); err != nil {
			b.obs.Dropped()
			if b.verbose {
				log.Printf("broadcast: dropping %s: %v", s.name, err)
			}
			b.Unsubscribe(s)
		}
	}
	return nil
}
