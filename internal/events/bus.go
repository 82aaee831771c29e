// Package events is an in-process publish/subscribe bus for cache
// invalidation between booking components.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/notary-booking/pkg/logging"
)

// Topic names a kind of change notification.
type Topic string

const (
	UnavailableDatesChanged    Topic = "unavailable_dates.changed"
	SlotCapacitiesChanged      Topic = "slot_capacities.changed"
	AppointmentSettingsChanged Topic = "appointment_settings.changed"
	ServicesUpdated            Topic = "services.updated"
	AppointmentsChanged        Topic = "appointments.changed"
)

// Event is one notification. Date is set when the change is scoped to a
// single calendar day (YYYY-MM-DD).
type Event struct {
	Topic      Topic
	Date       string
	Source     string
	OccurredAt time.Time
}

// Handler reacts to an event.
type Handler func(ctx context.Context, ev Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans events out to subscribers in subscription order, synchronously.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscription
	logger *logging.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.Default()
	}
	return &Bus{subs: make(map[Topic][]subscription), logger: logger}
}

// Subscribe registers h for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}
}

func (b *Bus) unsubscribe(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every current subscriber of ev.Topic. A panicking
// subscriber is logged and skipped.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if b == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[ev.Topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(ctx, s, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("events: subscriber panicked", "topic", ev.Topic, "subscription", s.id, "panic", r)
		}
	}()
	s.handler(ctx, ev)
}

// Subscribers returns how many handlers are registered for topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
