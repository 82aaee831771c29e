package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/notary-booking/pkg/logging"
)

func TestBus_DeliversInOrder(t *testing.T) {
	bus := NewBus(logging.Discard())
	var got []string
	bus.Subscribe(UnavailableDatesChanged, func(_ context.Context, ev Event) { got = append(got, "a:"+ev.Date) })
	bus.Subscribe(UnavailableDatesChanged, func(_ context.Context, ev Event) { got = append(got, "b:"+ev.Date) })
	bus.Subscribe(ServicesUpdated, func(context.Context, Event) { got = append(got, "other") })

	bus.Publish(context.Background(), Event{Topic: UnavailableDatesChanged, Date: "2025-03-10"})

	assert.Equal(t, []string{"a:2025-03-10", "b:2025-03-10"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(logging.Discard())
	calls := 0
	unsub := bus.Subscribe(AppointmentSettingsChanged, func(context.Context, Event) { calls++ })
	assert.Equal(t, 1, bus.Subscribers(AppointmentSettingsChanged))

	unsub()
	unsub()
	bus.Publish(context.Background(), Event{Topic: AppointmentSettingsChanged})

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, bus.Subscribers(AppointmentSettingsChanged))
}

func TestBus_PanickingSubscriberDoesNotStopOthers(t *testing.T) {
	bus := NewBus(logging.Discard())
	reached := false
	bus.Subscribe(SlotCapacitiesChanged, func(context.Context, Event) { panic("boom") })
	bus.Subscribe(SlotCapacitiesChanged, func(context.Context, Event) { reached = true })

	bus.Publish(context.Background(), Event{Topic: SlotCapacitiesChanged})

	assert.True(t, reached)
}

func TestBus_PublishStampsTime(t *testing.T) {
	bus := NewBus(logging.Discard())
	var ev Event
	bus.Subscribe(AppointmentsChanged, func(_ context.Context, e Event) { ev = e })
	bus.Publish(context.Background(), Event{Topic: AppointmentsChanged})
	assert.False(t, ev.OccurredAt.IsZero())
}

func TestBus_NilPublishIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(context.Background(), Event{Topic: AppointmentsChanged})
}
