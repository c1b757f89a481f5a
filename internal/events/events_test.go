package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_Publish(t *testing.T) {
	bus := NewEventBus()

	var got []Event
	bus.Subscribe(func(e Event) error {
		got = append(got, e)
		return nil
	}, SlotReserved, SlotReleased)

	bus.Publish(Event{Type: SlotReserved, DoctorID: "doc-1", Date: "2026-10-19", Time: "09:00"})
	bus.Publish(Event{Type: SlotConfirmed, DoctorID: "doc-1"})
	bus.Publish(Event{Type: SlotReleased, DoctorID: "doc-1"})

	assert.Len(t, got, 2)
	assert.Equal(t, "09:00", got[0].Time)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestEventBus_HandlerError(t *testing.T) {
	bus := NewEventBus()

	var failures int
	bus.OnError(func(Event, error) { failures++ })

	calls := 0
	bus.Subscribe(func(Event) error { calls++; return errors.New("boom") }, SlotsGenerated)
	bus.Subscribe(func(Event) error { calls++; return nil }, SlotsGenerated)

	bus.Publish(Event{Type: SlotsGenerated})
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, failures)
}
