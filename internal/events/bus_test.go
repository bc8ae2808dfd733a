package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var got []Event
	unsub := bus.Subscribe(TypeNarrationsUpdated, func(ev Event) {
		got = append(got, ev)
	})
	defer unsub()

	bus.Publish(Event{Type: TypeNarrationsUpdated, Payload: NarrationsUpdated{Track: "original", Count: 3}})
	bus.Publish(Event{Type: TypeVolumeChanged, Payload: VolumeChanged{Volume: 0.5}})

	assert.Len(t, got, 1)
	payload, ok := got[0].Payload.(NarrationsUpdated)
	assert.True(t, ok)
	assert.Equal(t, "original", payload.Track)
	assert.Equal(t, 3, payload.Count)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	count := 0
	unsub := bus.Subscribe(TypeUserInteraction, func(Event) { count++ })

	bus.Publish(Event{Type: TypeUserInteraction})
	unsub()
	bus.Publish(Event{Type: TypeUserInteraction})

	assert.Equal(t, 1, count)
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	a, b := 0, 0
	defer bus.Subscribe(TypeActiveChanged, func(Event) { a++ })()
	defer bus.Subscribe(TypeActiveChanged, func(Event) { b++ })()

	bus.Publish(Event{Type: TypeActiveChanged, Payload: ActiveChanged{SubtitleID: 1, Playing: true}})

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
