package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishReachesSubscriber(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("job-1")
	defer bus.Unsubscribe("job-1", ch)

	bus.Publish("job-1", Event{Type: "progress", Status: "processing", Progress: 40})

	select {
	case ev := <-ch:
		assert.Equal(t, "progress", ev.Type)
		assert.Equal(t, 40, ev.Progress)
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestEventBus_PublishIsScopedToJob(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("job-1")
	defer bus.Unsubscribe("job-1", ch)

	bus.Publish("job-2", Event{Type: "status"})

	assert.Empty(t, ch)
}

func TestEventBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("job-1")
	bus.Unsubscribe("job-1", ch)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after the last unsubscribe must not panic.
	bus.Publish("job-1", Event{Type: "status"})
}

func TestEventBus_SubscribersGauge(t *testing.T) {
	bus := NewEventBus()
	assert.Equal(t, 0, bus.Subscribers())

	a := bus.Subscribe("job-1")
	b := bus.Subscribe("job-2")
	assert.Equal(t, 2, bus.Subscribers())

	bus.Unsubscribe("job-1", a)
	assert.Equal(t, 1, bus.Subscribers())

	// Unsubscribing an unknown channel must not skew the gauge.
	bus.Unsubscribe("job-1", a)
	assert.Equal(t, 1, bus.Subscribers())

	bus.Unsubscribe("job-2", b)
	assert.Equal(t, 0, bus.Subscribers())
}

func TestEventBus_SlowSubscriberDropsEvents(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("job-1")
	defer bus.Unsubscribe("job-1", ch)

	// The channel buffers 16 events; everything past that is dropped
	// rather than blocking the publisher.
	for i := 0; i < 50; i++ {
		bus.Publish("job-1", Event{Type: "progress", Progress: i})
	}

	require.Len(t, ch, 16)
	first := <-ch
	assert.Equal(t, 0, first.Progress)
}
