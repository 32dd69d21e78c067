package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedBus(t *testing.T) EventBus {
	t.Helper()
	bus := NewEventBus(DefaultEventBusConfig())
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { bus.Stop(context.Background()) })
	return bus
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := startedBus(t)

	received := make(chan Event, 1)
	_, err := bus.Subscribe(context.Background(), EventFilter{
		Types: []EventType{EventImportStarted},
	}, func(e Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	event := NewSystemEvent(EventImportStarted, "Import started", "job 1")
	require.NoError(t, bus.PublishAsync(event))

	select {
	case got := <-received:
		assert.Equal(t, EventImportStarted, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestSubscriberFilterByType(t *testing.T) {
	bus := startedBus(t)

	received := make(chan Event, 4)
	_, err := bus.Subscribe(context.Background(), EventFilter{
		Types: []EventType{EventImportCompleted},
	}, func(e Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.PublishAsync(NewSystemEvent(EventImportStarted, "started", "")))
	require.NoError(t, bus.PublishAsync(NewSystemEvent(EventImportCompleted, "done", "")))

	select {
	case got := <-received:
		assert.Equal(t, EventImportCompleted, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("filtered subscriber never received its event")
	}
	assert.Empty(t, received, "unmatched event types must not be delivered")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := startedBus(t)

	received := make(chan Event, 4)
	sub, err := bus.Subscribe(context.Background(), EventFilter{}, func(e Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Unsubscribe(sub.ID))

	require.NoError(t, bus.PublishAsync(NewSystemEvent(EventInfo, "after unsubscribe", "")))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, received)
}

func TestRecentEventsAreQueryable(t *testing.T) {
	bus := startedBus(t)

	require.NoError(t, bus.Publish(context.Background(), NewSystemEvent(EventImportStarted, "one", "")))
	require.NoError(t, bus.Publish(context.Background(), NewSystemEvent(EventImportCompleted, "two", "")))
	time.Sleep(100 * time.Millisecond)

	events, total, err := bus.GetEvents(EventFilter{Types: []EventType{EventImportCompleted}}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, events, 1)
	assert.Equal(t, "two", events[0].Title)
}
