package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightforgemedia/go-ezsockets/pkg/events"
)

func TestBusDeliversByTopic(t *testing.T) {
	bus := events.NewBus(8)
	defer bus.Close()

	conn := bus.Subscribe(events.TopicConnected)
	defer conn.Close()
	all := bus.Subscribe(events.TopicConnected, events.TopicDisconnected)
	defer all.Close()

	bus.Publish(events.Event{Topic: events.TopicConnected, ID: 1})
	bus.Publish(events.Event{Topic: events.TopicDisconnected, ID: 1, Err: errors.New("gone")})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, err := conn.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, events.TopicConnected, ev.Topic)
	assert.Equal(t, 1, ev.ID)
	assert.False(t, ev.At.IsZero())

	first, err := all.Next(ctx)
	require.NoError(t, err)
	second, err := all.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, events.TopicConnected, first.Topic)
	assert.Equal(t, events.TopicDisconnected, second.Topic)
	assert.EqualError(t, second.Err, "gone")
}

func TestNilBusDiscards(t *testing.T) {
	var bus *events.Bus
	bus.Publish(events.Event{Topic: events.TopicFault})

	sub := bus.Subscribe(events.TopicFault)
	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, events.ErrClosed)
	sub.Close()

	called := make(chan struct{}, 1)
	bus.Listen(context.Background(), func(events.Event) { called <- struct{}{} }, events.TopicFault)
	select {
	case <-called:
		t.Fatal("listener on a nil bus was called")
	case <-time.After(20 * time.Millisecond):
	}
	bus.Close()
}

func TestPublishDoesNotWaitForSlowSubscriber(t *testing.T) {
	bus := events.NewBus(1)
	defer bus.Close()
	sub := bus.Subscribe(events.TopicFault)
	defer sub.Close()

	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := range 50 {
			bus.Publish(events.Event{Topic: events.TopicFault, ID: i})
		}
	}()
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a subscriber that is not reading")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := range 50 {
		ev, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, ev.ID)
	}
}

func TestBusCloseEndsSubscriptions(t *testing.T) {
	bus := events.NewBus(1)
	sub := bus.Subscribe(events.TopicFault)
	bus.Close()

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, events.ErrClosed)

	sub.Close()
	bus.Publish(events.Event{Topic: events.TopicFault})

	late := bus.Subscribe(events.TopicFault)
	_, err = late.Next(context.Background())
	assert.ErrorIs(t, err, events.ErrClosed)
}

func TestListen(t *testing.T) {
	bus := events.NewBus(4)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan events.Event, 1)
	bus.Listen(ctx, func(ev events.Event) { got <- ev }, events.TopicClientState)

	bus.Publish(events.Event{Topic: events.TopicClientState, State: "connected"})
	select {
	case ev := <-got:
		assert.Equal(t, "connected", ev.State)
	case <-time.After(time.Second):
		t.Fatal("listener not called")
	}
}
