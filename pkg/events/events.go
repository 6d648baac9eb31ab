// Package events publishes connection lifecycle events on a cskr/pubsub bus.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cskr/pubsub"

	"github.com/lightforgemedia/go-ezsockets/pkg/mailbox"
)

// Topics published by the server and client actors.
const (
	TopicConnected    = "session.connected"
	TopicDisconnected = "session.disconnected"
	TopicFault        = "fault"
	TopicClientState  = "client.state"
)

// ErrClosed is returned when reading from a subscription whose bus has shut down.
var ErrClosed = errors.New("events: subscription closed")

// Event describes one lifecycle transition.
type Event struct {
	Topic string
	ID    any
	Addr  string
	State string
	Delay time.Duration
	Err   error
	At    time.Time
}

// Bus fans events out to subscribers. A nil *Bus discards everything, so
// publishers never need to check whether one is configured; subscriptions on a
// nil bus are already closed.
//
// Publish never blocks the caller. Events are queued and handed to pubsub by
// a single forwarding goroutine, so a slow subscriber only delays delivery.
type Bus struct {
	ps    *pubsub.PubSub
	queue *mailbox.Mailbox[Event]
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus whose subscriber channels buffer capacity events.
func NewBus(capacity int) *Bus {
	b := &Bus{
		ps:    pubsub.New(capacity),
		queue: mailbox.New[Event](),
		done:  make(chan struct{}),
	}
	go b.forward()
	return b
}

func (b *Bus) forward() {
	defer close(b.done)
	for {
		ev, err := b.queue.Recv(context.Background())
		if err != nil {
			return
		}
		b.ps.Pub(ev, ev.Topic)
	}
}

// Publish stamps ev and queues it for subscribers of ev.Topic.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_ = b.queue.Push(ev)
}

// Subscribe returns a subscription to the given topics.
func (b *Bus) Subscribe(topics ...string) *Subscription {
	if b == nil {
		return closedSubscription()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return closedSubscription()
	}
	return &Subscription{bus: b, ch: b.ps.Sub(topics...), topics: topics}
}

// Listen calls fn for every event on topics until ctx is done or the bus shuts down.
func (b *Bus) Listen(ctx context.Context, fn func(Event), topics ...string) {
	sub := b.Subscribe(topics...)
	go func() {
		defer sub.Close()
		for {
			ev, err := sub.Next(ctx)
			if err != nil {
				return
			}
			fn(ev)
		}
	}()
}

// Close delivers the events already published, then shuts the bus down and
// closes every subscriber channel.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.queue.Close()
	<-b.done
	b.ps.Shutdown()
}

// Subscription is a stream of events for a set of topics.
type Subscription struct {
	bus    *Bus
	ch     chan interface{}
	topics []string
	once   sync.Once
}

// C returns the raw channel. Every value on it is an Event.
func (s *Subscription) C() <-chan interface{} {
	return s.ch
}

// Next waits for the next event.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	select {
	case v, ok := <-s.ch:
		if !ok {
			return Event{}, ErrClosed
		}
		return v.(Event), nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func closedSubscription() *Subscription {
	ch := make(chan interface{})
	close(ch)
	return &Subscription{ch: ch}
}

// Close unsubscribes. Pending events are discarded.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.bus == nil {
			return
		}
		// keep draining so the forwarder never waits on this channel
		go func() {
			for range s.ch {
			}
		}()
		s.bus.mu.RLock()
		defer s.bus.mu.RUnlock()
		if s.bus.closed {
			return
		}
		s.bus.ps.Unsub(s.ch, s.topics...)
	})
}
