// Package mailbox provides the ordered multi-producer, single-consumer queue
// every actor in this module reads its events from.
package mailbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned by Push after Close, and by Recv once a closed
	// mailbox has been drained.
	ErrClosed = errors.New("mailbox closed")
	// ErrFull is returned by Push on a full mailbox with the Reject policy.
	ErrFull = errors.New("mailbox full")
)

// OverflowPolicy decides what Push does when a bounded mailbox is full.
type OverflowPolicy uint8

const (
	// Block waits for space.
	Block OverflowPolicy = iota
	// DropNewest discards the item being pushed.
	DropNewest
	// DropOldest evicts the oldest item queued by Push to make room. Items
	// queued by ForcePush are never evicted; when nothing else is queued the
	// pushed item is discarded instead.
	DropOldest
	// Reject returns ErrFull.
	Reject
)

func (p OverflowPolicy) String() string {
	switch p {
	case Block:
		return "block"
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

type config struct {
	capacity int
	policy   OverflowPolicy
}

// Option configures a Mailbox.
type Option func(*config)

// WithCapacity bounds the mailbox. A capacity of zero or less keeps it unbounded.
func WithCapacity(n int, policy OverflowPolicy) Option {
	return func(c *config) {
		c.capacity = n
		c.policy = policy
	}
}

type entry[T any] struct {
	v      T
	forced bool
}

// Mailbox is an ordered queue with many producers and one consumer.
// Items pushed by one goroutine are received in the order they were pushed.
type Mailbox[T any] struct {
	cfg config

	mu     sync.Mutex
	items  []entry[T]
	closed bool

	ready   chan struct{} // holds a token while items is non-empty
	space   chan struct{} // signalled when a Block producer may retry
	closeCh chan struct{}

	dropped atomic.Uint64
}

// New creates an empty mailbox. Without options it is unbounded.
func New[T any](opts ...Option) *Mailbox[T] {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Mailbox[T]{
		cfg:     cfg,
		ready:   make(chan struct{}, 1),
		space:   make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

func (m *Mailbox[T]) bounded() bool {
	return m.cfg.capacity > 0
}

// Push enqueues v, applying the overflow policy when the mailbox is bounded and full.
func (m *Mailbox[T]) Push(v T) error {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrClosed
		}
		if !m.bounded() || len(m.items) < m.cfg.capacity {
			m.enqueueLocked(entry[T]{v: v})
			m.mu.Unlock()
			return nil
		}

		switch m.cfg.policy {
		case DropNewest:
			m.mu.Unlock()
			m.dropped.Add(1)
			return nil
		case DropOldest:
			if m.evictOldestLocked() {
				m.enqueueLocked(entry[T]{v: v})
			}
			m.mu.Unlock()
			m.dropped.Add(1)
			return nil
		case Reject:
			m.mu.Unlock()
			return ErrFull
		}

		m.mu.Unlock()
		select {
		case <-m.space:
		case <-m.closeCh:
		}
	}
}

// ForcePush enqueues v ignoring the capacity bound. Actors use it for their own
// lifecycle events, which must never be dropped: no overflow policy evicts an
// item queued this way.
func (m *Mailbox[T]) ForcePush(v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.enqueueLocked(entry[T]{v: v, forced: true})
	return nil
}

// evictOldestLocked removes the oldest unforced item. It reports false when
// every queued item was forced.
func (m *Mailbox[T]) evictOldestLocked() bool {
	for i := range m.items {
		if m.items[i].forced {
			continue
		}
		copy(m.items[i:], m.items[i+1:])
		m.items[len(m.items)-1] = entry[T]{}
		m.items = m.items[:len(m.items)-1]
		return true
	}
	return false
}

func (m *Mailbox[T]) enqueueLocked(e entry[T]) {
	m.items = append(m.items, e)
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled whenever the mailbox may hold items. Consumers that need
// to wait on other channels too select on it and then call TryRecv.
func (m *Mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}

// TryRecv dequeues the oldest item without waiting.
func (m *Mailbox[T]) TryRecv() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if len(m.items) == 0 {
		return zero, false
	}
	v := m.items[0].v
	m.items[0] = entry[T]{}
	m.items = m.items[1:]
	if len(m.items) > 0 {
		select {
		case m.ready <- struct{}{}:
		default:
		}
	}
	if m.bounded() {
		select {
		case m.space <- struct{}{}:
		default:
		}
	}
	return v, true
}

// Recv waits for the next item. Items queued before Close are still
// delivered; after that Recv returns ErrClosed.
func (m *Mailbox[T]) Recv(ctx context.Context) (T, error) {
	for {
		if v, ok := m.TryRecv(); ok {
			return v, nil
		}
		select {
		case <-m.ready:
		case <-m.closeCh:
			if v, ok := m.TryRecv(); ok {
				return v, nil
			}
			var zero T
			return zero, ErrClosed
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Discard empties the mailbox and returns how many items it dropped. Actors
// call it after Close so late pushes are accounted for.
func (m *Mailbox[T]) Discard() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.items)
	clear(m.items)
	m.items = nil
	return n
}

// Close stops accepting items. It is safe to call more than once.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.closeCh)
}

// Closed is closed once Close has been called.
func (m *Mailbox[T]) Closed() <-chan struct{} {
	return m.closeCh
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Dropped returns how many items the DropNewest and DropOldest policies discarded.
func (m *Mailbox[T]) Dropped() uint64 {
	return m.dropped.Load()
}
