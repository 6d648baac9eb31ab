package server

import (
	"container/heap"
	"errors"
	"fmt"
	"slices"

	"github.com/lightforgemedia/go-ezsockets/pkg/session"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

// Registry maps ids to live session handles. It is meant to be owned by a
// server extension and used only from the server goroutine, so it has no lock.
type Registry[ID comparable] struct {
	sessions map[ID]*session.Session[ID]
}

// NewRegistry returns an empty registry.
func NewRegistry[ID comparable]() *Registry[ID] {
	return &Registry[ID]{sessions: make(map[ID]*session.Session[ID])}
}

// Insert registers s under s.ID().
func (r *Registry[ID]) Insert(s *session.Session[ID]) error {
	id := s.ID()
	if _, ok := r.sessions[id]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateID, id)
	}
	r.sessions[id] = s
	return nil
}

// Remove unregisters id and returns the handle it held.
func (r *Registry[ID]) Remove(id ID) (*session.Session[ID], bool) {
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Get returns the handle registered under id.
func (r *Registry[ID]) Get(id ID) (*session.Session[ID], bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of registered sessions.
func (r *Registry[ID]) Len() int {
	return len(r.sessions)
}

// IDs returns the registered ids in no particular order.
func (r *Registry[ID]) IDs() []ID {
	ids := make([]ID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Range calls fn for every session until fn returns false.
func (r *Registry[ID]) Range(fn func(*session.Session[ID]) bool) {
	for _, s := range r.sessions {
		if !fn(s) {
			return
		}
	}
}

// Broadcast queues msg on every registered session except those in except.
// It returns how many sessions accepted the message; sessions that already
// terminated are skipped and reported in the error.
func (r *Registry[ID]) Broadcast(msg socket.Message, except ...ID) (int, error) {
	skip := make(map[ID]struct{}, len(except))
	for _, id := range except {
		skip[id] = struct{}{}
	}

	var (
		sent int
		errs []error
	)
	for id, s := range r.sessions {
		if _, ok := skip[id]; ok {
			continue
		}
		if err := s.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("session %v: %w", id, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// IntRegistry is a Registry with integer ids that hands out the lowest
// non-negative id not currently in use.
type IntRegistry struct {
	*Registry[int]
	free idHeap // ids below next that are not in use
	next int
}

// NewIntRegistry returns an empty IntRegistry.
func NewIntRegistry() *IntRegistry {
	return &IntRegistry{Registry: NewRegistry[int]()}
}

// NextID returns the lowest id not in use. It does not reserve the id; Insert does.
func (r *IntRegistry) NextID() int {
	if len(r.free) > 0 {
		return r.free[0]
	}
	return r.next
}

// Insert registers s. Its id must be non-negative.
func (r *IntRegistry) Insert(s *session.Session[int]) error {
	id := s.ID()
	if id < 0 {
		return fmt.Errorf("negative session id %d", id)
	}
	if err := r.Registry.Insert(s); err != nil {
		return err
	}

	switch {
	case id == r.next:
		r.next++
	case id > r.next:
		for i := r.next; i < id; i++ {
			heap.Push(&r.free, i)
		}
		r.next = id + 1
	default:
		if i := slices.Index(r.free, id); i >= 0 {
			heap.Remove(&r.free, i)
		}
	}
	return nil
}

// Remove unregisters id and makes it available to NextID.
func (r *IntRegistry) Remove(id int) (*session.Session[int], bool) {
	s, ok := r.Registry.Remove(id)
	if ok {
		heap.Push(&r.free, id)
	}
	return s, ok
}

// IDs returns the registered ids in ascending order.
func (r *IntRegistry) IDs() []int {
	ids := r.Registry.IDs()
	slices.Sort(ids)
	return ids
}

type idHeap []int

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
