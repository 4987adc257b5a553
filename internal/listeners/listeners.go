// Package listeners is a small callback registry whose registrations are
// released through a single Close on the returned handle.
package listeners

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Handle releases one registration. Close is idempotent and safe to call from
// inside the callback it releases.
type Handle struct {
	once    sync.Once
	closed  *atomic.Bool
	release func()
}

// Close stops delivery to the registration. No callback starts after Close returns.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		h.closed.Store(true)
		if h.release != nil {
			h.release()
		}
	})
	return nil
}

type entry[T any] struct {
	fn     func(T)
	closed *atomic.Bool
}

// Set fans a value out to every registered callback, in registration order.
type Set[T any] struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]entry[T]
}

// Add registers fn and returns its handle.
func (s *Set[T]) Add(fn func(T)) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[uint64]entry[T])
	}
	id := s.next
	s.next++
	closed := new(atomic.Bool)
	s.entries[id] = entry[T]{fn: fn, closed: closed}
	return &Handle{
		closed: closed,
		release: func() {
			s.mu.Lock()
			delete(s.entries, id)
			s.mu.Unlock()
		},
	}
}

// Emit calls every live callback with v. Callbacks run outside the lock, so
// they may add or close registrations.
func (s *Set[T]) Emit(v T) {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	live := make([]entry[T], 0, len(ids))
	for _, id := range ids {
		live = append(live, s.entries[id])
	}
	s.mu.Unlock()

	for _, e := range live {
		if e.closed.Load() {
			continue
		}
		e.fn(v)
	}
}

// Len returns the number of live registrations.
func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
