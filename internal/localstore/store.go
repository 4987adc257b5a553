// Package localstore is the client-side copy of the todo list.
package localstore

import (
	"sync"

	"todo-sync/internal/listeners"
	"todo-sync/internal/models"
)

// Store maps todo id to record while keeping the order records arrived in, so
// that Snapshot returns exactly what ApplySnapshot was given.
type Store struct {
	mu    sync.RWMutex
	items []models.Todo
	index map[string]int
	// taken before mu is released so notifications follow the order of changes
	emitMu  sync.Mutex
	changed listeners.Set[models.Snapshot]
}

// New returns an empty store.
func New() *Store {
	return &Store{index: make(map[string]int)}
}

// ApplySnapshot replaces the whole state with list. Later duplicates of an id are dropped.
func (s *Store) ApplySnapshot(list models.Snapshot) {
	s.mu.Lock()
	s.items = make([]models.Todo, 0, len(list))
	s.index = make(map[string]int, len(list))
	for _, t := range list {
		if _, dup := s.index[t.ID]; dup {
			continue
		}
		s.index[t.ID] = len(s.items)
		s.items = append(s.items, t.Clone())
	}
	s.emitLocked(s.snapshotLocked())
}

// ApplyChange merges one change event and reports whether the state changed.
// INSERT of a known id, UPDATE of an unknown id and DELETE of an absent id are no-ops.
func (s *Store) ApplyChange(e models.ChangeEvent) bool {
	if !e.Valid() {
		return false
	}
	s.mu.Lock()
	if !s.applyLocked(e) {
		s.mu.Unlock()
		return false
	}
	s.emitLocked(s.snapshotLocked())
	return true
}

// emitLocked releases mu and notifies subscribers of snap.
func (s *Store) emitLocked(snap models.Snapshot) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.mu.Unlock()
	s.changed.Emit(snap)
}

func (s *Store) applyLocked(e models.ChangeEvent) bool {
	id := e.TodoID()
	i, known := s.index[id]
	switch e.EventType {
	case models.EventInsert:
		if known {
			return false
		}
		s.index[id] = len(s.items)
		s.items = append(s.items, e.New.Clone())
		return true
	case models.EventUpdate:
		if !known {
			return false
		}
		next := e.Patch().Apply(s.items[i].Clone())
		if next.Equal(s.items[i]) {
			return false
		}
		s.items[i] = next
		return true
	case models.EventDelete:
		if !known {
			return false
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
		delete(s.index, id)
		for j := i; j < len(s.items); j++ {
			s.index[s.items[j].ID] = j
		}
		return true
	}
	return false
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() models.Snapshot {
	return models.Snapshot(s.items).Clone()
}

// Get returns the record with id.
func (s *Store) Get(id string) (models.Todo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Todo{}, false
	}
	return s.items[i].Clone(), true
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Subscribe calls fn with the new state after every change, in the order the
// changes happened. fn may read the store but must not change it. Release with Close.
func (s *Store) Subscribe(fn func(models.Snapshot)) *listeners.Handle {
	return s.changed.Add(fn)
}
