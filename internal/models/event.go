package models

import "time"

// EventType tags a ChangeEvent.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent describes one committed mutation of a todo row. It is also the
// change-feed wire format: INSERT carries New, UPDATE carries New and/or
// Fields, DELETE carries Old (at least its id).
type ChangeEvent struct {
	EventType   EventType  `json:"eventType"`
	New         *Todo      `json:"new,omitempty"`
	Old         *Todo      `json:"old,omitempty"`
	Fields      *TodoPatch `json:"fields,omitempty"`
	CommittedAt time.Time  `json:"commitTimestamp,omitempty"`
}

// NewInsertEvent builds an INSERT for t.
func NewInsertEvent(t Todo) ChangeEvent {
	c := t.Clone()
	return ChangeEvent{EventType: EventInsert, New: &c}
}

// NewUpdateEvent builds an UPDATE that merges patch into the record with id.
func NewUpdateEvent(id string, patch TodoPatch) ChangeEvent {
	p := patch
	return ChangeEvent{EventType: EventUpdate, Old: &Todo{ID: id}, Fields: &p}
}

// NewDeleteEvent builds a DELETE for id.
func NewDeleteEvent(id string) ChangeEvent {
	return ChangeEvent{EventType: EventDelete, Old: &Todo{ID: id}}
}

// TodoID returns the id the event refers to, or "" if it carries none.
func (e ChangeEvent) TodoID() string {
	if e.New != nil && e.New.ID != "" {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return ""
}

// Patch returns the fields an UPDATE merges. Explicit Fields win; otherwise the
// mutable fields of New are used, so full-row feeds merge the same way.
func (e ChangeEvent) Patch() TodoPatch {
	if e.Fields != nil {
		return *e.Fields
	}
	if e.New == nil {
		return TodoPatch{}
	}
	text := e.New.Text
	completed := e.New.Completed
	desc := descriptionOf(*e.New)
	return TodoPatch{Text: &text, Description: &desc, Completed: &completed}
}

// Valid reports whether the event is well formed enough to apply.
func (e ChangeEvent) Valid() bool {
	switch e.EventType {
	case EventInsert:
		return e.New != nil && e.New.ID != ""
	case EventUpdate, EventDelete:
		return e.TodoID() != ""
	}
	return false
}
