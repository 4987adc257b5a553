package models

import (
	"strings"
	"time"
)

// Todo represents a todo item shared by every participant of a list.
type Todo struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Description *string   `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedBy   string    `json:"createdBy"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Author returns the name shown next to the todo. Records without a display
// name fall back to the local part of CreatedBy.
func (t Todo) Author() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	if i := strings.Index(t.CreatedBy, "@"); i >= 0 {
		return t.CreatedBy[:i]
	}
	return t.CreatedBy
}

// HasDescription reports whether the optional description is present.
func (t Todo) HasDescription() bool {
	return t.Description != nil && *t.Description != ""
}

// Clone returns a copy that shares no pointers with t.
func (t Todo) Clone() Todo {
	if t.Description != nil {
		d := *t.Description
		t.Description = &d
	}
	return t
}

// Equal compares every field, including presence of the description.
func (t Todo) Equal(o Todo) bool {
	if t.ID != o.ID || t.Text != o.Text || t.Completed != o.Completed ||
		t.CreatedBy != o.CreatedBy || t.DisplayName != o.DisplayName || !t.CreatedAt.Equal(o.CreatedAt) {
		return false
	}
	return descriptionOf(t) == descriptionOf(o)
}

func descriptionOf(t Todo) string {
	if t.Description == nil {
		return ""
	}
	return *t.Description
}

// TodoPatch carries the mutable fields of an UPDATE. Nil means "not supplied".
// An empty Description clears it.
type TodoPatch struct {
	Text        *string `json:"text,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// Empty reports whether the patch supplies no field at all.
func (p TodoPatch) Empty() bool {
	return p.Text == nil && p.Description == nil && p.Completed == nil
}

// Apply merges the supplied fields into t. ID, CreatedBy and CreatedAt are never touched.
func (p TodoPatch) Apply(t Todo) Todo {
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Description != nil {
		if *p.Description == "" {
			t.Description = nil
		} else {
			d := *p.Description
			t.Description = &d
		}
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	return t
}

// PatchBetween returns the fields that differ from base to next.
func PatchBetween(base, next Todo) TodoPatch {
	var p TodoPatch
	if base.Text != next.Text {
		text := next.Text
		p.Text = &text
	}
	if descriptionOf(base) != descriptionOf(next) {
		d := descriptionOf(next)
		p.Description = &d
	}
	if base.Completed != next.Completed {
		c := next.Completed
		p.Completed = &c
	}
	return p
}

// Snapshot is the whole list at one instant, in the order it was produced.
type Snapshot []Todo

// Clone deep-copies the snapshot. A nil snapshot clones to an empty one.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for i, t := range s {
		out[i] = t.Clone()
	}
	return out
}

// Equal compares two snapshots element by element, order included.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if !s[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Find returns the record with the given id.
func (s Snapshot) Find(id string) (Todo, bool) {
	for _, t := range s {
		if t.ID == id {
			return t, true
		}
	}
	return Todo{}, false
}

// StringPtr and BoolPtr build patch fields.
func StringPtr(s string) *string { return &s }

func BoolPtr(b bool) *bool { return &b }
