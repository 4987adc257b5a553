package models

// Diff returns the change events that turn base into next: INSERT for ids only
// in next, DELETE for ids only in base and an UPDATE carrying just the changed
// fields for ids in both. Events follow next's order, deletes last.
func Diff(base, next Snapshot) []ChangeEvent {
	baseByID := make(map[string]Todo, len(base))
	for _, t := range base {
		baseByID[t.ID] = t
	}
	seen := make(map[string]struct{}, len(next))
	var events []ChangeEvent
	for _, t := range next {
		seen[t.ID] = struct{}{}
		old, ok := baseByID[t.ID]
		if !ok {
			events = append(events, NewInsertEvent(t))
			continue
		}
		if patch := PatchBetween(old, t); !patch.Empty() {
			events = append(events, NewUpdateEvent(t.ID, patch))
		}
	}
	for _, t := range base {
		if _, ok := seen[t.ID]; !ok {
			events = append(events, NewDeleteEvent(t.ID))
		}
	}
	return events
}
