package models

import (
	"encoding/json"
	"fmt"
)

// Relay wire events.
const (
	RelayTodoUpdate  = "todoUpdate"  // relay -> client, full snapshot
	RelayTodosUpdate = "todosUpdate" // client -> relay, full snapshot
	RelayUsersUpdate = "usersUpdate" // relay -> client, participant names
	RelayUserJoin    = "userJoin"    // client -> relay, participant name
)

// RelayMessage is one text frame on a relay connection. Rev is optional: the
// relay stamps every snapshot it sends with its revision, and a client echoes
// the revision its own snapshot was built on so the relay can merge against
// the right ancestor. Zero means unknown.
type RelayMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Rev   uint64          `json:"rev,omitempty"`
}

// NewRelayMessage marshals data into an envelope for event.
func NewRelayMessage(event string, data interface{}) ([]byte, error) {
	return NewRelayMessageRev(event, data, 0)
}

// NewRelayMessageRev marshals data into an envelope for event stamped with rev.
func NewRelayMessageRev(event string, data interface{}, rev uint64) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", event, err)
	}
	return json.Marshal(RelayMessage{Event: event, Data: raw, Rev: rev})
}

// DecodeSnapshot reads the payload of a todoUpdate/todosUpdate frame.
func (m RelayMessage) DecodeSnapshot() (Snapshot, error) {
	var s Snapshot
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return Snapshot{}, nil
	}
	if err := json.Unmarshal(m.Data, &s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.Event, err)
	}
	return s, nil
}

// DecodeNames reads the payload of a usersUpdate frame.
func (m RelayMessage) DecodeNames() ([]string, error) {
	var names []string
	if err := json.Unmarshal(m.Data, &names); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.Event, err)
	}
	return names, nil
}

// DecodeName reads the payload of a userJoin frame.
func (m RelayMessage) DecodeName() (string, error) {
	var name string
	if err := json.Unmarshal(m.Data, &name); err != nil {
		return "", fmt.Errorf("decode %s: %w", m.Event, err)
	}
	return name, nil
}
