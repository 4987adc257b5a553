// Package syncchan carries snapshots and change events between a client and
// the authority. Both transports reconnect on their own and surface
// connectivity transitions to subscribers.
package syncchan

import (
	"context"
	"net/http"
	"time"

	"todo-sync/internal/listeners"
	"todo-sync/internal/models"
)

// MessageKind tags a Message.
type MessageKind int

const (
	KindSnapshot MessageKind = iota + 1
	KindParticipants
	KindJoin
	KindChange
)

func (k MessageKind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindParticipants:
		return "participants"
	case KindJoin:
		return "join"
	case KindChange:
		return "change"
	}
	return "unknown"
}

// Message is what travels over a Channel in either direction.
type Message struct {
	Kind         MessageKind
	Snapshot     models.Snapshot
	Participants []string
	Name         string
	Change       *models.ChangeEvent
}

func SnapshotMessage(s models.Snapshot) Message {
	return Message{Kind: KindSnapshot, Snapshot: s}
}

func JoinMessage(name string) Message {
	return Message{Kind: KindJoin, Name: name}
}

func ChangeMessage(e models.ChangeEvent) Message {
	return Message{Kind: KindChange, Change: &e}
}

// Channel is the transport contract shared by the relay and notify models.
type Channel interface {
	// Connect starts the connection loop and returns the result of the first
	// attempt. The loop keeps reconnecting until Disconnect.
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg Message) error
	OnReceive(fn func(Message)) *listeners.Handle
	OnConnectivityChange(fn func(connected bool)) *listeners.Handle
	Connected() bool
	Disconnect() error
}

type Settings struct {
	HandshakeTimeout time.Duration
	ReconnectTimeout time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	Header           http.Header
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 5 * time.Second,
		ReconnectTimeout: 2 * time.Second,
		PingTimeout:      15 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      45 * time.Second,
	}
}
