package syncchan

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"todo-sync/internal/models"
	"todo-sync/internal/syncerr"
	"todo-sync/pkg/logger"
)

// RelayChannel is the relay-model transport: full snapshots and presence over
// one websocket to the relay process.
type RelayChannel struct {
	*socket
	// rev of the last snapshot received, echoed on sends
	rev atomic.Uint64
}

var _ Channel = (*RelayChannel)(nil)

// NewRelayChannel returns a channel for the relay at url (ws://host/ws).
func NewRelayChannel(url string, settings *Settings) *RelayChannel {
	c := &RelayChannel{}
	c.socket = newSocket(url, settings, c.decode)
	return c
}

func (c *RelayChannel) decode(ctx context.Context, data []byte) (Message, bool) {
	var env models.RelayMessage
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warn(ctx, "Relay frame not JSON", "error", err)
		return Message{}, false
	}
	switch env.Event {
	case models.RelayTodoUpdate:
		snap, err := env.DecodeSnapshot()
		if err != nil {
			logger.Warn(ctx, "Relay snapshot malformed", "error", err)
			return Message{}, false
		}
		c.rev.Store(env.Rev)
		return SnapshotMessage(snap), true
	case models.RelayUsersUpdate:
		names, err := env.DecodeNames()
		if err != nil {
			logger.Warn(ctx, "Relay participants malformed", "error", err)
			return Message{}, false
		}
		return Message{Kind: KindParticipants, Participants: names}, true
	}
	logger.Debug(ctx, "Relay frame ignored", "event", env.Event)
	return Message{}, false
}

// Send writes a snapshot (todosUpdate) or a join (userJoin).
func (c *RelayChannel) Send(ctx context.Context, msg Message) error {
	var (
		frame []byte
		err   error
	)
	switch msg.Kind {
	case KindSnapshot:
		snap := msg.Snapshot
		if snap == nil {
			snap = models.Snapshot{}
		}
		frame, err = models.NewRelayMessageRev(models.RelayTodosUpdate, snap, c.rev.Load())
	case KindJoin:
		if msg.Name == "" {
			return &syncerr.ValidationError{Field: "name", Err: syncerr.ErrEmptyName}
		}
		frame, err = models.NewRelayMessage(models.RelayUserJoin, msg.Name)
	default:
		return fmt.Errorf("relay send %s: %w", msg.Kind, errUnsupported)
	}
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return syncerr.Transport("send", err)
	}
	return c.write(frame)
}
