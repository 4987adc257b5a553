package syncchan

import (
	"context"
	"encoding/json"
	"fmt"

	"todo-sync/internal/models"
	"todo-sync/pkg/logger"
)

// Mutator applies change events to the durable authority.
type Mutator interface {
	Insert(ctx context.Context, t models.Todo) error
	Update(ctx context.Context, id string, patch models.TodoPatch) error
	Delete(ctx context.Context, id string) error
}

// FeedChannel is the notify-model transport: it receives the durable store's
// change feed over a websocket and sends mutations through a Mutator.
type FeedChannel struct {
	*socket
	mutator Mutator
}

var _ Channel = (*FeedChannel)(nil)

// NewFeedChannel returns a channel subscribed to the change feed at url
// (ws://host/feed). mutator may be nil for a receive-only channel.
func NewFeedChannel(url string, mutator Mutator, settings *Settings) *FeedChannel {
	return &FeedChannel{socket: newSocket(url, settings, decodeFeed), mutator: mutator}
}

func decodeFeed(ctx context.Context, data []byte) (Message, bool) {
	var e models.ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		logger.Warn(ctx, "Feed frame not JSON", "error", err)
		return Message{}, false
	}
	if !e.Valid() {
		logger.Warn(ctx, "Feed event malformed", "event_type", e.EventType)
		return Message{}, false
	}
	return ChangeMessage(e), true
}

// Send applies a change event through the mutator. The resulting feed event
// arrives later through OnReceive like everyone else's.
func (c *FeedChannel) Send(ctx context.Context, msg Message) error {
	if msg.Kind != KindChange || msg.Change == nil {
		return fmt.Errorf("feed send %s: %w", msg.Kind, errUnsupported)
	}
	if c.mutator == nil {
		return fmt.Errorf("feed send: %w", errUnsupported)
	}
	e := *msg.Change
	if !e.Valid() {
		return fmt.Errorf("feed send: malformed %s event", e.EventType)
	}
	switch e.EventType {
	case models.EventInsert:
		return c.mutator.Insert(ctx, *e.New)
	case models.EventUpdate:
		return c.mutator.Update(ctx, e.TodoID(), e.Patch())
	case models.EventDelete:
		return c.mutator.Delete(ctx, e.TodoID())
	}
	return fmt.Errorf("feed send %s: %w", e.EventType, errUnsupported)
}
