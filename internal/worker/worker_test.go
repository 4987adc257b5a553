package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-sync/internal/models"
	"todo-sync/internal/queue"
)

type recordingSink struct {
	events []models.ChangeEvent
}

func (s *recordingSink) Publish(ctx context.Context, e models.ChangeEvent) error {
	s.events = append(s.events, e)
	return nil
}

func TestHandleMessageForwardsEvent(t *testing.T) {
	sink := &recordingSink{}
	msg, err := queue.EncodeEvent(models.NewInsertEvent(models.Todo{ID: "1", Text: "milk"}))
	require.NoError(t, err)

	require.NoError(t, handleMessage(context.Background(), sink, msg.Value))
	require.Len(t, sink.events, 1)
	assert.Equal(t, "milk", sink.events[0].New.Text)
}

func TestHandleMessageDropsGarbage(t *testing.T) {
	sink := &recordingSink{}
	assert.Error(t, handleMessage(context.Background(), sink, []byte(`{}`)))
	assert.Empty(t, sink.events)
}
