package reconciler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-sync/internal/models"
	"todo-sync/internal/syncchan"
	"todo-sync/internal/syncerr"
)

func startNotify(t *testing.T, list models.Snapshot) (*Notify, *fakeChannel, *fakeLister) {
	t.Helper()
	ch := &fakeChannel{}
	l := &fakeLister{list: list}
	n := NewNotify(ch, l, models.Identity{ID: "ann@example.com", DisplayName: "Ann"})
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() { _ = n.Close() })
	return n, ch, l
}

func TestNotifyStartLoadsList(t *testing.T) {
	n, _, l := startNotify(t, models.Snapshot{{ID: "1", Text: "milk"}})
	assert.Equal(t, []string{"milk"}, texts(n.CurrentSnapshot()))
	assert.True(t, n.Status().Connected)
	// the first connect does not trigger a second load
	assert.Equal(t, 1, l.callCount())
}

func TestNotifyStartWithoutFeed(t *testing.T) {
	ch := &fakeChannel{connectErr: syncerr.Transport("dial", errors.New("refused"))}
	l := &fakeLister{list: models.Snapshot{{ID: "1", Text: "milk"}}}
	n := NewNotify(ch, l, models.Identity{ID: "ann"})

	err := n.Start(context.Background())
	require.Error(t, err)
	assert.True(t, syncerr.IsTransport(err))
	assert.Equal(t, []string{"milk"}, texts(n.CurrentSnapshot()))
	assert.False(t, n.Status().Connected)
}

func TestNotifyRefusedInsertConverges(t *testing.T) {
	n, ch, _ := startNotify(t, models.Snapshot{{ID: "1", Text: "milk"}})
	refused := &syncerr.PersistenceError{Op: "insert", Err: errors.New("500 Failed to save todo")}
	ch.failSends(refused)

	var seen [][]string
	h := n.Subscribe(func(s models.Snapshot) { seen = append(seen, texts(s)) })
	defer h.Close()

	_, err := n.AddTodo(context.Background(), "buy eggs", nil)
	require.Error(t, err)
	assert.True(t, syncerr.IsPersistence(err))

	// shown optimistically, then replaced by the authority's list
	require.Len(t, seen, 2)
	assert.Equal(t, []string{"milk", "buy eggs"}, seen[0])
	assert.Equal(t, []string{"milk"}, seen[1])
	assert.Equal(t, []string{"milk"}, texts(n.CurrentSnapshot()))
	assert.Equal(t, refused, n.Status().LastError)
}

func TestNotifyRefusedWithoutReloadReverts(t *testing.T) {
	n, ch, l := startNotify(t, models.Snapshot{{ID: "1", Text: "milk"}})
	ch.failSends(&syncerr.PersistenceError{Op: "update", ID: "1", Err: errors.New("500")})
	l.set(nil, syncerr.Transport("list", errors.New("refused")))

	err := n.Toggle(context.Background(), "1")
	require.Error(t, err)
	got, ok := n.CurrentSnapshot().Find("1")
	require.True(t, ok)
	assert.False(t, got.Completed)
}

func TestNotifySendsChangeEvents(t *testing.T) {
	n, ch, _ := startNotify(t, models.Snapshot{{ID: "1", Text: "milk"}})
	ctx := context.Background()

	added, err := n.AddTodo(ctx, "eggs", models.StringPtr("a dozen"))
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", added.CreatedBy)
	require.NoError(t, n.Toggle(ctx, "1"))
	require.NoError(t, n.EditText(ctx, added.ID, "brown eggs"))
	require.NoError(t, n.DeleteTodo(ctx, "1"))

	sent := ch.messages()
	require.Len(t, sent, 4)
	for _, m := range sent {
		require.Equal(t, syncchan.KindChange, m.Kind)
	}
	assert.Equal(t, models.EventInsert, sent[0].Change.EventType)
	assert.Equal(t, models.EventUpdate, sent[1].Change.EventType)
	require.NotNil(t, sent[1].Change.Fields.Completed)
	assert.True(t, *sent[1].Change.Fields.Completed)
	assert.Equal(t, "brown eggs", *sent[2].Change.Fields.Text)
	assert.Equal(t, models.EventDelete, sent[3].Change.EventType)
	assert.Equal(t, "1", sent[3].Change.TodoID())

	assert.Equal(t, []string{"brown eggs"}, texts(n.CurrentSnapshot()))
}

func TestNotifyEchoIsNoop(t *testing.T) {
	n, ch, _ := startNotify(t, models.Snapshot{})
	added, err := n.AddTodo(context.Background(), "eggs", nil)
	require.NoError(t, err)

	var changes int32
	h := n.Subscribe(func(models.Snapshot) { atomic.AddInt32(&changes, 1) })
	defer h.Close()

	ch.deliver(syncchan.ChangeMessage(models.NewInsertEvent(added)))
	assert.Zero(t, atomic.LoadInt32(&changes))
	assert.Len(t, n.CurrentSnapshot(), 1)
}

func TestNotifyAppliesFeed(t *testing.T) {
	n, ch, _ := startNotify(t, models.Snapshot{{ID: "1", Text: "milk"}})

	ch.deliver(syncchan.ChangeMessage(models.NewInsertEvent(models.Todo{ID: "2", Text: "bread"})))
	ch.deliver(syncchan.ChangeMessage(models.NewUpdateEvent("1", models.TodoPatch{Completed: models.BoolPtr(true)})))
	ch.deliver(syncchan.ChangeMessage(models.NewDeleteEvent("404")))

	active, completed := n.Partition()
	require.Len(t, active, 1)
	require.Len(t, completed, 1)
	assert.Equal(t, "bread", active[0].Text)
	assert.Equal(t, "milk", completed[0].Text)
}

func TestNotifyBuffersFeedDuringReload(t *testing.T) {
	n, ch, l := startNotify(t, models.Snapshot{})
	l.set(models.Snapshot{{ID: "1", Text: "milk"}}, nil)
	l.during = func() {
		ch.deliver(syncchan.ChangeMessage(models.NewInsertEvent(models.Todo{ID: "2", Text: "bread"})))
	}

	require.NoError(t, n.Reload(context.Background()))
	assert.Equal(t, []string{"milk", "bread"}, texts(n.CurrentSnapshot()))
}

func TestNotifyReloadsOnReconnect(t *testing.T) {
	n, ch, l := startNotify(t, models.Snapshot{})
	l.set(models.Snapshot{{ID: "9", Text: "missed while away"}}, nil)

	ch.setConnected(false)
	assert.False(t, n.Status().Connected)
	ch.setConnected(true)

	assert.Equal(t, 2, l.callCount())
	assert.Equal(t, []string{"missed while away"}, texts(n.CurrentSnapshot()))
}

func TestNotifyRejectsBadInput(t *testing.T) {
	n, ch, _ := startNotify(t, models.Snapshot{{ID: "1", Text: "milk"}})
	ctx := context.Background()

	_, err := n.AddTodo(ctx, "", nil)
	assert.True(t, syncerr.IsValidation(err))
	assert.ErrorIs(t, n.EditText(ctx, "1", "  "), syncerr.ErrEmptyText)
	assert.ErrorIs(t, n.EditDescription(ctx, "nope", "x"), syncerr.ErrUnknownID)
	assert.ErrorIs(t, n.DeleteTodo(ctx, "nope"), syncerr.ErrUnknownID)
	assert.Empty(t, ch.messages())
}
