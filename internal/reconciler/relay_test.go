package reconciler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-sync/internal/models"
	"todo-sync/internal/syncchan"
	"todo-sync/internal/syncerr"
)

func startRelay(t *testing.T) (*Relay, *fakeChannel) {
	t.Helper()
	ch := &fakeChannel{}
	r := NewRelay(ch, models.Identity{DisplayName: "ann"})
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Close() })
	return r, ch
}

func TestRelayStartRequiresName(t *testing.T) {
	r := NewRelay(&fakeChannel{}, models.Identity{})
	err := r.Start(context.Background())
	require.Error(t, err)
	assert.True(t, syncerr.IsValidation(err))
	assert.ErrorIs(t, err, syncerr.ErrEmptyName)
}

func TestRelayJoinsOnConnect(t *testing.T) {
	r, ch := startRelay(t)

	sent := ch.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, syncchan.KindJoin, sent[0].Kind)
	assert.Equal(t, "ann", sent[0].Name)
	assert.True(t, r.Status().Connected)

	ch.deliver(syncchan.Message{Kind: syncchan.KindParticipants, Participants: []string{"ann", "bob"}})
	assert.Equal(t, []string{"ann", "bob"}, r.Status().Participants)
}

func TestRelayRejoinsAfterReconnect(t *testing.T) {
	r, ch := startRelay(t)
	ch.deliver(syncchan.Message{Kind: syncchan.KindParticipants, Participants: []string{"ann"}})

	ch.setConnected(false)
	assert.False(t, r.Status().Connected)
	assert.Empty(t, r.Status().Participants)

	ch.setConnected(true)
	sent := ch.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, syncchan.KindJoin, sent[1].Kind)
}

func TestRelayAddSendsWholeList(t *testing.T) {
	r, ch := startRelay(t)
	ch.deliver(syncchan.SnapshotMessage(models.Snapshot{{ID: "1", Text: "milk"}}))

	added, err := r.AddTodo(context.Background(), "  buy eggs ", nil)
	require.NoError(t, err)
	assert.Equal(t, "buy eggs", added.Text)
	assert.Equal(t, "ann", added.DisplayName)

	assert.Equal(t, []string{"buy eggs", "milk"}, texts(r.CurrentSnapshot()))
	sent := ch.messages()
	last := sent[len(sent)-1]
	assert.Equal(t, syncchan.KindSnapshot, last.Kind)
	assert.Equal(t, []string{"buy eggs", "milk"}, texts(last.Snapshot))
}

func TestRelaySnapshotReplacesLocal(t *testing.T) {
	r, ch := startRelay(t)
	_, err := r.AddTodo(context.Background(), "mine", nil)
	require.NoError(t, err)

	ch.deliver(syncchan.SnapshotMessage(models.Snapshot{{ID: "x", Text: "theirs"}}))
	assert.Equal(t, []string{"theirs"}, texts(r.CurrentSnapshot()))
}

func TestRelayFailedSendRollsBack(t *testing.T) {
	r, ch := startRelay(t)
	ch.deliver(syncchan.SnapshotMessage(models.Snapshot{{ID: "1", Text: "milk"}}))

	sendErr := syncerr.Transport("send", errors.New("broken pipe"))
	ch.failSends(sendErr)
	_, err := r.AddTodo(context.Background(), "buy eggs", nil)
	require.Error(t, err)
	assert.True(t, syncerr.IsTransport(err))

	assert.Equal(t, []string{"milk"}, texts(r.CurrentSnapshot()))
	st := r.Status()
	assert.False(t, st.Connected)
	assert.Equal(t, sendErr, st.LastError)

	r.DismissError()
	assert.NoError(t, r.Status().LastError)
}

func TestRelayOfflineChangesStayLocal(t *testing.T) {
	r, ch := startRelay(t)
	ch.setConnected(false)
	before := len(ch.messages())

	_, err := r.AddTodo(context.Background(), "offline", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"offline"}, texts(r.CurrentSnapshot()))
	assert.Len(t, ch.messages(), before)

	// the relay's view wins once back
	ch.setConnected(true)
	ch.deliver(syncchan.SnapshotMessage(models.Snapshot{}))
	assert.Empty(t, r.CurrentSnapshot())
}

func TestRelayEdits(t *testing.T) {
	r, ch := startRelay(t)
	ch.deliver(syncchan.SnapshotMessage(models.Snapshot{
		{ID: "1", Text: "milk"},
		{ID: "2", Text: "bread"},
	}))
	ctx := context.Background()

	require.NoError(t, r.Toggle(ctx, "1"))
	require.NoError(t, r.EditText(ctx, "2", "rye bread"))
	require.NoError(t, r.EditDescription(ctx, "2", "sliced"))

	active, completed := r.Partition()
	require.Len(t, active, 1)
	require.Len(t, completed, 1)
	assert.Equal(t, "milk", completed[0].Text)
	assert.Equal(t, "rye bread", active[0].Text)
	require.NotNil(t, active[0].Description)
	assert.Equal(t, "sliced", *active[0].Description)

	require.NoError(t, r.EditDescription(ctx, "2", ""))
	got, _ := r.CurrentSnapshot().Find("2")
	assert.Nil(t, got.Description)

	require.NoError(t, r.DeleteTodo(ctx, "1"))
	assert.Equal(t, []string{"rye bread"}, texts(r.CurrentSnapshot()))
}

func TestRelayRejectsBadInput(t *testing.T) {
	r, ch := startRelay(t)
	ch.deliver(syncchan.SnapshotMessage(models.Snapshot{{ID: "1", Text: "milk"}}))
	before := len(ch.messages())
	ctx := context.Background()

	_, err := r.AddTodo(ctx, "   ", nil)
	assert.ErrorIs(t, err, syncerr.ErrEmptyText)
	assert.ErrorIs(t, r.EditText(ctx, "1", ""), syncerr.ErrEmptyText)
	assert.ErrorIs(t, r.Toggle(ctx, "nope"), syncerr.ErrUnknownID)
	assert.ErrorIs(t, r.DeleteTodo(ctx, "nope"), syncerr.ErrUnknownID)

	assert.Len(t, ch.messages(), before)
	assert.Equal(t, []string{"milk"}, texts(r.CurrentSnapshot()))
}

func TestRelayCloseStopsListening(t *testing.T) {
	ch := &fakeChannel{}
	r := NewRelay(ch, models.Identity{DisplayName: "ann"})
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Close())

	ch.deliver(syncchan.SnapshotMessage(models.Snapshot{{ID: "1", Text: "late"}}))
	assert.Empty(t, r.CurrentSnapshot())
	assert.True(t, ch.closed)
}
