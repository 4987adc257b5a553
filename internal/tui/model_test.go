package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-sync/internal/listeners"
	"todo-sync/internal/localstore"
	"todo-sync/internal/models"
	"todo-sync/internal/reconciler"
	"todo-sync/internal/syncerr"
)

type fakeClient struct {
	mu        sync.Mutex
	snap      models.Snapshot
	status    reconciler.Status
	calls     []string
	err       error
	dismissed int
}

var _ reconciler.Client = (*fakeClient)(nil)

func (f *fakeClient) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeClient) Start(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error                    { return nil }

func (f *fakeClient) CurrentSnapshot() models.Snapshot { return f.snap.Clone() }

func (f *fakeClient) Partition() (active, completed []models.Todo) {
	return localstore.Partition(f.snap)
}

func (f *fakeClient) AddTodo(ctx context.Context, text string, description *string) (models.Todo, error) {
	return models.Todo{Text: text}, f.record("add " + text)
}

func (f *fakeClient) Toggle(ctx context.Context, id string) error { return f.record("toggle " + id) }

func (f *fakeClient) DeleteTodo(ctx context.Context, id string) error {
	return f.record("delete " + id)
}

func (f *fakeClient) EditText(ctx context.Context, id, text string) error {
	return f.record("text " + id + " " + text)
}

func (f *fakeClient) EditDescription(ctx context.Context, id, text string) error {
	return f.record("note " + id + " " + text)
}

func (f *fakeClient) Subscribe(fn func(models.Snapshot)) *listeners.Handle {
	var s listeners.Set[models.Snapshot]
	return s.Add(fn)
}

func (f *fakeClient) OnStatus(fn func(reconciler.Status)) *listeners.Handle {
	var s listeners.Set[reconciler.Status]
	return s.Add(fn)
}

func (f *fakeClient) Status() reconciler.Status { return f.status }

func (f *fakeClient) DismissError() {
	f.dismissed++
	f.status.LastError = nil
}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func sample() *fakeClient {
	return &fakeClient{
		snap: models.Snapshot{
			{ID: "1", Text: "milk", CreatedBy: "ann@example.com", CreatedAt: t0.Add(time.Minute)},
			{ID: "2", Text: "bread", DisplayName: "Bob", CreatedAt: t0, Description: models.StringPtr("rye")},
			{ID: "3", Text: "eggs", Completed: true, CreatedAt: t0},
		},
		status: reconciler.Status{Connected: true, Participants: []string{"ann", "bob"}},
	}
}

func keyRunes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

var (
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keySpace = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
)

// press feeds msgs through Update and collects what the returned commands
// produce. Commands that do not finish promptly (cursor blink) are ignored.
func press(t *testing.T, m Model, msgs ...tea.Msg) (Model, []tea.Msg) {
	t.Helper()
	var out []tea.Msg
	for _, msg := range msgs {
		next, cmd := m.Update(msg)
		m = next.(Model)
		if cmd == nil {
			continue
		}
		res := make(chan tea.Msg, 1)
		go func() { res <- cmd() }()
		select {
		case r := <-res:
			if r != nil {
				out = append(out, r)
			}
		case <-time.After(50 * time.Millisecond):
		}
	}
	return m, out
}

func TestViewShowsSectionsAndPresence(t *testing.T) {
	m := New(context.Background(), sample())
	v := m.View()

	assert.Contains(t, v, "Active (2)")
	assert.Contains(t, v, "Completed (1)")
	assert.Contains(t, v, "online")
	assert.Contains(t, v, "ann, bob")
	assert.Contains(t, v, "· ann")
	assert.Contains(t, v, "· Bob")
	assert.Contains(t, v, "rye")
}

func TestToggleAndDeleteSelected(t *testing.T) {
	fc := sample()
	m := New(context.Background(), fc)

	// newest active first: milk, then bread
	_, _ = press(t, m, keySpace, keyDown, keyRunes("d"))
	assert.Equal(t, []string{"toggle 1", "delete 2"}, fc.calls)
}

func TestAddThroughInput(t *testing.T) {
	fc := sample()
	m := New(context.Background(), fc)

	m, _ = press(t, m, keyRunes("a"))
	require.Equal(t, modeAdd, m.mode)
	m, _ = press(t, m, keyRunes("buy eggs"), keyEnter)

	assert.Equal(t, modeBrowse, m.mode)
	assert.Equal(t, []string{"add buy eggs"}, fc.calls)
}

func TestEditPrefillsAndCancels(t *testing.T) {
	fc := sample()
	m := New(context.Background(), fc)

	m, _ = press(t, m, keyRunes("e"))
	assert.Equal(t, "milk", m.input.Value())
	m, _ = press(t, m, keyEsc)
	assert.Equal(t, modeBrowse, m.mode)
	assert.Empty(t, fc.calls)

	m, _ = press(t, m, keyDown)
	m, _ = press(t, m, keyRunes("n"))
	assert.Equal(t, "rye", m.input.Value())
	m, _ = press(t, m, keyEnter)
	assert.Equal(t, []string{"note 2 rye"}, fc.calls)
}

func TestValidationShowsNotice(t *testing.T) {
	fc := sample()
	fc.err = &syncerr.ValidationError{Field: "text", Err: syncerr.ErrEmptyText}
	m := New(context.Background(), fc)

	m, _ = press(t, m, keyRunes("a"))
	m, out := press(t, m, keyEnter)
	require.Len(t, out, 1)
	m, _ = press(t, m, out[0])
	assert.Contains(t, m.View(), "todo text must not be empty")

	m, _ = press(t, m, keyEsc)
	assert.Empty(t, m.notice)
	assert.Equal(t, 1, fc.dismissed)
}

func TestStatusErrorBanner(t *testing.T) {
	m := New(context.Background(), sample())
	refused := &syncerr.PersistenceError{Op: "insert", Err: errors.New("500 Failed to save todo")}
	m, _ = press(t, m, statusMsg(reconciler.Status{LastError: refused}))

	v := m.View()
	assert.Contains(t, v, "offline")
	assert.Contains(t, v, "Failed to save todo")
}

func TestSnapshotClampsCursor(t *testing.T) {
	m := New(context.Background(), sample())
	m, _ = press(t, m, keyDown, keyDown)
	assert.Equal(t, 2, m.cursor)

	m, _ = press(t, m, snapshotMsg(models.Snapshot{{ID: "9", Text: "only"}}))
	assert.Equal(t, 0, m.cursor)
	sel, ok := m.selected()
	require.True(t, ok)
	assert.Equal(t, "only", sel.Text)

	m, _ = press(t, m, snapshotMsg(models.Snapshot{}))
	_, ok = m.selected()
	assert.False(t, ok)
	assert.Contains(t, m.View(), "Nothing to do")
}
