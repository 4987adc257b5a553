// Package reconciler keeps a local store in step with an authority. Local
// mutations are applied optimistically, sent over a sync channel and undone
// by a full reload-and-replace when the authority refuses them.
package reconciler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"todo-sync/internal/listeners"
	"todo-sync/internal/localstore"
	"todo-sync/internal/models"
	"todo-sync/internal/syncerr"
)

// Client is what a UI drives.
type Client interface {
	Start(ctx context.Context) error
	Close() error

	CurrentSnapshot() models.Snapshot
	Partition() (active, completed []models.Todo)

	AddTodo(ctx context.Context, text string, description *string) (models.Todo, error)
	Toggle(ctx context.Context, id string) error
	DeleteTodo(ctx context.Context, id string) error
	EditText(ctx context.Context, id, text string) error
	EditDescription(ctx context.Context, id, text string) error

	Subscribe(fn func(models.Snapshot)) *listeners.Handle
	OnStatus(fn func(Status)) *listeners.Handle
	Status() Status
	DismissError()
}

// Status is the connection indicator shown next to the list.
type Status struct {
	Connected    bool
	Participants []string
	LastError    error
}

// core is shared by both reconcilers.
type core struct {
	store *localstore.Store
	who   models.Identity
	now   func() time.Time
	newID func() string

	statusMu  sync.Mutex
	status    Status
	statusSet listeners.Set[Status]

	handlesMu sync.Mutex
	handles   []*listeners.Handle
}

func (c *core) init(who models.Identity) {
	c.store = localstore.New()
	c.who = who
	c.now = time.Now
	c.newID = uuid.NewString
}

func (c *core) CurrentSnapshot() models.Snapshot {
	return c.store.Snapshot()
}

func (c *core) Partition() (active, completed []models.Todo) {
	return localstore.Partition(c.store.Snapshot())
}

func (c *core) Subscribe(fn func(models.Snapshot)) *listeners.Handle {
	return c.store.Subscribe(fn)
}

func (c *core) OnStatus(fn func(Status)) *listeners.Handle {
	return c.statusSet.Add(fn)
}

func (c *core) Status() Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	s := c.status
	s.Participants = append([]string(nil), s.Participants...)
	return s
}

func (c *core) DismissError() {
	c.updateStatus(func(s *Status) { s.LastError = nil })
}

func (c *core) updateStatus(fn func(*Status)) {
	c.statusMu.Lock()
	fn(&c.status)
	s := c.status
	s.Participants = append([]string(nil), s.Participants...)
	c.statusMu.Unlock()
	c.statusSet.Emit(s)
}

func (c *core) setError(err error) {
	c.updateStatus(func(s *Status) { s.LastError = err })
}

func (c *core) keep(h ...*listeners.Handle) {
	c.handlesMu.Lock()
	c.handles = append(c.handles, h...)
	c.handlesMu.Unlock()
}

func (c *core) release() {
	c.handlesMu.Lock()
	hs := c.handles
	c.handles = nil
	c.handlesMu.Unlock()
	for _, h := range hs {
		_ = h.Close()
	}
}

// newTodo validates input and builds a record authored by the local user.
func (c *core) newTodo(text string, description *string) (models.Todo, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Todo{}, &syncerr.ValidationError{Field: "text", Err: syncerr.ErrEmptyText}
	}
	t := models.Todo{
		ID:          c.newID(),
		Text:        text,
		CreatedBy:   c.who.ID,
		DisplayName: c.who.DisplayName,
		CreatedAt:   c.now().UTC(),
	}
	if description != nil {
		if d := strings.TrimSpace(*description); d != "" {
			t.Description = &d
		}
	}
	if _, dup := c.store.Get(t.ID); dup {
		return models.Todo{}, &syncerr.ValidationError{Field: "id", Err: syncerr.ErrDuplicateID}
	}
	return t, nil
}

// existing returns the record with id or a validation error.
func (c *core) existing(id string) (models.Todo, error) {
	t, ok := c.store.Get(id)
	if !ok {
		return models.Todo{}, &syncerr.ValidationError{Field: "id", Err: syncerr.ErrUnknownID}
	}
	return t, nil
}

func textPatch(text string) (models.TodoPatch, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.TodoPatch{}, &syncerr.ValidationError{Field: "text", Err: syncerr.ErrEmptyText}
	}
	return models.TodoPatch{Text: &text}, nil
}

func descriptionPatch(text string) models.TodoPatch {
	d := strings.TrimSpace(text)
	return models.TodoPatch{Description: &d}
}
