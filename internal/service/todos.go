// Package service is the durable authority: every committed mutation
// invalidates the list cache and is published as a change event.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"todo-sync/internal/models"
	"todo-sync/internal/syncerr"
	"todo-sync/pkg/logger"
)

var errEmptyPatch = errors.New("no field to update")

// Repository is the row store.
type Repository interface {
	List(ctx context.Context, limit int) (models.Snapshot, error)
	Insert(ctx context.Context, t models.Todo) (models.Todo, error)
	Update(ctx context.Context, id string, patch models.TodoPatch) (models.Todo, error)
	Delete(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
}

// ListCache holds serialized list responses. Invalidate bumps a generation;
// SetAsync drops a payload whose generation is no longer current.
type ListCache interface {
	Get(ctx context.Context, limit int) ([]byte, bool)
	Generation(ctx context.Context) (uint64, bool)
	SetAsync(limit int, payload []byte, gen uint64)
	Invalidate(ctx context.Context)
	Ping(ctx context.Context) error
}

// Publisher delivers committed change events to the feed.
type Publisher interface {
	Publish(ctx context.Context, e models.ChangeEvent) error
}

type Todos struct {
	repo  Repository
	cache ListCache
	pub   Publisher
	group singleflight.Group
	now   func() time.Time
}

// New wires the authority. cache may be nil.
func New(repo Repository, cache ListCache, pub Publisher) *Todos {
	return &Todos{repo: repo, cache: cache, pub: pub, now: time.Now}
}

type listFill struct {
	payload []byte
	gen     uint64
	fresh   bool
}

// ListJSON returns the serialized list, cache first. Concurrent misses for the
// same limit share one database read.
func (s *Todos) ListJSON(ctx context.Context, limit int) ([]byte, error) {
	if limit < 0 {
		limit = 0
	}
	if s.cache != nil {
		if b, ok := s.cache.Get(ctx, limit); ok {
			return b, nil
		}
	}
	v, err, _ := s.group.Do("todos:"+strconv.Itoa(limit), func() (interface{}, error) {
		ctx := context.WithoutCancel(ctx)
		var f listFill
		if s.cache != nil {
			f.gen, f.fresh = s.cache.Generation(ctx)
		}
		todos, err := s.repo.List(ctx, limit)
		if err != nil {
			return nil, err
		}
		f.payload, err = json.Marshal(todos)
		return f, err
	})
	if err != nil {
		return nil, err
	}
	f := v.(listFill)
	if f.fresh {
		s.cache.SetAsync(limit, f.payload, f.gen)
	}
	return f.payload, nil
}

// Insert validates and stores t, then publishes an INSERT.
func (s *Todos) Insert(ctx context.Context, t models.Todo) (models.Todo, error) {
	t.Text = strings.TrimSpace(t.Text)
	if t.Text == "" {
		return models.Todo{}, &syncerr.ValidationError{Field: "text", Err: syncerr.ErrEmptyText}
	}
	stored, err := s.repo.Insert(ctx, t)
	if err != nil {
		return models.Todo{}, err
	}
	e := models.NewInsertEvent(stored)
	s.committed(ctx, e)
	return stored, nil
}

// Update validates and applies patch to id, then publishes an UPDATE carrying
// both the changed fields and the resulting row.
func (s *Todos) Update(ctx context.Context, id string, patch models.TodoPatch) (models.Todo, error) {
	if patch.Empty() {
		return models.Todo{}, &syncerr.ValidationError{Field: "patch", Err: errEmptyPatch}
	}
	if patch.Text != nil {
		text := strings.TrimSpace(*patch.Text)
		if text == "" {
			return models.Todo{}, &syncerr.ValidationError{Field: "text", Err: syncerr.ErrEmptyText}
		}
		patch.Text = &text
	}
	stored, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return models.Todo{}, err
	}
	e := models.NewUpdateEvent(id, patch)
	row := stored.Clone()
	e.New = &row
	s.committed(ctx, e)
	return stored, nil
}

// Delete removes id. Deleting an absent id succeeds and publishes nothing.
func (s *Todos) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if deleted {
		s.committed(ctx, models.NewDeleteEvent(id))
	}
	return nil
}

// Ready checks the database and, when configured, Redis.
func (s *Todos) Ready(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return err
	}
	if s.cache != nil {
		return s.cache.Ping(ctx)
	}
	return nil
}

// committed runs after a successful write. The write stands even if the
// event cannot be published; subscribers then catch up on their next reload.
func (s *Todos) committed(ctx context.Context, e models.ChangeEvent) {
	e.CommittedAt = s.now().UTC()
	ctx = context.WithoutCancel(ctx)
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, e); err != nil {
		logger.Error(ctx, "Publish change event failed", "error", err, "event_type", e.EventType, "id", e.TodoID())
	}
}
