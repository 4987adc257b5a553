package reconciler

import (
	"context"
	"sync"

	"todo-sync/internal/models"
	"todo-sync/internal/syncchan"
	"todo-sync/internal/syncerr"
	"todo-sync/pkg/logger"
)

// Relay reconciles against the relay authority. Every local mutation sends
// the whole list; every snapshot from the relay replaces the local one.
//
// While the channel is down mutations stay local only. They are not
// retried: the relay's snapshot on reconnect replaces them.
type Relay struct {
	core
	ch  syncchan.Channel
	ctx context.Context

	// serializes local mutations so each send carries the previous one
	mu sync.Mutex

	goodMu   sync.Mutex
	lastGood models.Snapshot
}

var _ Client = (*Relay)(nil)

func NewRelay(ch syncchan.Channel, who models.Identity) *Relay {
	r := &Relay{ch: ch, ctx: context.Background(), lastGood: models.Snapshot{}}
	r.init(who)
	return r
}

// Start connects and announces the participant name on every (re)connect.
// A failed first attempt is reported but the channel keeps retrying.
func (r *Relay) Start(ctx context.Context) error {
	if r.who.Name() == "" {
		return &syncerr.ValidationError{Field: "name", Err: syncerr.ErrEmptyName}
	}
	r.ctx = logger.With(context.WithoutCancel(ctx), "participant", r.who.Name())
	r.keep(
		r.ch.OnReceive(r.receive),
		r.ch.OnConnectivityChange(r.connectivity),
	)
	if err := r.ch.Connect(ctx); err != nil {
		r.setError(err)
		return err
	}
	return nil
}

func (r *Relay) Close() error {
	r.release()
	return r.ch.Disconnect()
}

func (r *Relay) receive(msg syncchan.Message) {
	switch msg.Kind {
	case syncchan.KindSnapshot:
		r.setGood(msg.Snapshot)
		r.store.ApplySnapshot(msg.Snapshot)
	case syncchan.KindParticipants:
		names := msg.Participants
		r.updateStatus(func(s *Status) { s.Participants = names })
	}
}

func (r *Relay) connectivity(up bool) {
	r.updateStatus(func(s *Status) {
		s.Connected = up
		if !up {
			s.Participants = nil
		}
	})
	if !up {
		logger.Warn(r.ctx, "Relay connection lost; local changes will not be synced")
		return
	}
	// the relay forgets names across connections
	if err := r.ch.Send(r.ctx, syncchan.JoinMessage(r.who.Name())); err != nil {
		logger.Warn(r.ctx, "Relay join failed", "error", err)
		r.setError(err)
	}
}

func (r *Relay) good() models.Snapshot {
	r.goodMu.Lock()
	defer r.goodMu.Unlock()
	return r.lastGood.Clone()
}

func (r *Relay) setGood(s models.Snapshot) {
	r.goodMu.Lock()
	r.lastGood = s.Clone()
	r.goodMu.Unlock()
}

// mutate applies edit to the local list, then sends the result. A failed send
// puts the last snapshot the relay agreed on back in place.
func (r *Relay) mutate(ctx context.Context, edit func(models.Snapshot) (models.Snapshot, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := edit(r.store.Snapshot())
	if err != nil {
		return err
	}
	r.store.ApplySnapshot(next)
	if !r.ch.Connected() {
		logger.Debug(ctx, "Relay offline; change kept locally")
		return nil
	}
	if err := r.ch.Send(ctx, syncchan.SnapshotMessage(next)); err != nil {
		r.store.ApplySnapshot(r.good())
		r.updateStatus(func(s *Status) {
			s.Connected = false
			s.LastError = err
		})
		return err
	}
	r.setGood(next)
	return nil
}

func (r *Relay) AddTodo(ctx context.Context, text string, description *string) (models.Todo, error) {
	t, err := r.newTodo(text, description)
	if err != nil {
		return models.Todo{}, err
	}
	err = r.mutate(ctx, func(cur models.Snapshot) (models.Snapshot, error) {
		if _, dup := cur.Find(t.ID); dup {
			return nil, &syncerr.ValidationError{Field: "id", Err: syncerr.ErrDuplicateID}
		}
		return append(models.Snapshot{t}, cur...), nil
	})
	return t, err
}

func (r *Relay) Toggle(ctx context.Context, id string) error {
	return r.mutate(ctx, editRecord(id, func(t models.Todo) (models.Todo, error) {
		t.Completed = !t.Completed
		return t, nil
	}))
}

func (r *Relay) EditText(ctx context.Context, id, text string) error {
	patch, err := textPatch(text)
	if err != nil {
		return err
	}
	return r.mutate(ctx, editRecord(id, func(t models.Todo) (models.Todo, error) {
		return patch.Apply(t), nil
	}))
}

func (r *Relay) EditDescription(ctx context.Context, id, text string) error {
	patch := descriptionPatch(text)
	return r.mutate(ctx, editRecord(id, func(t models.Todo) (models.Todo, error) {
		return patch.Apply(t), nil
	}))
}

func (r *Relay) DeleteTodo(ctx context.Context, id string) error {
	return r.mutate(ctx, func(cur models.Snapshot) (models.Snapshot, error) {
		next := make(models.Snapshot, 0, len(cur))
		for _, t := range cur {
			if t.ID != id {
				next = append(next, t)
			}
		}
		if len(next) == len(cur) {
			return nil, &syncerr.ValidationError{Field: "id", Err: syncerr.ErrUnknownID}
		}
		return next, nil
	})
}

func editRecord(id string, fn func(models.Todo) (models.Todo, error)) func(models.Snapshot) (models.Snapshot, error) {
	return func(cur models.Snapshot) (models.Snapshot, error) {
		for i, t := range cur {
			if t.ID != id {
				continue
			}
			updated, err := fn(t)
			if err != nil {
				return nil, err
			}
			cur[i] = updated
			return cur, nil
		}
		return nil, &syncerr.ValidationError{Field: "id", Err: syncerr.ErrUnknownID}
	}
}
