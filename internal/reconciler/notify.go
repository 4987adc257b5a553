package reconciler

import (
	"context"
	"sync"
	"sync/atomic"

	"todo-sync/internal/models"
	"todo-sync/internal/syncchan"
	"todo-sync/pkg/logger"
)

// Lister fetches the authoritative list.
type Lister interface {
	List(ctx context.Context) (models.Snapshot, error)
}

// Notify reconciles against the durable authority: mutations go out as
// change events, the change feed comes back in, and any refusal is repaired
// by reloading the whole list.
type Notify struct {
	core
	ch     syncchan.Channel
	lister Lister
	ctx    context.Context

	// starting is set while Start does its own first reload
	starting atomic.Bool

	reloadMu sync.Mutex

	// feed events that arrive during a reload are replayed on top of it
	feedMu  sync.Mutex
	loading bool
	pending []models.ChangeEvent
}

var _ Client = (*Notify)(nil)

func NewNotify(ch syncchan.Channel, lister Lister, who models.Identity) *Notify {
	n := &Notify{ch: ch, lister: lister, ctx: context.Background()}
	n.init(who)
	return n
}

// Start subscribes to the feed and loads the list. The list is loaded even
// when the feed cannot be reached; the channel keeps retrying and every
// reconnect triggers another reload.
func (n *Notify) Start(ctx context.Context) error {
	n.ctx = logger.With(context.WithoutCancel(ctx), "user", n.who.ID)
	n.keep(
		n.ch.OnReceive(n.receive),
		n.ch.OnConnectivityChange(n.connectivity),
	)

	n.starting.Store(true)
	defer n.starting.Store(false)

	err := n.ch.Connect(ctx)
	if err != nil {
		logger.Warn(ctx, "Feed unavailable; will retry", "error", err)
		n.setError(err)
	}
	if rerr := n.Reload(ctx); rerr != nil {
		n.setError(rerr)
		if err == nil {
			err = rerr
		}
	}
	return err
}

func (n *Notify) Close() error {
	n.release()
	return n.ch.Disconnect()
}

// Reload replaces the local list with the authority's. Store subscribers
// must not call Reload from their callback.
func (n *Notify) Reload(ctx context.Context) error {
	n.reloadMu.Lock()
	defer n.reloadMu.Unlock()

	n.feedMu.Lock()
	n.loading = true
	n.feedMu.Unlock()

	list, err := n.lister.List(ctx)

	n.feedMu.Lock()
	defer n.feedMu.Unlock()
	if err == nil {
		n.store.ApplySnapshot(list)
	} else {
		logger.Warn(ctx, "Reload failed", "error", err)
	}
	for _, e := range n.pending {
		n.store.ApplyChange(e)
	}
	n.pending = nil
	n.loading = false
	return err
}

func (n *Notify) receive(msg syncchan.Message) {
	if msg.Kind != syncchan.KindChange || msg.Change == nil {
		return
	}
	n.feedMu.Lock()
	defer n.feedMu.Unlock()
	if n.loading {
		n.pending = append(n.pending, *msg.Change)
		return
	}
	n.store.ApplyChange(*msg.Change)
}

func (n *Notify) connectivity(up bool) {
	n.updateStatus(func(s *Status) { s.Connected = up })
	if !up || n.starting.Load() {
		return
	}
	// events published while we were away are gone
	if err := n.Reload(n.ctx); err != nil {
		n.setError(err)
	}
}

// mutate applies e locally, then asks the authority to apply it. On refusal
// the authority's list replaces ours; if even that fails the change is undone.
func (n *Notify) mutate(ctx context.Context, e models.ChangeEvent) error {
	before := n.store.Snapshot()
	n.store.ApplyChange(e)
	err := n.ch.Send(ctx, syncchan.ChangeMessage(e))
	if err == nil {
		return nil
	}
	logger.Warn(ctx, "Change refused", "event_type", e.EventType, "todo_id", e.TodoID(), "error", err)
	n.setError(err)
	if rerr := n.Reload(context.WithoutCancel(ctx)); rerr != nil {
		n.store.ApplySnapshot(before)
	}
	return err
}

func (n *Notify) AddTodo(ctx context.Context, text string, description *string) (models.Todo, error) {
	t, err := n.newTodo(text, description)
	if err != nil {
		return models.Todo{}, err
	}
	return t, n.mutate(ctx, models.NewInsertEvent(t))
}

func (n *Notify) Toggle(ctx context.Context, id string) error {
	t, err := n.existing(id)
	if err != nil {
		return err
	}
	return n.mutate(ctx, models.NewUpdateEvent(id, models.TodoPatch{Completed: models.BoolPtr(!t.Completed)}))
}

func (n *Notify) EditText(ctx context.Context, id, text string) error {
	if _, err := n.existing(id); err != nil {
		return err
	}
	patch, err := textPatch(text)
	if err != nil {
		return err
	}
	return n.mutate(ctx, models.NewUpdateEvent(id, patch))
}

func (n *Notify) EditDescription(ctx context.Context, id, text string) error {
	if _, err := n.existing(id); err != nil {
		return err
	}
	return n.mutate(ctx, models.NewUpdateEvent(id, descriptionPatch(text)))
}

func (n *Notify) DeleteTodo(ctx context.Context, id string) error {
	if _, err := n.existing(id); err != nil {
		return err
	}
	return n.mutate(ctx, models.NewDeleteEvent(id))
}
