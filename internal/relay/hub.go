// Package relay is the in-memory relay authority: one run loop owns the todo
// list and the participant names, websocket connections talk to it through
// channels.
package relay

import (
	"context"
	"errors"
	"sort"

	"todo-sync/internal/config"
	"todo-sync/internal/localstore"
	"todo-sync/internal/models"
	"todo-sync/pkg/logger"
)

// ErrClosed is returned once the run loop has stopped.
var ErrClosed = errors.New("relay hub closed")

// Options tune a Hub. Zero values take defaults.
type Options struct {
	MergeMode   string // config.MergeModeMerge or config.MergeModeReplace
	HistorySize int    // revisions kept as merge ancestors
	SendBuffer  int    // frames queued per client before it is dropped
}

func (o Options) withDefaults() Options {
	if o.MergeMode != config.MergeModeReplace {
		o.MergeMode = config.MergeModeMerge
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 64
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// State is a point-in-time copy of the hub's state.
type State struct {
	Todos        models.Snapshot
	Rev          uint64
	Participants []string
	Clients      int
}

type client struct {
	id   string
	send chan []byte
	name string
	// last snapshot sent to or received from this connection
	base models.Snapshot
}

type inbound struct {
	c   *client
	msg models.RelayMessage
}

type revision struct {
	rev   uint64
	todos models.Snapshot
}

// Hub owns the relay state. Only the goroutine running Run touches the fields
// below the channel block.
type Hub struct {
	opts Options

	register   chan *client
	unregister chan *client
	inbound    chan inbound
	query      chan chan State
	done       chan struct{}

	todos        models.Snapshot
	rev          uint64
	history      []revision
	clients      map[*client]struct{}
	participants map[string]int
}

// NewHub returns a hub with an empty list. Start it with Run.
func NewHub(opts Options) *Hub {
	h := &Hub{
		opts:         opts.withDefaults(),
		register:     make(chan *client),
		unregister:   make(chan *client),
		inbound:      make(chan inbound),
		query:        make(chan chan State),
		done:         make(chan struct{}),
		todos:        models.Snapshot{},
		rev:          1,
		clients:      make(map[*client]struct{}),
		participants: make(map[string]int),
	}
	h.remember()
	return h
}

// Run processes connections and messages until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	logger.Info(ctx, "Relay hub started", "merge_mode", h.opts.MergeMode)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			logger.Info(ctx, "Relay hub stopped")
			return
		case c := <-h.register:
			h.handleRegister(ctx, c)
		case c := <-h.unregister:
			h.handleUnregister(ctx, c)
		case in := <-h.inbound:
			h.handleInbound(ctx, in)
		case reply := <-h.query:
			reply <- h.state()
		}
	}
}

// State returns a copy of the current state.
func (h *Hub) State(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	select {
	case h.query <- reply:
	case <-h.done:
		return State{}, ErrClosed
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (h *Hub) state() State {
	return State{
		Todos:        h.todos.Clone(),
		Rev:          h.rev,
		Participants: h.names(),
		Clients:      len(h.clients),
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *client) {
	h.clients[c] = struct{}{}
	logger.Info(ctx, "Relay client connected", "conn_id", c.id, "clients", len(h.clients))
	h.sendSnapshot(ctx, c)
	if len(h.participants) > 0 {
		h.sendNames(ctx, c)
	}
}

func (h *Hub) handleUnregister(ctx context.Context, c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.drop(ctx, c)
	logger.Info(ctx, "Relay client disconnected", "conn_id", c.id, "clients", len(h.clients))
}

// drop removes c and releases its name. Participants are rebroadcast when the
// name left the set.
func (h *Hub) drop(ctx context.Context, c *client) {
	delete(h.clients, c)
	close(c.send)
	if h.release(c.name) {
		h.broadcastNames(ctx)
	}
}

func (h *Hub) handleInbound(ctx context.Context, in inbound) {
	if _, ok := h.clients[in.c]; !ok {
		return
	}
	ctx = logger.WithConnID(ctx, in.c.id)
	switch in.msg.Event {
	case models.RelayUserJoin:
		name, err := in.msg.DecodeName()
		if err != nil || name == "" {
			logger.Warn(ctx, "Relay join rejected", "error", err)
			return
		}
		h.join(ctx, in.c, name)
	case models.RelayTodosUpdate:
		snap, err := in.msg.DecodeSnapshot()
		if err != nil {
			logger.Warn(ctx, "Relay snapshot rejected", "error", err)
			return
		}
		if h.opts.MergeMode == config.MergeModeReplace {
			h.replace(ctx, in.c, snap)
		} else {
			h.merge(ctx, in.c, snap, in.msg.Rev)
		}
	default:
		logger.Debug(ctx, "Relay event ignored", "event", in.msg.Event)
	}
}

func (h *Hub) join(ctx context.Context, c *client, name string) {
	if c.name == name {
		h.broadcastNames(ctx)
		return
	}
	h.release(c.name)
	c.name = name
	h.participants[name]++
	logger.Info(ctx, "Relay participant joined", "name", name)
	h.broadcastNames(ctx)
}

// release drops one reference to name and reports whether it left the set.
func (h *Hub) release(name string) bool {
	if name == "" {
		return false
	}
	h.participants[name]--
	if h.participants[name] > 0 {
		return false
	}
	delete(h.participants, name)
	return true
}

// replace is last-writer-wins at list granularity: the sender's list becomes
// the canonical one and goes to everybody else.
func (h *Hub) replace(ctx context.Context, sender *client, snap models.Snapshot) {
	h.commit(snap)
	sender.base = h.todos.Clone()
	h.broadcastSnapshot(ctx, sender)
}

// merge applies only what the sender changed relative to the list it last
// saw (the revision it echoes), so concurrent edits to other records survive. The sender gets the
// merged list back with the new revision.
func (h *Hub) merge(ctx context.Context, sender *client, snap models.Snapshot, rev uint64) {
	base, ok := h.lookup(rev)
	switch {
	case ok:
	case rev == 0:
		// sent before any list reached the sender: every record is an insert
		base = models.Snapshot{}
	default:
		base = sender.base
	}
	var next models.Snapshot
	if base.Equal(h.todos) {
		next = snap
	} else {
		store := localstore.New()
		store.ApplySnapshot(h.todos)
		events := models.Diff(base, snap)
		for _, e := range events {
			store.ApplyChange(e)
		}
		next = store.Snapshot()
		logger.Debug(ctx, "Relay merged concurrent snapshot", "base_rev", rev, "rev", h.rev, "events", len(events))
	}
	if next.Equal(h.todos) {
		h.sendSnapshot(ctx, sender)
		return
	}
	h.commit(next)
	h.broadcastSnapshot(ctx, nil)
}

func (h *Hub) commit(snap models.Snapshot) {
	h.todos = dedupe(snap)
	h.rev++
	h.remember()
}

func (h *Hub) remember() {
	h.history = append(h.history, revision{rev: h.rev, todos: h.todos})
	if over := len(h.history) - h.opts.HistorySize; over > 0 {
		h.history = append(h.history[:0:0], h.history[over:]...)
	}
}

func (h *Hub) lookup(rev uint64) (models.Snapshot, bool) {
	if rev == 0 {
		return nil, false
	}
	for i := len(h.history) - 1; i >= 0; i-- {
		if h.history[i].rev == rev {
			return h.history[i].todos, true
		}
	}
	return nil, false
}

// broadcastSnapshot sends the current list to every client except skip.
func (h *Hub) broadcastSnapshot(ctx context.Context, skip *client) {
	frame, err := models.NewRelayMessageRev(models.RelayTodoUpdate, h.todos, h.rev)
	if err != nil {
		logger.Error(ctx, "Relay encode snapshot failed", "error", err)
		return
	}
	for c := range h.clients {
		if c == skip {
			continue
		}
		if h.deliver(ctx, c, frame) {
			c.base = h.todos.Clone()
		}
	}
}

func (h *Hub) sendSnapshot(ctx context.Context, c *client) {
	frame, err := models.NewRelayMessageRev(models.RelayTodoUpdate, h.todos, h.rev)
	if err != nil {
		logger.Error(ctx, "Relay encode snapshot failed", "error", err)
		return
	}
	if h.deliver(ctx, c, frame) {
		c.base = h.todos.Clone()
	}
}

func (h *Hub) broadcastNames(ctx context.Context) {
	frame, err := models.NewRelayMessage(models.RelayUsersUpdate, h.names())
	if err != nil {
		logger.Error(ctx, "Relay encode participants failed", "error", err)
		return
	}
	for c := range h.clients {
		h.deliver(ctx, c, frame)
	}
}

func (h *Hub) sendNames(ctx context.Context, c *client) {
	frame, err := models.NewRelayMessage(models.RelayUsersUpdate, h.names())
	if err != nil {
		logger.Error(ctx, "Relay encode participants failed", "error", err)
		return
	}
	h.deliver(ctx, c, frame)
}

// deliver queues frame for c without blocking. A client whose queue is full
// is dropped and its connection closed by the writer.
func (h *Hub) deliver(ctx context.Context, c *client, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		logger.Warn(ctx, "Relay client too slow, dropping", "conn_id", c.id)
		h.drop(ctx, c)
		return false
	}
}

func (h *Hub) names() []string {
	out := make([]string, 0, len(h.participants))
	for name := range h.participants {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// dedupe keeps the first record of every id.
func dedupe(snap models.Snapshot) models.Snapshot {
	seen := make(map[string]struct{}, len(snap))
	out := make(models.Snapshot, 0, len(snap))
	for _, t := range snap {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t.Clone())
	}
	return out
}
