// Package feed fans committed change events out to every live subscriber:
// websocket clients on /feed and in-process listeners.
package feed

import (
	"context"
	"encoding/json"
	"errors"

	"todo-sync/internal/listeners"
	"todo-sync/internal/models"
	"todo-sync/pkg/logger"
)

var ErrClosed = errors.New("feed hub closed")

type subscriber struct {
	id   string
	send chan []byte
}

// Hub is a run-loop broadcaster. Order of events is the order Publish was
// called in.
type Hub struct {
	register   chan *subscriber
	unregister chan *subscriber
	publish    chan models.ChangeEvent
	count      chan chan int
	done       chan struct{}

	subs       map[*subscriber]struct{}
	local      listeners.Set[models.ChangeEvent]
	sendBuffer int
}

func NewHub(sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		publish:    make(chan models.ChangeEvent),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		subs:       make(map[*subscriber]struct{}),
		sendBuffer: sendBuffer,
	}
}

// Run delivers events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for s := range h.subs {
				close(s.send)
				delete(h.subs, s)
			}
			return
		case s := <-h.register:
			h.subs[s] = struct{}{}
			logger.Info(ctx, "Feed subscriber connected", "conn_id", s.id, "subscribers", len(h.subs))
		case s := <-h.unregister:
			if _, ok := h.subs[s]; ok {
				delete(h.subs, s)
				close(s.send)
				logger.Info(ctx, "Feed subscriber disconnected", "conn_id", s.id, "subscribers", len(h.subs))
			}
		case e := <-h.publish:
			h.broadcast(ctx, e)
		case reply := <-h.count:
			reply <- len(h.subs)
		}
	}
}

func (h *Hub) broadcast(ctx context.Context, e models.ChangeEvent) {
	frame, err := json.Marshal(e)
	if err != nil {
		logger.Error(ctx, "Feed encode event failed", "error", err)
		return
	}
	for s := range h.subs {
		select {
		case s.send <- frame:
		default:
			logger.Warn(ctx, "Feed subscriber too slow, dropping", "conn_id", s.id)
			delete(h.subs, s)
			close(s.send)
		}
	}
	h.local.Emit(e)
}

// Publish hands e to the run loop. It implements the service publisher for
// the local feed backend and is what the Kafka worker calls per message.
func (h *Hub) Publish(ctx context.Context, e models.ChangeEvent) error {
	if !e.Valid() {
		return errors.New("feed publish: malformed event")
	}
	select {
	case h.publish <- e:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers an in-process listener. fn runs on the hub goroutine
// and must not block.
func (h *Hub) Subscribe(fn func(models.ChangeEvent)) *listeners.Handle {
	return h.local.Add(fn)
}

// Subscribers returns the number of websocket subscribers.
func (h *Hub) Subscribers(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-h.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
