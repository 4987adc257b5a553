package reconciler

import (
	"context"
	"sync"
	"sync/atomic"

	"todo-sync/internal/listeners"
	"todo-sync/internal/models"
	"todo-sync/internal/syncchan"
)

// fakeChannel is a syncchan.Channel driven by the test.
type fakeChannel struct {
	received     listeners.Set[syncchan.Message]
	connectivity listeners.Set[bool]
	connected    atomic.Bool

	mu         sync.Mutex
	sent       []syncchan.Message
	sendErr    error
	connectErr error
	connects   int
	closed     bool
}

var _ syncchan.Channel = (*fakeChannel)(nil)

func (f *fakeChannel) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	err := f.connectErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.setConnected(true)
	return nil
}

func (f *fakeChannel) Send(ctx context.Context, msg syncchan.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) OnReceive(fn func(syncchan.Message)) *listeners.Handle {
	return f.received.Add(fn)
}

func (f *fakeChannel) OnConnectivityChange(fn func(bool)) *listeners.Handle {
	return f.connectivity.Add(fn)
}

func (f *fakeChannel) Connected() bool { return f.connected.Load() }

func (f *fakeChannel) Disconnect() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.setConnected(false)
	return nil
}

func (f *fakeChannel) setConnected(v bool) {
	if f.connected.Swap(v) != v {
		f.connectivity.Emit(v)
	}
}

func (f *fakeChannel) deliver(msg syncchan.Message) {
	f.received.Emit(msg)
}

func (f *fakeChannel) failSends(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func (f *fakeChannel) messages() []syncchan.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]syncchan.Message(nil), f.sent...)
}

// fakeLister serves the authority's list.
type fakeLister struct {
	mu    sync.Mutex
	list  models.Snapshot
	err   error
	calls int
	// during runs inside List, before it returns
	during func()
}

func (l *fakeLister) List(ctx context.Context) (models.Snapshot, error) {
	l.mu.Lock()
	l.calls++
	list, err, during := l.list.Clone(), l.err, l.during
	l.mu.Unlock()
	if during != nil {
		during()
	}
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (l *fakeLister) set(list models.Snapshot, err error) {
	l.mu.Lock()
	l.list, l.err = list, err
	l.mu.Unlock()
}

func (l *fakeLister) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func texts(s models.Snapshot) []string {
	out := make([]string, 0, len(s))
	for _, t := range s {
		out = append(out, t.Text)
	}
	return out
}
