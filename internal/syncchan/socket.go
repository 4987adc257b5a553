package syncchan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"todo-sync/internal/listeners"
	"todo-sync/internal/syncerr"
	"todo-sync/pkg/logger"
)

// socket is the reconnecting websocket both transports are built on.
type socket struct {
	url      string
	settings *Settings
	decode   func(ctx context.Context, data []byte) (Message, bool)

	connMu  sync.Mutex
	ws      *websocket.Conn
	writeMu sync.Mutex

	connected    atomic.Bool
	received     listeners.Set[Message]
	connectivity listeners.Set[bool]

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newSocket(url string, settings *Settings, decode func(context.Context, []byte) (Message, bool)) *socket {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &socket{url: url, settings: settings, decode: decode}
}

func (s *socket) Connect(ctx context.Context) error {
	s.runMu.Lock()
	if s.cancel != nil {
		s.runMu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.runMu.Unlock()

	first := make(chan error, 1)
	go s.run(runCtx, first)
	select {
	case err := <-first:
		return err
	case <-ctx.Done():
		return syncerr.Transport("connect", ctx.Err())
	}
}

func (s *socket) run(ctx context.Context, first chan<- error) {
	defer close(s.done)
	ctx = logger.With(ctx, "url", s.url)
	reported := false
	report := func(err error) {
		if !reported {
			reported = true
			first <- err
		}
	}
	for {
		ws, err := s.dial(ctx)
		if err != nil {
			report(syncerr.Transport("connect", err))
			logger.Debug(ctx, "Sync channel dial failed", "error", err)
		} else {
			report(nil)
			s.serve(ctx, ws)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.settings.ReconnectTimeout):
		}
	}
}

func (s *socket) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: s.settings.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, s.url, s.settings.Header)
	return ws, err
}

// serve owns ws until it fails or ctx is cancelled.
func (s *socket) serve(ctx context.Context, ws *websocket.Conn) {
	handleCtx, handleCancel := context.WithCancel(ctx)
	defer handleCancel()

	s.connMu.Lock()
	s.ws = ws
	s.connMu.Unlock()
	s.setConnected(true)
	logger.Info(ctx, "Sync channel connected")

	defer func() {
		s.connMu.Lock()
		s.ws = nil
		s.connMu.Unlock()
		_ = ws.Close()
		s.setConnected(false)
		logger.Info(ctx, "Sync channel disconnected")
	}()

	go func() {
		defer handleCancel()
		t := time.NewTicker(s.settings.PingTimeout)
		defer t.Stop()
		for {
			select {
			case <-handleCtx.Done():
				_ = ws.Close()
				return
			case <-t.C:
				deadline := time.Now().Add(s.settings.WriteTimeout)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			}
		}
	}()

	_ = ws.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
	})
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if handleCtx.Err() == nil {
				logger.Debug(ctx, "Sync channel read failed", "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
		if messageType != websocket.TextMessage {
			continue
		}
		if msg, ok := s.decode(ctx, data); ok {
			s.received.Emit(msg)
		}
	}
}

func (s *socket) setConnected(v bool) {
	if s.connected.Swap(v) != v {
		s.connectivity.Emit(v)
	}
}

// write sends one text frame on the live connection.
func (s *socket) write(data []byte) error {
	s.connMu.Lock()
	ws := s.ws
	s.connMu.Unlock()
	if ws == nil {
		return syncerr.Transport("send", syncerr.ErrDisconnected)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		// a write deadline cannot be recovered; let the read loop reconnect
		_ = ws.Close()
		return syncerr.Transport("send", err)
	}
	return nil
}

func (s *socket) OnReceive(fn func(Message)) *listeners.Handle {
	return s.received.Add(fn)
}

func (s *socket) OnConnectivityChange(fn func(bool)) *listeners.Handle {
	return s.connectivity.Add(fn)
}

func (s *socket) Connected() bool {
	return s.connected.Load()
}

func (s *socket) Disconnect() error {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.runMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	s.connMu.Lock()
	if s.ws != nil {
		_ = s.ws.Close()
	}
	s.connMu.Unlock()
	<-done
	return nil
}

var errUnsupported = errors.New("message kind not supported by this channel")
