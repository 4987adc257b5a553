package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"todo-sync/internal/models"
	"todo-sync/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Limits caps how fast one connection may send frames.
type Limits struct {
	RPS   float64
	Burst int
}

// ServeWS upgrades the request and attaches the connection to the hub. The
// handler goroutine becomes the connection's writer.
func ServeWS(h *Hub, limits Limits) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error(c.Request.Context(), "Relay websocket upgrade failed", "error", err)
			return
		}
		cl := &client{id: ulid.Make().String(), send: make(chan []byte, h.opts.SendBuffer)}
		ctx := logger.WithConnID(context.WithoutCancel(c.Request.Context()), cl.id)

		select {
		case h.register <- cl:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go readPump(ctx, h, cl, conn, limits)
		writePump(conn, cl)
	}
}

func readPump(ctx context.Context, h *Hub, cl *client, conn *websocket.Conn, limits Limits) {
	defer func() {
		select {
		case h.unregister <- cl:
		case <-h.done:
		}
		_ = conn.Close()
	}()
	var limiter *rate.Limiter
	if limits.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(limits.RPS), max(limits.Burst, 1))
	}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug(ctx, "Relay read failed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}
		var msg models.RelayMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn(ctx, "Relay frame not JSON", "error", err)
			continue
		}
		select {
		case h.inbound <- inbound{c: cl, msg: msg}:
		case <-h.done:
			return
		}
	}
}

// writePump drains the client's queue until the hub closes it.
func writePump(conn *websocket.Conn, cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
