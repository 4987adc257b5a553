package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"todo-sync/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS subscribes the connection to the change feed. The feed is
// server-to-client only; inbound frames other than control frames are ignored.
func ServeWS(h *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error(c.Request.Context(), "Feed websocket upgrade failed", "error", err)
			return
		}
		sub := &subscriber{id: ulid.Make().String(), send: make(chan []byte, h.sendBuffer)}
		ctx := logger.WithConnID(context.WithoutCancel(c.Request.Context()), sub.id)

		select {
		case h.register <- sub:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go func() {
			defer func() {
				select {
				case h.unregister <- sub:
				case <-h.done:
				}
				_ = conn.Close()
			}()
			conn.SetReadLimit(1024)
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					logger.Debug(ctx, "Feed read ended", "error", err)
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer func() {
			ticker.Stop()
			_ = conn.Close()
		}()
		for {
			select {
			case msg, ok := <-sub.send:
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
}
