package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/labkha-cpu/ai-Apply/internal/services"
)

type WSHandler struct {
	redis    *redis.Client
	upgrader websocket.Upgrader
}

// NewWSHandler accepts connections from allowedOrigins; an empty list or
// "*" accepts any origin.
func NewWSHandler(rdb *redis.Client, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		redis:    rdb,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
	}
}

func originChecker(allowedOrigins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		_, ok := allowed[r.Header.Get("Origin")]
		return ok
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) write(typ int, b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(typ, b)
}

// CandidateWS streams the candidate's status events as JSON text frames.
// Client frames are ignored; the connection ends when the client goes away.
func (h *WSHandler) CandidateWS(c *gin.Context) {
	id, ok := requireCandidateID(c, "WSHandler.CandidateWS")
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.redis.Subscribe(ctx, services.StatusChannel(id))
	defer pubsub.Close()

	// reader: only keeps the read deadline alive and notices the close
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	msgs := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := wc.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case m, ok := <-msgs:
			if !ok {
				return
			}
			// payload is the JSON of a models.StatusEvent
			if err := wc.write(websocket.TextMessage, []byte(m.Payload)); err != nil {
				return
			}
		}
	}
}
