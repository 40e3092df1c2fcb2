package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// Connection lifecycle timing, matching the teacher's ws control plane
// keepalive cadence (ws_control_plane.go).
const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 45 * time.Second
	wsPingInterval   = (wsPongWait * 9) / 10
	wsMaxPayloadBytes = 1 << 20
	wsSendBuffer     = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// eventHub fans every task event out to every connected dashboard/voice
// front-end. Unlike the teacher's ws control plane, there is no
// client-to-server RPC: connections are receive-only, so there is no
// frame protocol or method dispatch to implement, only the
// upgrade/write-pump/read-pump connection shape.
type eventHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[*wsClient]struct{})}
}

// Notify implements tasks.Sink: every task bound to the broadcast sink
// fans its events out to all connected clients.
func (h *eventHub) Notify(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// slow client; drop the event rather than block the
			// whole broadcast, consistent with sink errors never
			// being surfaced to the originating agent.
		}
	}
	return nil
}

func (h *eventHub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *eventHub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.cancel()
	}
}

// wsClient is one connected dashboard/voice front-end.
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.Warn(r.Context(), "ws upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer), ctx: ctx, cancel: cancel}
	s.hub.add(client)

	go client.writeLoop()
	client.readLoop(s.hub)
}

// readLoop only watches for the connection closing or a pong timeout;
// the orchestrator never accepts client-initiated messages on this
// socket.
func (c *wsClient) readLoop(hub *eventHub) {
	defer func() {
		hub.remove(c)
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
