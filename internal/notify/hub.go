package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fitbet/bet-engine/internal/metrics"
	"github.com/fitbet/bet-engine/internal/model"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 32
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type         string              `json:"type"`
	Notification *model.Notification `json:"notification,omitempty"`
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

type delivery struct {
	userID string
	data   []byte
}

// Hub tracks WebSocket connections per user and pushes each user's new
// notifications to their open connections.
type Hub struct {
	clients    map[string]map[*client]bool
	deliver    chan delivery
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*client]bool),
		deliver:    make(chan delivery, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for _, conns := range h.clients {
				for c := range conns {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*client]bool)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[*client]bool)
			}
			h.clients[c.userID][c] = true
			h.mu.Unlock()
			metrics.WebSocketClients.Inc()
			slog.Info("ws client connected", "user_id", c.userID)

		case c := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[c.userID]; ok && conns[c] {
				delete(conns, c)
				if len(conns) == 0 {
					delete(h.clients, c.userID)
				}
				close(c.send)
				metrics.WebSocketClients.Dec()
			}
			h.mu.Unlock()

		case d := <-h.deliver:
			h.mu.RLock()
			for c := range h.clients[d.userID] {
				select {
				case c.send <- d.data:
				default:
					// Slow reader; drop rather than stall the hub.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Push queues n for the recipient's open connections.
func (h *Hub) Push(userID string, n model.Notification) {
	data, err := json.Marshal(WSMessage{Type: "notification", Notification: &n})
	if err != nil {
		return
	}
	select {
	case h.deliver <- delivery{userID: userID, data: data}:
	default:
		// Drop if buffer full to avoid blocking resolution.
	}
}

// ClientCount returns the number of open connections for a user.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// Serve upgrades the request and attaches the connection to userID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	c := &client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump keeps the connection alive and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine writing to the connection.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
