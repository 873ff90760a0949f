// Package realtime pushes sync progress to connected dashboards over
// WebSocket, so a long-running Instagram sync can report without polling.
package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Event is one message pushed to a user's open dashboards.
type Event struct {
	Type    string      `json:"type"`
	UserID  uuid.UUID   `json:"user_id"`
	Payload interface{} `json:"payload,omitempty"`
	Time    time.Time   `json:"time"`
}

// Event types emitted by the sync pipeline.
const (
	EventSyncStarted  = "sync_started"
	EventSyncFinished = "sync_finished"
	EventSyncFailed   = "sync_failed"
	EventReelUpdated  = "reel_updated"
)

type client struct {
	conn   *websocket.Conn
	userID uuid.UUID
	send   chan []byte
}

// Hub fans events out to each user's open connections.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and keeps the connection registered until the
// peer goes away. The caller has already authenticated the user.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 16),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	go h.readLoop(c)
	return nil
}

// Publish delivers an event to every connection owned by the event's user.
// A connection that cannot keep up is dropped rather than blocking the
// publisher.
func (h *Hub) Publish(event Event) {
	event.Time = time.Now()
	message, err := json.Marshal(event)
	if err != nil {
		log.Printf("❌ Failed to encode realtime event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.userID != event.UserID {
			continue
		}
		select {
		case c.send <- message:
		default:
			go h.remove(c)
		}
	}
}

// ConnectionCount reports how many dashboards are currently connected.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if present {
		c.conn.Close()
		close(c.send)
	}
}

func (h *Hub) writeLoop(c *client) {
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.remove(c)
			return
		}
	}
}

// readLoop drains the connection; the dashboard never sends anything
// meaningful, but reads are how peer closes are noticed.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}
