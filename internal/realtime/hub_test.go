package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func dialTestHub(t *testing.T, hub *Hub, userID uuid.UUID) *websocket.Conn {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.Serve(w, r, userID); err != nil {
			t.Errorf("Serve failed: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublishReachesOwningUser(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()
	conn := dialTestHub(t, hub, userID)

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(Event{Type: EventSyncStarted, UserID: userID})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}

	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if event.Type != EventSyncStarted || event.UserID != userID {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestPublishScopedToUser(t *testing.T) {
	hub := NewHub()
	owner := uuid.New()
	conn := dialTestHub(t, hub, owner)

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// An event for a different user must not arrive.
	hub.Publish(Event{Type: EventSyncFinished, UserID: uuid.New()})
	hub.Publish(Event{Type: EventSyncFinished, UserID: owner})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}

	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if event.UserID != owner {
		t.Errorf("received event for foreign user: %+v", event)
	}
}

func TestRemoveOnPeerClose(t *testing.T) {
	hub := NewHub()
	conn := dialTestHub(t, hub, uuid.New())

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never unregistered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
