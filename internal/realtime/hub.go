package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType names the board change a client is told about.
type EventType string

const (
	EventTaskCreated EventType = "task_created"
	EventTaskUpdated EventType = "task_updated"
	EventTaskDeleted EventType = "task_deleted"
)

// Event is the payload pushed to every connected board.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	TaskID  string    `json:"taskId"`
	ActorID string    `json:"actorId"`
	At      time.Time `json:"at"`
}

// Client represents a single websocket client connection.
// The network conn itself is managed in the ws handler.
type Client interface {
	Send(message []byte) bool
	Close()
}

// Hub tracks connected clients per user and fans board events out to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[Client]struct{}),
	}
}

// Register adds a client under a user ID.
func (h *Hub) Register(userID string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

// Unregister removes a client; if user has no more clients, cleans up map.
func (h *Hub) Unregister(userID string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, userID)
		}
	}
}

// Connected returns the number of registered clients.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

// Broadcast sends message to every client of every user. Failed sends are left
// for the owning handler to clean up.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.clients {
		for c := range clients {
			_ = c.Send(message)
		}
	}
}

// TaskChanged publishes a board event for taskID.
func (h *Hub) TaskChanged(eventType EventType, taskID, actorID string) {
	evt := Event{
		ID:      ulid.Make().String(),
		Type:    eventType,
		TaskID:  taskID,
		ActorID: actorID,
		At:      time.Now().UTC(),
	}
	b, err := json.Marshal(evt)
	if err != nil {
		slog.Error("failed to encode board event", "error", err)
		return
	}
	h.Broadcast(b)
}
