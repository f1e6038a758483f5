package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a change notification sent to the clients of one organization.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub maintains the active WebSocket clients, grouped by organization.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to its organization.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.organizationID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.organizationID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.organizationID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
			if len(set) == 0 {
				delete(h.clients, c.organizationID)
			}
		}
	}
	h.mu.Unlock()
}

// Broadcast sends a message to the clients of one organization.
func (h *Hub) Broadcast(organizationID int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[organizationID] {
		select {
		case c.send <- data:
		default:
			// buffer full, drop
		}
	}
}

// ClientCount returns the number of connected clients of an organization,
// or of all organizations when organizationID is 0.
func (h *Hub) ClientCount(organizationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if organizationID != 0 {
		return len(h.clients[organizationID])
	}
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}
