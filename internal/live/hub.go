package live

import (
	"encoding/json"
	"sync"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
)

// Message is one push frame on the heatmap websocket.
type Message struct {
	Type    string               `json:"type"`
	Heatmap []models.HeatmapCell `json:"heatmap,omitempty"`
	Payload interface{}          `json:"payload,omitempty"`
}

// Hub maintains the set of connected dashboard sessions and broadcasts
// state-change events to them. Delivery is best-effort, at-most-once:
// a slow client just misses frames and catches up via the fetch
// endpoints.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  log,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast fans a message out to every connected client.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("LIVE", "marshal broadcast: "+err.Error())
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full - drop the frame rather than block
		}
	}
}

// BroadcastHeatmap pushes a full heatmap refresh.
func (h *Hub) BroadcastHeatmap(cells []models.HeatmapCell) {
	h.Broadcast(Message{Type: "heatmap", Heatmap: cells})
}

// BroadcastAlert pushes a typed event (legendary catch, stock
// depletion, leaderboard movement).
func (h *Hub) BroadcastAlert(msgType string, payload interface{}) {
	h.Broadcast(Message{Type: msgType, Payload: payload})
}
