package gateway

import (
	"sync"

	"github.com/codefionn/discussd/internal/logger"
)

// Hub is the table of live clients by peer id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logger.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     logger.Global().WithPrefix("hub"),
	}
}

// Register adds client under its peer id.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[client.PeerID]; ok && existing != client {
		h.log.Warn("peer %s already registered to %s, reassigning to %s", client.PeerID, existing.ID, client.ID)
	}
	h.clients[client.PeerID] = client
	h.log.Debug("registered %s as %s (total: %d)", client.ID, client.PeerID, len(h.clients))
}

// Unregister removes client if its peer id still points at it.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.PeerID] == client {
		delete(h.clients, client.PeerID)
		h.log.Debug("unregistered %s (total: %d)", client.ID, len(h.clients))
	}
}

// Get returns the live client for peerID.
func (h *Hub) Get(peerID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[peerID]
	return client, ok
}

// Push queues line for peerID without blocking. It reports whether the
// line was queued.
func (h *Hub) Push(peerID, line string) bool {
	client, ok := h.Get(peerID)
	if !ok {
		return false
	}
	return client.Push(line)
}

// Count returns the number of live clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every live client.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	if len(clients) > 0 {
		h.log.Info("closing %d connections", len(clients))
	}
	for _, client := range clients {
		client.Close()
	}
}
