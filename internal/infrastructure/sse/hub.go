package sse

import (
	"context"
	"sync"

	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
)

// Hub manages SSE clients and fans events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*notification.SSEClient
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*notification.SSEClient),
	}
}

func (h *Hub) Register(client *notification.SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Name() string { return "sse" }

// Publish implements notification.Sink. A client addressed both directly and
// through a group receives the event once. Slow clients drop the event.
func (h *Hub) Publish(_ context.Context, event notification.Event) error {
	data, err := event.Marshal()
	if err != nil {
		return err
	}
	msg := notification.NewSSEMessage(string(event.Type), data)

	users := make(map[string]struct{}, len(event.Audience.UserIDs))
	for _, id := range event.Audience.UserIDs {
		users[id.String()] = struct{}{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if addressed(c, users, event.Audience.Groups) {
			trySend(c, msg)
		}
	}
	return nil
}

func addressed(c *notification.SSEClient, users map[string]struct{}, groups []string) bool {
	if c.UserID != nil {
		if _, ok := users[*c.UserID]; ok {
			return true
		}
	}
	for _, want := range groups {
		for _, g := range c.Groups {
			if g == want {
				return true
			}
		}
	}
	return false
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

func trySend(c *notification.SSEClient, msg *notification.SSEMessage) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
