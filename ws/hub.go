package ws

import (
	"context"
	"encoding/json"
	"sync"

	"messaging_backend/internal/logger"
	"messaging_backend/internal/services"
)

// Hub tracks live websocket clients per user. A user may hold several
// connections at once (tabs, devices); every one of them receives events.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations until ctx is cancelled. All open client
// send channels are closed on exit.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.UserID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.UserID] = set
			}
			set[client] = struct{}{}
			h.mu.Unlock()
			logger.Debug("websocket client registered", "user_id", client.UserID, "connections", len(set))

		case client := <-h.unregister:
			h.remove(client)

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for userID, set := range h.clients {
				for client := range set {
					client.closeSend()
				}
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	client.closeSend()
	if len(set) == 0 {
		delete(h.clients, client.UserID)
	}
	logger.Debug("websocket client unregistered", "user_id", client.UserID)
}

// PublishToUsers sends event to every connection of the given users. Users
// without a connection are skipped.
func (h *Hub) PublishToUsers(userIDs []string, event services.RealtimeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.WithError(err).Error("failed to encode realtime event", "type", event.Type)
		return
	}
	for _, userID := range userIDs {
		h.sendToUser(userID, payload)
	}
}

// Push delivers a notification to the user's live connections. It returns
// services.ErrClientOffline when the user has none.
func (h *Hub) Push(ctx context.Context, userID string, payload services.PushPayload) error {
	data, err := json.Marshal(services.RealtimeEvent{Type: services.EventNotification, Data: payload})
	if err != nil {
		return err
	}
	if h.sendToUser(userID, data) == 0 {
		return services.ErrClientOffline
	}
	logger.CtxDebug(ctx, "push delivered over websocket", "user_id", userID, "notification_id", payload.NotificationID)
	return nil
}

// IsConnected reports whether the user has at least one live connection.
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, set := range h.clients {
		total += len(set)
	}
	return total
}

// sendToUser returns how many connections accepted the payload. A client
// whose buffer is full is dropped.
func (h *Hub) sendToUser(userID string, payload []byte) int {
	h.mu.RLock()
	var slow []*Client
	sent := 0
	for client := range h.clients[userID] {
		if client.enqueue(payload) {
			sent++
		} else {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		logger.Warn("dropping slow websocket client", "user_id", userID)
		go h.leave(client)
	}
	return sent
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
