package websocket

// Central hub: one logical stream per user, fanned out to every live connection of that user.
// Register/Unregister and Publish may be called from any goroutine.

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	wire "meetrix/pkg/models"
)

// Publisher delivers an event to all live connections of a user, best effort
type Publisher interface {
	Publish(userID, eventType string, payload any)
}

// Stats is a point-in-time view of the registry
type Stats struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
}

type Hub struct {
	mu         sync.RWMutex
	users      map[string]map[*Client]struct{} // userID -> live clients
	identifier string
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		users:      make(map[string]map[*Client]struct{}),
		identifier: wire.NotificationsIdentifier(),
		logger:     logger,
	}
}

// Register binds a client to its user's stream
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	clients, ok := h.users[c.userID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.users[c.userID] = clients
	}
	clients[c] = struct{}{}
	count := len(clients)
	h.mu.Unlock()

	h.logger.Info("ws_client_registered",
		"client_id", c.id,
		"user_id", c.userID,
		"user_connections", count,
	)
}

// Unregister removes the client once and closes its send queue; later calls are no-ops
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	clients, ok := h.users[c.userID]
	if ok {
		_, ok = clients[c]
	}
	if ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.users, c.userID)
		}
	}
	h.mu.Unlock()

	if !ok {
		return false
	}

	c.closeSend()
	h.logger.Info("ws_client_unregistered",
		"client_id", c.id,
		"user_id", c.userID,
	)
	return true
}

// Publish encodes the event once and queues it on every connection of userID.
// Nothing is kept for users without connections.
func (h *Hub) Publish(userID, eventType string, payload any) {
	frame, err := wire.EncodeEvent(h.identifier, eventType, payload)
	if err != nil {
		h.logger.Error("ws_event_encode_failed",
			"user_id", userID,
			"event", eventType,
			"error", err.Error(),
		)
		return
	}
	delivered := h.Deliver(userID, frame)
	h.logger.Debug("ws_event_published",
		"user_id", userID,
		"event", eventType,
		"delivered", delivered,
	)
}

// Deliver queues an already encoded frame and returns how many connections took it.
// A connection whose queue is full is dropped.
func (h *Hub) Deliver(userID string, frame []byte) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		switch err := c.trySend(frame); {
		case err == nil:
			delivered++
		case errors.Is(err, errSendQueueFull):
			h.logger.Warn("ws_client_slow_dropped",
				"client_id", c.id,
				"user_id", userID,
			)
			h.Unregister(c)
		}
	}
	return delivered
}

// ConnectionCount returns the live connections of one user
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	stats := Stats{Users: len(h.users)}
	for _, clients := range h.users {
		stats.Connections += len(clients)
	}
	return stats
}

// RunWithContext blocks until ctx is done, then closes every connection
func (h *Hub) RunWithContext(ctx context.Context) error {
	<-ctx.Done()
	closed := h.closeAll()
	h.logger.Info("ws_hub_stopped",
		"reason", ctx.Err().Error(),
		"clients_closed", closed,
	)
	return ctx.Err()
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	var clients []*Client
	for _, set := range h.users {
		for c := range set {
			clients = append(clients, c)
		}
	}
	h.users = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
	}
	return len(clients)
}
