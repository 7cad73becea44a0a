package websocket

import (
	"context"
	"sync"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/models"
)

// envelope pairs an event with the tenant it belongs to so the hub can fan
// out without leaking events across organizations.
type envelope struct {
	OrganizationID string
	Event          models.WSEvent
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	log        *logger.Logger
	mu         sync.RWMutex
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan envelope, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		log:        log,
	}
}

// Run starts the hub logic in a goroutine. It listens for context cancellation for clean shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("WebSocket Hub started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info("WebSocket Hub shutting down...")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info("New WS client for organization %s. Total: %d", client.organizationID, len(h.clients))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case env := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.organizationID != env.OrganizationID {
					continue
				}
				select {
				case client.send <- env.Event:
				default:
					// Slow consumer: drop the connection, never block the hub.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for every client of the given organization. Safe to
// call from any goroutine; drops the event if the hub is saturated.
func (h *Hub) Publish(organizationID string, event models.WSEvent) {
	select {
	case h.broadcast <- envelope{OrganizationID: organizationID, Event: event}:
	default:
		h.log.Warn("WS broadcast buffer full, dropping %s event", event.Type)
	}
}
