// Package hub provides thread-safe websocket broadcast fan-out, one hub
// per status topic. Slow clients are dropped rather than allowed to
// stall the publisher.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/parol-robotics/go-parol6/internal/log"
)

// Hub maintains the set of subscribers for one topic and broadcasts
// messages to them.
type Hub struct {
	topic string

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	dropped uint64
}

// New creates a hub for the named topic.
func New(topic string) *Hub {
	return &Hub{
		topic:      topic,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run drives the hub's fan-out loop until ctx is cancelled. Call in a
// goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("subscriber connected", "topic", h.topic, "total", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("subscriber disconnected", "topic", h.topic, "remaining", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Buffer full: the client cannot keep up with the
					// status rate. Drop it instead of blocking.
					close(client.send)
					delete(h.clients, client)
					h.dropped++
					log.Warn("dropped slow subscriber", "topic", h.topic)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a pre-encoded message for all subscribers. Never
// blocks; excess messages are dropped.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// Topic returns the hub's topic name.
func (h *Hub) Topic() string {
	return h.topic
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedCount returns how many slow subscribers have been dropped.
func (h *Hub) DroppedCount() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
