package web

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Hub fans frames out to websocket clients. Only Run touches the client set;
// a client whose queue is full is dropped.
type Hub struct {
	log zerolog.Logger

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu    sync.RWMutex
	count int
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves register, unregister and broadcast requests until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.setCount(0)
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			h.log.Debug().Int("clients", len(h.clients)).Msg("Websocket client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.setCount(len(h.clients))
			h.log.Debug().Int("clients", len(h.clients)).Msg("Websocket client disconnected")

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
					h.log.Warn().Msg("Dropped slow websocket client")
				}
			}
			h.setCount(len(h.clients))
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// Broadcast queues data for every client, dropping it if the queue is full.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.log.Debug().Msg("Broadcast queue full, dropping frame")
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
