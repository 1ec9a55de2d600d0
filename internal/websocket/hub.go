package websocket

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/skmto/arktwim-sample/internal/metrics"
	"github.com/skmto/arktwim-sample/internal/types"
)

// Hub maintains the set of active clients and fans data updates out to them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Updates waiting to be fanned out
	broadcast chan *types.DataUpdate

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex to protect clients map
	mu sync.RWMutex

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewHub creates a new Hub
func NewHub(m *metrics.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan *types.DataUpdate, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		metrics:    m,
		logger:     logger.With().Str("component", "hub").Logger(),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.metrics.RecordWebSocketConnect()
			h.logger.Info().
				Str("client_id", client.id).
				Int("total_clients", total).
				Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info().
					Str("client_id", client.id).
					Int("total_clients", len(h.clients)).
					Msg("client disconnected")
			}
			h.mu.Unlock()

		case update := <-h.broadcast:
			h.fanOut(update)
		}
	}
}

// Broadcast queues an update for every client. When the queue is full the
// update is dropped; the next tick carries a fresher one.
func (h *Hub) Broadcast(update *types.DataUpdate) {
	select {
	case h.broadcast <- update:
	default:
		h.logger.Warn().Msg("broadcast queue full, dropping update")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// fanOut sends update to each client after applying its kind filter
func (h *Hub) fanOut(update *types.DataUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var full []byte
	for client := range h.clients {
		var data []byte
		if len(client.kinds) == 0 {
			if full == nil {
				var err error
				if full, err = json.Marshal(update); err != nil {
					h.logger.Error().Err(err).Msg("failed to marshal data update")
					return
				}
			}
			data = full
		} else {
			var err error
			if data, err = json.Marshal(client.Filter(update)); err != nil {
				h.logger.Error().Err(err).Msg("failed to marshal filtered update")
				continue
			}
		}

		select {
		case client.send <- data:
		default:
			h.drop(client)
			h.logger.Warn().
				Str("client_id", client.id).
				Msg("client send buffer full, closing connection")
		}
	}
}

// drop must be called with the lock held
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.metrics.RecordWebSocketDisconnect()
}
