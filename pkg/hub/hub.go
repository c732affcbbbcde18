// Package hub fans operator events out to websocket clients using the
// channel-based register/unregister/broadcast loop.
//
// Each running agent session publishes its tool results, data broadcasts,
// transcripts and usage here; /ws/events streams them to anyone watching.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultHistory is how many recent events are replayed to new clients.
const DefaultHistory = 100

// Hub maintains the set of active clients and broadcasts events to them
type Hub struct {
	logger *slog.Logger

	// Registered clients
	clients map[*Client]bool

	// Inbound frames to broadcast
	broadcast chan frame

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu sync.RWMutex

	// Ring of recent events
	histMu  sync.Mutex
	history []Event
	maxHist int

	running atomic.Bool
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// New creates a new Hub that remembers the last history events.
func New(logger *slog.Logger, history int) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if history <= 0 {
		history = DefaultHistory
	}
	return &Hub{
		logger:     logger.With("component", "hub"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan frame, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		maxHist:    history,
	}
}

// Run starts the hub's main loop and returns when ctx is done.
// This should be called in a goroutine
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "clients", count)

		case f := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- f:
					h.sent.Add(1)
				default:
					// Slow client; drop it rather than stall the feed.
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("dropped slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish records e and broadcasts it to all connected clients. It never
// blocks; when the broadcast queue is full the event is only kept in history.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	f, err := encode(e)
	if err != nil {
		h.logger.Warn("event not encodable", "type", e.Type, "error", err)
		return
	}

	h.histMu.Lock()
	h.history = append(h.history, e)
	if len(h.history) > h.maxHist {
		h.history = h.history[len(h.history)-h.maxHist:]
	}
	h.histMu.Unlock()

	select {
	case h.broadcast <- f:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast queue full, dropping event", "type", e.Type)
	}
}

// Recent returns up to n of the most recent events, oldest first. n <= 0
// returns all retained events.
func (h *Hub) Recent(n int) []Event {
	h.histMu.Lock()
	defer h.histMu.Unlock()
	start := 0
	if n > 0 && n < len(h.history) {
		start = len(h.history) - n
	}
	out := make([]Event, len(h.history)-start)
	copy(out, h.history[start:])
	return out
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning returns whether the hub loop is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Stats contains hub statistics
type Stats struct {
	Clients int    `json:"clients"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		Clients: h.ClientCount(),
		Sent:    h.sent.Load(),
		Dropped: h.dropped.Load(),
	}
}
