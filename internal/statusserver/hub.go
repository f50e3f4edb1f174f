package statusserver

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Event is a single subtask transition broadcast to every connected client.
// cmd's instrumented executor calls Hub.Broadcast once per ExecuteSubtask
// outcome; nothing here ever mutates session state, this is read-only fanout.
type Event struct {
	Type      string `json:"type"`
	SubtaskID string `json:"subtaskId"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Hub maintains the set of connected status-server clients and fans out
// subtask transition events to all of them, the same register/unregister/
// broadcast channel loop as mote's websocket.Hub.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	log zerolog.Logger
}

type client struct {
	send chan []byte
}

// NewHub constructs an idle Hub; call Run in a goroutine to start its loop.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		log:        log,
	}
}

// Run drives the hub's main loop until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case data := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					h.log.Warn().Msg("status server client buffer full, dropping event")
				}
			}
			h.mu.RUnlock()

		case <-stop:
			return
		}
	}
}

// ClientCount returns the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast encodes event as JSON and fans it out to every connected client.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal status event")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn().Msg("status server broadcast channel full, dropping event")
	}
}
