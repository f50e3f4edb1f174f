// Package statusserver exposes a read-only HTTP+WebSocket view of the
// current session's backlog tree and live subtask transitions. It never
// accepts a mutating request — triage commands (forge retry/skip/revert)
// stay on the CLI, this package only answers "what is the run doing".
package statusserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/autoforge/autoforge/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the status-only HTTP server. It reads the session's in-memory
// Backlog directly rather than re-reading tasks.json per request, so a
// snapshot always reflects the Orchestrator's current view.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	sess       *session.Session
	hub        *Hub
	log        zerolog.Logger
}

// New builds a Server bound to addr, serving sess's backlog snapshot and
// broadcasting hub events over /ws.
func New(addr string, sess *session.Session, hub *Hub, log zerolog.Logger) *Server {
	router := mux.NewRouter()
	s := &Server{
		router: router,
		sess:   sess,
		hub:    hub,
		log:    log,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // streaming /ws connections don't get a write deadline
			IdleTimeout:  120 * time.Second,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleBacklogSnapshot).Methods(http.MethodGet)
	s.router.HandleFunc("/status/{id}", s.handleItemSnapshot).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleBacklogSnapshot(w http.ResponseWriter, r *http.Request) {
	b := s.sess.Backlog()
	writeJSON(w, b)
}

func (s *Server) handleItemSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	item, err := s.sess.Backlog().Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, item)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("status server websocket upgrade failed")
		return
	}

	c := &client{send: make(chan []byte, 64)}
	s.hub.register <- c

	go func() {
		defer func() {
			s.hub.unregister <- c
			conn.Close()
		}()
		for data := range c.send {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}()

	// Status connections are receive-only; drain and discard any frames a
	// client sends (e.g. its own pong control frames) until it disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Start blocks until the server fails or Shutdown closes it down.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("statusserver: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
