package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/agent-conductor/internal/loop"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHub fans loop events out to connected websocket clients
type WSHub struct {
	conns     map[*websocket.Conn]bool
	broadcast chan loop.Event
	mu        sync.Mutex
}

// NewWSHub creates a new websocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		conns:     make(map[*websocket.Conn]bool),
		broadcast: make(chan loop.Event, 64),
	}
}

// Run starts the websocket hub
func (h *WSHub) Run() {
	for event := range h.broadcast {
		h.mu.Lock()
		for conn := range h.conns {
			if err := conn.WriteJSON(event); err != nil {
				conn.Close()
				delete(h.conns, conn)
			}
		}
		h.mu.Unlock()
	}
}

// Broadcast queues an event for all clients, dropping when the hub is
// backed up so the loop never blocks on a slow consumer
func (h *WSHub) Broadcast(event loop.Event) {
	select {
	case h.broadcast <- event:
	default:
	}
}

func (h *WSHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()
}

func (h *WSHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if h.conns[conn] {
		delete(h.conns, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("api: websocket upgrade: %v", err)
			return
		}
		s.wsHub.add(conn)

		// Reader loop exists only to notice the client going away.
		go func() {
			defer s.wsHub.remove(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
