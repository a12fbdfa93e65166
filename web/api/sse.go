package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/hochfrequenz/agent-conductor/internal/loop"
)

// SSEHub fans loop events out to connected event-stream clients. Slow
// clients are dropped rather than ever blocking the loop.
type SSEHub struct {
	mu      sync.Mutex
	clients map[chan loop.Event]bool
}

// NewSSEHub creates a new SSE hub
func NewSSEHub() *SSEHub {
	return &SSEHub{clients: make(map[chan loop.Event]bool)}
}

func (h *SSEHub) register() chan loop.Event {
	ch := make(chan loop.Event, 16)
	h.mu.Lock()
	h.clients[ch] = true
	h.mu.Unlock()
	return ch
}

func (h *SSEHub) unregister(ch chan loop.Event) {
	h.mu.Lock()
	if h.clients[ch] {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Broadcast sends an event to every connected client, dropping clients
// whose buffers are full
func (h *SSEHub) Broadcast(event loop.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- event:
		default:
			delete(h.clients, ch)
			close(ch)
		}
	}
}

func (s *Server) sseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		ch := s.sseHub.register()
		defer s.sseHub.unregister(ch)

		for {
			select {
			case <-r.Context().Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				fmt.Fprintf(w, "event: %s\n", event.Type)
				fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}
