package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hochfrequenz/agent-conductor/internal/domain"
	"github.com/hochfrequenz/agent-conductor/internal/health"
	"github.com/hochfrequenz/agent-conductor/internal/loop"
)

// Store interface for database operations
type Store interface {
	ListWorkspaces() ([]string, error)
	CountPendingTasks(workspaceID string) (int, error)
	ListPendingTasks(workspaceID string) ([]*domain.TaskHandle, error)
	ListGoals() ([]*domain.Goal, error)
}

// PauseControl is the pause manager surface the API needs
type PauseControl interface {
	Record(workspaceID string) domain.PauseRecord
	Records() []domain.PauseRecord
	ForceActive(workspaceID, reason string)
}

// HealthView exposes workspace health snapshots
type HealthView interface {
	Snapshot(workspaceID string, pendingTasks int) health.Snapshot
}

// Server is the ops HTTP API server
type Server struct {
	store      Store
	pauses     PauseControl
	healthView HealthView
	runner     *loop.Runner
	addr       string
	mux        *http.ServeMux
	sseHub     *SSEHub
	wsHub      *WSHub
}

// NewServer creates a new API server
func NewServer(store Store, pauses PauseControl, healthView HealthView, runner *loop.Runner, host string, port int) *Server {
	s := &Server{
		store:      store,
		pauses:     pauses,
		healthView: healthView,
		runner:     runner,
		addr:       fmt.Sprintf("%s:%d", host, port),
		mux:        http.NewServeMux(),
		sseHub:     NewSSEHub(),
		wsHub:      NewWSHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/workspaces", s.listWorkspacesHandler())
	s.mux.HandleFunc("/api/workspaces/", s.workspaceHandler())
	s.mux.HandleFunc("/api/goals", s.listGoalsHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/ws", s.wsHandler())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.wsHub.Run()
	return http.ListenAndServe(s.addr, s.mux)
}

// Broadcast fans a loop event out to all SSE and websocket clients
func (s *Server) Broadcast(event loop.Event) {
	s.sseHub.Broadcast(event)
	s.wsHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
