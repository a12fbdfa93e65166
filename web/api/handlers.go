package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hochfrequenz/agent-conductor/internal/domain"
)

// WorkspaceResponse is the API response for one workspace
type WorkspaceResponse struct {
	ID                  string  `json:"id"`
	State               string  `json:"state"`
	Reason              string  `json:"reason,omitempty"`
	PausedAt            *string `json:"paused_at,omitempty"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	PendingTasks        int     `json:"pending_tasks"`
	InFlight            int     `json:"in_flight"`
	HealthScore         float64 `json:"health_score"`
	SuccessRate         float64 `json:"success_rate"`
	VelocityPerHour     float64 `json:"velocity_per_hour"`
	Stalled             bool    `json:"stalled"`
}

// TaskResponse is the API response for a pending task
type TaskResponse struct {
	ID          string  `json:"id"`
	WorkspaceID string  `json:"workspace_id"`
	Title       string  `json:"title"`
	Class       string  `json:"class,omitempty"`
	RetryCount  int     `json:"retry_count"`
	CreatedAt   string  `json:"created_at"`
	Score       float64 `json:"score"`
}

// GoalResponse is the API response for a goal
type GoalResponse struct {
	ID                string   `json:"id"`
	WorkspaceID       string   `json:"workspace_id"`
	Description       string   `json:"description,omitempty"`
	Target            float64  `json:"target"`
	AdjustedThreshold *float64 `json:"adjusted_threshold,omitempty"`
	CreatedAt         string   `json:"created_at"`
}

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Workspaces int `json:"workspaces"`
	Paused     int `json:"paused"`
	Recovering int `json:"recovering"`
	Pending    int `json:"pending_tasks"`
}

func (s *Server) workspaceToResponse(id string) WorkspaceResponse {
	rec := s.pauses.Record(id)
	pending, _ := s.store.CountPendingTasks(id)
	snap := s.healthView.Snapshot(id, pending)

	resp := WorkspaceResponse{
		ID:                  id,
		State:               string(rec.State),
		Reason:              rec.Reason,
		ConsecutiveFailures: rec.ConsecutiveFailures,
		PendingTasks:        pending,
		HealthScore:         snap.Score,
		SuccessRate:         snap.SuccessRate,
		VelocityPerHour:     snap.VelocityPerHour,
		Stalled:             snap.Stalled,
	}
	if s.runner != nil {
		resp.InFlight = s.runner.InFlight(id)
	}
	if rec.PausedAt != nil {
		t := rec.PausedAt.Format(time.RFC3339)
		resp.PausedAt = &t
	}
	return resp
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		workspaces, err := s.store.ListWorkspaces()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := StatusResponse{Workspaces: len(workspaces)}
		for _, rec := range s.pauses.Records() {
			switch rec.State {
			case domain.WorkspacePaused:
				resp.Paused++
			case domain.WorkspaceRecovering:
				resp.Recovering++
			}
		}
		for _, ws := range workspaces {
			n, _ := s.store.CountPendingTasks(ws)
			resp.Pending += n
		}

		writeJSON(w, resp)
	}
}

func (s *Server) listWorkspacesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		workspaces, err := s.store.ListWorkspaces()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := make([]WorkspaceResponse, 0, len(workspaces))
		for _, ws := range workspaces {
			resp = append(resp, s.workspaceToResponse(ws))
		}
		writeJSON(w, resp)
	}
}

// workspaceHandler serves /api/workspaces/{id}, /api/workspaces/{id}/tasks
// and the manual override POST /api/workspaces/{id}/resume
func (s *Server) workspaceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/workspaces/")
		parts := strings.SplitN(rest, "/", 2)
		id := parts[0]
		if id == "" {
			writeError(w, http.StatusNotFound, "workspace not found")
			return
		}

		action := ""
		if len(parts) == 2 {
			action = parts[1]
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			writeJSON(w, s.workspaceToResponse(id))

		case action == "tasks" && r.Method == http.MethodGet:
			tasks, err := s.store.ListPendingTasks(id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			resp := make([]TaskResponse, 0, len(tasks))
			for _, t := range tasks {
				resp = append(resp, TaskResponse{
					ID:          t.ID,
					WorkspaceID: t.WorkspaceID,
					Title:       t.Title,
					Class:       string(t.Class),
					RetryCount:  t.RetryCount,
					CreatedAt:   t.CreatedAt.Format(time.RFC3339),
					Score:       t.Score,
				})
			}
			writeJSON(w, resp)

		case action == "resume" && r.Method == http.MethodPost:
			reason := "manual override"
			if body, err := io.ReadAll(io.LimitReader(r.Body, 1024)); err == nil && len(body) > 0 {
				reason = strings.TrimSpace(string(body))
			}
			s.pauses.ForceActive(id, reason)
			writeJSON(w, s.workspaceToResponse(id))

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) listGoalsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		goals, err := s.store.ListGoals()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := make([]GoalResponse, 0, len(goals))
		for _, g := range goals {
			resp = append(resp, GoalResponse{
				ID:                g.ID,
				WorkspaceID:       g.WorkspaceID,
				Description:       g.Description,
				Target:            g.Target,
				AdjustedThreshold: g.AdjustedThreshold,
				CreatedAt:         g.CreatedAt.Format(time.RFC3339),
			})
		}
		writeJSON(w, resp)
	}
}
