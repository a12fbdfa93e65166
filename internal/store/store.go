package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hochfrequenz/agent-conductor/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for tasks, execution runs,
// pause records and goals
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertTask inserts or updates a task
func (s *Store) UpsertTask(t *domain.TaskHandle, status domain.TaskStatus) error {
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, workspace_id, title, class, status, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			class = excluded.class,
			status = excluded.status,
			retry_count = excluded.retry_count,
			updated_at = excluded.updated_at
	`,
		t.ID,
		t.WorkspaceID,
		t.Title,
		string(t.Class),
		string(status),
		t.RetryCount,
		t.CreatedAt,
		time.Now(),
	)
	return err
}

// ListPendingTasks returns the pending tasks of one workspace in creation
// order
func (s *Store) ListPendingTasks(workspaceID string) ([]*domain.TaskHandle, error) {
	rows, err := s.db.Query(`
		SELECT id, workspace_id, title, class, retry_count, created_at
		FROM tasks
		WHERE workspace_id = ? AND status = ?
		ORDER BY created_at, id
	`, workspaceID, string(domain.StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.TaskHandle
	for rows.Next() {
		var t domain.TaskHandle
		var class string
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.Title, &class, &t.RetryCount, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Class = domain.PriorityClass(class)
		tasks = append(tasks, &t)
	}

	return tasks, rows.Err()
}

// CountPendingTasks returns the number of pending tasks for a workspace
func (s *Store) CountPendingTasks(workspaceID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE workspace_id = ? AND status = ?`,
		workspaceID, string(domain.StatusPending)).Scan(&n)
	return n, err
}

// ListWorkspaces returns all workspace IDs that own tasks
func (s *Store) ListWorkspaces() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT workspace_id FROM tasks ORDER BY workspace_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateTaskStatus updates a task's status
func (s *Store) UpdateTaskStatus(id string, status domain.TaskStatus) error {
	_, err := s.db.Exec(`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id)
	return err
}

// IncrementRetry bumps a task's retry count and returns it to pending
func (s *Store) IncrementRetry(id string) error {
	_, err := s.db.Exec(`
		UPDATE tasks SET retry_count = retry_count + 1, status = ?, updated_at = ? WHERE id = ?
	`, string(domain.StatusPending), time.Now(), id)
	return err
}

// RecordOutcome persists one execution outcome
func (s *Store) RecordOutcome(o *domain.Outcome) error {
	at := o.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, task_id, workspace_id, status, duration_ms, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		o.RunID,
		o.TaskID,
		o.WorkspaceID,
		string(o.Status),
		o.Duration.Milliseconds(),
		o.Error,
		at,
	)
	return err
}

// ListRecentOutcomes returns the most recent outcomes for a workspace,
// newest last, used to warm the health window after a restart
func (s *Store) ListRecentOutcomes(workspaceID string, limit int) ([]*domain.Outcome, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, workspace_id, status, duration_ms, COALESCE(error, ''), recorded_at
		FROM runs
		WHERE workspace_id = ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []*domain.Outcome
	for rows.Next() {
		var o domain.Outcome
		var status string
		var durationMS int64
		if err := rows.Scan(&o.RunID, &o.TaskID, &o.WorkspaceID, &status, &durationMS, &o.Error, &o.RecordedAt); err != nil {
			return nil, err
		}
		o.Status = domain.OutcomeStatus(status)
		o.Duration = time.Duration(durationMS) * time.Millisecond
		outcomes = append(outcomes, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(outcomes)-1; i < j; i, j = i+1, j-1 {
		outcomes[i], outcomes[j] = outcomes[j], outcomes[i]
	}
	return outcomes, nil
}

// SavePauseRecord inserts or updates a workspace's pause record
func (s *Store) SavePauseRecord(rec *domain.PauseRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO pause_records (workspace_id, state, reason, paused_at, recovery_checks, consecutive_failures, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id) DO UPDATE SET
			state = excluded.state,
			reason = excluded.reason,
			paused_at = excluded.paused_at,
			recovery_checks = excluded.recovery_checks,
			consecutive_failures = excluded.consecutive_failures,
			updated_at = excluded.updated_at
	`,
		rec.WorkspaceID,
		string(rec.State),
		rec.Reason,
		rec.PausedAt,
		rec.RecoveryChecks,
		rec.ConsecutiveFailures,
		rec.UpdatedAt,
	)
	return err
}

// ListPauseRecords returns all persisted pause records
func (s *Store) ListPauseRecords() ([]*domain.PauseRecord, error) {
	rows, err := s.db.Query(`
		SELECT workspace_id, state, COALESCE(reason, ''), paused_at, recovery_checks, consecutive_failures, updated_at
		FROM pause_records
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*domain.PauseRecord
	for rows.Next() {
		var rec domain.PauseRecord
		var state string
		var pausedAt sql.NullTime
		if err := rows.Scan(&rec.WorkspaceID, &state, &rec.Reason, &pausedAt, &rec.RecoveryChecks, &rec.ConsecutiveFailures, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.State = domain.WorkspaceState(state)
		if pausedAt.Valid {
			t := pausedAt.Time
			rec.PausedAt = &t
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// UpsertGoal inserts or updates a goal
func (s *Store) UpsertGoal(g *domain.Goal) error {
	_, err := s.db.Exec(`
		INSERT INTO goals (id, workspace_id, description, target, adjusted_threshold, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			target = excluded.target,
			adjusted_threshold = excluded.adjusted_threshold
	`,
		g.ID,
		g.WorkspaceID,
		g.Description,
		g.Target,
		g.AdjustedThreshold,
		g.CreatedAt,
	)
	return err
}

// GetGoal retrieves a goal by ID
func (s *Store) GetGoal(id string) (*domain.Goal, error) {
	row := s.db.QueryRow(`
		SELECT id, workspace_id, COALESCE(description, ''), target, adjusted_threshold, created_at
		FROM goals WHERE id = ?
	`, id)
	return scanGoal(row)
}

// ListGoals returns all goals
func (s *Store) ListGoals() ([]*domain.Goal, error) {
	rows, err := s.db.Query(`
		SELECT id, workspace_id, COALESCE(description, ''), target, adjusted_threshold, created_at
		FROM goals ORDER BY workspace_id, created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []*domain.Goal
	for rows.Next() {
		var g domain.Goal
		var adjusted sql.NullFloat64
		if err := rows.Scan(&g.ID, &g.WorkspaceID, &g.Description, &g.Target, &adjusted, &g.CreatedAt); err != nil {
			return nil, err
		}
		if adjusted.Valid {
			v := adjusted.Float64
			g.AdjustedThreshold = &v
		}
		goals = append(goals, &g)
	}
	return goals, rows.Err()
}

// RecordGoalCheck appends a validation decision to the audit trail
func (s *Store) RecordGoalCheck(g *domain.Goal, d domain.ValidationDecision) error {
	_, err := s.db.Exec(`
		INSERT INTO goal_checks (goal_id, workspace_id, verdict, should_proceed, confidence, reason, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		g.ID,
		g.WorkspaceID,
		string(d.Verdict),
		d.ShouldProceed,
		d.Confidence,
		d.Reason,
		time.Now(),
	)
	return err
}

// ListGoalChecks returns the most recent audit entries for a goal, newest
// first
func (s *Store) ListGoalChecks(goalID string, limit int) ([]*domain.GoalCheck, error) {
	rows, err := s.db.Query(`
		SELECT goal_id, workspace_id, verdict, should_proceed, confidence, COALESCE(reason, ''), checked_at
		FROM goal_checks WHERE goal_id = ?
		ORDER BY id DESC LIMIT ?
	`, goalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []*domain.GoalCheck
	for rows.Next() {
		var c domain.GoalCheck
		var verdict string
		if err := rows.Scan(&c.GoalID, &c.WorkspaceID, &verdict, &c.ShouldProceed, &c.Confidence, &c.Reason, &c.CheckedAt); err != nil {
			return nil, err
		}
		c.Verdict = domain.ValidationVerdict(verdict)
		checks = append(checks, &c)
	}
	return checks, rows.Err()
}

func scanGoal(row *sql.Row) (*domain.Goal, error) {
	var g domain.Goal
	var adjusted sql.NullFloat64

	err := row.Scan(&g.ID, &g.WorkspaceID, &g.Description, &g.Target, &adjusted, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	if adjusted.Valid {
		v := adjusted.Float64
		g.AdjustedThreshold = &v
	}
	return &g, nil
}
