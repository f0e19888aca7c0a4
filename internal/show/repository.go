package show

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists the show execution audit trail to SQLite. It
// implements ExecutionRecorder. Writes are local single-row statements
// and run inline on the control loop; the database is opened with a
// busy timeout so a concurrent API read never wedges a tick for long.
type Repository struct {
	db *sql.DB
}

// Execution is one row of the audit trail.
type Execution struct {
	ID          string     `json:"id"`
	ShowName    string     `json:"show_name"`
	Key         string     `json:"key,omitempty"`
	Priority    int        `json:"priority"`
	Speed       float64    `json:"speed"`
	Loops       int        `json:"loops"`
	StartedAt   time.Time  `json:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
	LoopsPlayed int        `json:"loops_played"`
	StopReason  string     `json:"stop_reason,omitempty"`
}

// NewRepository creates a repository backed by an open database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RecordStart inserts a new execution row and returns its id.
func (r *Repository) RecordStart(e ExecutionStart) (string, error) {
	id := uuid.NewString()

	_, err := r.db.ExecContext(context.Background(), `
		INSERT INTO show_executions (id, show_name, instance_key, priority, speed, loops, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, e.ShowName, e.Key, e.Priority, e.Speed, e.Loops, e.StartedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("inserting execution: %w", err)
	}

	return id, nil
}

// RecordStop completes an execution row.
func (r *Repository) RecordStop(id string, stoppedAt time.Time, loopsPlayed int, reason string) error {
	_, err := r.db.ExecContext(context.Background(), `
		UPDATE show_executions
		SET stopped_at = ?, loops_played = ?, stop_reason = ?
		WHERE id = ?`,
		stoppedAt.UTC(), loopsPlayed, reason, id)
	if err != nil {
		return fmt.Errorf("updating execution: %w", err)
	}
	return nil
}

// RecentExecutions returns the most recent executions, newest first.
func (r *Repository) RecentExecutions(ctx context.Context, limit int) ([]Execution, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, show_name, instance_key, priority, speed, loops,
		       started_at, stopped_at, loops_played, stop_reason
		FROM show_executions
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var e Execution
		var stoppedAt sql.NullTime
		var loopsPlayed sql.NullInt64
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.ShowName, &e.Key, &e.Priority, &e.Speed, &e.Loops,
			&e.StartedAt, &stoppedAt, &loopsPlayed, &reason); err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		if stoppedAt.Valid {
			t := stoppedAt.Time
			e.StoppedAt = &t
		}
		e.LoopsPlayed = int(loopsPlayed.Int64)
		e.StopReason = reason.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}

	return out, nil
}
