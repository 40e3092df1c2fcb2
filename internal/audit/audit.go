// Package audit implements an optional, append-only SQLite-backed
// record of task lifecycle events, gated by config.Audit.Enabled per
// spec.md §6 ("persisted state layout"). It is write-mostly: the
// engine owns live task state in internal/engine/tasks; this package
// exists only so an operator can inspect history after a task leaves
// the in-memory registry.
//
// Grounded on the teacher's internal/jobs/cockroach.go (SQL-backed
// Store: Create/Update/Get/List over a single table, JSON-encoded
// payload column), adapted from CockroachDB/lib-pq to
// modernc.org/sqlite per SPEC_FULL.md §2.2's dropped-lib/pq
// justification (no Postgres instance is part of this system's
// deployment footprint; a single-file embedded database matches the
// rest of the orchestrator's zero-external-dependency posture).
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_audit (
	id TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	scope_id TEXT,
	user_id TEXT,
	channel_id TEXT,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	started_at DATETIME,
	completed_at DATETIME,
	duration_ms INTEGER,
	result TEXT,
	error TEXT
);

CREATE TABLE IF NOT EXISTS task_events (
	task_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	type TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	payload TEXT,
	PRIMARY KEY (task_id, seq)
);
`

// Log is an append-only audit trail for task history.
type Log struct {
	db *sql.DB
}

// Open creates or attaches to the SQLite database at dsn and ensures
// the schema exists. An empty dsn uses an in-memory database, useful
// for tests.
func Open(dsn string) (*Log, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY churn
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// RecordSubmission inserts the initial row for a newly submitted task.
func (l *Log) RecordSubmission(ctx context.Context, task types.Task) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO task_audit (id, description, scope_id, user_id, channel_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.Description, task.Context.ScopeID, task.Context.UserID, task.Context.ChannelID,
		string(task.Status), task.Context.CreatedAt)
	if err != nil {
		return fmt.Errorf("record task submission: %w", err)
	}
	return nil
}

// RecordTerminal updates a task's row with its terminal state. Called
// once, when the task reaches a terminal status.
func (l *Log) RecordTerminal(ctx context.Context, task types.Task) error {
	var resultJSON, errorJSON []byte
	var err error
	if task.Result != nil {
		if resultJSON, err = json.Marshal(task.Result); err != nil {
			return fmt.Errorf("marshal task result: %w", err)
		}
	}
	if task.Error != nil {
		if errorJSON, err = json.Marshal(task.Error); err != nil {
			return fmt.Errorf("marshal task error: %w", err)
		}
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO task_audit (id, description, scope_id, user_id, channel_id, status, created_at, started_at, completed_at, duration_ms, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			duration_ms = excluded.duration_ms,
			result = excluded.result,
			error = excluded.error
	`, task.ID, task.Description, task.Context.ScopeID, task.Context.UserID, task.Context.ChannelID,
		string(task.Status), task.Context.CreatedAt, nullTime(task.StartedAt), nullTimePtr(task.CompletedAt),
		task.DurationMs, nullJSON(resultJSON), nullJSON(errorJSON))
	if err != nil {
		return fmt.Errorf("record task terminal state: %w", err)
	}
	return nil
}

// RecordEvent appends one lifecycle event to a task's event trail.
func (l *Log) RecordEvent(ctx context.Context, taskID string, seq int, event types.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO task_events (task_id, seq, type, timestamp, payload)
		VALUES (?, ?, ?, ?, ?)
	`, taskID, seq, string(event.Type), event.Timestamp, string(payload))
	if err != nil {
		return fmt.Errorf("record task event: %w", err)
	}
	return nil
}

// Record is one row of task history, for history queries.
type Record struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	ScopeID     string          `json:"scopeId,omitempty"`
	UserID      string          `json:"userId,omitempty"`
	ChannelID   string          `json:"channelId,omitempty"`
	Status      types.TaskStatus `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	DurationMs  *int64          `json:"durationMs,omitempty"`
}

// History returns the most recent limit task records, newest first.
func (l *Log) History(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, description, scope_id, user_id, channel_id, status, created_at, started_at, completed_at, duration_ms
		FROM task_audit
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list task history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r          Record
			scopeID    sql.NullString
			userID     sql.NullString
			channelID  sql.NullString
			startedAt  sql.NullTime
			completedAt sql.NullTime
			durationMs sql.NullInt64
			status     string
		)
		if err := rows.Scan(&r.ID, &r.Description, &scopeID, &userID, &channelID, &status,
			&r.CreatedAt, &startedAt, &completedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scan task history row: %w", err)
		}
		r.ScopeID = scopeID.String
		r.UserID = userID.String
		r.ChannelID = channelID.String
		r.Status = types.TaskStatus(status)
		if startedAt.Valid {
			r.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			r.CompletedAt = &completedAt.Time
		}
		if durationMs.Valid {
			d := durationMs.Int64
			r.DurationMs = &d
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventSink adapts a Log to the engine's tasks.Sink interface (it
// satisfies that interface structurally — Notify(ctx, event) error —
// without this package importing internal/engine/tasks). Bind it by
// name in cmd/orchestrator's manager wiring when audit.enabled is set.
type EventSink struct {
	log *Log

	mu   sync.Mutex
	seqs map[string]int
}

// NewEventSink wraps log as a task-event sink.
func NewEventSink(log *Log) *EventSink {
	return &EventSink{log: log, seqs: make(map[string]int)}
}

// Notify records one event and, for terminal event types, also
// upserts the task's row with the matching terminal status and the
// current time as its completion time. The event's message is kept
// only in the event trail's payload, not in the task row.
func (s *EventSink) Notify(ctx context.Context, event types.Event) error {
	s.mu.Lock()
	seq := s.seqs[event.TaskID]
	s.seqs[event.TaskID] = seq + 1
	s.mu.Unlock()

	if err := s.log.RecordEvent(ctx, event.TaskID, seq, event); err != nil {
		return err
	}

	switch event.Type {
	case types.EventTaskCompleted, types.EventTaskFailed, types.EventTaskCancelled:
		status := types.TaskCompleted
		if event.Type == types.EventTaskFailed {
			status = types.TaskFailed
		} else if event.Type == types.EventTaskCancelled {
			status = types.TaskCancelled
		}
		now := time.Now()
		return s.log.RecordTerminal(ctx, types.Task{ID: event.TaskID, Status: status, CompletedAt: &now})
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return nullTime(*t)
}

func nullJSON(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
