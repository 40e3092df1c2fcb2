package audit

import (
	"context"
	"testing"
	"time"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	log, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func TestRecordSubmissionThenTerminalPreservesMetadata(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	task := types.Task{
		ID:          "task-1",
		Description: "deploy the staging environment",
		Context:     types.TaskContext{ScopeID: "scope-1", UserID: "user-1", CreatedAt: time.Now()},
		Status:      types.TaskPending,
	}
	if err := log.RecordSubmission(ctx, task); err != nil {
		t.Fatalf("RecordSubmission: %v", err)
	}

	completed := time.Now()
	terminal := types.Task{ID: "task-1", Status: types.TaskCompleted, CompletedAt: &completed}
	if err := log.RecordTerminal(ctx, terminal); err != nil {
		t.Fatalf("RecordTerminal: %v", err)
	}

	records, err := log.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.Description != task.Description {
		t.Errorf("description = %q, want %q (terminal upsert should not blank it)", got.Description, task.Description)
	}
	if got.Status != types.TaskCompleted {
		t.Errorf("status = %q, want %q", got.Status, types.TaskCompleted)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
}

func TestRecordTerminalWithoutPriorSubmission(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	completed := time.Now()
	if err := log.RecordTerminal(ctx, types.Task{ID: "task-2", Status: types.TaskFailed, CompletedAt: &completed}); err != nil {
		t.Fatalf("RecordTerminal: %v", err)
	}

	records, err := log.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 1 || records[0].Status != types.TaskFailed {
		t.Fatalf("expected one failed record, got %+v", records)
	}
}

func TestEventSinkAssignsIncrementingSequence(t *testing.T) {
	log := openTestLog(t)
	sink := NewEventSink(log)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		event := types.NewEvent(types.EventToolCall, "task-3")
		if err := sink.Notify(ctx, event); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}

	var count int
	if err := log.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_events WHERE task_id = ?`, "task-3").Scan(&count); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 events recorded, got %d", count)
	}
}

func TestEventSinkRecordsTerminalOnCompletion(t *testing.T) {
	log := openTestLog(t)
	sink := NewEventSink(log)
	ctx := context.Background()

	event := types.NewEvent(types.EventTaskCompleted, "task-4")
	if err := sink.Notify(ctx, event); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	records, err := log.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 1 || records[0].Status != types.TaskCompleted {
		t.Fatalf("expected a completed record, got %+v", records)
	}
}

func TestHistoryOrdersNewestFirst(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	older := types.Task{ID: "old", Description: "first", Context: types.TaskContext{CreatedAt: time.Now().Add(-time.Hour)}}
	newer := types.Task{ID: "new", Description: "second", Context: types.TaskContext{CreatedAt: time.Now()}}
	if err := log.RecordSubmission(ctx, older); err != nil {
		t.Fatalf("RecordSubmission(older): %v", err)
	}
	if err := log.RecordSubmission(ctx, newer); err != nil {
		t.Fatalf("RecordSubmission(newer): %v", err)
	}

	records, err := log.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 2 || records[0].ID != "new" {
		t.Fatalf("expected newest-first ordering, got %+v", records)
	}
}
