package tasks

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentforge/orchestrator/internal/engine/runtime"
	"github.com/agentforge/orchestrator/internal/engine/types"
)

// fakeAgent lets tests control exactly when a task finishes and with
// what terminal status, without wiring a real planner/provider stack.
type fakeAgent struct {
	task    types.Task
	updater runtime.TaskUpdater
	emit    func(types.Event)

	block    chan struct{}
	cancelled bool
	mu       sync.Mutex
}

func newFakeAgentFactory(started chan<- string) AgentFactory {
	return func(task types.Task, updater runtime.TaskUpdater, emit func(types.Event)) Agent {
		a := &fakeAgent{task: task, updater: updater, emit: emit, block: make(chan struct{})}
		if started != nil {
			started <- task.ID
		}
		return a
	}
}

func (f *fakeAgent) Run(ctx context.Context) {
	f.updater.Update(f.task.ID, func(t *types.Task) { t.Status = types.TaskRunning })
	select {
	case <-f.block:
	case <-ctx.Done():
	}
	f.mu.Lock()
	cancelled := f.cancelled
	f.mu.Unlock()
	status := types.TaskCompleted
	if cancelled {
		status = types.TaskCancelled
	}
	f.updater.Update(f.task.ID, func(t *types.Task) {
		t.Status = status
		now := time.Now()
		t.CompletedAt = &now
	})
	f.emit(types.NewEvent(types.EventTaskCompleted, f.task.ID))
}

func (f *fakeAgent) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	f.mu.Unlock()
	close(f.block)
}

func (f *fakeAgent) finish() { close(f.block) }

func TestManager_SubmitStartsAgentAndRuns(t *testing.T) {
	started := make(chan string, 1)
	m := New(Config{MaxConcurrent: 1, QueueDepth: 4, AgentFactory: newFakeAgentFactory(started)})
	defer m.Close()

	id, err := m.Submit("do a thing", types.TaskContext{}, Descriptor{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case got := <-started:
		if got != id {
			t.Fatalf("started id = %s, want %s", got, id)
		}
	case <-time.After(time.Second):
		t.Fatal("agent never started")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		task, ok := m.Status(id)
		if ok && task.Status == types.TaskRunning {
			break
		}
		time.Sleep(time.Millisecond)
	}
	task, ok := m.Status(id)
	if !ok || task.Status != types.TaskRunning {
		t.Fatalf("status = %+v, want running", task)
	}
}

func TestManager_QueueRejectsAtCapacity(t *testing.T) {
	started := make(chan string, 4)
	m := New(Config{MaxConcurrent: 1, QueueDepth: 1, AgentFactory: newFakeAgentFactory(started)})
	defer m.Close()

	if _, err := m.Submit("first", types.TaskContext{}, Descriptor{}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	<-started // first task now occupies the only concurrency slot

	if _, err := m.Submit("second", types.TaskContext{}, Descriptor{}); err != nil {
		t.Fatalf("second submit: %v", err) // fills the one queue slot, does not dispatch
	}
	if _, err := m.Submit("third", types.TaskContext{}, Descriptor{}); err != ErrAtCapacity {
		t.Fatalf("third submit error = %v, want ErrAtCapacity", err)
	}
}

func TestManager_SubmitRejectsEmptyCommand(t *testing.T) {
	m := New(Config{AgentFactory: newFakeAgentFactory(nil)})
	defer m.Close()

	if _, err := m.Submit("   ", types.TaskContext{}, Descriptor{}); err == nil {
		t.Fatal("expected validation error for empty command")
	}
}

func TestManager_CancelRunningTask(t *testing.T) {
	started := make(chan string, 1)
	m := New(Config{MaxConcurrent: 1, QueueDepth: 4, AgentFactory: newFakeAgentFactory(started)})
	defer m.Close()

	id, err := m.Submit("long task", types.TaskContext{}, Descriptor{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	if !m.Cancel(id) {
		t.Fatal("Cancel returned false for a running task")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		task, ok := m.Status(id)
		if ok && task.Status.IsTerminal() {
			if task.Status != types.TaskCancelled {
				t.Fatalf("status = %s, want cancelled", task.Status)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("task never reached a terminal state after cancel")
}

func TestManager_ListFiltersByStatus(t *testing.T) {
	m := New(Config{MaxConcurrent: 2, QueueDepth: 4, AgentFactory: newFakeAgentFactory(nil)})
	defer m.Close()

	id, err := m.Submit("filtered task", types.TaskContext{ScopeID: "s1"}, Descriptor{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	_ = id

	all := m.List(Filter{ScopeID: "s1"})
	if len(all) != 1 {
		t.Fatalf("List(scope) = %d tasks, want 1", len(all))
	}
	none := m.List(Filter{ScopeID: "other"})
	if len(none) != 0 {
		t.Fatalf("List(other scope) = %d tasks, want 0", len(none))
	}
}

func TestJSONLinesSink_WritesOneLinePerEvent(t *testing.T) {
	var buf safeBuffer
	sink := NewJSONLinesSink(&buf)
	if err := sink.Notify(context.Background(), types.NewEvent(types.EventPlanReady, "t1")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected sink to write output")
	}
	if lines := bytes.Count(buf.buf, []byte{'\n'}); lines != 1 {
		t.Fatalf("sink wrote %d lines for one event, want 1", lines)
	}
}

type safeBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *safeBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
