package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentforge/orchestrator/internal/engine/runtime"
	"github.com/agentforge/orchestrator/internal/engine/tasks"
	"github.com/agentforge/orchestrator/internal/engine/types"
)

// noopAgent satisfies tasks.Agent without doing any real work, so tests
// can drive the Manager end to end without a Planner or Router.
type noopAgent struct {
	updater runtime.TaskUpdater
	taskID  string
	block   chan struct{}
}

func (a *noopAgent) Run(ctx context.Context) {
	a.updater.Update(a.taskID, func(t *types.Task) { t.Status = types.TaskRunning })
	if a.block != nil {
		<-a.block
	}
	a.updater.Update(a.taskID, func(t *types.Task) { t.Status = types.TaskCompleted })
}

func (a *noopAgent) Cancel() {
	if a.block != nil {
		close(a.block)
	}
}

func newTestServer(t *testing.T, factory tasks.AgentFactory) (*Server, *tasks.Manager) {
	t.Helper()
	mgr := tasks.New(tasks.Config{AgentFactory: factory, Logger: testLogger()})
	t.Cleanup(mgr.Close)

	srv := New(Config{Tasks: mgr, Logger: testLogger()})
	return srv, mgr
}

func immediateFactory(task types.Task, updater runtime.TaskUpdater, emit func(types.Event)) tasks.Agent {
	return &noopAgent{updater: updater, taskID: task.ID}
}

func blockingFactory(task types.Task, updater runtime.TaskUpdater, emit func(types.Event)) tasks.Agent {
	return &noopAgent{updater: updater, taskID: task.ID, block: make(chan struct{})}
}

func decodeJSON(t *testing.T, body []byte, dst any) {
	t.Helper()
	if err := json.Unmarshal(body, dst); err != nil {
		t.Fatalf("decode response: %v (%s)", err, body)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, immediateFactory)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp healthResponse
	decodeJSON(t, rec.Body.Bytes(), &resp)
	if resp.Status != "ok" {
		t.Errorf("status field = %q", resp.Status)
	}
}

func TestHandleCommand_Success(t *testing.T) {
	srv, mgr := newTestServer(t, blockingFactory)

	body := `{"command": "summarize the incident report"}`
	req := httptest.NewRequest(http.MethodPost, "/command", strReader(body))
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var resp commandResponse
	decodeJSON(t, rec.Body.Bytes(), &resp)
	if resp.TaskID == "" {
		t.Fatal("expected a task id")
	}
	if _, ok := mgr.Status(resp.TaskID); !ok {
		t.Error("expected task to be registered in the manager")
	}
}

func TestHandleCommand_RejectsEmptyCommand(t *testing.T) {
	srv, _ := newTestServer(t, immediateFactory)

	req := httptest.NewRequest(http.MethodPost, "/command", strReader(`{"command": ""}`))
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleCommand_InvokesOnSubmit(t *testing.T) {
	mgr := tasks.New(tasks.Config{AgentFactory: blockingFactory, Logger: testLogger()})
	t.Cleanup(mgr.Close)

	var gotTaskID string
	srv := New(Config{
		Tasks:  mgr,
		Logger: testLogger(),
		OnSubmit: func(ctx context.Context, task types.Task) {
			gotTaskID = task.ID
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/command", strReader(`{"command": "ship the release"}`))
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	var resp commandResponse
	decodeJSON(t, rec.Body.Bytes(), &resp)
	if gotTaskID != resp.TaskID {
		t.Errorf("OnSubmit saw task id %q, want %q", gotTaskID, resp.TaskID)
	}
}

func TestHandleTaskGet(t *testing.T) {
	srv, mgr := newTestServer(t, blockingFactory)
	id, err := mgr.Submit("investigate the outage", types.TaskContext{}, tasks.Descriptor{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/task/"+id, nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleTaskGet_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, immediateFactory)

	req := httptest.NewRequest(http.MethodGet, "/task/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleTasksList_FiltersByStatus(t *testing.T) {
	srv, mgr := newTestServer(t, blockingFactory)
	if _, err := mgr.Submit("task one", types.TaskContext{}, tasks.Descriptor{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/tasks?status=completed", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	var list []types.Task
	decodeJSON(t, rec.Body.Bytes(), &list)
	if len(list) != 0 {
		t.Errorf("expected no completed tasks yet, got %d", len(list))
	}
}

func TestHandleTaskCancel(t *testing.T) {
	srv, mgr := newTestServer(t, blockingFactory)
	id, err := mgr.Submit("long running task", types.TaskContext{}, tasks.Descriptor{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForRunning(t, mgr, id)

	req := httptest.NewRequest(http.MethodPost, "/task/"+id+"/cancel", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestHandleAgentsList(t *testing.T) {
	srv, mgr := newTestServer(t, blockingFactory)
	if _, err := mgr.Submit("background task", types.TaskContext{}, tasks.Descriptor{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	var resp map[string][]string
	decodeJSON(t, rec.Body.Bytes(), &resp)
	if len(resp["active"]) == 0 {
		t.Error("expected at least one active agent")
	}
}

func TestAuthExcept(t *testing.T) {
	mgr := tasks.New(tasks.Config{AgentFactory: immediateFactory, Logger: testLogger()})
	t.Cleanup(mgr.Close)
	srv := New(Config{Tasks: mgr, Logger: testLogger(), APIKey: "secret"})

	t.Run("health is exempt", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		srv.http.Handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("tasks requires key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		rec := httptest.NewRecorder()
		srv.http.Handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})
}

func waitForRunning(t *testing.T, mgr *tasks.Manager, id string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		task, ok := mgr.Status(id)
		if ok && task.Status == types.TaskRunning {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never entered running state", id)
}

func strReader(s string) *strings.Reader {
	return strings.NewReader(s)
}
