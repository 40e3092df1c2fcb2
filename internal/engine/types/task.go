// Package types holds the data model shared across the Agent Execution
// Engine: tasks, plans, transcripts, tool records, execution state, and
// model configuration. Every other engine package imports this one; it
// imports none of them.
package types

import "time"

// TaskStatus is the lifecycle state of a Task. Terminal states
// (Completed, Failed, Cancelled) are never revisited.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether status admits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// TaskContext carries the caller-supplied routing context for a command.
type TaskContext struct {
	UserID    string    `json:"userId,omitempty"`
	ScopeID   string    `json:"scopeId,omitempty"`
	ChannelID string    `json:"channelId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskError is the structured error a task carries into a terminal state.
type TaskError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *TaskError) Error() string {
	if e == nil {
		return ""
	}
	return e.Kind + ": " + e.Message
}

// TaskResult is the payload attached to a completed task, per spec.md §4.6
// step 6 ("result payload: iterations, tool-call count, discoveries,
// approach, confidence, model usage").
type TaskResult struct {
	Iterations    int          `json:"iterations"`
	ToolCallCount int          `json:"toolCallCount"`
	Discoveries   []string     `json:"discoveries,omitempty"`
	Approach      string       `json:"approach"`
	Confidence    float64      `json:"confidence"`
	ModelUsage    ModelUsage   `json:"modelUsage"`
	PlanFallback  bool         `json:"planFallbackUsed,omitempty"`
}

// ModelUsage summarizes router activity for a completed task.
type ModelUsage struct {
	Escalations int            `json:"escalations"`
	CallsByTier map[string]int `json:"callsByTier,omitempty"`
}

// Task is a single user-submitted request, owned exclusively by its
// agent while non-terminal and read-only afterward.
type Task struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Context     TaskContext `json:"context"`
	Status      TaskStatus  `json:"status"`
	Result      *TaskResult `json:"result,omitempty"`
	Error       *TaskError  `json:"error,omitempty"`
	StartedAt   time.Time   `json:"startedAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	DurationMs  *int64      `json:"durationMs,omitempty"`
}

// Clone returns a defensive copy safe to hand to a reader while the
// owning agent keeps mutating the original.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Result != nil {
		r := *t.Result
		if t.Result.Discoveries != nil {
			r.Discoveries = append([]string(nil), t.Result.Discoveries...)
		}
		if t.Result.ModelUsage.CallsByTier != nil {
			r.ModelUsage.CallsByTier = make(map[string]int, len(t.Result.ModelUsage.CallsByTier))
			for k, v := range t.Result.ModelUsage.CallsByTier {
				r.ModelUsage.CallsByTier[k] = v
			}
		}
		c.Result = &r
	}
	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	if t.DurationMs != nil {
		d := *t.DurationMs
		c.DurationMs = &d
	}
	return &c
}
