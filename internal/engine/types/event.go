package types

import "time"

// EventType enumerates the runtime events the Agent Runtime emits, in
// program order, per spec.md §4.6 and §5.
type EventType string

const (
	EventPlanReady      EventType = "plan-ready"
	EventPhaseStarted   EventType = "phase-started"
	EventPhaseCompleted EventType = "phase-completed"
	EventPhaseTimedOut  EventType = "phase-timed-out"
	EventToolCall       EventType = "tool-call"
	EventPivot          EventType = "pivot"
	EventTaskCompleted  EventType = "task-completed"
	EventTaskFailed     EventType = "task-failed"
	EventTaskCancelled  EventType = "task-cancelled"
	EventNotice         EventType = "notice"
)

// Event is one item in a task's event stream, delivered by value to
// subscribers holding only the task id — there is no back-reference
// from an Event to the agent that produced it.
type Event struct {
	Type      EventType              `json:"type"`
	TaskID    string                 `json:"taskId"`
	Timestamp time.Time              `json:"timestamp"`
	Message   string                 `json:"message,omitempty"`
	PhaseID   string                 `json:"phaseId,omitempty"`
	ToolName  string                 `json:"toolName,omitempty"`
	ToolCall  *ToolCallRecord        `json:"toolCall,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// NewEvent returns an Event stamped with the given type, task id, and
// the current time.
func NewEvent(typ EventType, taskID string) Event {
	return Event{Type: typ, TaskID: taskID, Timestamp: time.Now()}
}

// WithMessage attaches a human-readable message and returns the event.
func (e Event) WithMessage(msg string) Event {
	e.Message = msg
	return e
}

// WithPhase attaches a phase id and returns the event.
func (e Event) WithPhase(phaseID string) Event {
	e.PhaseID = phaseID
	return e
}

// WithToolCall attaches a tool-call record and returns the event.
func (e Event) WithToolCall(rec ToolCallRecord) Event {
	e.ToolCall = &rec
	e.ToolName = rec.Tool
	return e
}

// WithMeta attaches a metadata map and returns the event.
func (e Event) WithMeta(meta map[string]interface{}) Event {
	e.Meta = meta
	return e
}

// EnvironmentSnapshot is the read-only filesystem/VCS metadata the
// Agent Runtime gathers before planning, per spec.md §4.4/§4.6 step 1.
type EnvironmentSnapshot struct {
	WorkingDirectory  string   `json:"workingDirectory"`
	ProjectType       string   `json:"projectType,omitempty"`
	KeyFiles          []string `json:"keyFiles,omitempty"`
	HasVCS            bool     `json:"hasVcs"`
	VCSBranch         string   `json:"vcsBranch,omitempty"`
	VCSStatus         string   `json:"vcsStatus,omitempty"`
	RecentlyModified  []string `json:"recentlyModified,omitempty"`
}
