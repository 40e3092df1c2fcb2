package types

import (
	"encoding/json"
	"time"
)

// ToolDescriptor is the provider-facing shape of a registered tool:
// name, human description, and a JSON-Schema object describing its
// input parameters.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolOutcomeKind classifies a failed tool invocation. Success carries
// no kind.
type ToolOutcomeKind string

const (
	ToolErrValidation ToolOutcomeKind = "validation"
	ToolErrTimeout    ToolOutcomeKind = "timeout"
	ToolErrExecution  ToolOutcomeKind = "execution"
	ToolErrNotFound   ToolOutcomeKind = "not_found"
)

// ToolOutcome is the structured, non-raising result of invoking a
// tool, per spec.md §4.1: "Failures never raise out of invoke; they
// are returned as results so the model can react."
type ToolOutcome struct {
	Output    string          `json:"output"`
	Insights  []string        `json:"insights,omitempty"`
	Success   bool            `json:"success"`
	Kind      ToolOutcomeKind `json:"kind,omitempty"`
	Message   string          `json:"message,omitempty"`
	Retryable bool            `json:"retryable,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

// ToolCallRecord is an append-only log entry of one tool invocation
// for a task.
type ToolCallRecord struct {
	Tool       string    `json:"tool"`
	Input      string    `json:"input"`
	Output     string    `json:"output"`
	Success    bool      `json:"success"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"durationMs"`
	Insights   []string  `json:"insights,omitempty"`
}

// Signature returns the (toolName, canonicalized-input-prefix) pair
// the Self-Monitor uses to detect stalls, per spec.md §4.5.
func (r ToolCallRecord) Signature() ToolSignature {
	const maxPrefix = 128
	in := r.Input
	var decoded interface{}
	if err := json.Unmarshal([]byte(in), &decoded); err == nil {
		if canonical, err := json.Marshal(decoded); err == nil {
			in = string(canonical)
		}
	}
	if len(in) > maxPrefix {
		in = in[:maxPrefix]
	}
	return ToolSignature{Tool: r.Tool, InputPrefix: in}
}

// ToolSignature identifies a tool call by name and a bounded prefix of
// its canonicalized input, used for stall detection.
type ToolSignature struct {
	Tool        string
	InputPrefix string
}
