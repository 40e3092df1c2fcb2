package types

// ExecutorPhase is the Self-Monitor's own notion of where the agent is
// in its work, distinct from a plan Phase.
type ExecutorPhase string

const (
	ExecutorExploring  ExecutorPhase = "exploring"
	ExecutorPlanning   ExecutorPhase = "planning"
	ExecutorExecuting  ExecutorPhase = "executing"
	ExecutorCompleting ExecutorPhase = "completing"
)

// Milestone is a named, trackable unit of completion within a task.
type Milestone struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// ExecutionState is owned by the Self-Monitor for exactly one task.
type ExecutionState struct {
	Iteration         int             `json:"iteration"`
	ToolCalls         []ToolCallRecord `json:"toolCalls"`
	ProgressMarkers   map[string]struct{} `json:"-"`
	LastProgressIter  int             `json:"lastProgressIter"`
	CompletionSignals int             `json:"completionSignals"`
	StallIndicators   int             `json:"stallIndicators"`
	Milestones        []Milestone     `json:"milestones,omitempty"`
	Phase             ExecutorPhase   `json:"phase"`
}

// NewExecutionState returns a zeroed state ready for a fresh task.
func NewExecutionState() *ExecutionState {
	return &ExecutionState{
		ProgressMarkers: make(map[string]struct{}),
		Phase:           ExecutorExploring,
	}
}

// SuggestedAction is what the Self-Monitor recommends the runtime do
// next, per spec.md §4.5.
type SuggestedAction string

const (
	ActionContinue SuggestedAction = "continue"
	ActionPivot    SuggestedAction = "pivot"
	ActionAskUser  SuggestedAction = "askUser"
	ActionComplete SuggestedAction = "complete"
	ActionAbort    SuggestedAction = "abort"
)

// Decision is the result of the Self-Monitor's decide() call.
type Decision struct {
	ShouldContinue  bool            `json:"shouldContinue"`
	Reason          string          `json:"reason"`
	SuggestedAction SuggestedAction `json:"suggestedAction"`
	Warning         string          `json:"warning,omitempty"`
}

// MonitorThresholds are the configurable limits the decision table
// compares the ExecutionState against. Defaults are conservative, per
// spec.md §4.5.
type MonitorThresholds struct {
	MinIterations      int
	MaxStallIterations int
	SoftCap            int
	HardCap            int
}

// DefaultMonitorThresholds returns the conservative defaults used when
// a task's complexity pre-analysis is unavailable.
func DefaultMonitorThresholds() MonitorThresholds {
	return MonitorThresholds{
		MinIterations:      2,
		MaxStallIterations: 5,
		SoftCap:            20,
		HardCap:            30,
	}
}
