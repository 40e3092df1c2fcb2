// Package monitor implements the Self-Monitor / Adaptive Executor
// (C5): it owns one task's ExecutionState, tracks iterations, tool
// signatures, and progress markers, and decides whether the Agent
// Runtime should continue, pivot, ask the user, complete, or abort.
package monitor

import (
	"strings"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// Monitor owns the ExecutionState for exactly one task. It is not safe
// for concurrent use; the owning agent serializes access, per
// spec.md §5 ("Transcript... accessed only by the owning agent" — the
// same ownership rule applies to ExecutionState).
type Monitor struct {
	state      *types.ExecutionState
	thresholds types.MonitorThresholds
	// completionPhrases are matched case-insensitively against trailing
	// assistant text to recognize a completion signal, per spec.md §9's
	// "converge on a single configurable list" resolution.
	completionPhrases []string
	onStall           func(reason string)
}

// Config wires a Monitor to its thresholds and completion vocabulary.
type Config struct {
	Thresholds        types.MonitorThresholds
	CompletionPhrases []string
	// OnStall is called whenever RecordStall fires, for metrics/event
	// hooks; may be nil.
	OnStall func(reason string)
}

// New creates a Monitor with a fresh ExecutionState.
func New(cfg Config) *Monitor {
	thresholds := cfg.Thresholds
	if thresholds == (types.MonitorThresholds{}) {
		thresholds = types.DefaultMonitorThresholds()
	}
	phrases := cfg.CompletionPhrases
	if len(phrases) == 0 {
		phrases = []string{"task complete", "all done", "finished successfully"}
	}
	return &Monitor{
		state:             types.NewExecutionState(),
		thresholds:        thresholds,
		completionPhrases: phrases,
		onStall:           cfg.OnStall,
	}
}

// State returns the monitor's current ExecutionState, read-only.
func (m *Monitor) State() types.ExecutionState {
	return *m.state
}

// RecordIteration increments the iteration counter.
func (m *Monitor) RecordIteration() {
	m.state.Iteration++
}

// RecordToolCall appends a tool-call record and evaluates the most
// recent signatures for a stall pattern, per spec.md §4.5: "last three
// tool signatures identical, OR an ABAB oscillation over the last
// four".
func (m *Monitor) RecordToolCall(rec types.ToolCallRecord) {
	m.state.ToolCalls = append(m.state.ToolCalls, rec)
	if reason, stalled := m.detectStall(); stalled {
		m.RecordStall(reason)
	}
}

// MarkProgress records a unique progress marker and resets the
// stall clock. Re-observing a marker already seen is a no-op: it does
// not count as new progress.
func (m *Monitor) MarkProgress(marker string) {
	if _, seen := m.state.ProgressMarkers[marker]; seen {
		return
	}
	m.state.ProgressMarkers[marker] = struct{}{}
	m.state.LastProgressIter = m.state.Iteration
}

// RecordCompletionSignal increments the completion-signal counter. The
// Agent Runtime calls this when the assistant's trailing text matches
// a configured completion phrase.
func (m *Monitor) RecordCompletionSignal() {
	m.state.CompletionSignals++
}

// ObserveAssistantText checks trailing assistant text against the
// configured completion-phrase list and records a signal on match.
func (m *Monitor) ObserveAssistantText(text string) {
	lower := strings.ToLower(text)
	for _, phrase := range m.completionPhrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(phrase)) {
			m.RecordCompletionSignal()
			return
		}
	}
}

// RecordStall increments the stall-indicator counter and notifies the
// configured hook, if any.
func (m *Monitor) RecordStall(reason string) {
	m.state.StallIndicators++
	if m.onStall != nil {
		m.onStall(reason)
	}
}

// AddMilestones registers the milestones for a task; called once
// after planning when the StrategicPlan's success criteria are known.
func (m *Monitor) AddMilestones(milestones []types.Milestone) {
	m.state.Milestones = append(m.state.Milestones, milestones...)
}

// CompleteMilestone marks a milestone complete by id.
func (m *Monitor) CompleteMilestone(id string) {
	for i := range m.state.Milestones {
		if m.state.Milestones[i].ID == id {
			m.state.Milestones[i].Completed = true
			return
		}
	}
}

// SetPhase updates the monitor's own notion of where the agent is,
// distinct from the plan's Phase lifecycle.
func (m *Monitor) SetPhase(phase types.ExecutorPhase) {
	m.state.Phase = phase
}

// allMilestonesCompleted reports whether every registered milestone is
// complete. An empty milestone list is not considered "all complete"
// — it simply contributes nothing to rule 2.
func (m *Monitor) allMilestonesCompleted() bool {
	if len(m.state.Milestones) == 0 {
		return false
	}
	for _, ms := range m.state.Milestones {
		if !ms.Completed {
			return false
		}
	}
	return true
}

// detectStall applies spec.md §4.5's two stall patterns over the
// recorded tool-call signatures: the last three identical, or an ABAB
// oscillation over the last four.
func (m *Monitor) detectStall() (string, bool) {
	n := len(m.state.ToolCalls)
	if n >= 3 {
		a := m.state.ToolCalls[n-1].Signature()
		b := m.state.ToolCalls[n-2].Signature()
		c := m.state.ToolCalls[n-3].Signature()
		if a == b && b == c {
			return "repeated identical tool call: " + a.Tool, true
		}
	}
	if n >= 4 {
		s1 := m.state.ToolCalls[n-1].Signature()
		s2 := m.state.ToolCalls[n-2].Signature()
		s3 := m.state.ToolCalls[n-3].Signature()
		s4 := m.state.ToolCalls[n-4].Signature()
		if s1 == s3 && s2 == s4 && s1 != s2 {
			return "oscillating between tool calls: " + s1.Tool + " / " + s2.Tool, true
		}
	}
	return "", false
}

// Decide applies spec.md §4.5's first-matching-rule decision table.
func (m *Monitor) Decide() types.Decision {
	iter := m.state.Iteration
	t := m.thresholds

	// Rule 1: warmup.
	if iter < t.MinIterations {
		return types.Decision{
			ShouldContinue:  true,
			Reason:          "warming up: below minimum iteration count",
			SuggestedAction: types.ActionContinue,
		}
	}

	// Rule 2: completion.
	if m.state.CompletionSignals >= 2 || m.allMilestonesCompleted() {
		return types.Decision{
			ShouldContinue:  false,
			Reason:          "completion detected",
			SuggestedAction: types.ActionComplete,
		}
	}

	// Rule 3: stall.
	if reason, stalled := m.detectStall(); stalled {
		return types.Decision{
			ShouldContinue:  false,
			Reason:          "Execution stalled: " + reason,
			SuggestedAction: types.ActionPivot,
		}
	}

	// Rule 4: no progress for too long.
	if iter-m.state.LastProgressIter > t.MaxStallIterations {
		return types.Decision{
			ShouldContinue:  false,
			Reason:          "no progress markers observed within the stall window",
			SuggestedAction: types.ActionAskUser,
		}
	}

	// Rule 5: hard cap.
	if iter >= t.HardCap {
		return types.Decision{
			ShouldContinue:  false,
			Reason:          "hard iteration cap reached",
			SuggestedAction: types.ActionAbort,
		}
	}

	// Rule 6: soft cap, continue with warning.
	if iter == t.SoftCap {
		return types.Decision{
			ShouldContinue:  true,
			Reason:          "soft iteration cap reached",
			SuggestedAction: types.ActionContinue,
			Warning:         "approaching the hard iteration cap; consider wrapping up",
		}
	}

	// Rule 7: default.
	return types.Decision{
		ShouldContinue:  true,
		Reason:          "in progress",
		SuggestedAction: types.ActionContinue,
	}
}

// PreAnalyze produces suggested thresholds from a free-text task
// description, per spec.md §4.5's "task-complexity pre-analysis"
// requirement. It is a coarse heuristic over description length and
// multi-step/scope markers, deliberately simpler than the Model
// Router's weighted ComplexityAnalysis since it only needs to widen or
// narrow the monitor's own caps.
func PreAnalyze(description string) types.MonitorThresholds {
	base := types.DefaultMonitorThresholds()
	words := len(strings.Fields(description))
	lower := strings.ToLower(description)
	hasMarkers := false
	for _, marker := range []string{" then ", "finally", "after that", "step ", "entire", "whole", "across", "codebase", "repository"} {
		if strings.Contains(lower, marker) {
			hasMarkers = true
			break
		}
	}
	switch {
	case words > 80:
		base.MinIterations = 3
		base.MaxStallIterations = 8
		base.SoftCap = 35
		base.HardCap = 50
	case words > 30 || hasMarkers:
		base.MinIterations = 2
		base.MaxStallIterations = 6
		base.SoftCap = 25
		base.HardCap = 35
	}
	return base
}
