package runtime

import (
	"fmt"
	"strings"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// framingEntry builds the transcript's first, never-truncated entry:
// the task description plus the environment snapshot and the plan the
// Cognitive Planner produced for it, per spec.md §4.6 step 4.
func framingEntry(task types.Task, env types.EnvironmentSnapshot, plan types.StrategicPlan) types.Entry {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task.Description)
	fmt.Fprintf(&b, "Working directory: %s\n", env.WorkingDirectory)
	if env.ProjectType != "" {
		fmt.Fprintf(&b, "Project type: %s\n", env.ProjectType)
	}
	if len(env.KeyFiles) > 0 {
		fmt.Fprintf(&b, "Key files present: %s\n", strings.Join(env.KeyFiles, ", "))
	}
	if env.HasVCS {
		fmt.Fprintf(&b, "Git branch: %s (%s)\n", env.VCSBranch, env.VCSStatus)
	}
	fmt.Fprintf(&b, "\nUnderstanding: %s\n", plan.TaskUnderstanding)
	fmt.Fprintf(&b, "Approach: %s (confidence %.2f)\n", plan.Approach.Name, plan.Approach.Confidence)
	if plan.Approach.Reasoning != "" {
		fmt.Fprintf(&b, "Reasoning: %s\n", plan.Approach.Reasoning)
	}
	b.WriteString("\nPlanned phases:\n")
	for i, phase := range plan.Phases {
		fmt.Fprintf(&b, "%d. %s — %s (done when: %s)\n", i+1, phase.Name, phase.Description, phase.CompletionCriteria)
	}
	if len(plan.SuccessCriteria) > 0 {
		b.WriteString("\nOverall success criteria:\n")
		for _, c := range plan.SuccessCriteria {
			b.WriteString("- " + c + "\n")
		}
	}
	return types.Entry{Role: types.RoleUser, Content: []types.ContentBlock{{Text: b.String()}}}
}

// systemPrompt builds the per-call system prompt for the current phase.
// It is regenerated every call rather than cached, since phase.State
// changes as the loop progresses.
func systemPrompt(task types.Task, phase types.Phase) string {
	var b strings.Builder
	b.WriteString("You are an autonomous coding and operations agent working one phase of a larger plan at a time. ")
	b.WriteString("Use the available tools to make concrete progress; do not narrate work you have not actually performed. ")
	fmt.Fprintf(&b, "Current phase: %q — %s\n", phase.Name, phase.Description)
	if phase.CompletionCriteria != "" {
		fmt.Fprintf(&b, "This phase is done when: %s\n", phase.CompletionCriteria)
	}
	if phase.ToolStrategies != nil {
		if len(phase.ToolStrategies.Primary) > 0 {
			fmt.Fprintf(&b, "Prefer these tools: %s\n", strings.Join(phase.ToolStrategies.Primary, ", "))
		}
		if len(phase.ToolStrategies.Avoid) > 0 {
			fmt.Fprintf(&b, "Avoid these tools unless nothing else applies: %s\n", strings.Join(phase.ToolStrategies.Avoid, ", "))
		}
	}
	b.WriteString("When the phase's completion criteria are met, say so plainly in your final response instead of calling another tool.")
	return b.String()
}

// milestonesFromPlan derives one Self-Monitor milestone per plan phase,
// keyed by phase id so the runtime can mark them complete as phases
// finish.
func milestonesFromPlan(plan types.StrategicPlan) []types.Milestone {
	out := make([]types.Milestone, 0, len(plan.Phases))
	for _, phase := range plan.Phases {
		out = append(out, types.Milestone{ID: phase.ID, Description: phase.CompletionCriteria})
	}
	return out
}

// progressMarker derives a Self-Monitor progress marker from a tool
// call's signature: distinct (tool, input-prefix) pairs count as new
// progress, repeats of the same call do not, which keeps stall
// detection and progress tracking consistent with each other.
func progressMarker(rec types.ToolCallRecord) string {
	sig := rec.Signature()
	return sig.Tool + "|" + sig.InputPrefix
}

// phaseCompletionMet does a best-effort textual check for whether the
// assistant's closing remarks address the phase's own completion
// criteria. It is deliberately conservative: a false negative just
// means the phase runs a few more iterations, not a wrong answer.
func phaseCompletionMet(phase types.Phase, text string) bool {
	criteria := strings.TrimSpace(phase.CompletionCriteria)
	if criteria == "" || text == "" {
		return false
	}
	lowerText := strings.ToLower(text)
	var significant, matched int
	for _, word := range strings.Fields(strings.ToLower(criteria)) {
		word = strings.Trim(word, ".,:;!?()\"'")
		if len(word) < 4 {
			continue
		}
		significant++
		if strings.Contains(lowerText, word) {
			matched++
		}
	}
	if significant == 0 {
		return strings.Contains(lowerText, strings.ToLower(criteria))
	}
	return float64(matched)/float64(significant) >= 0.6
}
