package types

import "strings"

// ComplexityLevel is the coarse bucket a ComplexityAnalysis resolves to.
type ComplexityLevel string

const (
	ComplexityTrivial  ComplexityLevel = "trivial"
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityComplex  ComplexityLevel = "complex"
	ComplexityExpert   ComplexityLevel = "expert"
)

// RiskLevel grades the StrategicPlan's assessed risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// Approach names the chosen strategy for a plan and how confident the
// planner is in it.
type Approach struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Fallback   string  `json:"fallback,omitempty"`
}

// ToolStrategy partitions the tool inventory into tiers of preference.
type ToolStrategy struct {
	Primary   []string `json:"primary"`
	Secondary []string `json:"secondary,omitempty"`
	Avoid     []string `json:"avoid,omitempty"`
}

// Risk captures the plan's assessed risk level and how it is mitigated.
type Risk struct {
	Level       RiskLevel `json:"level"`
	Concerns    []string  `json:"concerns,omitempty"`
	Mitigations []string  `json:"mitigations,omitempty"`
}

// PhaseState is the lifecycle of one Phase within a plan.
type PhaseState string

const (
	PhasePending PhaseState = "pending"
	PhaseActive  PhaseState = "active"
	PhaseDone    PhaseState = "complete"
	PhaseSkipped PhaseState = "skipped"
	PhaseFailed  PhaseState = "failed"
)

// Phase is one planned stage of work within a task.
type Phase struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	Tools                []string       `json:"tools"`
	EstimatedIterations  int            `json:"estimatedIterations"`
	CompletionCriteria   string         `json:"completionCriteria"`
	CanDelegate          bool           `json:"canDelegate"`
	ToolStrategies       *ToolStrategy  `json:"toolStrategies,omitempty"`
	State                PhaseState     `json:"state"`
}

// Kind infers the phase's coarse purpose from its name, per spec.md
// §4.6 ("Phase-type inference from phase name keywords"). The Agent
// Runtime uses it to pick the Self-Monitor's executor phase and passes
// it to the Model Router as routing context.
func (p Phase) Kind() PhaseKind {
	return inferPhaseKind(p.Name)
}

// PhaseKind is the inferred category used to select a model tier.
type PhaseKind string

const (
	PhaseExploration  PhaseKind = "exploration"
	PhasePlanning     PhaseKind = "planning"
	PhaseExecution    PhaseKind = "execution"
	PhaseVerification PhaseKind = "verification"
	PhaseReporting    PhaseKind = "reporting"
)

func inferPhaseKind(name string) PhaseKind {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, "explor", "discover", "investigat", "survey"):
		return PhaseExploration
	case containsAny(lower, "plan", "design", "strateg"):
		return PhasePlanning
	case containsAny(lower, "verif", "test", "validat", "review", "check"):
		return PhaseVerification
	case containsAny(lower, "report", "summar", "document"):
		return PhaseReporting
	default:
		return PhaseExecution
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// StrategicPlan is produced once per task by the Cognitive Planner and
// treated as immutable except for per-phase completion flags.
type StrategicPlan struct {
	TaskUnderstanding   string          `json:"taskUnderstanding"`
	Approach            Approach        `json:"approach"`
	Phases              []Phase         `json:"phases"`
	ToolStrategy        ToolStrategy    `json:"toolStrategy"`
	Risk                Risk            `json:"risk"`
	SuccessCriteria     []string        `json:"successCriteria"`
	EstimatedComplexity ComplexityLevel `json:"estimatedComplexity"`
	FallbackUsed        bool            `json:"fallbackUsed,omitempty"`
}
