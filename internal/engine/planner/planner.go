// Package planner implements the Cognitive Planner (C4): given a task
// description, an environment snapshot, and the tool inventory, it
// produces a StrategicPlan by calling the powerful-tier model with a
// schema-constrained request, retrying once on the balanced tier with
// a stricter prompt, and finally synthesizing a conservative default
// plan if both attempts fail, per spec.md §4.4.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agentforge/orchestrator/internal/engine/types"
	"github.com/agentforge/orchestrator/internal/models"
	"github.com/agentforge/orchestrator/internal/providers"
)

// ProviderFactory builds a concrete Provider for a catalog provider
// name. providers.New satisfies this signature; tests substitute a
// fake.
type ProviderFactory func(ctx context.Context, provider models.Provider, creds providers.Credentials) (providers.Provider, error)

// Config wires a Planner to the model catalog and credentials it needs
// to call the powerful and balanced tiers.
type Config struct {
	Catalog         *models.Catalog
	Credentials     providers.Credentials
	ProviderFactory ProviderFactory
	MaxOutputTokens int
}

// Planner produces a StrategicPlan for a task. It holds no per-task
// state and never mutates a transcript — it is pure with respect to
// execution state, per spec.md §4.4.
type Planner struct {
	catalog         *models.Catalog
	creds           providers.Credentials
	newProvider     ProviderFactory
	maxOutputTokens int
}

// New constructs a Planner. A nil Catalog falls back to
// models.DefaultCatalog; a nil ProviderFactory falls back to
// providers.New.
func New(cfg Config) *Planner {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = models.DefaultCatalog
	}
	factory := cfg.ProviderFactory
	if factory == nil {
		factory = providers.New
	}
	maxOutput := cfg.MaxOutputTokens
	if maxOutput <= 0 {
		maxOutput = 4096
	}
	return &Planner{catalog: catalog, creds: cfg.Credentials, newProvider: factory, maxOutputTokens: maxOutput}
}

// Plan produces a StrategicPlan for the given task, per spec.md §4.4:
// call the powerful tier; on malformed output, retry once on the
// balanced tier with a stricter prompt; on a second failure,
// synthesize a default single-phase plan.
func (p *Planner) Plan(ctx context.Context, task types.Task, env types.EnvironmentSnapshot, toolInventory []types.ToolDescriptor) types.StrategicPlan {
	plan, err := p.attempt(ctx, task, env, toolInventory, types.TierPowerful, promptStrictness{})
	if err == nil {
		return plan
	}

	plan, err = p.attempt(ctx, task, env, toolInventory, types.TierBalanced, promptStrictness{strict: true})
	if err == nil {
		return plan
	}

	return defaultPlan(toolInventory)
}

type promptStrictness struct {
	strict bool
}

func (p *Planner) attempt(ctx context.Context, task types.Task, env types.EnvironmentSnapshot, toolInventory []types.ToolDescriptor, tier types.Tier, strictness promptStrictness) (types.StrategicPlan, error) {
	model, ok := p.catalog.ForTier(tier)
	if !ok {
		return types.StrategicPlan{}, fmt.Errorf("planner: no model registered for tier %s", tier)
	}
	provider, err := p.newProvider(ctx, model.Provider, p.creds)
	if err != nil {
		return types.StrategicPlan{}, fmt.Errorf("planner: build provider for %s: %w", model.Provider, err)
	}

	system := planningSystemPrompt(strictness)
	userPrompt := describeTaskForPlanning(task, env, toolInventory)

	resp, err := provider.Complete(ctx, providers.CompletionRequest{
		Model:     model.ID,
		System:    system,
		Entries:   []types.Entry{{Role: types.RoleUser, Content: []types.ContentBlock{{Text: userPrompt}}}},
		MaxTokens: p.maxOutputTokens,
	})
	if err != nil {
		return types.StrategicPlan{}, fmt.Errorf("planner: model call failed: %w", err)
	}

	raw := extractJSON(resp.Entry.Text())
	if raw == "" {
		return types.StrategicPlan{}, fmt.Errorf("planner: response contained no JSON object")
	}

	var decoded planResponse
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return types.StrategicPlan{}, fmt.Errorf("planner: decode plan JSON: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return types.StrategicPlan{}, fmt.Errorf("planner: re-decode plan JSON: %w", err)
	}
	if err := planSchema.Validate(generic); err != nil {
		return types.StrategicPlan{}, fmt.Errorf("planner: plan does not conform to schema: %w", err)
	}

	return decoded.toPlan(), nil
}

// planResponse mirrors types.StrategicPlan but omits server-owned
// fields (Phase.State, FallbackUsed) that the model never supplies.
type planResponse struct {
	TaskUnderstanding string          `json:"taskUnderstanding"`
	Approach          types.Approach  `json:"approach"`
	Phases            []planPhase     `json:"phases"`
	ToolStrategy      types.ToolStrategy `json:"toolStrategy"`
	Risk              types.Risk      `json:"risk"`
	SuccessCriteria   []string        `json:"successCriteria"`
	EstimatedComplexity types.ComplexityLevel `json:"estimatedComplexity"`
}

type planPhase struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	Description         string             `json:"description"`
	Tools               []string           `json:"tools"`
	EstimatedIterations int                `json:"estimatedIterations"`
	CompletionCriteria  string             `json:"completionCriteria"`
	CanDelegate         bool               `json:"canDelegate"`
	ToolStrategies      *types.ToolStrategy `json:"toolStrategies,omitempty"`
}

func (r planResponse) toPlan() types.StrategicPlan {
	phases := make([]types.Phase, 0, len(r.Phases))
	for i, ph := range r.Phases {
		id := ph.ID
		if id == "" {
			id = fmt.Sprintf("phase-%d", i+1)
		}
		iterations := ph.EstimatedIterations
		if iterations <= 0 {
			iterations = 3
		}
		phases = append(phases, types.Phase{
			ID:                   id,
			Name:                 ph.Name,
			Description:          ph.Description,
			Tools:                ph.Tools,
			EstimatedIterations:  iterations,
			CompletionCriteria:   ph.CompletionCriteria,
			CanDelegate:          ph.CanDelegate,
			ToolStrategies:       ph.ToolStrategies,
			State:                types.PhasePending,
		})
	}
	return types.StrategicPlan{
		TaskUnderstanding:   r.TaskUnderstanding,
		Approach:            r.Approach,
		Phases:              phases,
		ToolStrategy:        r.ToolStrategy,
		Risk:                r.Risk,
		SuccessCriteria:     r.SuccessCriteria,
		EstimatedComplexity: r.EstimatedComplexity,
	}
}

// defaultPlan synthesizes the fallback plan spec.md §4.4 mandates when
// both planning attempts fail: a single execute phase using every
// primary tool, confidence 0.3, moderate risk.
func defaultPlan(toolInventory []types.ToolDescriptor) types.StrategicPlan {
	primary := make([]string, 0, len(toolInventory))
	for _, t := range toolInventory {
		primary = append(primary, t.Name)
	}
	return types.StrategicPlan{
		TaskUnderstanding: "Planner could not produce a structured plan; executing directly.",
		Approach: types.Approach{
			Name:       "direct-execution",
			Confidence: 0.3,
			Reasoning:  "Fallback plan: planner output was malformed on both the powerful and balanced tiers.",
		},
		Phases: []types.Phase{
			{
				ID:                  "phase-1",
				Name:                "execute",
				Description:         "Work the task directly using the full tool inventory.",
				Tools:               primary,
				EstimatedIterations: 10,
				CompletionCriteria:  "The task's stated goal is satisfied.",
				State:               types.PhasePending,
			},
		},
		ToolStrategy: types.ToolStrategy{Primary: primary},
		Risk: types.Risk{
			Level:    types.RiskModerate,
			Concerns: []string{"no validated strategic plan; proceeding with a generic approach"},
		},
		SuccessCriteria:     []string{"task description's goal is achieved"},
		EstimatedComplexity: types.ComplexityModerate,
		FallbackUsed:        true,
	}
}

func planningSystemPrompt(strictness promptStrictness) string {
	base := "You are the cognitive planner for an autonomous coding agent. " +
		"Given a task, an environment snapshot, and a tool inventory, respond with a single JSON object " +
		"describing a StrategicPlan: taskUnderstanding, approach{name,confidence,reasoning,fallback}, " +
		"phases[{id,name,description,tools,estimatedIterations,completionCriteria,canDelegate}], " +
		"toolStrategy{primary,secondary,avoid}, risk{level,concerns,mitigations}, successCriteria, " +
		"estimatedComplexity (one of trivial|simple|moderate|complex|expert)."
	if strictness.strict {
		base += " Respond with ONLY the JSON object. No prose, no markdown fences, no explanation before or after it."
	}
	return base
}

func describeTaskForPlanning(task types.Task, env types.EnvironmentSnapshot, toolInventory []types.ToolDescriptor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\n", task.Description)
	fmt.Fprintf(&sb, "Environment:\n- workingDirectory: %s\n", env.WorkingDirectory)
	if env.ProjectType != "" {
		fmt.Fprintf(&sb, "- projectType: %s\n", env.ProjectType)
	}
	if len(env.KeyFiles) > 0 {
		fmt.Fprintf(&sb, "- keyFiles: %s\n", strings.Join(env.KeyFiles, ", "))
	}
	fmt.Fprintf(&sb, "- hasVcs: %v\n", env.HasVCS)
	if env.VCSBranch != "" {
		fmt.Fprintf(&sb, "- vcsBranch: %s\n", env.VCSBranch)
	}
	sb.WriteString("\nAvailable tools:\n")
	for _, t := range toolInventory {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
	}
	return sb.String()
}

// extractJSON returns the first top-level JSON object found in text,
// tolerating surrounding prose or markdown code fences.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

const planSchemaJSON = `{
  "type": "object",
  "required": ["taskUnderstanding", "approach", "phases", "toolStrategy", "risk", "successCriteria", "estimatedComplexity"],
  "properties": {
    "taskUnderstanding": {"type": "string"},
    "approach": {
      "type": "object",
      "required": ["name", "confidence", "reasoning"],
      "properties": {
        "name": {"type": "string"},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "reasoning": {"type": "string"},
        "fallback": {"type": "string"}
      }
    },
    "phases": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "description"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string"},
          "description": {"type": "string"},
          "tools": {"type": "array", "items": {"type": "string"}},
          "estimatedIterations": {"type": "integer", "minimum": 1},
          "completionCriteria": {"type": "string"},
          "canDelegate": {"type": "boolean"}
        }
      }
    },
    "toolStrategy": {
      "type": "object",
      "properties": {
        "primary": {"type": "array", "items": {"type": "string"}},
        "secondary": {"type": "array", "items": {"type": "string"}},
        "avoid": {"type": "array", "items": {"type": "string"}}
      }
    },
    "risk": {
      "type": "object",
      "required": ["level"],
      "properties": {
        "level": {"type": "string", "enum": ["low", "moderate", "high"]},
        "concerns": {"type": "array", "items": {"type": "string"}},
        "mitigations": {"type": "array", "items": {"type": "string"}}
      }
    },
    "successCriteria": {"type": "array", "items": {"type": "string"}},
    "estimatedComplexity": {"type": "string", "enum": ["trivial", "simple", "moderate", "complex", "expert"]}
  }
}`

var planSchema = compilePlanSchema()

func compilePlanSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("plan.json", strings.NewReader(planSchemaJSON)); err != nil {
		panic(fmt.Sprintf("planner: invalid embedded plan schema: %v", err))
	}
	schema, err := compiler.Compile("plan.json")
	if err != nil {
		panic(fmt.Sprintf("planner: compile embedded plan schema: %v", err))
	}
	return schema
}
