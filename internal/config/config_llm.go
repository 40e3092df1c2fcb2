package config

// LLMConfig configures the model providers and tier catalog the Model
// Router draws on.
type LLMConfig struct {
	Providers map[string]LLMProviderConfig `yaml:"providers"`

	// FallbackChain is accepted in the YAML file but not read by any
	// component; escalation stops at MaxEscalationTier.
	FallbackChain []string `yaml:"fallback_chain"`

	// MaxEscalationTier bounds how far reportFailure() may escalate
	// within a single task, per spec.md §4.3.
	MaxEscalationTier string `yaml:"max_escalation_tier"`

	// Routing tunes the complexity-to-tier thresholds.
	Routing LLMRoutingConfig `yaml:"routing"`
}

// LLMProviderConfig holds credentials and defaults for one backend.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	Region       string `yaml:"region"` // used by the Bedrock backend only
}

// LLMRoutingConfig holds a complexity-score-to-tier table. It is
// loaded and defaulted but not passed to the Model Router, which uses
// its own fixed thresholds in internal/engine/routing (moderate, and
// so the balanced tier, from 0.4; complex, and so powerful, from 0.6).
type LLMRoutingConfig struct {
	// ScoreThresholds maps a complexity score lower bound to a tier,
	// e.g. {0: "fast", 40: "balanced", 75: "powerful"}.
	ScoreThresholds map[int]string `yaml:"score_thresholds"`

	// PhaseOverrides maps "phaseKind:complexityLevel" to a tier,
	// overriding the score-threshold result for that combination.
	PhaseOverrides map[string]string `yaml:"phase_overrides"`
}

// DefaultLLMRoutingConfig returns the conservative threshold table
// used when no routing config is supplied.
func DefaultLLMRoutingConfig() LLMRoutingConfig {
	return LLMRoutingConfig{
		ScoreThresholds: map[int]string{
			0:  "fast",
			40: "balanced",
			75: "powerful",
		},
	}
}
