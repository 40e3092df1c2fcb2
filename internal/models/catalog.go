// Package models is the catalog of concrete models the Model Router
// chooses between: provider, tier, context window, and cost/latency
// metadata for each.
package models

import (
	"sort"
	"strings"
	"sync"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// Provider identifies a model backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderBedrock   Provider = "bedrock"
	ProviderGemini    Provider = "gemini"
)

// Capability identifies a model capability relevant to tool-use
// agents (vision/audio/video are not exercised by this engine and are
// deliberately omitted).
type Capability string

const (
	CapTools       Capability = "tools"
	CapStreaming   Capability = "streaming"
	CapJSON        Capability = "json"
	CapCode        Capability = "code"
	CapReasoning   Capability = "reasoning"
	CapLongContext Capability = "long_context"
	CapCaching     Capability = "caching"
)

// Model represents one concrete LLM the router can invoke.
type Model struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Provider        Provider     `json:"provider"`
	Tier            types.Tier   `json:"tier"`
	ContextWindow   int          `json:"context_window"`
	MaxOutputTokens int          `json:"max_output_tokens,omitempty"`
	Capabilities    []Capability `json:"capabilities"`
	Aliases         []string     `json:"aliases,omitempty"`
	InputPrice      float64      `json:"input_price,omitempty"`  // USD per million input tokens
	OutputPrice     float64      `json:"output_price,omitempty"` // USD per million output tokens
	AvgLatencyMs    int          `json:"avg_latency_ms,omitempty"`
}

// HasCapability checks if the model has a specific capability.
func (m *Model) HasCapability(cap Capability) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// ToModelConfig projects a Model into the router-facing ModelConfig
// shape defined in spec.md §3.
func (m *Model) ToModelConfig() types.ModelConfig {
	strengths := make([]string, 0, len(m.Capabilities))
	for _, c := range m.Capabilities {
		strengths = append(strengths, string(c))
	}
	return types.ModelConfig{
		ID:                  m.ID,
		DisplayName:         m.Name,
		Tier:                m.Tier,
		MaxOutputTokens:     m.MaxOutputTokens,
		ContextWindowTokens: m.ContextWindow,
		CostInputPer1k:      m.InputPrice / 1000,
		CostOutputPer1k:     m.OutputPrice / 1000,
		AvgLatencyMs:        m.AvgLatencyMs,
		Strengths:           strengths,
		Provider:            string(m.Provider),
	}
}

// Catalog manages a collection of models, indexed by id and alias.
type Catalog struct {
	mu      sync.RWMutex
	models  map[string]*Model
	aliases map[string]string
}

// NewCatalog creates a catalog pre-populated with the built-in models
// for every wired provider.
func NewCatalog() *Catalog {
	c := &Catalog{
		models:  make(map[string]*Model),
		aliases: make(map[string]string),
	}
	c.registerBuiltinModels()
	return c
}

// Register adds a model to the catalog.
func (c *Catalog) Register(model *Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[model.ID] = model
	for _, alias := range model.Aliases {
		c.aliases[strings.ToLower(alias)] = model.ID
	}
}

// Get retrieves a model by ID or alias.
func (c *Catalog) Get(id string) (*Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if model, ok := c.models[id]; ok {
		return model, true
	}
	if realID, ok := c.aliases[strings.ToLower(id)]; ok {
		return c.models[realID], true
	}
	return nil, false
}

// List returns all models matching the filter, sorted by provider
// then tier then name.
func (c *Catalog) List(filter *Filter) []*Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []*Model
	for _, model := range c.models {
		if filter == nil || filter.Matches(model) {
			result = append(result, model)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Provider != result[j].Provider {
			return result[i].Provider < result[j].Provider
		}
		if result[i].Tier != result[j].Tier {
			return result[i].Tier.Rank() < result[j].Tier.Rank()
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// ForTier returns the first model for a tier in List order, so
// providers are preferred alphabetically (anthropic, bedrock, gemini,
// openai).
func (c *Catalog) ForTier(tier types.Tier) (*Model, bool) {
	models := c.List(&Filter{Tiers: []types.Tier{tier}})
	if len(models) == 0 {
		return nil, false
	}
	return models[0], true
}

// Filter narrows a List() call.
type Filter struct {
	Providers            []Provider
	Tiers                []types.Tier
	RequiredCapabilities []Capability
	MinContextWindow     int
}

// Matches reports whether a model satisfies the filter.
func (f *Filter) Matches(m *Model) bool {
	if f == nil {
		return true
	}
	if len(f.Providers) > 0 && !containsProvider(f.Providers, m.Provider) {
		return false
	}
	if len(f.Tiers) > 0 && !containsTier(f.Tiers, m.Tier) {
		return false
	}
	for _, cap := range f.RequiredCapabilities {
		if !m.HasCapability(cap) {
			return false
		}
	}
	if f.MinContextWindow > 0 && m.ContextWindow < f.MinContextWindow {
		return false
	}
	return true
}

func containsProvider(list []Provider, p Provider) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func containsTier(list []types.Tier, t types.Tier) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func (c *Catalog) registerBuiltinModels() {
	c.Register(&Model{
		ID:              "claude-opus-4-5",
		Name:            "Claude Opus 4.5",
		Provider:        ProviderAnthropic,
		Tier:            types.TierPowerful,
		ContextWindow:   200000,
		MaxOutputTokens: 32000,
		Capabilities:    []Capability{CapTools, CapStreaming, CapJSON, CapCode, CapReasoning, CapLongContext, CapCaching},
		Aliases:         []string{"opus"},
		InputPrice:      15.0,
		OutputPrice:     75.0,
		AvgLatencyMs:    4000,
	})

	c.Register(&Model{
		ID:              "claude-sonnet-4-5",
		Name:            "Claude Sonnet 4.5",
		Provider:        ProviderAnthropic,
		Tier:            types.TierBalanced,
		ContextWindow:   200000,
		MaxOutputTokens: 16000,
		Capabilities:    []Capability{CapTools, CapStreaming, CapJSON, CapCode, CapLongContext, CapCaching},
		Aliases:         []string{"sonnet"},
		InputPrice:      3.0,
		OutputPrice:     15.0,
		AvgLatencyMs:    2000,
	})

	c.Register(&Model{
		ID:              "claude-haiku-4-5",
		Name:            "Claude Haiku 4.5",
		Provider:        ProviderAnthropic,
		Tier:            types.TierFast,
		ContextWindow:   200000,
		MaxOutputTokens: 8192,
		Capabilities:    []Capability{CapTools, CapStreaming, CapJSON, CapCode, CapLongContext},
		Aliases:         []string{"haiku"},
		InputPrice:      0.8,
		OutputPrice:     4.0,
		AvgLatencyMs:    800,
	})

	c.Register(&Model{
		ID:              "gpt-4o",
		Name:            "GPT-4o",
		Provider:        ProviderOpenAI,
		Tier:            types.TierBalanced,
		ContextWindow:   128000,
		MaxOutputTokens: 16384,
		Capabilities:    []Capability{CapTools, CapStreaming, CapJSON, CapCode, CapLongContext},
		InputPrice:      2.5,
		OutputPrice:     10.0,
		AvgLatencyMs:    2200,
	})

	c.Register(&Model{
		ID:              "gpt-4o-mini",
		Name:            "GPT-4o Mini",
		Provider:        ProviderOpenAI,
		Tier:            types.TierFast,
		ContextWindow:   128000,
		MaxOutputTokens: 16384,
		Capabilities:    []Capability{CapTools, CapStreaming, CapJSON, CapCode, CapLongContext},
		InputPrice:      0.15,
		OutputPrice:     0.6,
		AvgLatencyMs:    700,
	})

	c.Register(&Model{
		ID:              "bedrock-claude-sonnet-4-5",
		Name:            "Claude Sonnet 4.5 (Bedrock)",
		Provider:        ProviderBedrock,
		Tier:            types.TierBalanced,
		ContextWindow:   200000,
		MaxOutputTokens: 16000,
		Capabilities:    []Capability{CapTools, CapStreaming, CapJSON, CapCode, CapLongContext},
		InputPrice:      3.0,
		OutputPrice:     15.0,
		AvgLatencyMs:    2400,
	})

	c.Register(&Model{
		ID:              "gemini-2.5-flash",
		Name:            "Gemini 2.5 Flash",
		Provider:        ProviderGemini,
		Tier:            types.TierFast,
		ContextWindow:   1048576,
		MaxOutputTokens: 8192,
		Capabilities:    []Capability{CapTools, CapStreaming, CapJSON, CapCode, CapLongContext},
		InputPrice:      0.0,
		OutputPrice:     0.0,
		AvgLatencyMs:    900,
	})

	c.Register(&Model{
		ID:              "gemini-2.5-pro",
		Name:            "Gemini 2.5 Pro",
		Provider:        ProviderGemini,
		Tier:            types.TierPowerful,
		ContextWindow:   2097152,
		MaxOutputTokens: 8192,
		Capabilities:    []Capability{CapTools, CapStreaming, CapJSON, CapCode, CapReasoning, CapLongContext},
		InputPrice:      1.25,
		OutputPrice:     5.0,
		AvgLatencyMs:    3200,
	})
}

// DefaultCatalog is the process-wide model catalog used when no
// per-task catalog is supplied.
var DefaultCatalog = NewCatalog()
