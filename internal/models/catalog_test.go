package models

import (
	"testing"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

func TestCatalog_Get(t *testing.T) {
	c := NewCatalog()

	model, ok := c.Get("claude-opus-4-5")
	if !ok {
		t.Fatal("expected to find claude-opus-4-5")
	}
	if model.Tier != types.TierPowerful {
		t.Errorf("Tier = %s, want powerful", model.Tier)
	}

	model, ok = c.Get("sonnet")
	if !ok {
		t.Fatal("expected to find sonnet alias")
	}
	if model.ID != "claude-sonnet-4-5" {
		t.Errorf("ID = %s, want claude-sonnet-4-5", model.ID)
	}

	if _, ok := c.Get("unknown-model"); ok {
		t.Error("should not find unknown-model")
	}
}

func TestModel_HasCapability(t *testing.T) {
	model := &Model{
		ID:           "test",
		Capabilities: []Capability{CapReasoning, CapTools, CapStreaming},
	}

	if !model.HasCapability(CapReasoning) {
		t.Error("should have reasoning capability")
	}
	if !model.HasCapability(CapTools) {
		t.Error("should have tools capability")
	}
	if model.HasCapability(CapCaching) {
		t.Error("should not have caching capability")
	}
}

func TestModel_ToModelConfig(t *testing.T) {
	model := &Model{
		ID:          "test",
		Name:        "Test Model",
		Provider:    ProviderAnthropic,
		Tier:        types.TierBalanced,
		InputPrice:  3.0,
		OutputPrice: 15.0,
	}

	cfg := model.ToModelConfig()
	if cfg.CostInputPer1k != 0.003 {
		t.Errorf("CostInputPer1k = %v, want 0.003", cfg.CostInputPer1k)
	}
	if cfg.CostOutputPer1k != 0.015 {
		t.Errorf("CostOutputPer1k = %v, want 0.015", cfg.CostOutputPer1k)
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("Provider = %s, want anthropic", cfg.Provider)
	}
}

func TestCatalog_List(t *testing.T) {
	c := NewCatalog()

	all := c.List(nil)
	if len(all) == 0 {
		t.Error("expected some models")
	}

	anthropic := c.List(&Filter{Providers: []Provider{ProviderAnthropic}})
	for _, m := range anthropic {
		if m.Provider != ProviderAnthropic {
			t.Errorf("expected anthropic provider, got %s", m.Provider)
		}
	}

	fast := c.List(&Filter{Tiers: []types.Tier{types.TierFast}})
	for _, m := range fast {
		if m.Tier != types.TierFast {
			t.Errorf("model %s should be in the fast tier", m.ID)
		}
	}
}

func TestCatalog_ForTier(t *testing.T) {
	c := NewCatalog()

	for _, tier := range []types.Tier{types.TierFast, types.TierBalanced, types.TierPowerful} {
		model, ok := c.ForTier(tier)
		if !ok {
			t.Fatalf("expected at least one model for tier %s", tier)
		}
		if model.Tier != tier {
			t.Errorf("ForTier(%s) returned model in tier %s", tier, model.Tier)
		}
	}
}

func TestFilter_Matches(t *testing.T) {
	model := &Model{
		ID:            "test",
		Provider:      ProviderAnthropic,
		Tier:          types.TierBalanced,
		ContextWindow: 200000,
		Capabilities:  []Capability{CapTools, CapCode},
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{name: "nil filter matches all", filter: nil, want: true},
		{name: "empty filter matches all", filter: &Filter{}, want: true},
		{name: "provider match", filter: &Filter{Providers: []Provider{ProviderAnthropic}}, want: true},
		{name: "provider no match", filter: &Filter{Providers: []Provider{ProviderOpenAI}}, want: false},
		{name: "tier match", filter: &Filter{Tiers: []types.Tier{types.TierBalanced, types.TierFast}}, want: true},
		{name: "tier no match", filter: &Filter{Tiers: []types.Tier{types.TierPowerful}}, want: false},
		{name: "capability match", filter: &Filter{RequiredCapabilities: []Capability{CapTools, CapCode}}, want: true},
		{name: "capability no match", filter: &Filter{RequiredCapabilities: []Capability{CapReasoning}}, want: false},
		{name: "context window match", filter: &Filter{MinContextWindow: 100000}, want: true},
		{name: "context window no match", filter: &Filter{MinContextWindow: 500000}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(model); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	if _, ok := DefaultCatalog.Get("claude-sonnet-4-5"); !ok {
		t.Error("expected DefaultCatalog to be pre-populated with built-in models")
	}
}
