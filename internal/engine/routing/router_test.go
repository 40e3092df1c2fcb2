package routing

import (
	"testing"
	"time"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

func TestRouter_SelectForTaskPicksModelForRecommendedTier(t *testing.T) {
	r := NewRouter(Config{})
	analysis, model, err := r.SelectForTask("list files", TaskContext{})
	if err != nil {
		t.Fatalf("SelectForTask() error = %v", err)
	}
	if model == nil {
		t.Fatal("SelectForTask() returned nil model")
	}
	if model.Tier != analysis.RecommendedTier {
		t.Errorf("model.Tier = %s, want %s", model.Tier, analysis.RecommendedTier)
	}
	if r.Selected() != model {
		t.Error("Selected() does not match the model just chosen")
	}
}

func TestRouter_PhaseOverrideTakesPrecedence(t *testing.T) {
	r := NewRouter(Config{
		PhaseOverrides: []PhaseOverride{
			{Phase: "planning", Level: types.ComplexityTrivial, Tier: types.TierPowerful},
		},
	})
	_, model, err := r.SelectForTask("list files", TaskContext{Phase: "planning"})
	if err != nil {
		t.Fatalf("SelectForTask() error = %v", err)
	}
	if model.Tier != types.TierPowerful {
		t.Errorf("model.Tier = %s, want powerful (override should apply)", model.Tier)
	}
}

// TestRouter_EscalationIsMonotoneAndBounded is the Testable Property
// for the router: repeated ReportFailure calls never decrease tier
// rank and never exceed the configured max tier.
func TestRouter_EscalationIsMonotoneAndBounded(t *testing.T) {
	r := NewRouter(Config{MaxTier: types.TierPowerful})
	if _, _, err := r.SelectForTask("list files", TaskContext{}); err != nil {
		t.Fatalf("SelectForTask() error = %v", err)
	}

	lastRank := r.Selected().Tier.Rank()
	for i := 0; i < 10; i++ {
		next := r.ReportFailure()
		if next == nil {
			t.Fatal("ReportFailure() returned nil")
		}
		if next.Tier.Rank() < lastRank {
			t.Fatalf("iteration %d: tier rank decreased from %d to %d", i, lastRank, next.Tier.Rank())
		}
		if next.Tier.Rank() > types.TierPowerful.Rank() {
			t.Fatalf("iteration %d: tier rank %d exceeds max tier rank %d", i, next.Tier.Rank(), types.TierPowerful.Rank())
		}
		lastRank = next.Tier.Rank()
	}
	if lastRank != types.TierPowerful.Rank() {
		t.Errorf("after repeated failures, tier rank = %d, want max rank %d", lastRank, types.TierPowerful.Rank())
	}
	if r.EscalateCount() == 0 {
		t.Error("EscalateCount() = 0, want > 0 after escalating failures")
	}
}

func TestRouter_EscalationRespectsLowerMaxTier(t *testing.T) {
	r := NewRouter(Config{MaxTier: types.TierBalanced})
	if _, _, err := r.SelectForTask("list files", TaskContext{}); err != nil {
		t.Fatalf("SelectForTask() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		r.ReportFailure()
	}
	if got := r.Selected().Tier; got.Rank() > types.TierBalanced.Rank() {
		t.Errorf("Selected().Tier = %s, exceeds configured max tier balanced", got)
	}
}

func TestRouter_ReportSuccessDoesNotPanicWithoutSelection(t *testing.T) {
	r := NewRouter(Config{})
	r.ReportSuccess(types.ComplexityModerate, 10*time.Millisecond, true)
}

func TestRouter_ReportFailureWithoutSelectionReturnsNil(t *testing.T) {
	r := NewRouter(Config{})
	if got := r.ReportFailure(); got != nil {
		t.Errorf("ReportFailure() = %v, want nil before any selection", got)
	}
}
