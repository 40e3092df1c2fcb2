package routing

import (
	"testing"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

func TestAnalyze_TrivialShortTaskRecommendsFastTier(t *testing.T) {
	analysis := Analyze("list files", TaskContext{})
	if analysis.RecommendedTier != types.TierFast {
		t.Errorf("RecommendedTier = %s, want fast", analysis.RecommendedTier)
	}
	if analysis.Level != types.ComplexityTrivial && analysis.Level != types.ComplexitySimple {
		t.Errorf("Level = %s, want trivial or simple", analysis.Level)
	}
}

func TestAnalyze_BroadMultiStepTaskRecommendsPowerfulTier(t *testing.T) {
	description := "Investigate and architect a migration across the entire codebase: " +
		"first audit every module for race conditions in the distributed scheduler, " +
		"then design a new concurrency protocol, then implement it, and finally " +
		"optimize the whole service for performance."
	analysis := Analyze(description, TaskContext{})
	if analysis.RecommendedTier != types.TierPowerful {
		t.Errorf("RecommendedTier = %s, want powerful", analysis.RecommendedTier)
	}
	if analysis.Level != types.ComplexityComplex && analysis.Level != types.ComplexityExpert {
		t.Errorf("Level = %s, want complex or expert", analysis.Level)
	}
}

func TestAnalyze_PriorFailuresIncreaseScore(t *testing.T) {
	base := Analyze("fix the bug", TaskContext{})
	withFailures := Analyze("fix the bug", TaskContext{PriorFailures: 3})
	if withFailures.Score <= base.Score {
		t.Errorf("score with prior failures = %.2f, want > base score %.2f", withFailures.Score, base.Score)
	}
}

func TestAnalyze_ExploringPhaseIncreasesScore(t *testing.T) {
	base := Analyze("fix the bug", TaskContext{})
	exploring := Analyze("fix the bug", TaskContext{ExploringPhase: true})
	if exploring.Score <= base.Score {
		t.Errorf("score while exploring = %.2f, want > base score %.2f", exploring.Score, base.Score)
	}
}

func TestAnalyze_DelegationToolIncreasesScore(t *testing.T) {
	base := Analyze("fix the bug", TaskContext{})
	withDelegate := Analyze("fix the bug", TaskContext{ToolsRequired: []string{"delegate_subagent"}})
	if withDelegate.Score <= base.Score {
		t.Errorf("score with delegation tool = %.2f, want > base score %.2f", withDelegate.Score, base.Score)
	}
}

func TestAnalyze_FactorWeightsSumToOne(t *testing.T) {
	var total float64
	for _, f := range factors {
		total += f.weight
	}
	if total < 0.999 || total > 1.001 {
		t.Errorf("factor weights sum to %.4f, want 1.0", total)
	}
}

func TestAnalyze_ReasoningNamesADominantFactor(t *testing.T) {
	analysis := Analyze("implement and migrate the entire distributed protocol", TaskContext{})
	if analysis.Reasoning == "" {
		t.Error("Reasoning is empty")
	}
}

func TestLevelForScore_MapsEveryBucket(t *testing.T) {
	cases := []struct {
		score float64
		want  types.ComplexityLevel
	}{
		{0.0, types.ComplexityTrivial},
		{0.19, types.ComplexityTrivial},
		{0.2, types.ComplexitySimple},
		{0.39, types.ComplexitySimple},
		{0.4, types.ComplexityModerate},
		{0.59, types.ComplexityModerate},
		{0.6, types.ComplexityComplex},
		{0.79, types.ComplexityComplex},
		{0.8, types.ComplexityExpert},
		{1.0, types.ComplexityExpert},
	}
	for _, c := range cases {
		if got := levelForScore(c.score); got != c.want {
			t.Errorf("levelForScore(%.2f) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestTierForLevel_MapsEveryLevel(t *testing.T) {
	cases := []struct {
		level types.ComplexityLevel
		want  types.Tier
	}{
		{types.ComplexityTrivial, types.TierFast},
		{types.ComplexitySimple, types.TierFast},
		{types.ComplexityModerate, types.TierBalanced},
		{types.ComplexityComplex, types.TierPowerful},
		{types.ComplexityExpert, types.TierPowerful},
	}
	for _, c := range cases {
		if got := tierForLevel(c.level); got != c.want {
			t.Errorf("tierForLevel(%s) = %s, want %s", c.level, got, c.want)
		}
	}
}
