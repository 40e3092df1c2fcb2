// Package routing implements the Model Router: task-complexity
// scoring, tier selection, and escalate-on-failure tracking over the
// three-tier model catalog.
package routing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

var (
	actionVerbRegex    = regexp.MustCompile(`(?i)\b(implement|refactor|migrate|design|optimi[sz]e|debug|investigate|architect|integrate)\b`)
	domainKeywordRegex = regexp.MustCompile(`(?i)\b(concurrency|distributed|security|race condition|performance|schema|protocol|kubernetes|terraform)\b`)
	multiStepRegex     = regexp.MustCompile(`(?i)\b(then|after that|first.*then|step \d|finally|once.*done)\b`)
	scopeBreadthRegex  = regexp.MustCompile(`(?i)\b(entire|whole|across|all (?:the )?(?:files|services|modules)|codebase|repository)\b`)
)

// TaskContext carries the adjustments selectForTask takes beyond the
// description text itself.
type TaskContext struct {
	Phase          string
	PriorFailures  int
	ToolsRequired  []string
	ExploringPhase bool
}

// complexityFactor computes one weighted factor from the description
// and context; weights across all factors in Analyze sum to 1.
type complexityFactor struct {
	name   string
	weight float64
	score  func(description string, ctx TaskContext) float64
}

var factors = []complexityFactor{
	{name: "length", weight: 0.15, score: scoreLength},
	{name: "action_verbs", weight: 0.2, score: scoreActionVerbs},
	{name: "scope_breadth", weight: 0.2, score: scoreScopeBreadth},
	{name: "domain_keywords", weight: 0.2, score: scoreDomainKeywords},
	{name: "multi_step", weight: 0.15, score: scoreMultiStep},
	{name: "context_adjustments", weight: 0.1, score: scoreContextAdjustments},
}

// Analyze computes a ComplexityAnalysis from a task description and
// routing context, per spec.md §4.3's weighted-factor scoring.
func Analyze(description string, ctx TaskContext) types.ComplexityAnalysis {
	analyzed := make([]types.ComplexityFactor, 0, len(factors))
	var total float64
	for _, f := range factors {
		score := clamp01(f.score(description, ctx))
		analyzed = append(analyzed, types.ComplexityFactor{Name: f.name, Weight: f.weight, Score: score})
		total += f.weight * score
	}

	level := levelForScore(total)
	tier := tierForLevel(level)

	return types.ComplexityAnalysis{
		Score:           total * 100,
		Level:           level,
		Factors:         analyzed,
		RecommendedTier: tier,
		Reasoning:       reasoningFor(analyzed, level),
	}
}

func scoreLength(description string, _ TaskContext) float64 {
	words := len(strings.Fields(description))
	switch {
	case words <= 10:
		return 0.1
	case words <= 30:
		return 0.4
	case words <= 80:
		return 0.7
	default:
		return 1.0
	}
}

func scoreActionVerbs(description string, _ TaskContext) float64 {
	matches := len(actionVerbRegex.FindAllString(description, -1))
	return matchCountScore(matches)
}

func scoreScopeBreadth(description string, _ TaskContext) float64 {
	if scopeBreadthRegex.MatchString(description) {
		return 1.0
	}
	return 0.2
}

func scoreDomainKeywords(description string, _ TaskContext) float64 {
	matches := len(domainKeywordRegex.FindAllString(description, -1))
	return matchCountScore(matches)
}

func scoreMultiStep(description string, _ TaskContext) float64 {
	if multiStepRegex.MatchString(description) {
		return 0.8
	}
	return 0.2
}

func scoreContextAdjustments(_ string, ctx TaskContext) float64 {
	score := 0.0
	if ctx.PriorFailures > 0 {
		score += 0.3 * float64(min(ctx.PriorFailures, 3))
	}
	if ctx.ExploringPhase {
		score += 0.2
	}
	if hasDelegationTool(ctx.ToolsRequired) {
		score += 0.2
	}
	return score
}

func hasDelegationTool(tools []string) bool {
	for _, t := range tools {
		if strings.EqualFold(t, "delegate") || strings.Contains(strings.ToLower(t), "subagent") {
			return true
		}
	}
	return false
}

func matchCountScore(matches int) float64 {
	switch {
	case matches == 0:
		return 0.1
	case matches == 1:
		return 0.5
	default:
		return 0.9
	}
}

func levelForScore(score float64) types.ComplexityLevel {
	switch {
	case score < 0.2:
		return types.ComplexityTrivial
	case score < 0.4:
		return types.ComplexitySimple
	case score < 0.6:
		return types.ComplexityModerate
	case score < 0.8:
		return types.ComplexityComplex
	default:
		return types.ComplexityExpert
	}
}

func tierForLevel(level types.ComplexityLevel) types.Tier {
	switch level {
	case types.ComplexityTrivial, types.ComplexitySimple:
		return types.TierFast
	case types.ComplexityModerate:
		return types.TierBalanced
	default:
		return types.TierPowerful
	}
}

func reasoningFor(factors []types.ComplexityFactor, level types.ComplexityLevel) string {
	var top string
	var topScore float64
	for _, f := range factors {
		if f.Score > topScore {
			topScore = f.Score
			top = f.Name
		}
	}
	if top == "" {
		return fmt.Sprintf("scored %s with no dominant factor", level)
	}
	return fmt.Sprintf("scored %s, driven mainly by %s", level, top)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
