package routing

import (
	"sync"
	"time"

	"github.com/agentforge/orchestrator/internal/engine/types"
	"github.com/agentforge/orchestrator/internal/models"
)

// PhaseOverride maps a (phase, complexity level) pair to a forced
// tier, taking precedence over the complexity-derived tier.
type PhaseOverride struct {
	Phase string
	Level types.ComplexityLevel
	Tier  types.Tier
}

// Config configures a Router.
type Config struct {
	Catalog         *models.Catalog
	PhaseOverrides  []PhaseOverride
	MaxTier         types.Tier
	FailureCooldown time.Duration
}

// outcomeBucket aggregates reported latency/outcome per (model,
// complexity) for reportSuccess, per spec.md §4.3.
type outcomeBucket struct {
	count        int
	successCount int
	totalLatency time.Duration
}

// Router selects a model tier for a task and escalates on repeated
// failure, bounded by a configured max tier.
type Router struct {
	catalog  *models.Catalog
	overrides []PhaseOverride
	maxTier  types.Tier

	mu            sync.Mutex
	selected      *models.Model
	escalateCount int
	buckets       map[string]*outcomeBucket
}

// NewRouter creates a Router backed by the given catalog.
func NewRouter(cfg Config) *Router {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = models.DefaultCatalog
	}
	maxTier := cfg.MaxTier
	if maxTier == "" {
		maxTier = types.TierPowerful
	}
	return &Router{
		catalog:   catalog,
		overrides: cfg.PhaseOverrides,
		maxTier:   maxTier,
		buckets:   make(map[string]*outcomeBucket),
	}
}

// SelectForTask scores the task description, applies any phase
// override, selects a concrete model for the resulting tier, and
// records it as the router's current selection.
func (r *Router) SelectForTask(description string, ctx TaskContext) (types.ComplexityAnalysis, *models.Model, error) {
	analysis := Analyze(description, ctx)

	tier := analysis.RecommendedTier
	for _, o := range r.overrides {
		if o.Phase == ctx.Phase && o.Level == analysis.Level {
			tier = o.Tier
			break
		}
	}

	model, ok := r.catalog.ForTier(tier)
	if !ok {
		return analysis, nil, errNoModelForTier(tier)
	}

	r.mu.Lock()
	r.selected = model
	r.mu.Unlock()

	return analysis, model, nil
}

// ReportFailure escalates the current selection by at most one tier,
// bounded by the router's configured max tier.
func (r *Router) ReportFailure() *models.Model {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.selected == nil {
		return nil
	}
	nextRank := r.selected.Tier.Rank() + 1
	if nextRank > r.maxTier.Rank() {
		return r.selected
	}
	next := tierAtRank(nextRank)
	if model, ok := r.catalog.ForTier(next); ok {
		r.selected = model
		r.escalateCount++
	}
	return r.selected
}

// ReportSuccess records latency and a success/failure outcome for the
// (model, complexity) bucket, for later routing tuning.
func (r *Router) ReportSuccess(complexity types.ComplexityLevel, latency time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.selected == nil {
		return
	}
	key := r.selected.ID + ":" + string(complexity)
	bucket, ok := r.buckets[key]
	if !ok {
		bucket = &outcomeBucket{}
		r.buckets[key] = bucket
	}
	bucket.count++
	bucket.totalLatency += latency
	if success {
		bucket.successCount++
	}
}

// Selected returns the currently selected model, or nil if none has
// been chosen yet.
func (r *Router) Selected() *models.Model {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// EscalateCount returns how many times ReportFailure has escalated the
// tier for the current selection.
func (r *Router) EscalateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.escalateCount
}

func tierAtRank(rank int) types.Tier {
	switch rank {
	case 0:
		return types.TierFast
	case 1:
		return types.TierBalanced
	default:
		return types.TierPowerful
	}
}

func errNoModelForTier(tier types.Tier) error {
	return &noModelError{tier: tier}
}

type noModelError struct {
	tier types.Tier
}

func (e *noModelError) Error() string {
	return "routing: no model registered for tier " + string(e.tier)
}
