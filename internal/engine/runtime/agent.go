// Package runtime implements the Agent Runtime (C6): it drives one
// task from plan to terminal result, owning the task's transcript and
// execution state and coordinating the Tool Registry, Model Router,
// Cognitive Planner, and Self-Monitor for every phase.
package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	engctx "github.com/agentforge/orchestrator/internal/engine/context"
	"github.com/agentforge/orchestrator/internal/engine/monitor"
	"github.com/agentforge/orchestrator/internal/engine/planner"
	"github.com/agentforge/orchestrator/internal/engine/routing"
	"github.com/agentforge/orchestrator/internal/engine/tools"
	"github.com/agentforge/orchestrator/internal/engine/types"
	"github.com/agentforge/orchestrator/internal/models"
	"github.com/agentforge/orchestrator/internal/observability"
	"github.com/agentforge/orchestrator/internal/providers"
	"go.opentelemetry.io/otel/trace"
)

// ProviderFactory constructs the concrete Provider for a catalog
// model's backend. Tests substitute a fake; production wires
// providers.New.
type ProviderFactory func(ctx context.Context, provider models.Provider, creds providers.Credentials) (providers.Provider, error)

// TaskUpdater is the single-writer mutation surface the Task Manager
// (C7) gives an agent over the canonical Task it owns. The agent is
// the only caller; the registry-wide lock lives on the other side.
type TaskUpdater interface {
	Update(taskID string, fn func(*types.Task))
}

// Config wires an Agent to the components it coordinates for one task.
type Config struct {
	Planner  *planner.Planner
	Tools    *tools.Registry
	Router   *routing.Router
	Updater  TaskUpdater
	Emit     func(types.Event)

	ProviderFactory ProviderFactory
	Credentials     providers.Credentials

	MonitorThresholds types.MonitorThresholds
	CompletionPhrases []string

	WorkingDir            string
	ModelBudgetTokens     int
	MaxOutputTokens       int
	MaxIterationsPerPhase int
	ProgressCheckEvery    int

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

func (c Config) withDefaults() Config {
	if c.Emit == nil {
		c.Emit = func(types.Event) {}
	}
	if c.ProviderFactory == nil {
		c.ProviderFactory = providers.New
	}
	if c.ModelBudgetTokens <= 0 {
		c.ModelBudgetTokens = 120000
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 4096
	}
	if c.MaxIterationsPerPhase <= 0 {
		c.MaxIterationsPerPhase = 12
	}
	if c.ProgressCheckEvery <= 0 {
		c.ProgressCheckEvery = 3
	}
	return c
}

// Agent drives exactly one task through plan-then-execute to a
// terminal result. It is not safe for concurrent use; the Task Manager
// runs each agent on its own goroutine.
type Agent struct {
	task   types.Task
	cfg    Config
	trans  *engctx.Transcript
	mon    *monitor.Monitor

	cancelled int32
	cancel    context.CancelFunc
}

// New creates an Agent for task, ready to Run.
func New(task types.Task, cfg Config) *Agent {
	cfg = cfg.withDefaults()
	thresholds := cfg.MonitorThresholds
	if thresholds == (types.MonitorThresholds{}) {
		thresholds = monitor.PreAnalyze(task.Description)
	}
	mon := monitor.New(monitor.Config{
		Thresholds:        thresholds,
		CompletionPhrases: cfg.CompletionPhrases,
		OnStall: func(string) {
			if cfg.Metrics != nil {
				cfg.Metrics.RecordStall()
			}
		},
	})
	return &Agent{
		task:  task,
		cfg:   cfg,
		trans: engctx.NewTranscript(),
		mon:   mon,
	}
}

// Cancel requests cooperative cancellation. The agent observes it at
// the next iteration or phase boundary and finishes with TaskCancelled.
func (a *Agent) Cancel() {
	atomic.StoreInt32(&a.cancelled, 1)
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *Agent) isCancelled() bool {
	return atomic.LoadInt32(&a.cancelled) == 1
}

// Run executes the task to completion, failure, or cancellation. It
// never returns an error: every terminal outcome is recorded on the
// Task via the configured TaskUpdater and announced through Emit.
func (a *Agent) Run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel
	defer cancel()

	start := time.Now()
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.TaskStarted()
	}
	a.update(func(t *types.Task) {
		t.Status = types.TaskRunning
		t.StartedAt = start
	})

	if a.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = a.cfg.Tracer.TraceTask(ctx, a.task.ID)
		defer span.End()
	}

	env, err := GatherEnvironment(a.cfg.WorkingDir)
	if err != nil {
		a.fail(ctx, "environment", err.Error(), start)
		return
	}

	toolInventory := a.cfg.Tools.Descriptors()
	plan := a.cfg.Planner.Plan(ctx, a.task, env, toolInventory)
	a.mon.AddMilestones(milestonesFromPlan(plan))
	a.mon.SetPhase(types.ExecutorPlanning)

	a.cfg.Emit(types.NewEvent(types.EventPlanReady, a.task.ID).
		WithMessage(plan.Approach.Name).
		WithMeta(map[string]interface{}{
			"confidence":   plan.Approach.Confidence,
			"fallbackUsed": plan.FallbackUsed,
			"phaseCount":   len(plan.Phases),
		}))

	a.trans.SeedFraming(framingEntry(a.task, env, plan))

	usage := types.ModelUsage{CallsByTier: map[string]int{}}
	var discoveries []string

	if a.isCancelled() {
		a.cancelOut(ctx, start)
		return
	}

	for i := range plan.Phases {
		if a.isCancelled() {
			break
		}
		phase := &plan.Phases[i]
		phase.State = types.PhaseActive
		a.mon.SetPhase(executorPhaseFor(phase.Kind()))
		a.cfg.Emit(types.NewEvent(types.EventPhaseStarted, a.task.ID).WithPhase(phase.ID).WithMessage(phase.Name))

		completed, fatalErr := a.runPhase(ctx, phase, toolInventory, &usage, &discoveries)
		if fatalErr != nil {
			phase.State = types.PhaseFailed
			a.fail(ctx, "execution", fatalErr.Error(), start)
			return
		}
		if a.isCancelled() {
			phase.State = types.PhaseSkipped
			break
		}
		if completed {
			phase.State = types.PhaseDone
			a.mon.CompleteMilestone(phase.ID)
			a.cfg.Emit(types.NewEvent(types.EventPhaseCompleted, a.task.ID).WithPhase(phase.ID))
		} else {
			phase.State = types.PhaseSkipped
			a.cfg.Emit(types.NewEvent(types.EventPhaseTimedOut, a.task.ID).WithPhase(phase.ID))
		}
	}

	if a.isCancelled() {
		a.cancelOut(ctx, start)
		return
	}

	result := types.TaskResult{
		Iterations:    a.mon.State().Iteration,
		ToolCallCount: len(a.mon.State().ToolCalls),
		Discoveries:   discoveries,
		Approach:      plan.Approach.Name,
		Confidence:    plan.Approach.Confidence,
		ModelUsage:    usage,
		PlanFallback:  plan.FallbackUsed,
	}
	a.complete(ctx, result, start)
}

// runPhase drives the inner iterate-until-done loop for one plan
// phase, per spec.md §4.6 step 5. It returns completed=true when the
// phase's own completion criteria (or the monitor's global completion
// rule) were satisfied before the phase's iteration budget ran out.
func (a *Agent) runPhase(ctx context.Context, phase *types.Phase, toolInventory []types.ToolDescriptor, usage *types.ModelUsage, discoveries *[]string) (completed bool, fatal error) {
	model, analysis, err := a.selectModel(phase)
	if err != nil {
		return false, err
	}

	maxIter := phase.EstimatedIterations * 2
	if maxIter <= 0 || maxIter > a.cfg.MaxIterationsPerPhase {
		maxIter = a.cfg.MaxIterationsPerPhase
	}

	for iter := 0; iter < maxIter; iter++ {
		if ctx.Err() != nil || a.isCancelled() {
			return false, nil
		}

		a.mon.RecordIteration()

		if a.mon.State().Iteration%a.cfg.ProgressCheckEvery == 0 {
			decision := a.mon.Decide()
			switch decision.SuggestedAction {
			case types.ActionComplete:
				return true, nil
			case types.ActionAbort:
				return false, fmt.Errorf("%s", decision.Reason)
			case types.ActionPivot:
				a.cfg.Emit(types.NewEvent(types.EventPivot, a.task.ID).WithPhase(phase.ID).WithMessage(decision.Reason))
				return false, nil
			case types.ActionAskUser:
				return false, fmt.Errorf("task requires user input: %s", decision.Reason)
			}
			if decision.Warning != "" && a.cfg.Logger != nil {
				a.cfg.Logger.Warn(ctx, decision.Warning, "task_id", a.task.ID, "phase_id", phase.ID)
			}
		}

		entries, prepErr := a.trans.Prepare(a.cfg.ModelBudgetTokens)
		if prepErr != nil {
			entries, prepErr = a.trans.PrepareAggressive(a.cfg.ModelBudgetTokens)
			if a.cfg.Metrics != nil {
				a.cfg.Metrics.RecordContextTruncation("aggressive")
			}
			if prepErr != nil {
				return false, fmt.Errorf("context overflow: %w", prepErr)
			}
		} else if a.cfg.Metrics != nil {
			a.cfg.Metrics.RecordContextTruncation("soft")
		}

		callStart := time.Now()
		resp, callErr := a.callModel(ctx, &model, entries, toolInventory, phase)
		if callErr != nil {
			if isContextOverflow(callErr) {
				aggressive, aggErr := a.trans.PrepareAggressive(a.cfg.ModelBudgetTokens)
				if aggErr != nil {
					return false, fmt.Errorf("context overflow: %w", aggErr)
				}
				resp, callErr = a.callModel(ctx, &model, aggressive, toolInventory, phase)
			} else {
				escalated := a.cfg.Router.ReportFailure()
				if escalated != nil {
					if a.cfg.Metrics != nil && escalated.Tier != model.Tier {
						a.cfg.Metrics.RecordEscalation(string(model.Tier), string(escalated.Tier))
					}
					if escalated.ID != model.ID {
						usage.Escalations++
						model = *escalated
					}
				}
				resp, callErr = a.callModel(ctx, &model, entries, toolInventory, phase)
			}
		}
		if callErr != nil {
			a.cfg.Router.ReportSuccess(analysis.Level, time.Since(callStart), false)
			if a.cfg.Metrics != nil {
				a.cfg.Metrics.RecordError("runtime", "model_call_failed")
			}
			return false, fmt.Errorf("model call failed after retry: %w", callErr)
		}
		a.cfg.Router.ReportSuccess(analysis.Level, resp.Latency, true)
		usage.CallsByTier[string(model.Tier)]++

		if err := a.trans.Append(resp.Entry); err != nil {
			return false, fmt.Errorf("invariant violation appending assistant entry: %w", err)
		}

		if resp.Entry.HasToolUse() {
			if err := a.executeToolUses(ctx, phase, resp.Entry, discoveries); err != nil {
				return false, err
			}
			continue
		}

		text := resp.Entry.Text()
		a.mon.ObserveAssistantText(text)
		if phaseCompletionMet(*phase, text) {
			return true, nil
		}
		if a.mon.Decide().SuggestedAction == types.ActionComplete {
			return true, nil
		}
	}
	return false, nil
}

// executeToolUses invokes every tool_use block on an assistant entry
// in order and appends a single paired user entry carrying every
// tool_result, per spec.md §4.6 step 5's "tool_use -> invoke
// sequentially -> single paired tool_result entry" requirement.
func (a *Agent) executeToolUses(ctx context.Context, phase *types.Phase, assistant types.Entry, discoveries *[]string) error {
	result := types.Entry{Role: types.RoleUser}
	for _, block := range assistant.Content {
		if block.ToolUse == nil {
			continue
		}
		callStart := time.Now()
		outcome := a.cfg.Tools.Invoke(ctx, block.ToolUse.Name, block.ToolUse.Input)
		duration := time.Since(callStart)

		if a.cfg.Metrics != nil {
			status := "success"
			if !outcome.Success {
				status = "failure"
			}
			a.cfg.Metrics.RecordToolExecution(block.ToolUse.Name, status, duration.Seconds())
		}

		rec := types.ToolCallRecord{
			Tool:       block.ToolUse.Name,
			Input:      string(block.ToolUse.Input),
			Output:     outcome.Output,
			Success:    outcome.Success,
			Timestamp:  callStart,
			DurationMs: duration.Milliseconds(),
			Insights:   outcome.Insights,
		}
		a.mon.RecordToolCall(rec)
		if outcome.Success {
			a.mon.MarkProgress(progressMarker(rec))
			*discoveries = append(*discoveries, outcome.Insights...)
		}

		content := outcome.Output
		if !outcome.Success {
			content = outcome.Message
		}
		result.Content = append(result.Content, types.ContentBlock{ToolResult: &types.ToolResult{
			CorrelationID: block.ToolUse.ID,
			Content:       content,
			IsError:       !outcome.Success,
			Truncated:     outcome.Truncated,
		}})

		a.cfg.Emit(types.NewEvent(types.EventToolCall, a.task.ID).WithPhase(phase.ID).WithToolCall(rec))
	}
	if len(result.Content) == 0 {
		return nil
	}
	if err := a.trans.Append(result); err != nil {
		return fmt.Errorf("invariant violation appending tool results: %w", err)
	}
	return nil
}

// selectModel asks the Model Router for a model once per phase. A
// model already selected for this task (possibly escalated by a prior
// phase's failures) is kept rather than re-derived from the new
// phase's complexity, which would silently undo the escalation — the
// router has no "reselect without downgrading" primitive, so the
// agent enforces the monotone-escalation property itself.
func (a *Agent) selectModel(phase *types.Phase) (models.Model, types.ComplexityAnalysis, error) {
	if existing := a.cfg.Router.Selected(); existing != nil {
		analysis := routing.Analyze(a.task.Description, routing.TaskContext{
			Phase:          string(phase.Kind()),
			ExploringPhase: phase.Kind() == types.PhaseExploration,
		})
		return *existing, analysis, nil
	}
	analysis, model, err := a.cfg.Router.SelectForTask(a.task.Description, routing.TaskContext{
		Phase:          string(phase.Kind()),
		ExploringPhase: phase.Kind() == types.PhaseExploration,
	})
	if err != nil {
		return models.Model{}, analysis, err
	}
	return *model, analysis, nil
}

func (a *Agent) callModel(ctx context.Context, model *models.Model, entries []types.Entry, toolInventory []types.ToolDescriptor, phase *types.Phase) (providers.CompletionResponse, error) {
	provider, err := a.cfg.ProviderFactory(ctx, model.Provider, a.cfg.Credentials)
	if err != nil {
		return providers.CompletionResponse{}, err
	}
	if a.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = a.cfg.Tracer.TraceLLMRequest(ctx, string(model.Provider), model.ID)
		defer span.End()
	}
	start := time.Now()
	resp, err := provider.Complete(ctx, providers.CompletionRequest{
		Model:     model.ID,
		System:    systemPrompt(a.task, *phase),
		Entries:   entries,
		Tools:     toolInventory,
		MaxTokens: a.cfg.MaxOutputTokens,
	})
	if a.cfg.Metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		a.cfg.Metrics.RecordLLMRequest(string(model.Provider), model.ID, string(model.Tier), status, time.Since(start).Seconds(), resp.InputTokens, resp.OutputTokens)
	}
	return resp, err
}

func (a *Agent) update(fn func(*types.Task)) {
	if a.cfg.Updater == nil {
		fn(&a.task)
		return
	}
	a.cfg.Updater.Update(a.task.ID, fn)
}

func (a *Agent) complete(ctx context.Context, result types.TaskResult, start time.Time) {
	now := time.Now()
	duration := now.Sub(start).Milliseconds()
	a.update(func(t *types.Task) {
		t.Status = types.TaskCompleted
		t.Result = &result
		t.CompletedAt = &now
		t.DurationMs = &duration
	})
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.TaskFinished("completed", now.Sub(start).Seconds(), result.Iterations)
	}
	a.cfg.Emit(types.NewEvent(types.EventTaskCompleted, a.task.ID).WithMeta(map[string]interface{}{
		"iterations": result.Iterations,
		"approach":   result.Approach,
	}))
}

func (a *Agent) fail(ctx context.Context, kind, message string, start time.Time) {
	now := time.Now()
	duration := now.Sub(start).Milliseconds()
	taskErr := &types.TaskError{Kind: kind, Message: message}
	a.update(func(t *types.Task) {
		t.Status = types.TaskFailed
		t.Error = taskErr
		t.CompletedAt = &now
		t.DurationMs = &duration
	})
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.TaskFinished("failed", now.Sub(start).Seconds(), a.mon.State().Iteration)
		a.cfg.Metrics.RecordError("runtime", kind)
	}
	if a.cfg.Logger != nil {
		a.cfg.Logger.Error(ctx, "task failed", "task_id", a.task.ID, "kind", kind, "message", message)
	}
	a.cfg.Emit(types.NewEvent(types.EventTaskFailed, a.task.ID).WithMessage(message).WithMeta(map[string]interface{}{"kind": kind}))
}

func (a *Agent) cancelOut(ctx context.Context, start time.Time) {
	now := time.Now()
	duration := now.Sub(start).Milliseconds()
	a.update(func(t *types.Task) {
		t.Status = types.TaskCancelled
		t.CompletedAt = &now
		t.DurationMs = &duration
	})
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.TaskFinished("cancelled", now.Sub(start).Seconds(), a.mon.State().Iteration)
	}
	a.cfg.Emit(types.NewEvent(types.EventTaskCancelled, a.task.ID))
}

func executorPhaseFor(kind types.PhaseKind) types.ExecutorPhase {
	switch kind {
	case types.PhaseExploration:
		return types.ExecutorExploring
	case types.PhasePlanning:
		return types.ExecutorPlanning
	case types.PhaseVerification, types.PhaseReporting:
		return types.ExecutorCompleting
	default:
		return types.ExecutorExecuting
	}
}

// isContextOverflow classifies a model-call error as a context/token
// overflow rather than a transient or provider-side failure, per
// spec.md §4.6 step 5's token/pairing-error branch. Providers surface
// this condition in their error text rather than a typed error, since
// the wire-level reason strings differ by backend.
func isContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"context_length", "maximum context length", "context length exceeded",
		"too many tokens", "prompt is too long", "input is too long",
		"context window",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
