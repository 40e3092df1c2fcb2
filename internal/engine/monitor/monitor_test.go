package monitor

import (
	"testing"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

func TestMonitor_WarmupForcesContinue(t *testing.T) {
	m := New(Config{Thresholds: types.MonitorThresholds{MinIterations: 3, MaxStallIterations: 5, SoftCap: 20, HardCap: 30}})
	for i := 0; i < 2; i++ {
		m.RecordIteration()
		d := m.Decide()
		if !d.ShouldContinue || d.SuggestedAction != types.ActionContinue {
			t.Fatalf("iteration %d: Decide() = %+v, want continue (warmup)", i, d)
		}
	}
}

func TestMonitor_HardCapAborts(t *testing.T) {
	m := New(Config{Thresholds: types.MonitorThresholds{MinIterations: 0, MaxStallIterations: 1000, SoftCap: 5, HardCap: 5}})
	for i := 0; i < 5; i++ {
		m.RecordIteration()
		m.MarkProgress("progress-" + string(rune('a'+i)))
	}
	d := m.Decide()
	if d.ShouldContinue || d.SuggestedAction != types.ActionAbort {
		t.Fatalf("Decide() at hard cap = %+v, want abort", d)
	}
}

func TestMonitor_RepeatedToolCallsStall(t *testing.T) {
	m := New(Config{Thresholds: types.DefaultMonitorThresholds()})
	for i := 0; i < 3; i++ {
		m.RecordIteration()
		m.RecordToolCall(types.ToolCallRecord{Tool: "shell", Input: `{"command":"ls"}`})
	}
	d := m.Decide()
	if d.SuggestedAction != types.ActionPivot {
		t.Fatalf("Decide() after 3 identical calls = %+v, want pivot", d)
	}
	if d.ShouldContinue {
		t.Error("Decide() ShouldContinue = true, want false on stall")
	}
}

func TestMonitor_OscillationStalls(t *testing.T) {
	m := New(Config{Thresholds: types.DefaultMonitorThresholds()})
	calls := []string{"read_file", "list_files", "read_file", "list_files"}
	for i, name := range calls {
		m.RecordIteration()
		_ = i
		m.RecordToolCall(types.ToolCallRecord{Tool: name, Input: "{}"})
	}
	d := m.Decide()
	if d.SuggestedAction != types.ActionPivot {
		t.Fatalf("Decide() after ABAB pattern = %+v, want pivot", d)
	}
}

func TestMonitor_CompletionSignalsComplete(t *testing.T) {
	m := New(Config{Thresholds: types.MonitorThresholds{MinIterations: 0, MaxStallIterations: 100, SoftCap: 100, HardCap: 200}})
	m.RecordIteration()
	m.ObserveAssistantText("All done! The task complete and verified.")
	m.RecordIteration()
	m.ObserveAssistantText("Finished successfully.")
	d := m.Decide()
	if d.SuggestedAction != types.ActionComplete {
		t.Fatalf("Decide() with 2 completion signals = %+v, want complete", d)
	}
}

func TestMonitor_AllMilestonesCompletedTriggersComplete(t *testing.T) {
	m := New(Config{Thresholds: types.MonitorThresholds{MinIterations: 0, MaxStallIterations: 100, SoftCap: 100, HardCap: 200}})
	m.AddMilestones([]types.Milestone{{ID: "m1", Description: "first"}, {ID: "m2", Description: "second"}})
	m.RecordIteration()
	m.CompleteMilestone("m1")
	m.CompleteMilestone("m2")
	d := m.Decide()
	if d.SuggestedAction != types.ActionComplete {
		t.Fatalf("Decide() with all milestones done = %+v, want complete", d)
	}
}

func TestMonitor_StallWindowAsksUser(t *testing.T) {
	m := New(Config{Thresholds: types.MonitorThresholds{MinIterations: 0, MaxStallIterations: 3, SoftCap: 100, HardCap: 200}})
	m.RecordIteration()
	m.MarkProgress("only-progress")
	for i := 0; i < 4; i++ {
		m.RecordIteration()
	}
	d := m.Decide()
	if d.SuggestedAction != types.ActionAskUser {
		t.Fatalf("Decide() past stall window = %+v, want askUser", d)
	}
}

func TestMonitor_SoftCapWarnsButContinues(t *testing.T) {
	m := New(Config{Thresholds: types.MonitorThresholds{MinIterations: 0, MaxStallIterations: 100, SoftCap: 5, HardCap: 20}})
	for i := 0; i < 5; i++ {
		m.RecordIteration()
		m.MarkProgress("p" + string(rune('a'+i)))
	}
	d := m.Decide()
	if !d.ShouldContinue || d.Warning == "" {
		t.Fatalf("Decide() at soft cap = %+v, want continue with warning", d)
	}
}

func TestMonitor_ReobservingAMarkerIsNotNewProgress(t *testing.T) {
	m := New(Config{Thresholds: types.MonitorThresholds{MinIterations: 0, MaxStallIterations: 2, SoftCap: 100, HardCap: 200}})
	m.RecordIteration()
	m.MarkProgress("same")
	for i := 0; i < 3; i++ {
		m.RecordIteration()
		m.MarkProgress("same")
	}
	d := m.Decide()
	if d.SuggestedAction != types.ActionAskUser {
		t.Fatalf("Decide() after repeated marker = %+v, want askUser (no fresh progress)", d)
	}
}

func TestPreAnalyze_LongerDescriptionsWidenCaps(t *testing.T) {
	short := PreAnalyze("list files")
	long := PreAnalyze("first explore the entire repository across every service, then refactor the schema, then migrate the database, then test thoroughly, finally write a report")
	if long.HardCap <= short.HardCap {
		t.Errorf("PreAnalyze(long).HardCap = %d, want > short's %d", long.HardCap, short.HardCap)
	}
}
