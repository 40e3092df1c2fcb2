package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// NewMetrics registers on the default Prometheus registry and may only
// be called once per process, so the tests share one instance.
var testMetrics = NewMetrics()

func TestRecordToolExecutionUpdatesCounters(t *testing.T) {
	m := testMetrics
	m.RecordToolExecution("shell", "success", 0.25)

	got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("shell", "success"))
	if got != 1 {
		t.Fatalf("expected counter to be 1, got %v", got)
	}
}

func TestTaskStartedAndFinishedTogglesActiveGauge(t *testing.T) {
	m := testMetrics
	m.TaskStarted()
	if got := testutil.ToFloat64(m.ActiveTasks); got != 1 {
		t.Fatalf("expected active tasks gauge 1, got %v", got)
	}
	m.TaskFinished("completed", 12.5, 4)
	if got := testutil.ToFloat64(m.ActiveTasks); got != 0 {
		t.Fatalf("expected active tasks gauge 0 after finish, got %v", got)
	}
}
