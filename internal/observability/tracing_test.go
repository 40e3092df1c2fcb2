package observability

import (
	"context"
	"errors"
	"testing"
)

func TestNewTracerNoopWithoutEndpoint(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "orchestrator-test"})
	defer shutdown(context.Background())

	ctx, span := tracer.TraceTask(context.Background(), "task-1")
	if span == nil {
		t.Fatal("expected a non-nil span from the no-op tracer")
	}
	span.End()
	if GetTraceID(ctx) != "" {
		t.Fatalf("expected empty trace id for a non-recording no-op span")
	}
}

func TestRecordErrorOnNoopSpan(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "orchestrator-test"})
	defer shutdown(context.Background())

	_, span := tracer.TraceToolExecution(context.Background(), "shell")
	defer span.End()

	tracer.RecordError(span, errors.New("boom"))
}

func TestMapCarrierRoundTrip(t *testing.T) {
	carrier := MapCarrier{}
	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected round-tripped value, got %q", got)
	}
	if len(carrier.Keys()) != 1 {
		t.Fatalf("expected one key, got %d", len(carrier.Keys()))
	}
}
