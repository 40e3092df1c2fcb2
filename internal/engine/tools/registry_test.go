package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

func echoTool() Tool {
	schema, _ := json.Marshal(map[string]interface{}{
		"type":     "object",
		"required": []string{"message"},
		"properties": map[string]interface{}{
			"message": map[string]interface{}{"type": "string"},
		},
	})
	return Tool{
		Descriptor: types.ToolDescriptor{Name: "echo", Description: "echoes input", Parameters: schema},
		Handler: func(ctx context.Context, input json.RawMessage) (string, []string, error) {
			var args struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", nil, &ValidationError{Err: err}
			}
			return args.Message, nil, nil
		},
	}
}

func TestRegistry_InvokeSuccess(t *testing.T) {
	r := NewRegistry(DefaultRegistryConfig())
	if err := r.Register(echoTool()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	outcome := r.Invoke(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if outcome.Output != "hi" {
		t.Errorf("Output = %q, want %q", outcome.Output, "hi")
	}
}

func TestRegistry_InvokeUnknownToolNeverRaises(t *testing.T) {
	r := NewRegistry(DefaultRegistryConfig())
	outcome := r.Invoke(context.Background(), "does-not-exist", json.RawMessage(`{}`))
	if outcome.Success {
		t.Fatal("expected failure")
	}
	if outcome.Kind != types.ToolErrNotFound {
		t.Errorf("Kind = %s, want %s", outcome.Kind, types.ToolErrNotFound)
	}
}

func TestRegistry_InvokeValidationFailureNeverRaises(t *testing.T) {
	r := NewRegistry(DefaultRegistryConfig())
	if err := r.Register(echoTool()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	outcome := r.Invoke(context.Background(), "echo", json.RawMessage(`{}`))
	if outcome.Success {
		t.Fatal("expected validation failure")
	}
	if outcome.Kind != types.ToolErrValidation {
		t.Errorf("Kind = %s, want %s", outcome.Kind, types.ToolErrValidation)
	}
}

func TestRegistry_InvokeTimeout(t *testing.T) {
	r := NewRegistry(RegistryConfig{DefaultTimeout: 10 * time.Millisecond, MaxOutputBytes: 1024})
	slow := Tool{
		Descriptor: types.ToolDescriptor{Name: "slow", Parameters: json.RawMessage(`{"type":"object"}`)},
		Handler: func(ctx context.Context, input json.RawMessage) (string, []string, error) {
			select {
			case <-time.After(time.Second):
				return "too slow", nil, nil
			case <-ctx.Done():
				return "", nil, ctx.Err()
			}
		},
	}
	if err := r.Register(slow); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	outcome := r.Invoke(context.Background(), "slow", json.RawMessage(`{}`))
	if outcome.Success {
		t.Fatal("expected timeout failure")
	}
	if outcome.Kind != types.ToolErrTimeout {
		t.Errorf("Kind = %s, want %s", outcome.Kind, types.ToolErrTimeout)
	}
	if !outcome.Retryable {
		t.Error("expected a timeout to be retryable")
	}
}

func TestRegistry_OutputCappedAtMaxBytes(t *testing.T) {
	r := NewRegistry(RegistryConfig{DefaultTimeout: time.Second, MaxOutputBytes: 4})
	big := Tool{
		Descriptor: types.ToolDescriptor{Name: "big", Parameters: json.RawMessage(`{"type":"object"}`)},
		Handler: func(ctx context.Context, input json.RawMessage) (string, []string, error) {
			return "0123456789", nil, nil
		},
	}
	if err := r.Register(big); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	outcome := r.Invoke(context.Background(), "big", json.RawMessage(`{}`))
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if !outcome.Truncated {
		t.Error("expected Truncated to be true")
	}
	if len(outcome.Output) != 4 {
		t.Errorf("Output len = %d, want 4", len(outcome.Output))
	}
}

func TestRegistry_RedactsSecretsInOutput(t *testing.T) {
	r := NewRegistry(DefaultRegistryConfig())
	leaky := Tool{
		Descriptor: types.ToolDescriptor{Name: "leaky", Parameters: json.RawMessage(`{"type":"object"}`)},
		Handler: func(ctx context.Context, input json.RawMessage) (string, []string, error) {
			return "key=sk-ant-" + repeat("a", 100), nil, nil
		},
	}
	if err := r.Register(leaky); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	outcome := r.Invoke(context.Background(), "leaky", json.RawMessage(`{}`))
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if contains(outcome.Output, "sk-ant-") {
		t.Errorf("expected secret to be redacted, got %q", outcome.Output)
	}
}

func TestRegistry_HandlerErrorNeverRaises(t *testing.T) {
	r := NewRegistry(DefaultRegistryConfig())
	failing := Tool{
		Descriptor: types.ToolDescriptor{Name: "failing", Parameters: json.RawMessage(`{"type":"object"}`)},
		Handler: func(ctx context.Context, input json.RawMessage) (string, []string, error) {
			return "", nil, errors.New("boom")
		},
	}
	if err := r.Register(failing); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	outcome := r.Invoke(context.Background(), "failing", json.RawMessage(`{}`))
	if outcome.Success {
		t.Fatal("expected failure outcome")
	}
	if outcome.Kind != types.ToolErrExecution {
		t.Errorf("Kind = %s, want %s", outcome.Kind, types.ToolErrExecution)
	}
}

func repeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
