package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})
	logger.Info(context.Background(), "calling provider", "api_key", "sk-ant-REDACTED")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected valid JSON log line: %v", err)
	}
	if v, _ := line["api_key"].(string); !strings.Contains(v, "[REDACTED]") {
		t.Fatalf("expected api_key to be redacted, got %q", v)
	}
}

func TestLoggerThreadsRunAndTaskIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	ctx := AddRunID(context.Background(), "run-1")
	ctx = AddTaskID(ctx, "task-1")
	logger.Info(ctx, "phase started")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected valid JSON log line: %v", err)
	}
	if line["run_id"] != "run-1" || line["task_id"] != "task-1" {
		t.Fatalf("expected run_id/task_id fields, got %v", line)
	}
}

func TestLogLevelFromString(t *testing.T) {
	cases := map[string]string{"debug": "DEBUG", "warn": "WARN", "bogus": "INFO"}
	for in, want := range cases {
		if got := LogLevelFromString(in).String(); got != want {
			t.Fatalf("LogLevelFromString(%q) = %q, want %q", in, got, want)
		}
	}
}
