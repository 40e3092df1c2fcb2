package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

func TestShellTool_RunsCommandInWorkspace(t *testing.T) {
	dir := t.TempDir()
	tool := NewShellTool(ShellConfig{WorkingDir: dir})

	outcome := invokeTool(t, tool, map[string]interface{}{"command": "echo hello"})
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	var result struct {
		Stdout   string `json:"stdout"`
		ExitCode int    `json:"exit_code"`
	}
	decodeOutcome(t, outcome.Output, &result)
	if result.ExitCode != 0 {
		t.Errorf("exit_code = %d, want 0", result.ExitCode)
	}
	if result.Stdout != "hello\n" {
		t.Errorf("stdout = %q, want %q", result.Stdout, "hello\n")
	}
}

func TestShellTool_RejectsEmptyCommand(t *testing.T) {
	tool := NewShellTool(ShellConfig{WorkingDir: t.TempDir()})
	_, _, err := tool.Handler(context.Background(), json.RawMessage(`{"command":""}`))
	if err == nil {
		t.Fatal("expected an error for an empty command")
	}
	var valErr *ValidationError
	if !asValidationError(err, &valErr) {
		t.Errorf("expected *ValidationError, got %T", err)
	}
}

func TestReadFileTool_ReadsWithinWorkspace(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "note.txt"), []byte("contents"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	tool := NewReadFileTool(FilesConfig{WorkingDir: dir})

	outcome := invokeTool(t, tool, map[string]interface{}{"path": "note.txt"})
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	var result struct {
		Content string `json:"content"`
	}
	decodeOutcome(t, outcome.Output, &result)
	if result.Content != "contents" {
		t.Errorf("content = %q, want %q", result.Content, "contents")
	}
}

func TestReadFileTool_RejectsEscapingPath(t *testing.T) {
	dir := t.TempDir()
	tool := NewReadFileTool(FilesConfig{WorkingDir: dir})
	_, _, err := tool.Handler(context.Background(), json.RawMessage(`{"path":"../../etc/passwd"}`))
	if err == nil {
		t.Fatal("expected an error for a path escaping the workspace")
	}
}

func TestWriteFileTool_CreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	tool := NewWriteFileTool(FilesConfig{WorkingDir: dir})

	outcome := invokeTool(t, tool, map[string]interface{}{"path": "nested/out.txt", "content": "data"})
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	got, err := os.ReadFile(filepath.Join(dir, "nested", "out.txt"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "data" {
		t.Errorf("file content = %q, want %q", got, "data")
	}
}

func TestListFilesTool_ListsWorkspaceRoot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	tool := NewListFilesTool(FilesConfig{WorkingDir: dir})

	outcome := invokeTool(t, tool, map[string]interface{}{})
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	var result struct {
		Entries []string `json:"entries"`
	}
	decodeOutcome(t, outcome.Output, &result)
	if len(result.Entries) != 2 {
		t.Fatalf("entries = %v, want 2 entries", result.Entries)
	}
}

func TestHTTPFetchTool_GetsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("pong"))
	}))
	defer server.Close()

	tool := NewHTTPFetchTool(HTTPConfig{})
	outcome := invokeTool(t, tool, map[string]interface{}{"url": server.URL})
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	var result struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	decodeOutcome(t, outcome.Output, &result)
	if result.Status != 200 {
		t.Errorf("status = %d, want 200", result.Status)
	}
	if result.Body != "pong" {
		t.Errorf("body = %q, want %q", result.Body, "pong")
	}
}

func TestHTTPFetchTool_RejectsDisallowedMethod(t *testing.T) {
	tool := NewHTTPFetchTool(HTTPConfig{AllowedMethods: []string{"GET"}})
	_, _, err := tool.Handler(context.Background(), json.RawMessage(`{"url":"http://example.com","method":"DELETE"}`))
	if err == nil {
		t.Fatal("expected an error for a disallowed method")
	}
	var valErr *ValidationError
	if !asValidationError(err, &valErr) {
		t.Errorf("expected *ValidationError, got %T", err)
	}
}

func TestHTTPFetchTool_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	tool := NewHTTPFetchTool(HTTPConfig{})
	_, _, err := tool.Handler(context.Background(), json.RawMessage(`{"url":"`+server.URL+`"}`))
	if err == nil {
		t.Fatal("expected an error for a 502 response")
	}
	var retryErr *RetryableError
	if !asRetryableError(err, &retryErr) {
		t.Errorf("expected *RetryableError, got %T", err)
	}
}

func invokeTool(t *testing.T, tool Tool, args map[string]interface{}) types.ToolOutcome {
	t.Helper()
	payload, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	r := NewRegistry(DefaultRegistryConfig())
	if err := r.Register(tool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return r.Invoke(context.Background(), tool.Descriptor.Name, payload)
}

func decodeOutcome(t *testing.T, output string, target interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(output), target); err != nil {
		t.Fatalf("decode outcome output: %v", err)
	}
}
