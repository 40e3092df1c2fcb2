package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// limitedBuffer caps captured stdout/stderr at a fixed number of
// bytes, silently discarding anything beyond the cap so a runaway
// command can't exhaust memory.
type limitedBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && len(b.buf) >= b.max {
		return len(p), nil
	}
	remaining := b.max - len(b.buf)
	if b.max > 0 && len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// ShellConfig controls the shell tool's sandboxing.
type ShellConfig struct {
	WorkingDir     string
	MaxOutputBytes int
	AllowedEnv     []string
}

// NewShellTool builds the built-in "shell" tool: it runs one command
// via /bin/sh, bounding output and scoping the working directory to
// the configured workspace.
func NewShellTool(cfg ShellConfig) Tool {
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 64 << 10
	}
	resolver := newPathResolver(cfg.WorkingDir)

	schema, _ := json.Marshal(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to execute via /bin/sh -c.",
			},
			"cwd": map[string]interface{}{
				"type":        "string",
				"description": "Working directory relative to the task workspace.",
			},
			"timeout_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in seconds (0 = use the tool default).",
				"minimum":     0,
			},
		},
		"required": []string{"command"},
	})

	return Tool{
		Descriptor: types.ToolDescriptor{
			Name:        "shell",
			Description: "Run a shell command in the task workspace and capture stdout/stderr.",
			Parameters:  schema,
		},
		Retryable: false,
		Handler: func(ctx context.Context, input json.RawMessage) (string, []string, error) {
			var args struct {
				Command        string `json:"command"`
				Cwd            string `json:"cwd"`
				TimeoutSeconds int    `json:"timeout_seconds"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", nil, &ValidationError{Err: fmt.Errorf("decode shell input: %w", err)}
			}
			command := strings.TrimSpace(args.Command)
			if command == "" {
				return "", nil, &ValidationError{Err: fmt.Errorf("command is required")}
			}

			dir := cfg.WorkingDir
			if args.Cwd != "" {
				resolved, err := resolver.resolve(args.Cwd)
				if err != nil {
					return "", nil, &ValidationError{Err: err}
				}
				dir = resolved
			}

			runCtx := ctx
			if args.TimeoutSeconds > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(ctx, time.Duration(args.TimeoutSeconds)*time.Second)
				defer cancel()
			}

			cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
			if dir != "" {
				cmd.Dir = dir
			}
			if len(cfg.AllowedEnv) > 0 {
				cmd.Env = filterEnv(os.Environ(), cfg.AllowedEnv)
			}
			stdout := newLimitedBuffer(cfg.MaxOutputBytes)
			stderr := newLimitedBuffer(cfg.MaxOutputBytes)
			cmd.Stdout = stdout
			cmd.Stderr = stderr

			start := time.Now()
			runErr := cmd.Run()
			duration := time.Since(start)

			result := map[string]interface{}{
				"command":     command,
				"stdout":      stdout.String(),
				"stderr":      stderr.String(),
				"exit_code":   exitCode(runErr),
				"duration_ms": duration.Milliseconds(),
			}
			payload, err := json.Marshal(result)
			if err != nil {
				return "", nil, fmt.Errorf("encode shell result: %w", err)
			}
			if runErr != nil && exitCode(runErr) < 0 {
				return string(payload), nil, &RetryableError{Err: fmt.Errorf("command failed to start: %w", runErr)}
			}
			return string(payload), nil, nil
		},
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func filterEnv(env []string, allowed []string) []string {
	allowSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowSet[name] = true
	}
	out := make([]string, 0, len(env))
	for _, kv := range env {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		if allowSet[kv[:idx]] {
			out = append(out, kv)
		}
	}
	return out
}
