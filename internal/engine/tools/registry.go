// Package tools implements the Tool Registry & Invoker: a catalog of
// callable tools, JSON-Schema argument validation, timeout/byte-cap/
// redaction wrapping, and structured (never-raising) results.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// HandlerFunc performs the actual work of a tool. It may perform I/O
// (shell, HTTP, subprocess, browser automation) and is opaque to the
// agent loop. Returning an error is the normal way to report a failed
// invocation; the registry converts it into a structured ToolOutcome
// rather than letting it propagate.
type HandlerFunc func(ctx context.Context, input json.RawMessage) (output string, insights []string, err error)

// Tool is one entry in the registry: its provider-facing descriptor
// plus the handler that executes it.
type Tool struct {
	Descriptor types.ToolDescriptor
	Handler    HandlerFunc

	// Timeout overrides the registry's default per-tool timeout when
	// positive.
	Timeout time.Duration

	// Retryable marks errors from this tool as worth a model retry by
	// default (surfaced on the outcome so the model can react).
	Retryable bool
}

// RetryableError lets a handler mark an error as retryable even when
// the tool's own default says otherwise.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// ValidationError marks an error as an argument-validation failure
// rather than an execution failure.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// RegistryConfig bounds every invocation made through the registry.
type RegistryConfig struct {
	// DefaultTimeout applies to tools that don't set their own.
	DefaultTimeout time.Duration

	// MaxOutputBytes caps captured output; anything beyond this is
	// dropped and the outcome is marked Truncated.
	MaxOutputBytes int

	// RedactPatterns are regular expressions run over output before
	// it is returned to the model.
	RedactPatterns []string
}

// DefaultRegistryConfig returns conservative defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		DefaultTimeout: 30 * time.Second,
		MaxOutputBytes: 64 << 10,
	}
}

// Registry holds the set of tools available to a task's agent and
// invokes them under uniform timeout/cap/redaction rules.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*registeredTool
	config  RegistryConfig
	redact  *redactor
	schemas sync.Map // tool name -> *jsonschema.Schema
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// NewRegistry creates an empty registry with the given config.
func NewRegistry(config RegistryConfig) *Registry {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 30 * time.Second
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = 64 << 10
	}
	return &Registry{
		tools:  make(map[string]*registeredTool),
		config: config,
		redact: newRedactor(config.RedactPatterns),
	}
}

// Register adds or replaces a tool. The tool's parameter schema is
// compiled eagerly so a malformed schema fails at startup, not at
// first invocation.
func (r *Registry) Register(tool Tool) error {
	compiled, err := compileSchema(tool.Descriptor.Name, tool.Descriptor.Parameters)
	if err != nil {
		return fmt.Errorf("register tool %q: %w", tool.Descriptor.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Descriptor.Name] = &registeredTool{tool: tool, schema: compiled}
	return nil
}

// Descriptors returns the provider-facing catalog of every registered
// tool, for inclusion in a model request.
func (r *Registry) Descriptors() []types.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ToolDescriptor, 0, len(r.tools))
	for _, rt := range r.tools {
		out = append(out, rt.tool.Descriptor)
	}
	return out
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Invoke validates input against the tool's schema, runs the handler
// under a timeout, and returns a structured ToolOutcome. It never
// returns a non-nil error: every failure mode (unknown tool, invalid
// input, timeout, handler error) is represented in the outcome so the
// calling model can react, per spec.md §4.1.
func (r *Registry) Invoke(ctx context.Context, name string, input json.RawMessage) types.ToolOutcome {
	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return types.ToolOutcome{
			Success: false,
			Kind:    types.ToolErrNotFound,
			Message: fmt.Sprintf("tool not found: %s", name),
		}
	}

	if err := validateInput(rt.schema, input); err != nil {
		return types.ToolOutcome{
			Success: false,
			Kind:    types.ToolErrValidation,
			Message: err.Error(),
		}
	}

	timeout := rt.tool.Timeout
	if timeout <= 0 {
		timeout = r.config.DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type handlerResult struct {
		output   string
		insights []string
		err      error
	}
	resultCh := make(chan handlerResult, 1)
	go func() {
		output, insights, err := rt.tool.Handler(callCtx, input)
		select {
		case resultCh <- handlerResult{output, insights, err}:
		default:
		}
	}()

	select {
	case <-callCtx.Done():
		return types.ToolOutcome{
			Success:   false,
			Kind:      types.ToolErrTimeout,
			Message:   fmt.Sprintf("tool %q timed out after %s", name, timeout),
			Retryable: true,
		}
	case res := <-resultCh:
		if res.err != nil {
			return r.outcomeFromError(rt.tool, res.err)
		}
		output, truncated := r.capOutput(res.output)
		return types.ToolOutcome{
			Output:    r.redact.redact(output),
			Insights:  res.insights,
			Success:   true,
			Truncated: truncated,
		}
	}
}

func (r *Registry) outcomeFromError(tool Tool, err error) types.ToolOutcome {
	var valErr *ValidationError
	if asValidationError(err, &valErr) {
		return types.ToolOutcome{
			Success: false,
			Kind:    types.ToolErrValidation,
			Message: valErr.Error(),
		}
	}
	retryable := tool.Retryable
	var retryErr *RetryableError
	if asRetryableError(err, &retryErr) {
		retryable = true
		err = retryErr.Unwrap()
	}
	return types.ToolOutcome{
		Success:   false,
		Kind:      types.ToolErrExecution,
		Message:   r.redact.redact(err.Error()),
		Retryable: retryable,
	}
}

func (r *Registry) capOutput(output string) (string, bool) {
	if r.config.MaxOutputBytes <= 0 || len(output) <= r.config.MaxOutputBytes {
		return output, false
	}
	return output[:r.config.MaxOutputBytes], true
}

func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	compiler := jsonschema.NewCompiler()
	resourceName := "tool:" + name
	if err := compiler.AddResource(resourceName, bytesReader(schema)); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceName)
}

func validateInput(schema *jsonschema.Schema, input json.RawMessage) error {
	if schema == nil {
		return nil
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	var decoded interface{}
	if err := json.Unmarshal(input, &decoded); err != nil {
		return fmt.Errorf("decode tool input: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}
