// Package providers adapts the engine's transcript/tool types onto
// concrete LLM backends (Anthropic, OpenAI, Bedrock, Gemini).
package providers

import (
	"context"
	"time"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// CompletionRequest is one model call: a system prompt, the prepared
// transcript, and the available tool catalog.
type CompletionRequest struct {
	Model       string
	System      string
	Entries     []types.Entry
	Tools       []types.ToolDescriptor
	MaxTokens   int
	Temperature float64
}

// CompletionResponse is the model's reply, already folded into a
// single assistant transcript entry plus usage accounting.
type CompletionResponse struct {
	Entry        types.Entry
	StopReason   string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// Provider is the minimal surface the Model Router and Agent Runtime
// need from a concrete LLM backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// BaseProvider holds shared retry configuration for LLM providers,
// ported from the teacher's agent/providers.BaseProvider.
type BaseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
}

// NewBaseProvider creates a base provider with sane defaults.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return BaseProvider{name: name, maxRetries: maxRetries, retryDelay: retryDelay}
}

// Name returns the provider's registered name.
func (b *BaseProvider) Name() string { return b.name }

// Retry executes op with linear backoff while isRetryable(err) holds.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := op(); err == nil {
			return nil
		} else {
			lastErr = err
			if isRetryable == nil || !isRetryable(err) {
				return err
			}
			if attempt >= b.maxRetries {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.retryDelay * time.Duration(attempt)):
			}
		}
	}
	return lastErr
}
