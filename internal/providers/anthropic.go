package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentforge/orchestrator/internal/engine/types"
	"github.com/agentforge/orchestrator/internal/models"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey     string
	MaxRetries int
	RetryDelay time.Duration
}

// AnthropicProvider calls Claude models via anthropic-sdk-go.
type AnthropicProvider struct {
	BaseProvider
	client anthropic.Client
}

// NewAnthropicProvider builds an Anthropic-backed Provider.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", cfg.MaxRetries, cfg.RetryDelay),
		client:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
	}
}

// Complete sends one message request and folds the reply into a
// single assistant transcript entry.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokensOr(req.MaxTokens, 4096)),
		System:    []anthropic.TextBlockParam{{Text: req.System}},
		Messages:  toAnthropicMessages(req.Entries),
		Tools:     toAnthropicTools(req.Tools),
	}

	var msg *anthropic.Message
	start := time.Now()
	err := p.Retry(ctx, models.IsFailoverError, func() error {
		var callErr error
		msg, callErr = p.client.Messages.New(ctx, params)
		return callErr
	})
	latency := time.Since(start)
	if err != nil {
		return CompletionResponse{}, models.CoerceToFailoverError(err, p.Name(), req.Model)
	}

	entry := types.Entry{Role: types.RoleAssistant}
	var inputTokens, outputTokens int
	if msg != nil {
		inputTokens = int(msg.Usage.InputTokens)
		outputTokens = int(msg.Usage.OutputTokens)
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				entry.Content = append(entry.Content, types.ContentBlock{Text: block.Text})
			case "tool_use":
				input, _ := json.Marshal(block.Input)
				entry.Content = append(entry.Content, types.ContentBlock{
					ToolUse: &types.ToolUse{ID: block.ID, Name: block.Name, Input: input},
				})
			}
		}
	}

	return CompletionResponse{
		Entry:        entry,
		StopReason:   string(msg.StopReason),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Latency:      latency,
	}, nil
}

func toAnthropicMessages(entries []types.Entry) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(entries))
	for _, e := range entries {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range e.Content {
			switch {
			case b.Text != "":
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case b.ToolUse != nil:
				var input interface{}
				_ = json.Unmarshal(b.ToolUse.Input, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUse.ID, input, b.ToolUse.Name))
			case b.ToolResult != nil:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolResult.CorrelationID, b.ToolResult.Content, b.ToolResult.IsError))
			}
		}
		if e.Role == types.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func toAnthropicTools(descriptors []types.ToolDescriptor) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(descriptors))
	for _, d := range descriptors {
		var schema anthropic.ToolInputSchemaParam
		_ = json.Unmarshal(d.Parameters, &schema)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

func maxTokensOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
