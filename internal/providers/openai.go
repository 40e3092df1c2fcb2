package providers

import (
	"context"
	"encoding/json"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentforge/orchestrator/internal/engine/types"
	"github.com/agentforge/orchestrator/internal/models"
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIProvider calls GPT models via go-openai.
type OpenAIProvider struct {
	BaseProvider
	client *openai.Client
}

// NewOpenAIProvider builds an OpenAI-backed Provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		BaseProvider: NewBaseProvider("openai", cfg.MaxRetries, cfg.RetryDelay),
		client:       openai.NewClientWithConfig(clientCfg),
	}
}

// Complete sends one chat-completion request and folds the reply into
// a single assistant transcript entry.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	messages := toOpenAIMessages(req.System, req.Entries)
	tools := toOpenAITools(req.Tools)

	params := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   maxTokensOr(req.MaxTokens, 4096),
		Temperature: float32(req.Temperature),
	}

	var resp openai.ChatCompletionResponse
	start := time.Now()
	err := p.Retry(ctx, models.IsFailoverError, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, params)
		return callErr
	})
	latency := time.Since(start)
	if err != nil {
		return CompletionResponse{}, models.CoerceToFailoverError(err, p.Name(), req.Model)
	}

	entry := types.Entry{Role: types.RoleAssistant}
	var stopReason string
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		stopReason = string(choice.FinishReason)
		if choice.Message.Content != "" {
			entry.Content = append(entry.Content, types.ContentBlock{Text: choice.Message.Content})
		}
		for _, call := range choice.Message.ToolCalls {
			entry.Content = append(entry.Content, types.ContentBlock{
				ToolUse: &types.ToolUse{
					ID:    call.ID,
					Name:  call.Function.Name,
					Input: json.RawMessage(call.Function.Arguments),
				},
			})
		}
	}

	return CompletionResponse{
		Entry:        entry,
		StopReason:   stopReason,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Latency:      latency,
	}, nil
}

func toOpenAIMessages(system string, entries []types.Entry) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(entries)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, e := range entries {
		role := openai.ChatMessageRoleUser
		if e.Role == types.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		var text string
		var toolCalls []openai.ToolCall
		for _, b := range e.Content {
			switch {
			case b.Text != "":
				text += b.Text
			case b.ToolUse != nil:
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   b.ToolUse.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.ToolUse.Name,
						Arguments: string(b.ToolUse.Input),
					},
				})
			case b.ToolResult != nil:
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    b.ToolResult.Content,
					ToolCallID: b.ToolResult.CorrelationID,
				})
			}
		}
		if text != "" || len(toolCalls) > 0 {
			out = append(out, openai.ChatCompletionMessage{Role: role, Content: text, ToolCalls: toolCalls})
		}
	}
	return out
}

func toOpenAITools(descriptors []types.ToolDescriptor) []openai.Tool {
	out := make([]openai.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  json.RawMessage(d.Parameters),
			},
		})
	}
	return out
}
