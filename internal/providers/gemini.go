package providers

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/genai"

	"github.com/agentforge/orchestrator/internal/engine/types"
	"github.com/agentforge/orchestrator/internal/models"
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey     string
	MaxRetries int
	RetryDelay time.Duration
}

// GeminiProvider calls Gemini models via google.golang.org/genai.
type GeminiProvider struct {
	BaseProvider
	client *genai.Client
}

// NewGeminiProvider builds a Gemini-backed Provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{
		BaseProvider: NewBaseProvider("gemini", cfg.MaxRetries, cfg.RetryDelay),
		client:       client,
	}, nil
}

// Complete sends one generate-content request and folds the reply
// into a single assistant transcript entry.
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	contents := toGeminiContents(req.Entries)
	genConfig := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokensOr(req.MaxTokens, 4096)),
		Temperature:     genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if tools := toGeminiTools(req.Tools); len(tools) > 0 {
		genConfig.Tools = tools
	}

	var resp *genai.GenerateContentResponse
	start := time.Now()
	err := p.Retry(ctx, models.IsFailoverError, func() error {
		var callErr error
		resp, callErr = p.client.Models.GenerateContent(ctx, req.Model, contents, genConfig)
		return callErr
	})
	latency := time.Since(start)
	if err != nil {
		return CompletionResponse{}, models.CoerceToFailoverError(err, p.Name(), req.Model)
	}

	entry := types.Entry{Role: types.RoleAssistant}
	var stopReason string
	var inputTokens, outputTokens int
	if resp != nil {
		if resp.UsageMetadata != nil {
			inputTokens = int(resp.UsageMetadata.PromptTokenCount)
			outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		if len(resp.Candidates) > 0 {
			cand := resp.Candidates[0]
			stopReason = string(cand.FinishReason)
			if cand.Content != nil {
				for _, part := range cand.Content.Parts {
					switch {
					case part.Text != "":
						entry.Content = append(entry.Content, types.ContentBlock{Text: part.Text})
					case part.FunctionCall != nil:
						input, _ := json.Marshal(part.FunctionCall.Args)
						entry.Content = append(entry.Content, types.ContentBlock{
							ToolUse: &types.ToolUse{
								ID:    part.FunctionCall.ID,
								Name:  part.FunctionCall.Name,
								Input: input,
							},
						})
					}
				}
			}
		}
	}

	return CompletionResponse{
		Entry:        entry,
		StopReason:   stopReason,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Latency:      latency,
	}, nil
}

func toGeminiContents(entries []types.Entry) []*genai.Content {
	out := make([]*genai.Content, 0, len(entries))
	for _, e := range entries {
		role := genai.RoleUser
		if e.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		var parts []*genai.Part
		for _, b := range e.Content {
			switch {
			case b.Text != "":
				parts = append(parts, genai.NewPartFromText(b.Text))
			case b.ToolUse != nil:
				var args map[string]any
				_ = json.Unmarshal(b.ToolUse.Input, &args)
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: b.ToolUse.ID, Name: b.ToolUse.Name, Args: args},
				})
			case b.ToolResult != nil:
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       b.ToolResult.CorrelationID,
						Name:     b.ToolResult.CorrelationID,
						Response: map[string]any{"content": b.ToolResult.Content, "isError": b.ToolResult.IsError},
					},
				})
			}
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out
}

func toGeminiTools(descriptors []types.ToolDescriptor) []*genai.Tool {
	if len(descriptors) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(descriptors))
	for _, d := range descriptors {
		var schema genai.Schema
		_ = json.Unmarshal(d.Parameters, &schema)
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  &schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
