package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types/document"

	"github.com/agentforge/orchestrator/internal/engine/types"
	"github.com/agentforge/orchestrator/internal/models"
)

// BedrockConfig configures the Bedrock provider.
type BedrockConfig struct {
	Region     string
	MaxRetries int
	RetryDelay time.Duration
}

// BedrockProvider calls models hosted on AWS Bedrock through its
// provider-agnostic Converse API, so one adapter covers every model
// family Bedrock exposes.
type BedrockProvider struct {
	BaseProvider
	client *bedrockruntime.Client
}

// NewBedrockProvider builds a Bedrock-backed Provider.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	return &BedrockProvider{
		BaseProvider: NewBaseProvider("bedrock", cfg.MaxRetries, cfg.RetryDelay),
		client:       bedrockruntime.NewFromConfig(awsCfg),
	}, nil
}

// Complete sends one Converse request and folds the reply into a
// single assistant transcript entry.
func (p *BedrockProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: toBedrockMessages(req.Entries),
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(maxTokensOr(req.MaxTokens, 4096))),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if tools := toBedrockTools(req.Tools); len(tools) > 0 {
		input.ToolConfig = &brtypes.ToolConfiguration{Tools: tools}
	}

	var out *bedrockruntime.ConverseOutput
	start := time.Now()
	err := p.Retry(ctx, models.IsFailoverError, func() error {
		var callErr error
		out, callErr = p.client.Converse(ctx, input)
		return callErr
	})
	latency := time.Since(start)
	if err != nil {
		return CompletionResponse{}, models.CoerceToFailoverError(err, p.Name(), req.Model)
	}

	entry := types.Entry{Role: types.RoleAssistant}
	var stopReason string
	var inputTokens, outputTokens int
	if out != nil {
		stopReason = string(out.StopReason)
		if out.Usage != nil {
			inputTokens = int(aws.ToInt32(out.Usage.InputTokens))
			outputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
		}
		if msgMember, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
			entry = fromBedrockMessage(msgMember.Value)
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

func toBedrockMessages(entries []types.Entry) []brtypes.Message {
	out := make([]brtypes.Message, 0, len(entries))
	for _, e := range entries {
		role := brtypes.ConversationRoleUser
		if e.Role == types.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		var blocks []brtypes.ContentBlock
		for _, b := range e.Content {
			switch {
			case b.Text != "":
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: b.Text})
			case b.ToolUse != nil:
				var input interface{}
				_ = json.Unmarshal(b.ToolUse.Input, &input)
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
					Value: brtypes.ToolUseBlock{
						ToolUseId: aws.String(b.ToolUse.ID),
						Name:      aws.String(b.ToolUse.Name),
						Input:     document.NewLazyDocument(input),
					},
				})
			case b.ToolResult != nil:
				status := brtypes.ToolResultStatusSuccess
				if b.ToolResult.IsError {
					status = brtypes.ToolResultStatusError
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{
					Value: brtypes.ToolResultBlock{
						ToolUseId: aws.String(b.ToolResult.CorrelationID),
						Status:    status,
						Content: []brtypes.ToolResultContentBlock{
							&brtypes.ToolResultContentBlockMemberText{Value: b.ToolResult.Content},
						},
					},
				})
			}
		}
		out = append(out, brtypes.Message{Role: role, Content: blocks})
	}
	return out
}

func toBedrockTools(descriptors []types.ToolDescriptor) []brtypes.Tool {
	out := make([]brtypes.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		var schema interface{}
		_ = json.Unmarshal(d.Parameters, &schema)
		out = append(out, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(d.Name),
				Description: aws.String(d.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(schema),
				},
			},
		})
	}
	return out
}

func fromBedrockMessage(msg brtypes.Message) types.Entry {
	entry := types.Entry{Role: types.RoleAssistant}
	for _, block := range msg.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			entry.Content = append(entry.Content, types.ContentBlock{Text: b.Value})
		case *brtypes.ContentBlockMemberToolUse:
			input, _ := b.Value.Input.MarshalSmithyDocument()
			entry.Content = append(entry.Content, types.ContentBlock{
				ToolUse: &types.ToolUse{
					ID:    aws.ToString(b.Value.ToolUseId),
					Name:  aws.ToString(b.Value.Name),
					Input: json.RawMessage(input),
				},
			})
		}
	}
	return entry
}
