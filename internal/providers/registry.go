package providers

import (
	"context"
	"fmt"

	"github.com/agentforge/orchestrator/internal/models"
)

// Credentials holds the per-provider secrets and endpoint overrides
// needed to construct a live Provider. Zero values use SDK defaults
// (e.g. ambient AWS credentials for Bedrock).
type Credentials struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	GeminiAPIKey    string
	BedrockRegion   string
	MaxRetries      int
}

// New constructs the concrete Provider backing a catalog entry's
// models.Provider, so the Model Router only ever deals in tiers and
// the Agent Runtime only ever deals in the Provider interface.
func New(ctx context.Context, provider models.Provider, creds Credentials) (Provider, error) {
	switch provider {
	case models.ProviderAnthropic:
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:     creds.AnthropicAPIKey,
			MaxRetries: creds.MaxRetries,
		}), nil
	case models.ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:     creds.OpenAIAPIKey,
			BaseURL:    creds.OpenAIBaseURL,
			MaxRetries: creds.MaxRetries,
		}), nil
	case models.ProviderBedrock:
		return NewBedrockProvider(ctx, BedrockConfig{
			Region:     creds.BedrockRegion,
			MaxRetries: creds.MaxRetries,
		})
	case models.ProviderGemini:
		return NewGeminiProvider(ctx, GeminiConfig{
			APIKey:     creds.GeminiAPIKey,
			MaxRetries: creds.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("providers: unknown provider %q", provider)
	}
}
