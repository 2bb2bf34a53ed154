package providers

import (
	"context"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/mtb-technology/reportflow/internal/llm"
	"github.com/mtb-technology/reportflow/internal/types"
)

// OpenAIProvider adapts OpenAI GPT models to the Provider contract.
type OpenAIProvider struct {
	client   *openai.LLM
	settings Settings
}

// NewOpenAIProvider creates a new OpenAI provider. The API key falls back
// to OPENAI_API_KEY when unset in settings.
func NewOpenAIProvider(settings Settings) (*OpenAIProvider, error) {
	apiKey := settings.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, &llm.AIError{
			Kind:     llm.KindAuthenticationFailed,
			Provider: "openai",
			Message:  "no API key configured",
		}
	}

	opts := []openai.Option{openai.WithToken(apiKey)}
	if settings.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(settings.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, llm.TranslateError("openai", err)
	}

	return &OpenAIProvider{client: client, settings: settings}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return string(llm.ProviderOpenAI)
}

// Generate sends the prompt and returns the full response.
func (p *OpenAIProvider) Generate(ctx context.Context, cfg llm.ResolvedConfig, prompt string) (*llm.Content, error) {
	resp, err := p.client.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)},
		buildCallOptions(cfg)...)
	if err != nil {
		return nil, llm.TranslateError(p.Name(), err)
	}
	return fromContentResponse(p.Name(), cfg.Model, resp)
}

// GenerateStream streams incremental output chunks.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, cfg llm.ResolvedConfig, prompt string) (<-chan llm.StreamChunk, error) {
	return streamContent(ctx, p.Name(), p.client, cfg, prompt)
}

// Health reports whether the adapter is usable. The check is local:
// constructing the client already validated credentials are present.
func (p *OpenAIProvider) Health(ctx context.Context) types.HealthStatus {
	if p.client == nil {
		return types.Unhealthy("openai client not initialized")
	}
	return types.Healthy("openai adapter ready")
}
