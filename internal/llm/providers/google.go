package providers

import (
	"context"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/schema"

	"github.com/mtb-technology/reportflow/internal/llm"
	"github.com/mtb-technology/reportflow/internal/types"
)

// GoogleProvider adapts Google Gemini models to the Provider contract.
type GoogleProvider struct {
	client   *googleai.GoogleAI
	settings Settings
}

// NewGoogleProvider creates a new Google provider. The API key falls back
// to GOOGLE_API_KEY when unset in settings.
func NewGoogleProvider(ctx context.Context, settings Settings) (*GoogleProvider, error) {
	apiKey := settings.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, &llm.AIError{
			Kind:     llm.KindAuthenticationFailed,
			Provider: "google",
			Message:  "no API key configured",
		}
	}

	client, err := googleai.New(ctx, googleai.WithAPIKey(apiKey))
	if err != nil {
		return nil, llm.TranslateError("google", err)
	}

	return &GoogleProvider{client: client, settings: settings}, nil
}

// Name returns the provider name.
func (p *GoogleProvider) Name() string {
	return string(llm.ProviderGoogle)
}

// Generate sends the prompt and returns the full response.
func (p *GoogleProvider) Generate(ctx context.Context, cfg llm.ResolvedConfig, prompt string) (*llm.Content, error) {
	resp, err := p.client.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)},
		buildCallOptions(cfg)...)
	if err != nil {
		return nil, llm.TranslateError(p.Name(), err)
	}
	return fromContentResponse(p.Name(), cfg.Model, resp)
}

// GenerateStream streams incremental output chunks.
func (p *GoogleProvider) GenerateStream(ctx context.Context, cfg llm.ResolvedConfig, prompt string) (<-chan llm.StreamChunk, error) {
	return streamContent(ctx, p.Name(), p.client, cfg, prompt)
}

// Health reports whether the adapter is usable.
func (p *GoogleProvider) Health(ctx context.Context) types.HealthStatus {
	if p.client == nil {
		return types.Unhealthy("google client not initialized")
	}
	return types.Healthy("google adapter ready")
}
