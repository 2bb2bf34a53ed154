package llm

import (
	"context"

	"github.com/mtb-technology/reportflow/internal/types"
)

// Content is the provider-agnostic result of a model invocation.
type Content struct {
	// Text is the generated document text.
	Text string `json:"text"`

	// Model is the model that produced the response.
	Model string `json:"model"`

	// FinishReason indicates why generation stopped.
	FinishReason FinishReason `json:"finish_reason"`

	// Usage contains token accounting for this invocation.
	Usage TokenUsage `json:"usage"`
}

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonError         FinishReason = "error"
)

// TokenUsage contains token usage statistics for an invocation.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is a single increment of a streaming response.
type StreamChunk struct {
	// Text contains incremental output text.
	Text string `json:"text"`

	// Done marks the final chunk. Err, if set, terminated the stream.
	Done bool  `json:"done"`
	Err  error `json:"-"`
}

// Provider is the uniform adapter contract every model provider implements.
// Adapter-specific request/response shapes are entirely hidden behind it.
type Provider interface {
	// Name returns the provider name (e.g., "openai", "google").
	Name() string

	// Generate sends the prompt and returns the full response. Errors
	// returned must be classified AIErrors.
	Generate(ctx context.Context, cfg ResolvedConfig, prompt string) (*Content, error)

	// Health checks the provider's connectivity and configuration.
	Health(ctx context.Context) types.HealthStatus
}

// StreamingProvider is implemented by providers that can stream output
// incrementally. The invoker falls back to Generate when unavailable.
type StreamingProvider interface {
	Provider

	// GenerateStream emits chunks on the returned channel until completion
	// or error. The channel is closed when streaming is done.
	GenerateStream(ctx context.Context, cfg ResolvedConfig, prompt string) (<-chan StreamChunk, error)
}
