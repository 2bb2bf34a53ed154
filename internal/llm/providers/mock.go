package providers

import (
	"context"
	"sync"

	"github.com/mtb-technology/reportflow/internal/llm"
	"github.com/mtb-technology/reportflow/internal/types"
)

// MockCall records one invocation of the mock provider.
type MockCall struct {
	Config llm.ResolvedConfig
	Prompt string
}

// MockProvider implements Provider for tests. It replays scripted
// responses (or errors) in order and records every call.
type MockProvider struct {
	mu        sync.Mutex
	name      string
	responses []mockResponse
	index     int
	calls     []MockCall

	// StreamTokens, when non-empty, makes the mock a StreamingProvider
	// that emits these tokens before completing.
	StreamTokens []string
}

type mockResponse struct {
	content *llm.Content
	err     error
}

// NewMockProvider creates a mock provider answering with the given texts.
func NewMockProvider(responses ...string) *MockProvider {
	p := &MockProvider{name: string(llm.ProviderMock)}
	for _, text := range responses {
		p.responses = append(p.responses, mockResponse{content: &llm.Content{
			Text:         text,
			Model:        "mock-model",
			FinishReason: llm.FinishReasonStop,
			Usage:        llm.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		}})
	}
	return p
}

// WithName overrides the provider name, letting tests register the mock
// under "openai" or "google".
func (p *MockProvider) WithName(name string) *MockProvider {
	p.name = name
	return p
}

// FailWith queues an error response.
func (p *MockProvider) FailWith(err error) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, mockResponse{err: err})
	return p
}

// RespondWith queues a success response.
func (p *MockProvider) RespondWith(text string) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, mockResponse{content: &llm.Content{
		Text:         text,
		Model:        "mock-model",
		FinishReason: llm.FinishReasonStop,
	}})
	return p
}

// Name returns the provider name.
func (p *MockProvider) Name() string {
	return p.name
}

// Generate replays the next scripted response.
func (p *MockProvider) Generate(ctx context.Context, cfg llm.ResolvedConfig, prompt string) (*llm.Content, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, MockCall{Config: cfg, Prompt: prompt})

	if len(p.responses) == 0 {
		return &llm.Content{Text: "mock response", Model: "mock-model", FinishReason: llm.FinishReasonStop}, nil
	}

	resp := p.responses[p.index%len(p.responses)]
	p.index++
	if resp.err != nil {
		return nil, resp.err
	}
	return resp.content, nil
}

// GenerateStream emits the configured tokens, then falls back to Generate
// for the call bookkeeping.
func (p *MockProvider) GenerateStream(ctx context.Context, cfg llm.ResolvedConfig, prompt string) (<-chan llm.StreamChunk, error) {
	content, err := p.Generate(ctx, cfg, prompt)
	if err != nil {
		return nil, err
	}

	tokens := p.StreamTokens
	if len(tokens) == 0 {
		tokens = []string{content.Text}
	}

	chunks := make(chan llm.StreamChunk, len(tokens)+1)
	for _, token := range tokens {
		chunks <- llm.StreamChunk{Text: token}
	}
	chunks <- llm.StreamChunk{Done: true}
	close(chunks)
	return chunks, nil
}

// Calls returns a copy of all recorded calls.
func (p *MockProvider) Calls() []MockCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	calls := make([]MockCall, len(p.calls))
	copy(calls, p.calls)
	return calls
}

// CallCount returns the number of recorded calls.
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Health always reports healthy.
func (p *MockProvider) Health(ctx context.Context) types.HealthStatus {
	return types.Healthy("mock provider")
}
