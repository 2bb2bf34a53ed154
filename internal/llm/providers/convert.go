package providers

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/mtb-technology/reportflow/internal/llm"
)

// buildCallOptions converts a resolved config to langchaingo call options.
func buildCallOptions(cfg llm.ResolvedConfig) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithModel(cfg.Model),
		llms.WithTemperature(cfg.Temperature),
		llms.WithMaxTokens(cfg.MaxOutputTokens),
	}
	if cfg.TopP > 0 {
		opts = append(opts, llms.WithTopP(cfg.TopP))
	}
	if cfg.TopK > 0 {
		opts = append(opts, llms.WithTopK(cfg.TopK))
	}
	return opts
}

// fromContentResponse converts a langchaingo response to Content,
// rejecting empty responses as InvalidResponse.
func fromContentResponse(provider, model string, resp *llms.ContentResponse) (*llm.Content, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, llm.NewInvalidResponseError(provider, "provider returned no choices")
	}

	choice := resp.Choices[0]
	if choice.Content == "" {
		return nil, llm.NewInvalidResponseError(provider, "provider returned empty content")
	}

	content := &llm.Content{
		Text:         choice.Content,
		Model:        model,
		FinishReason: mapStopReason(choice.StopReason),
	}

	if info := choice.GenerationInfo; info != nil {
		if v, ok := info["PromptTokens"].(int); ok {
			content.Usage.PromptTokens = v
		}
		if v, ok := info["CompletionTokens"].(int); ok {
			content.Usage.CompletionTokens = v
		}
		if v, ok := info["TotalTokens"].(int); ok {
			content.Usage.TotalTokens = v
		}
	}
	if content.Usage.TotalTokens == 0 {
		content.Usage.TotalTokens = content.Usage.PromptTokens + content.Usage.CompletionTokens
	}

	return content, nil
}

func mapStopReason(reason string) llm.FinishReason {
	switch reason {
	case "stop", "STOP", "end_turn":
		return llm.FinishReasonStop
	case "length", "MAX_TOKENS", "max_tokens":
		return llm.FinishReasonLength
	case "content_filter", "SAFETY":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReasonStop
	}
}

// streamContent runs a streaming generation against any langchaingo model,
// adapting the callback style to a chunk channel.
func streamContent(ctx context.Context, provider string, model llms.Model, cfg llm.ResolvedConfig, prompt string) (<-chan llm.StreamChunk, error) {
	chunks := make(chan llm.StreamChunk, 16)

	opts := buildCallOptions(cfg)
	opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunks <- llm.StreamChunk{Text: string(chunk)}:
			return nil
		}
	}))

	go func() {
		defer close(chunks)
		_, err := model.GenerateContent(ctx,
			[]llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)},
			opts...)
		if err != nil {
			chunks <- llm.StreamChunk{Err: llm.TranslateError(provider, err), Done: true}
			return
		}
		chunks <- llm.StreamChunk{Done: true}
	}()

	return chunks, nil
}
