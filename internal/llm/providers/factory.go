package providers

import (
	"context"
	"fmt"

	"github.com/mtb-technology/reportflow/internal/llm"
	"github.com/mtb-technology/reportflow/internal/types"
)

// NewProvider constructs the adapter for the given provider type.
func NewProvider(ctx context.Context, providerType llm.ProviderType, settings Settings) (llm.Provider, error) {
	switch providerType {
	case llm.ProviderOpenAI:
		return NewOpenAIProvider(settings)
	case llm.ProviderGoogle:
		return NewGoogleProvider(ctx, settings)
	case llm.ProviderMock:
		return NewMockProvider(), nil
	default:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unsupported provider type: %s", providerType))
	}
}
