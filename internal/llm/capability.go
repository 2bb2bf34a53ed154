package llm

import (
	"strings"

	"github.com/mtb-technology/reportflow/internal/stage"
)

// ProviderType identifies an LLM provider family.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGoogle ProviderType = "google"
	ProviderMock   ProviderType = "mock"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

// IsValid checks if the provider type is a known value.
func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderOpenAI, ProviderGoogle, ProviderMock:
		return true
	default:
		return false
	}
}

// ModelCapability is the static, provider-published default set for one
// model. These are the lowest-precedence layer in config resolution and the
// source of hard output-token caps.
type ModelCapability struct {
	Provider        ProviderType
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int

	// SupportsGrounding marks models that may consult external sources
	// (web search) during generation.
	SupportsGrounding bool
}

// deepResearchTokenFloor is the structural minimum the provider enforces
// for deep-research models; configured values below it are raised.
const deepResearchTokenFloor = 16384

// modelCapabilities is the static provider-capability table, keyed by the
// resolved model name.
var modelCapabilities = map[string]ModelCapability{
	"gemini-2.5-flash-lite": {
		Provider:          ProviderGoogle,
		Temperature:       0.2,
		TopP:              0.95,
		TopK:              40,
		MaxOutputTokens:   8192,
		SupportsGrounding: true,
	},
	"gemini-2.5-flash": {
		Provider:          ProviderGoogle,
		Temperature:       0.2,
		TopP:              0.95,
		TopK:              40,
		MaxOutputTokens:   16384,
		SupportsGrounding: true,
	},
	"gemini-2.5-pro": {
		Provider:          ProviderGoogle,
		Temperature:       0.1,
		TopP:              0.95,
		TopK:              40,
		MaxOutputTokens:   32768,
		SupportsGrounding: true,
	},
	"gpt-4.1": {
		Provider:        ProviderOpenAI,
		Temperature:     0.3,
		TopP:            1.0,
		MaxOutputTokens: 16384,
	},
	"gpt-4.1-mini": {
		Provider:        ProviderOpenAI,
		Temperature:     0.3,
		TopP:            1.0,
		MaxOutputTokens: 8192,
	},
	"o3": {
		Provider:        ProviderOpenAI,
		Temperature:     1.0,
		TopP:            1.0,
		MaxOutputTokens: 32768,
	},
	"o4-mini-deep-research": {
		Provider:        ProviderOpenAI,
		Temperature:     1.0,
		TopP:            1.0,
		MaxOutputTokens: 65536,
	},
}

// providerMaxOutputTokens is the hard per-provider output cap. Resolved
// configs are clamped to it regardless of model-level settings.
var providerMaxOutputTokens = map[ProviderType]int{
	ProviderOpenAI: 65536,
	ProviderGoogle: 65536,
	ProviderMock:   65536,
}

// complexityModels maps stage-complexity classes to default models. This is
// a fixed table: analysis/check stages get a fast model, generation stages
// a high-capacity one, routine review stages a balanced one.
var complexityModels = map[stage.ComplexityClass]string{
	stage.ComplexityFast:     "gemini-2.5-flash",
	stage.ComplexityBalanced: "gemini-2.5-flash",
	stage.ComplexityDeep:     "gemini-2.5-pro",
}

// CapabilityFor returns the static capability entry for a model name.
// Unknown models fall back to a conservative default inferred from the
// provider name pattern.
func CapabilityFor(model string) ModelCapability {
	if cap, ok := modelCapabilities[model]; ok {
		return cap
	}

	provider := InferProvider(model)
	return ModelCapability{
		Provider:          provider,
		Temperature:       0.2,
		TopP:              0.95,
		MaxOutputTokens:   8192,
		SupportsGrounding: provider == ProviderGoogle,
	}
}

// ProviderLimit returns the hard output-token cap for a provider.
func ProviderLimit(provider ProviderType) int {
	if limit, ok := providerMaxOutputTokens[provider]; ok {
		return limit
	}
	return 8192
}

// ModelForComplexity returns the default model for a stage-complexity class.
func ModelForComplexity(class stage.ComplexityClass) string {
	if model, ok := complexityModels[class]; ok {
		return model
	}
	return complexityModels[stage.ComplexityBalanced]
}

// InferProvider infers the provider from a model-name pattern: OpenAI-family
// prefixes (gpt-, o3, o4, ...) imply openai; everything else google.
func InferProvider(model string) ProviderType {
	lower := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(lower, "gpt-"),
		strings.HasPrefix(lower, "o1"),
		strings.HasPrefix(lower, "o3"),
		strings.HasPrefix(lower, "o4"),
		strings.HasPrefix(lower, "chatgpt"):
		return ProviderOpenAI
	default:
		return ProviderGoogle
	}
}

// IsDeepResearchModel reports whether the model belongs to the
// deep-research family, which carries a structural output-token floor.
func IsDeepResearchModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "deep-research")
}
