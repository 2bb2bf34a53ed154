package llm

import (
	"fmt"

	"github.com/mtb-technology/reportflow/internal/stage"
)

// ConfigLayer is one layer of per-call AI configuration: either a
// stage-specific override or a global default. Nil pointer fields mean
// "unset; fall through to the next layer".
type ConfigLayer struct {
	Provider        ProviderType `json:"provider,omitempty" yaml:"provider,omitempty" mapstructure:"provider"`
	Model           string       `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`
	Temperature     *float64     `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`
	TopP            *float64     `json:"top_p,omitempty" yaml:"top_p,omitempty" mapstructure:"top_p"`
	TopK            *int         `json:"top_k,omitempty" yaml:"top_k,omitempty" mapstructure:"top_k"`
	MaxOutputTokens *int         `json:"max_output_tokens,omitempty" yaml:"max_output_tokens,omitempty" mapstructure:"max_output_tokens"`

	// Provider-specific extensions.
	ReasoningEffort string `json:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty" mapstructure:"reasoning_effort"`
	Verbosity       string `json:"verbosity,omitempty" yaml:"verbosity,omitempty" mapstructure:"verbosity"`
	DeepResearch    *bool  `json:"deep_research,omitempty" yaml:"deep_research,omitempty" mapstructure:"deep_research"`

	// Grounding enables provider web-search augmentation. Only compatible
	// with providers that support it; resolution fails otherwise.
	Grounding *bool `json:"grounding,omitempty" yaml:"grounding,omitempty" mapstructure:"grounding"`
}

// merge returns a layer where every set field of the override wins over the
// base. Either argument may be nil.
func mergeLayers(override, base *ConfigLayer) ConfigLayer {
	var merged ConfigLayer
	if base != nil {
		merged = *base
	}
	if override == nil {
		return merged
	}
	if override.Provider != "" {
		merged.Provider = override.Provider
	}
	if override.Model != "" {
		merged.Model = override.Model
	}
	if override.Temperature != nil {
		merged.Temperature = override.Temperature
	}
	if override.TopP != nil {
		merged.TopP = override.TopP
	}
	if override.TopK != nil {
		merged.TopK = override.TopK
	}
	if override.MaxOutputTokens != nil {
		merged.MaxOutputTokens = override.MaxOutputTokens
	}
	if override.ReasoningEffort != "" {
		merged.ReasoningEffort = override.ReasoningEffort
	}
	if override.Verbosity != "" {
		merged.Verbosity = override.Verbosity
	}
	if override.DeepResearch != nil {
		merged.DeepResearch = override.DeepResearch
	}
	if override.Grounding != nil {
		merged.Grounding = override.Grounding
	}
	return merged
}

// ResolvedConfig is the final, fully-merged parameter set for a single
// model invocation. It is computed fresh per invocation and persisted only
// as an audit trail, never as a source of truth.
type ResolvedConfig struct {
	Provider        ProviderType `json:"provider"`
	Model           string       `json:"model"`
	Temperature     float64      `json:"temperature"`
	TopP            float64      `json:"top_p"`
	TopK            int          `json:"top_k,omitempty"`
	MaxOutputTokens int          `json:"max_output_tokens"`

	ReasoningEffort string `json:"reasoning_effort,omitempty"`
	Verbosity       string `json:"verbosity,omitempty"`
	DeepResearch    bool   `json:"deep_research,omitempty"`
	Grounding       bool   `json:"grounding,omitempty"`

	// Clamped records that MaxOutputTokens was silently lowered to the
	// provider cap, making misconfiguration visible in the audit trail.
	Clamped bool `json:"clamped,omitempty"`
}

// Resolve merges the stage override, global default, and static
// provider-capability table into one resolved call configuration.
//
// Precedence per field, highest first: stage override, global default,
// provider-capability default. Model selection falls back to the
// stage-complexity table when no layer names a model; the provider is
// inferred from the model name when no layer names one. Resolution is a
// pure, deterministic function of its inputs.
func Resolve(def stage.Stage, override, global *ConfigLayer) (ResolvedConfig, error) {
	merged := mergeLayers(override, global)

	model := merged.Model
	if model == "" {
		model = ModelForComplexity(def.Complexity)
	}

	capability := CapabilityFor(model)

	provider := merged.Provider
	if provider == "" {
		provider = capability.Provider
	}
	if !provider.IsValid() {
		return ResolvedConfig{}, NewValidationError(string(provider),
			fmt.Sprintf("unknown provider %q for stage %s", provider, def.ID))
	}

	resolved := ResolvedConfig{
		Provider:        provider,
		Model:           model,
		Temperature:     capability.Temperature,
		TopP:            capability.TopP,
		TopK:            capability.TopK,
		MaxOutputTokens: capability.MaxOutputTokens,
		ReasoningEffort: merged.ReasoningEffort,
		Verbosity:       merged.Verbosity,
	}
	if merged.Temperature != nil {
		resolved.Temperature = *merged.Temperature
	}
	if merged.TopP != nil {
		resolved.TopP = *merged.TopP
	}
	if merged.TopK != nil {
		resolved.TopK = *merged.TopK
	}
	if merged.MaxOutputTokens != nil {
		resolved.MaxOutputTokens = *merged.MaxOutputTokens
	}
	if merged.DeepResearch != nil {
		resolved.DeepResearch = *merged.DeepResearch
	}
	if merged.Grounding != nil {
		resolved.Grounding = *merged.Grounding
	}

	// Cross-validation: grounding is a resolution-time failure on
	// incompatible providers, never a silent override.
	if resolved.Grounding && provider == ProviderOpenAI {
		return ResolvedConfig{}, NewValidationError(string(provider),
			"grounding/web-search flags are incompatible with the openai provider")
	}
	if resolved.Grounding && !capability.SupportsGrounding {
		return ResolvedConfig{}, NewValidationError(string(provider),
			fmt.Sprintf("grounding is not supported by model %s", model))
	}

	if resolved.Temperature < 0 || resolved.Temperature > 2 {
		return ResolvedConfig{}, NewValidationError(string(provider),
			fmt.Sprintf("temperature %.2f out of range [0, 2]", resolved.Temperature))
	}
	if resolved.TopP < 0 || resolved.TopP > 1 {
		return ResolvedConfig{}, NewValidationError(string(provider),
			fmt.Sprintf("top_p %.2f out of range [0, 1]", resolved.TopP))
	}
	if resolved.MaxOutputTokens <= 0 {
		return ResolvedConfig{}, NewValidationError(string(provider),
			fmt.Sprintf("max_output_tokens must be positive, got %d", resolved.MaxOutputTokens))
	}

	// Deep-research models require a structural token floor.
	if IsDeepResearchModel(model) && resolved.MaxOutputTokens < deepResearchTokenFloor {
		resolved.MaxOutputTokens = deepResearchTokenFloor
	}

	// Token cap: silently lowered to the provider maximum; the Clamped flag
	// keeps the adjustment visible in the audit trail.
	if limit := ProviderLimit(provider); resolved.MaxOutputTokens > limit {
		resolved.MaxOutputTokens = limit
		resolved.Clamped = true
	}

	return resolved, nil
}
