package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mtb-technology/reportflow/internal/llm"
	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

// Validator validates configuration values.
type Validator interface {
	Validate(cfg *Config) error
}

// validatorImpl implements Validator using go-playground/validator.
type validatorImpl struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator instance.
func NewValidator() Validator {
	return &validatorImpl{
		validate: validator.New(),
	}
}

// Validate validates the configuration and returns detailed error messages.
func (v *validatorImpl) Validate(cfg *Config) error {
	if cfg == nil {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "configuration is nil")
	}

	if err := v.validate.Struct(cfg); err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return types.WrapError(types.CONFIG_VALIDATION_FAILED, "validation error", err)
		}

		var messages []string
		for _, e := range validationErrs {
			messages = append(messages, formatValidationError(e))
		}
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"configuration validation failed:\n  - "+strings.Join(messages, "\n  - "))
	}

	defs := stage.Definitions()
	for id := range cfg.AI.Stages {
		if _, known := defs[stage.StageID(id)]; !known {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("ai.stages references unknown stage %q", id))
		}
	}

	for name := range cfg.Providers {
		if !llm.ProviderType(name).IsValid() {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("providers references unknown provider %q", name))
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"tracing.endpoint is required when tracing is enabled")
	}

	return nil
}

// formatValidationError formats a single validation error with field path and details.
func formatValidationError(e validator.FieldError) string {
	fieldPath := formatFieldPath(e.Namespace())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldPath)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", fieldPath, e.Param(), e.Value())
	default:
		return fmt.Sprintf("%s failed validation '%s' (got: %v)", fieldPath, e.Tag(), e.Value())
	}
}

// formatFieldPath converts validator namespace to a more readable field path.
// Example: "Config.Core.MaxParallel" -> "core.max_parallel"
func formatFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) <= 1 {
		return namespace
	}

	result := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		result = append(result, camelToSnake(parts[i]))
	}
	return strings.Join(result, ".")
}

// camelToSnake converts CamelCase to snake_case.
func camelToSnake(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
