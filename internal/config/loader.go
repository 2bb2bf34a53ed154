package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/mtb-technology/reportflow/internal/types"
)

// Loader handles loading configuration from files.
type Loader interface {
	Load(path string) (*Config, error)
	LoadWithDefaults(path string) (*Config, error)
}

// viperLoader implements Loader using Viper.
type viperLoader struct {
	validator Validator
}

// NewLoader creates a Loader that validates with the given validator.
func NewLoader(validator Validator) Loader {
	return &viperLoader{validator: validator}
}

// Load reads the YAML file at path, interpolates ${VAR} references from the
// environment, and decodes the result on top of the defaults. Returns an
// error when the file is missing or invalid.
func (l *viperLoader) Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to read config file", err)
	}

	raw := interpolateEnvVars(v.AllSettings())

	cfg := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED, "failed to build config decoder", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED, "failed to decode config", err)
	}

	if err := l.validator.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads configuration from path, or returns the validated
// defaults when the file does not exist.
func (l *viperLoader) LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := l.validator.Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return l.Load(path)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateEnvVars recursively replaces ${VAR_NAME} references in string
// values with environment variable values. Unset variables are left as-is.
func interpolateEnvVars(data any) any {
	switch v := data.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = interpolateEnvVars(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, value := range v {
			result[i] = interpolateEnvVars(value)
		}
		return result
	case string:
		return interpolateString(v)
	default:
		return v
	}
}

func interpolateString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if envValue := os.Getenv(varName); envValue != "" {
			return envValue
		}
		return match
	})
}
