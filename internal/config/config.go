package config

import (
	"time"

	"github.com/mtb-technology/reportflow/internal/llm"
	"github.com/mtb-technology/reportflow/internal/llm/providers"
	"github.com/mtb-technology/reportflow/internal/stage"
)

// Config is the root configuration for the reportflow service.
type Config struct {
	Core      CoreConfig                    `mapstructure:"core" yaml:"core" validate:"required"`
	Database  DatabaseConfig                `mapstructure:"database" yaml:"database" validate:"required"`
	AI        AIConfig                      `mapstructure:"ai" yaml:"ai"`
	Providers map[string]providers.Settings `mapstructure:"providers" yaml:"providers"`
	Logging   LoggingConfig                 `mapstructure:"logging" yaml:"logging"`
	Tracing   TracingConfig                 `mapstructure:"tracing" yaml:"tracing"`
}

// CoreConfig contains core application settings.
type CoreConfig struct {
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// StageDefinitions optionally points at a YAML file tuning per-stage
	// timeouts and parallelism. The stage set itself is fixed.
	StageDefinitions string `mapstructure:"stage_definitions" yaml:"stage_definitions,omitempty"`

	// MaxParallel bounds how many sibling stages an express job runs
	// concurrently.
	MaxParallel int `mapstructure:"max_parallel" yaml:"max_parallel" validate:"min=1,max=16"`

	// StageTimeout is the default per-stage execution timeout.
	StageTimeout time.Duration `mapstructure:"stage_timeout" yaml:"stage_timeout"`

	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// DatabaseConfig contains SQLite configuration.
type DatabaseConfig struct {
	Path           string        `mapstructure:"path" yaml:"path"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1,max=100"`
	BusyTimeout    time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout" validate:"min=1s"`
}

// AIConfig carries the layered AI call configuration plus resilience tuning.
// Global and per-stage layers feed configuration resolution directly; unset
// fields fall through to the provider-capability defaults.
type AIConfig struct {
	Global  *llm.ConfigLayer            `mapstructure:"global" yaml:"global,omitempty"`
	Stages  map[string]*llm.ConfigLayer `mapstructure:"stages" yaml:"stages,omitempty"`
	Retry   RetryConfig                 `mapstructure:"retry" yaml:"retry"`
	Breaker BreakerConfig               `mapstructure:"breaker" yaml:"breaker"`
}

// RetryConfig tunes the invoker's retry policy.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1,max=10"`
	Backoff      string        `mapstructure:"backoff" yaml:"backoff" validate:"omitempty,oneof=constant linear exponential"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

// Policy converts the retry tuning into the invoker's policy value,
// falling back to defaults for unset fields.
func (rc RetryConfig) Policy() llm.RetryPolicy {
	policy := llm.DefaultRetryPolicy()
	if rc.MaxAttempts > 0 {
		policy.MaxAttempts = rc.MaxAttempts
	}
	if rc.Backoff != "" {
		policy.BackoffStrategy = llm.BackoffStrategy(rc.Backoff)
	}
	if rc.InitialDelay > 0 {
		policy.InitialDelay = rc.InitialDelay
	}
	if rc.MaxDelay > 0 {
		policy.MaxDelay = rc.MaxDelay
	}
	if rc.Multiplier > 0 {
		policy.Multiplier = rc.Multiplier
	}
	return policy
}

// BreakerConfig tunes the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold" validate:"omitempty,min=1,max=50"`
	Cooldown         time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

// Settings converts the breaker tuning into the llm package's config value.
func (bc BreakerConfig) Settings() llm.BreakerConfig {
	settings := llm.DefaultBreakerConfig()
	if bc.FailureThreshold > 0 {
		settings.FailureThreshold = bc.FailureThreshold
	}
	if bc.Cooldown > 0 {
		settings.Cooldown = bc.Cooldown
	}
	return settings
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// StageOverrides converts the string-keyed stage layer map into the typed
// form the scheduler consumes. Unknown stage IDs are caught by validation
// before this is called.
func (c *Config) StageOverrides() map[stage.StageID]*llm.ConfigLayer {
	if len(c.AI.Stages) == 0 {
		return nil
	}
	out := make(map[stage.StageID]*llm.ConfigLayer, len(c.AI.Stages))
	for id, layer := range c.AI.Stages {
		out[stage.StageID(id)] = layer
	}
	return out
}

// ProviderSettings returns the settings for a provider, zero-valued when
// the provider is not configured.
func (c *Config) ProviderSettings(providerType llm.ProviderType) providers.Settings {
	return c.Providers[providerType.String()]
}
