package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtb-technology/reportflow/internal/llm"
	"github.com/mtb-technology/reportflow/internal/stage"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reportflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWithDefaultsMissingFile(t *testing.T) {
	loader := NewLoader(NewValidator())

	cfg, err := loader.LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Core.MaxParallel)
	assert.Equal(t, 10, cfg.Database.MaxConnections)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.AI.Retry.MaxAttempts)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfigFile(t, `
core:
  data_dir: /var/lib/reportflow
  max_parallel: 5
  stage_timeout: 15m
database:
  path: /var/lib/reportflow/reportflow.db
  max_connections: 20
  busy_timeout: 10s
ai:
  global:
    model: gemini-2.5-pro
    temperature: 0.4
  stages:
    generation:
      max_output_tokens: 20000
  retry:
    max_attempts: 5
    backoff: linear
    initial_delay: 2s
providers:
  google:
    api_key: test-key
logging:
  level: debug
  format: text
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Core.MaxParallel)
	assert.Equal(t, 15*time.Minute, cfg.Core.StageTimeout)
	assert.Equal(t, 10*time.Second, cfg.Database.BusyTimeout)

	require.NotNil(t, cfg.AI.Global)
	assert.Equal(t, "gemini-2.5-pro", cfg.AI.Global.Model)
	require.NotNil(t, cfg.AI.Global.Temperature)
	assert.Equal(t, 0.4, *cfg.AI.Global.Temperature)

	overrides := cfg.StageOverrides()
	require.Contains(t, overrides, stage.StageGeneration)
	require.NotNil(t, overrides[stage.StageGeneration].MaxOutputTokens)
	assert.Equal(t, 20000, *overrides[stage.StageGeneration].MaxOutputTokens)

	policy := cfg.AI.Retry.Policy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, llm.BackoffLinear, policy.BackoffStrategy)
	assert.Equal(t, 2*time.Second, policy.InitialDelay)
	// Unset fields keep their defaults.
	assert.Equal(t, 30*time.Second, policy.MaxDelay)

	assert.Equal(t, "test-key", cfg.ProviderSettings(llm.ProviderGoogle).APIKey)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadInterpolatesEnvVars(t *testing.T) {
	t.Setenv("REPORTFLOW_TEST_KEY", "secret-from-env")

	path := writeConfigFile(t, `
providers:
  openai:
    api_key: ${REPORTFLOW_TEST_KEY}
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", cfg.ProviderSettings(llm.ProviderOpenAI).APIKey)
}

func TestLoadUnsetEnvVarLeftVerbatim(t *testing.T) {
	path := writeConfigFile(t, `
providers:
  openai:
    api_key: ${REPORTFLOW_DOES_NOT_EXIST}
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${REPORTFLOW_DOES_NOT_EXIST}", cfg.ProviderSettings(llm.ProviderOpenAI).APIKey)
}

func TestLoadRejectsUnknownStage(t *testing.T) {
	path := writeConfigFile(t, `
ai:
  stages:
    not_a_stage:
      model: gemini-2.5-flash
`)

	_, err := NewLoader(NewValidator()).Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfigFile(t, `
providers:
  anthropic:
    api_key: key
`)

	_, err := NewLoader(NewValidator()).Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Core.MaxParallel = 0

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "core.max_parallel")
}

func TestValidateTracingEndpointRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracing.Enabled = true

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracing.endpoint")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := NewLoader(NewValidator()).Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
