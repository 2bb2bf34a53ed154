package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtb-technology/reportflow/internal/types"
)

// stubProvider is a minimal in-package Provider used by registry and
// invoker tests.
type stubProvider struct {
	name     string
	generate func(ctx context.Context, cfg ResolvedConfig, prompt string) (*Content, error)
	health   types.HealthStatus
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Generate(ctx context.Context, cfg ResolvedConfig, prompt string) (*Content, error) {
	if s.generate != nil {
		return s.generate(ctx, cfg, prompt)
	}
	return &Content{Text: "ok", Model: cfg.Model, FinishReason: FinishReasonStop}, nil
}

func (s *stubProvider) Health(ctx context.Context) types.HealthStatus {
	if s.health.State == "" {
		return types.Healthy("stub")
	}
	return s.health
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()

	provider := &stubProvider{name: "google"}
	require.NoError(t, registry.Register(provider))

	got, err := registry.Get("google")
	require.NoError(t, err)
	assert.Equal(t, provider, got)
}

func TestRegistryRejectsInvalidRegistrations(t *testing.T) {
	registry := NewRegistry()

	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(&stubProvider{name: ""}))

	require.NoError(t, registry.Register(&stubProvider{name: "openai"}))
	err := registry.Register(&stubProvider{name: "openai"})
	require.Error(t, err)
	assert.Equal(t, KindValidationFailed, KindOf(err))
}

func TestRegistryGetUnknownIsConfigError(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get("missing")
	require.Error(t, err)
	assert.Equal(t, KindValidationFailed, KindOf(err))
}

func TestRegistryList(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubProvider{name: "openai"}))
	require.NoError(t, registry.Register(&stubProvider{name: "google"}))

	assert.Equal(t, []string{"google", "openai"}, registry.List())
}

func TestRegistryHealthAggregation(t *testing.T) {
	ctx := context.Background()

	t.Run("empty is unhealthy", func(t *testing.T) {
		assert.False(t, NewRegistry().Health(ctx).IsHealthy())
	})

	t.Run("all healthy", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(&stubProvider{name: "google"}))
		assert.True(t, registry.Health(ctx).IsHealthy())
	})

	t.Run("mixed is degraded", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(&stubProvider{name: "google"}))
		require.NoError(t, registry.Register(&stubProvider{
			name:   "openai",
			health: types.Unhealthy("credentials missing"),
		}))
		status := registry.Health(ctx)
		assert.Equal(t, types.HealthStateDegraded, status.State)
	})
}
