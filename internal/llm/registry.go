package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mtb-technology/reportflow/internal/types"
)

// Registry manages provider registration, lookup, and health aggregation.
// It is explicitly constructed and injected into the invoker and the job
// scheduler; there is no process-global instance.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry. Registering a nil provider, an
// empty name, or a duplicate name is a configuration error.
func (r *Registry) Register(provider Provider) error {
	if provider == nil {
		return NewValidationError("", "provider cannot be nil")
	}
	name := provider.Name()
	if name == "" {
		return NewValidationError("", "provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return NewValidationError(name, fmt.Sprintf("provider %q already registered", name))
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name. A lookup failure is a configuration
// error surfaced before any network call.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, NewValidationError(name, fmt.Sprintf("provider %q is not registered", name))
	}
	return provider, nil
}

// List returns the names of all registered providers, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health returns the aggregate health of all registered providers:
// healthy when all are healthy, unhealthy when none are (or none are
// registered), degraded otherwise.
func (r *Registry) Health(ctx context.Context) types.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.providers) == 0 {
		return types.Unhealthy("no providers registered")
	}

	healthy := 0
	for _, provider := range r.providers {
		if provider.Health(ctx).IsHealthy() {
			healthy++
		}
	}

	total := len(r.providers)
	switch healthy {
	case total:
		return types.Healthy(fmt.Sprintf("all %d providers healthy", total))
	case 0:
		return types.Unhealthy(fmt.Sprintf("all %d providers unhealthy", total))
	default:
		return types.Degraded(fmt.Sprintf("%d/%d providers healthy", healthy, total))
	}
}
