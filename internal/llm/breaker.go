package llm

import (
	"sync"
	"time"
)

// CircuitState represents the current state of a provider's circuit.
type CircuitState int

const (
	// StateClosed means normal operation, calls allowed.
	StateClosed CircuitState = iota

	// StateOpen means too many consecutive failures, calls rejected.
	StateOpen

	// StateHalfOpen means the cooldown elapsed and one trial call is allowed.
	StateHalfOpen
)

// String returns a human-readable representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker tuning.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int

	// Cooldown is how long an open circuit rejects calls before permitting
	// a half-open trial.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the default breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// providerCircuit tracks breaker state for a single provider.
type providerCircuit struct {
	state       CircuitState
	failures    int
	openedAt    time.Time
	lastFailure time.Time
}

// CircuitBreaker isolates failing providers. State is shared process-wide
// per provider and mutated under one mutex, since many concurrent jobs may
// call the same provider.
//
// Transitions:
//   - Closed -> Open after FailureThreshold consecutive failures
//   - Open -> Half-Open once the cooldown elapses (exactly one trial call)
//   - Half-Open -> Closed on trial success
//   - Half-Open -> Open with a fresh cooldown on trial failure
type CircuitBreaker struct {
	config   BreakerConfig
	mu       sync.Mutex
	circuits map[string]*providerCircuit
	now      func() time.Time
}

// NewCircuitBreaker creates a breaker with the given configuration.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &CircuitBreaker{
		config:   config,
		circuits: make(map[string]*providerCircuit),
		now:      time.Now,
	}
}

// Allow checks whether a call to the provider may proceed. It returns a
// CircuitBreakerOpen AIError while the circuit rejects calls; the rejection
// happens before any network activity.
func (cb *CircuitBreaker) Allow(provider string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit := cb.circuit(provider)

	switch circuit.state {
	case StateClosed:
		return nil

	case StateOpen:
		if cb.now().Sub(circuit.openedAt) >= cb.config.Cooldown {
			// The call that observes the elapsed cooldown is the trial.
			circuit.state = StateHalfOpen
			return nil
		}
		return NewCircuitOpenError(provider, cb.retryAfter(circuit))

	case StateHalfOpen:
		// Trial in flight; everything else is rejected until it settles
		// through RecordSuccess or RecordFailure.
		return NewCircuitOpenError(provider, cb.retryAfter(circuit))

	default:
		return nil
	}
}

// RecordSuccess resets the failure counter; a half-open trial success
// closes the circuit.
func (cb *CircuitBreaker) RecordSuccess(provider string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit := cb.circuit(provider)
	circuit.state = StateClosed
	circuit.failures = 0
}

// RecordFailure counts a failed attempt; crossing the threshold (or failing
// the half-open trial) opens the circuit with a fresh cooldown.
func (cb *CircuitBreaker) RecordFailure(provider string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit := cb.circuit(provider)
	circuit.lastFailure = cb.now()

	switch circuit.state {
	case StateClosed:
		circuit.failures++
		if circuit.failures >= cb.config.FailureThreshold {
			circuit.state = StateOpen
			circuit.openedAt = cb.now()
		}

	case StateHalfOpen:
		circuit.state = StateOpen
		circuit.openedAt = cb.now()
		circuit.failures = cb.config.FailureThreshold

	case StateOpen:
		// Already open; the counter stays at the threshold.
	}
}

// State returns the current circuit state for a provider, accounting for an
// elapsed cooldown. Primarily for monitoring and tests.
func (cb *CircuitBreaker) State(provider string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit, exists := cb.circuits[provider]
	if !exists {
		return StateClosed
	}
	if circuit.state == StateOpen && cb.now().Sub(circuit.openedAt) >= cb.config.Cooldown {
		return StateHalfOpen
	}
	return circuit.state
}

// Reset returns the provider's circuit to closed. Useful after an operator
// confirms recovery.
func (cb *CircuitBreaker) Reset(provider string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if circuit, exists := cb.circuits[provider]; exists {
		circuit.state = StateClosed
		circuit.failures = 0
	}
}

func (cb *CircuitBreaker) retryAfter(circuit *providerCircuit) time.Duration {
	remaining := cb.config.Cooldown - cb.now().Sub(circuit.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// circuit returns the tracked circuit for provider, creating it if needed.
// Must be called with mu held.
func (cb *CircuitBreaker) circuit(provider string) *providerCircuit {
	circuit, exists := cb.circuits[provider]
	if !exists {
		circuit = &providerCircuit{state: StateClosed}
		cb.circuits[provider] = circuit
	}
	return circuit
}
