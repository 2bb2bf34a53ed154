package types

import "time"

// HealthState represents the health of a component or provider.
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
)

// HealthStatus carries the health state of a component along with a
// human-readable message and the time the check was performed.
type HealthStatus struct {
	State     HealthState `json:"state"`
	Message   string      `json:"message,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}

// Healthy constructs a healthy status with the given message.
func Healthy(message string) HealthStatus {
	return HealthStatus{
		State:     HealthStateHealthy,
		Message:   message,
		CheckedAt: time.Now(),
	}
}

// Degraded constructs a degraded status with the given message.
func Degraded(message string) HealthStatus {
	return HealthStatus{
		State:     HealthStateDegraded,
		Message:   message,
		CheckedAt: time.Now(),
	}
}

// Unhealthy constructs an unhealthy status with the given message.
func Unhealthy(message string) HealthStatus {
	return HealthStatus{
		State:     HealthStateUnhealthy,
		Message:   message,
		CheckedAt: time.Now(),
	}
}

// IsHealthy returns true if the state is healthy.
func (h HealthStatus) IsHealthy() bool {
	return h.State == HealthStateHealthy
}
