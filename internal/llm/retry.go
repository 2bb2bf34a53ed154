package llm

import (
	"math"
	"time"
)

// BackoffStrategy defines how retry delays are calculated.
type BackoffStrategy string

const (
	// BackoffConstant returns a constant delay for all retry attempts.
	BackoffConstant BackoffStrategy = "constant"
	// BackoffLinear increases the delay linearly with each retry attempt.
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential increases the delay exponentially with each retry attempt.
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy is the single value object governing retry behavior for all
// model invocations. It replaces scattered per-call-site retry loops.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget, including the first call.
	MaxAttempts int `json:"max_attempts"`

	// BackoffStrategy determines how delays grow between attempts.
	BackoffStrategy BackoffStrategy `json:"backoff_strategy"`

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `json:"initial_delay"`

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration `json:"max_delay"`

	// Multiplier is the exponential growth factor.
	Multiplier float64 `json:"multiplier"`

	// Retryable decides whether an error is worth another attempt.
	// Nil means IsRetryable.
	Retryable func(error) bool `json:"-"`
}

// DefaultRetryPolicy returns the policy applied when none is configured:
// three attempts with exponential backoff from one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		BackoffStrategy: BackoffExponential,
		InitialDelay:    time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
	}
}

// ShouldRetry reports whether another attempt is allowed for the given
// error after the given completed attempt count.
func (rp RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= rp.MaxAttempts {
		return false
	}
	predicate := rp.Retryable
	if predicate == nil {
		predicate = IsRetryable
	}
	return predicate(err)
}

// Delay calculates the wait before the retry following the given attempt
// (1-based). A provider-supplied hint overrides the computed backoff.
func (rp RetryPolicy) Delay(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		if rp.MaxDelay > 0 && hint > rp.MaxDelay {
			return rp.MaxDelay
		}
		return hint
	}

	var delay time.Duration
	switch rp.BackoffStrategy {
	case BackoffConstant:
		delay = rp.InitialDelay
	case BackoffLinear:
		delay = rp.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		delay = time.Duration(float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt-1)))
	default:
		delay = rp.InitialDelay
	}

	if rp.MaxDelay > 0 && delay > rp.MaxDelay {
		return rp.MaxDelay
	}
	return delay
}
