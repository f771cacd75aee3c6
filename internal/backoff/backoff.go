// Package backoff provides the retry delay strategies used for callback
// delivery. All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"math"
	"time"

	"github.com/voiceloop/gatehouse/internal/domain/model"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Fixed always returns the same delay regardless of attempt number. Used for
// short progress gates where the receiving end is a machine.
type Fixed struct {
	Interval time.Duration
}

// NewFixed creates a fixed backoff strategy.
func NewFixed(interval time.Duration) *Fixed {
	return &Fixed{Interval: interval}
}

// Delay returns the fixed interval.
func (f *Fixed) Delay(_ int) time.Duration {
	return f.Interval
}

// Exponential doubles the delay each attempt, capped at Max. Used for
// confirmation gates that await a human decision.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// maxExponentialDelay caps confirmation-gate backoff growth.
const maxExponentialDelay = time.Minute

// ForPolicy returns the strategy selected by a retry policy. An unset kind
// defaults to fixed.
func ForPolicy(policy model.RetryPolicy) Strategy {
	if policy.Backoff == model.BackoffExponential {
		return NewExponential(policy.BaseDelay, maxExponentialDelay)
	}
	return NewFixed(policy.BaseDelay)
}
