package model

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutPolicy decides what happens when a gate's response window elapses with
// no acknowledgment. The corpus behind this system used both interpretations
// depending on the gate, so the choice is explicit per gate rather than a
// global default.
type TimeoutPolicy string

const (
	// TimeoutProceed treats silence as consent: the chain advances to the next gate.
	TimeoutProceed TimeoutPolicy = "proceed"
	// TimeoutCancel treats silence as refusal: the job is cancelled.
	TimeoutCancel TimeoutPolicy = "cancel"
)

// Valid returns true if the TimeoutPolicy is valid.
func (p TimeoutPolicy) Valid() bool {
	return p == TimeoutProceed || p == TimeoutCancel
}

// BackoffKind selects the delay strategy between notification delivery attempts.
type BackoffKind string

const (
	// BackoffFixed waits BaseDelay between every attempt. Used for short
	// progress gates where the caller is a machine.
	BackoffFixed BackoffKind = "fixed"
	// BackoffExponential doubles the delay each attempt. Used for confirmation
	// gates that await a human decision.
	BackoffExponential BackoffKind = "exponential"
)

// Valid returns true if the BackoffKind is valid.
func (k BackoffKind) Valid() bool {
	return k == BackoffFixed || k == BackoffExponential
}

// RetryPolicy bounds notification delivery attempts. It governs delivery of a
// gate's notification, never the gate's semantic decision.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	Backoff     BackoffKind   `json:"backoff"`
}

// Validate validates the RetryPolicy fields.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("retry policy requires at least one attempt")
	}
	if p.BaseDelay < 0 {
		return errors.New("retry policy base delay must not be negative")
	}
	if p.Backoff != "" && !p.Backoff.Valid() {
		return fmt.Errorf("invalid backoff kind: %q", p.Backoff)
	}
	return nil
}

// GateConfig describes one checkpoint in the gate chain.
type GateConfig struct {
	// Message is the human-readable progress text delivered with the gate
	// notification. "{action}" is replaced with the job's action name.
	Message string `json:"message"`
	// ResponseTimeout is the wall-clock window the sequencer waits for an
	// acknowledgment before applying OnTimeout.
	ResponseTimeout time.Duration `json:"response_timeout"`
	// OnTimeout is the explicit no-response interpretation for this gate.
	OnTimeout TimeoutPolicy `json:"on_timeout"`
	// Notify bounds delivery retries for this gate's notification.
	Notify RetryPolicy `json:"notify"`
}

// Validate validates the GateConfig fields.
func (g GateConfig) Validate() error {
	if g.ResponseTimeout <= 0 {
		return errors.New("gate response timeout must be positive")
	}
	if !g.OnTimeout.Valid() {
		return fmt.Errorf("invalid gate timeout policy: %q", g.OnTimeout)
	}
	return g.Notify.Validate()
}

// GateOutcome is the result of running the full gate chain for a job.
type GateOutcome string

const (
	// GateOutcomePassed means every gate acknowledged without cancellation.
	GateOutcomePassed GateOutcome = "passed"
	// GateOutcomeCancelled means a gate response or timeout policy stopped the job.
	GateOutcomeCancelled GateOutcome = "cancelled"
)

// GateResponse is the caller's acknowledgment of a cancellable gate notification.
// A missing or malformed response degrades to "do not cancel".
type GateResponse struct {
	Cancel bool `json:"cancel"`
	// Reason optionally explains a cancellation; echoed into the final notification.
	Reason string `json:"reason,omitempty"`
}
