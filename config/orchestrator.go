package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/voiceloop/gatehouse/internal/domain/model"
)

// OrchestratorConfig contains gate chain and action execution configuration.
type OrchestratorConfig struct {
	// GateSpec configures the gate chain as a comma-separated list of
	// "policy@timeout" entries, in order. Policy is "proceed" or "cancel".
	// Example: "proceed@15s,cancel@2m" is a short progress gate that advances
	// on silence followed by a confirmation gate that cancels on silence.
	GateSpec string `env:"GATE_SPEC" envDefault:"proceed@15s,cancel@2m"`

	// NotifyMaxAttempts bounds delivery attempts for each gate notification.
	NotifyMaxAttempts int `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"3"`

	// NotifyBaseDelay is the base backoff delay between delivery attempts.
	NotifyBaseDelay time.Duration `env:"NOTIFY_BASE_DELAY" envDefault:"1s"`

	// FinalNotifyMaxAttempts bounds delivery attempts for the terminal notification.
	FinalNotifyMaxAttempts int `env:"FINAL_NOTIFY_MAX_ATTEMPTS" envDefault:"5"`

	// ActionMaxAttempts bounds the quality-gated retry loop inside the action stage.
	ActionMaxAttempts int `env:"ACTION_MAX_ATTEMPTS" envDefault:"3"`

	// ActionTimeout bounds a single action executor invocation.
	ActionTimeout time.Duration `env:"ACTION_TIMEOUT" envDefault:"2m"`

	// StrictQuality fails the job when the evaluator still rejects the result
	// after ActionMaxAttempts. When false the job completes flagged
	// quality_below_threshold with the best-effort result.
	StrictQuality bool `env:"STRICT_QUALITY" envDefault:"false"`

	// QualityScoreExpr is a JMESPath expression locating a numeric quality
	// score in an action result. Empty disables quality gating for the
	// built-in actions.
	QualityScoreExpr string `env:"QUALITY_SCORE_EXPR" envDefault:""`

	// QualityDeficienciesExpr optionally locates the list of deficiency
	// strings fed back into refined retry parameters.
	QualityDeficienciesExpr string `env:"QUALITY_DEFICIENCIES_EXPR" envDefault:""`

	// QualityThreshold is the minimum acceptable score (inclusive).
	QualityThreshold float64 `env:"QUALITY_THRESHOLD" envDefault:"0.7"`
}

// Sanitize applies guardrails to orchestrator configuration values.
func (o *OrchestratorConfig) Sanitize() {
	if o.NotifyMaxAttempts < 1 {
		o.NotifyMaxAttempts = 1
	}
	if o.NotifyBaseDelay <= 0 {
		o.NotifyBaseDelay = time.Second
	}
	if o.FinalNotifyMaxAttempts < 1 {
		o.FinalNotifyMaxAttempts = 1
	}
	if o.ActionMaxAttempts < 1 {
		o.ActionMaxAttempts = 1
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 2 * time.Minute
	}
}

// Gates parses GateSpec into the ordered gate chain. Later gates get
// exponential notification backoff since they tend to await a human decision;
// the first gate uses fixed backoff.
func (o *OrchestratorConfig) Gates() ([]model.GateConfig, error) {
	entries := strings.Split(o.GateSpec, ",")
	gates := make([]model.GateConfig, 0, len(entries))
	for i, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		policyStr, timeoutStr, ok := strings.Cut(entry, "@")
		if !ok {
			return nil, fmt.Errorf("gate spec entry %d: expected policy@timeout, got %q", i+1, entry)
		}
		policy := model.TimeoutPolicy(strings.TrimSpace(policyStr))
		if !policy.Valid() {
			return nil, fmt.Errorf("gate spec entry %d: invalid timeout policy %q", i+1, policyStr)
		}
		timeout, err := time.ParseDuration(strings.TrimSpace(timeoutStr))
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("gate spec entry %d: invalid timeout %q", i+1, timeoutStr)
		}
		backoff := model.BackoffFixed
		if i > 0 {
			backoff = model.BackoffExponential
		}
		gates = append(gates, model.GateConfig{
			Message:         fmt.Sprintf("Gate %d: confirm or cancel {action}", i+1),
			ResponseTimeout: timeout,
			OnTimeout:       policy,
			Notify: model.RetryPolicy{
				MaxAttempts: o.NotifyMaxAttempts,
				BaseDelay:   o.NotifyBaseDelay,
				Backoff:     backoff,
			},
		})
	}
	if len(gates) == 0 {
		return nil, fmt.Errorf("gate spec %q configures no gates", o.GateSpec)
	}
	return gates, nil
}

// FinalNotifyPolicy returns the retry policy used for terminal notifications.
func (o *OrchestratorConfig) FinalNotifyPolicy() model.RetryPolicy {
	return model.RetryPolicy{
		MaxAttempts: o.FinalNotifyMaxAttempts,
		BaseDelay:   o.NotifyBaseDelay,
		Backoff:     model.BackoffExponential,
	}
}

// ReaperConfig contains configuration for the stale-gate reaper.
type ReaperConfig struct {
	// Enabled controls whether the reaper loop runs.
	Enabled bool `env:"REAPER_ENABLED" envDefault:"true"`

	// Interval is how often the reaper scans for expired gate deadlines.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"30s"`

	// BatchSize caps how many expired jobs one sweep processes.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval <= 0 {
		r.Interval = 30 * time.Second
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 100
	}
}

// MetricsConfig contains StatsD metrics configuration.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"false"`
	Addr    string `env:"METRICS_STATSD_ADDR" envDefault:"localhost:8125"`
	Prefix  string `env:"METRICS_PREFIX" envDefault:"gatehouse"`
}
