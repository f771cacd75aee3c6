package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceloop/gatehouse/internal/domain/model"
)

func TestGatesParsesSpec(t *testing.T) {
	cfg := OrchestratorConfig{
		GateSpec:          "proceed@15s, cancel@2m",
		NotifyMaxAttempts: 3,
		NotifyBaseDelay:   time.Second,
	}

	gates, err := cfg.Gates()
	require.NoError(t, err)
	require.Len(t, gates, 2)

	assert.Equal(t, model.TimeoutProceed, gates[0].OnTimeout)
	assert.Equal(t, 15*time.Second, gates[0].ResponseTimeout)
	assert.Equal(t, model.BackoffFixed, gates[0].Notify.Backoff)

	assert.Equal(t, model.TimeoutCancel, gates[1].OnTimeout)
	assert.Equal(t, 2*time.Minute, gates[1].ResponseTimeout)
	assert.Equal(t, model.BackoffExponential, gates[1].Notify.Backoff)

	for i, gate := range gates {
		require.NoError(t, gate.Validate(), "gate %d", i+1)
		assert.Contains(t, gate.Message, "{action}")
		assert.Equal(t, 3, gate.Notify.MaxAttempts)
		assert.Equal(t, time.Second, gate.Notify.BaseDelay)
	}
}

func TestGatesRejectsMalformedSpec(t *testing.T) {
	cases := map[string]string{
		"missing separator": "proceed15s",
		"unknown policy":    "maybe@15s",
		"bad duration":      "proceed@soon",
		"zero duration":     "proceed@0s",
		"empty spec":        " , ",
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := OrchestratorConfig{GateSpec: spec, NotifyMaxAttempts: 1, NotifyBaseDelay: time.Second}
			_, err := cfg.Gates()
			require.Error(t, err)
		})
	}
}

func TestFinalNotifyPolicy(t *testing.T) {
	cfg := OrchestratorConfig{FinalNotifyMaxAttempts: 5, NotifyBaseDelay: 2 * time.Second}
	policy := cfg.FinalNotifyPolicy()

	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 2*time.Second, policy.BaseDelay)
	assert.Equal(t, model.BackoffExponential, policy.Backoff)
}

func TestOrchestratorSanitize(t *testing.T) {
	cfg := OrchestratorConfig{}
	cfg.Sanitize()

	assert.Equal(t, 1, cfg.NotifyMaxAttempts)
	assert.Equal(t, time.Second, cfg.NotifyBaseDelay)
	assert.Equal(t, 1, cfg.FinalNotifyMaxAttempts)
	assert.Equal(t, 1, cfg.ActionMaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.ActionTimeout)
}

func TestReaperSanitize(t *testing.T) {
	cfg := ReaperConfig{}
	cfg.Sanitize()

	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 100, cfg.BatchSize)
}
