package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutPolicyValid(t *testing.T) {
	assert.True(t, TimeoutProceed.Valid())
	assert.True(t, TimeoutCancel.Valid())
	assert.False(t, TimeoutPolicy("retry").Valid())
	assert.False(t, TimeoutPolicy("").Valid())
}

func TestRetryPolicyValidate(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Backoff: BackoffExponential}
	require.NoError(t, policy.Validate())

	policy.MaxAttempts = 0
	require.ErrorContains(t, policy.Validate(), "at least one attempt")

	policy = RetryPolicy{MaxAttempts: 1, BaseDelay: -time.Second}
	require.ErrorContains(t, policy.Validate(), "negative")

	policy = RetryPolicy{MaxAttempts: 1, Backoff: BackoffKind("cubic")}
	require.ErrorContains(t, policy.Validate(), "backoff")

	// Empty backoff kind means the consumer picks a default.
	policy = RetryPolicy{MaxAttempts: 1}
	require.NoError(t, policy.Validate())
}

func TestGateConfigValidate(t *testing.T) {
	gate := GateConfig{
		Message:         "confirm {action}",
		ResponseTimeout: time.Minute,
		OnTimeout:       TimeoutCancel,
		Notify:          RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second},
	}
	require.NoError(t, gate.Validate())

	gate.ResponseTimeout = 0
	require.ErrorContains(t, gate.Validate(), "timeout must be positive")

	gate.ResponseTimeout = time.Minute
	gate.OnTimeout = ""
	require.ErrorContains(t, gate.Validate(), "timeout policy")

	gate.OnTimeout = TimeoutProceed
	gate.Notify.MaxAttempts = 0
	require.Error(t, gate.Validate())
}
