package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCreateRequest() *CreateJobRequest {
	return &CreateJobRequest{
		ActionName:     "send_invoice",
		Parameters:     json.RawMessage(`{"amount": 42}`),
		CallbackTarget: "https://callbacks.example.com/hooks/voice",
	}
}

func TestCreateJobRequestValidate(t *testing.T) {
	require.NoError(t, validCreateRequest().Validate())
}

func TestCreateJobRequestValidateMissingAction(t *testing.T) {
	req := validCreateRequest()
	req.ActionName = "  "
	require.ErrorContains(t, req.Validate(), "action name")
}

func TestCreateJobRequestValidateBadParameters(t *testing.T) {
	req := validCreateRequest()
	req.Parameters = nil
	require.ErrorContains(t, req.Validate(), "parameters")

	req.Parameters = json.RawMessage(`{"unterminated`)
	require.ErrorContains(t, req.Validate(), "valid JSON")
}

func TestCreateJobRequestValidateCallbackTarget(t *testing.T) {
	req := validCreateRequest()
	req.CallbackTarget = ""
	require.ErrorContains(t, req.Validate(), "callback target")

	req.CallbackTarget = "ftp://example.com/hook"
	require.ErrorContains(t, req.Validate(), "http(s)")

	req.CallbackTarget = "not a url"
	require.Error(t, req.Validate())
}

func TestCreateJobRequestValidateRequestID(t *testing.T) {
	req := validCreateRequest()

	blank := "   "
	req.RequestID = &blank
	require.ErrorContains(t, req.Validate(), "blank")

	long := make([]byte, 129)
	for i := range long {
		long[i] = 'a'
	}
	tooLong := string(long)
	req.RequestID = &tooLong
	require.ErrorContains(t, req.Validate(), "128")

	ok := "call-7f3a"
	req.RequestID = &ok
	require.NoError(t, req.Validate())
}

func TestJobStatusValid(t *testing.T) {
	for _, s := range []JobStatus{
		JobStatusCreated, JobStatusExecuting, JobStatusGatePending,
		JobStatusActionRunning, JobStatusCompleted, JobStatusCancelled, JobStatusFailed,
	} {
		assert.True(t, s.Valid(), "status %q should be valid", s)
	}
	assert.False(t, JobStatus("paused").Valid())
	assert.False(t, JobStatus("").Valid())
}

func TestJobStatusTerminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusCancelled.Terminal())
	assert.True(t, JobStatusFailed.Terminal())

	assert.False(t, JobStatusCreated.Terminal())
	assert.False(t, JobStatusExecuting.Terminal())
	assert.False(t, JobStatusGatePending.Terminal())
	assert.False(t, JobStatusActionRunning.Terminal())
}
