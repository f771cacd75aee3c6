package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceloop/gatehouse/internal/domain/model"
	apperrors "github.com/voiceloop/gatehouse/internal/errors"
)

func testNotification() model.Notification {
	return model.Notification{
		JobID:       "job-1",
		Status:      model.JobStatusGatePending,
		GateIndex:   1,
		Cancellable: true,
		Message:     "Gate 1: confirm or cancel send_summary",
		SentAt:      time.Now().UTC(),
	}
}

func fastPolicy(maxAttempts int) model.RetryPolicy {
	return model.RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		Backoff:     model.BackoffFixed,
	}
}

func TestNotifyDeliversOnFirstAttempt(t *testing.T) {
	var received atomic.Int32
	var gotBody model.Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	w := New(Options{})
	err := w.Notify(context.Background(), server.URL, testNotification(), fastPolicy(3))

	require.NoError(t, err)
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, "job-1", gotBody.JobID)
	assert.True(t, gotBody.Cancellable)
}

func TestNotifyRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	w := New(Options{})
	err := w.Notify(context.Background(), server.URL, testNotification(), fastPolicy(5))

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotifyExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	w := New(Options{})
	err := w.Notify(context.Background(), server.URL, testNotification(), fastPolicy(3))

	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "bounded retry must stop at max attempts")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDelivery))
	assert.ErrorContains(t, err, "exhausted 3 attempts")
}

func TestNotifyNon2xxIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
	}))
	t.Cleanup(server.Close)

	client := &http.Client{
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error { return http.ErrUseLastResponse },
	}
	w := New(Options{HTTPClient: client})
	err := w.Notify(context.Background(), server.URL, testNotification(), fastPolicy(1))

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDelivery))
}

func TestNotifyContextCancelAbandonsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	policy := model.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, Backoff: model.BackoffFixed}

	w := New(Options{})
	done := make(chan error, 1)
	go func() { done <- w.Notify(ctx, server.URL, testNotification(), policy) }()

	// Let the first attempt fail, then cancel during the backoff wait.
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCanceled))
		assert.Equal(t, int32(1), calls.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("notify did not return after context cancellation")
	}
}

func TestNotifyRejectsInvalidPolicy(t *testing.T) {
	w := New(Options{})
	err := w.Notify(context.Background(), "http://127.0.0.1:0", testNotification(), model.RetryPolicy{})

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}
