package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceloop/gatehouse/internal/domain/model"
)

func TestRegistryAdoptOncePerJob(t *testing.T) {
	r := NewJobRegistry()

	ctx, ok := r.Adopt(context.Background(), "job-1")
	require.True(t, ok)
	require.NotNil(t, ctx)
	assert.True(t, r.Owns("job-1"))

	_, ok = r.Adopt(context.Background(), "job-1")
	assert.False(t, ok, "a second adoption of the same job must be refused")

	r.Release("job-1")
	assert.False(t, r.Owns("job-1"))

	_, ok = r.Adopt(context.Background(), "job-1")
	assert.True(t, ok, "release makes the job adoptable again")
}

func TestRegistryReleaseCancelsJobContext(t *testing.T) {
	r := NewJobRegistry()

	ctx, ok := r.Adopt(context.Background(), "job-1")
	require.True(t, ok)

	r.Release("job-1")

	select {
	case <-ctx.Done():
	default:
		t.Fatal("release must cancel the job context")
	}
}

func TestRegistryResolveGateDeliversResponse(t *testing.T) {
	r := NewJobRegistry()
	ch := r.AwaitGate("job-1", 1)

	ok := r.ResolveGate("job-1", 1, model.GateResponse{Cancel: true, Reason: "changed my mind"})
	require.True(t, ok)

	resp, open := <-ch
	require.True(t, open)
	assert.True(t, resp.Cancel)
	assert.Equal(t, "changed my mind", resp.Reason)

	// Channel is closed after the single response.
	_, open = <-ch
	assert.False(t, open)
}

func TestRegistryResolveGateWithoutWaiter(t *testing.T) {
	r := NewJobRegistry()

	assert.False(t, r.ResolveGate("job-1", 1, model.GateResponse{}))

	// A resolved gate cannot be resolved twice.
	r.AwaitGate("job-1", 1)
	require.True(t, r.ResolveGate("job-1", 1, model.GateResponse{}))
	assert.False(t, r.ResolveGate("job-1", 1, model.GateResponse{}))

	// Wrong gate index has no waiter either.
	r.AwaitGate("job-2", 2)
	assert.False(t, r.ResolveGate("job-2", 1, model.GateResponse{}))
}

func TestRegistryReleaseClosesWaiters(t *testing.T) {
	r := NewJobRegistry()
	_, ok := r.Adopt(context.Background(), "job-1")
	require.True(t, ok)
	ch := r.AwaitGate("job-1", 1)

	r.Release("job-1")

	_, open := <-ch
	assert.False(t, open, "release must close pending waiters without a value")
	assert.False(t, r.ResolveGate("job-1", 1, model.GateResponse{}))
}
