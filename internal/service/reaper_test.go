package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceloop/gatehouse/internal/core"
	"github.com/voiceloop/gatehouse/internal/domain/model"
)

func newReaperFixture(t *testing.T, opts fixtureOptions) (*sequencerFixture, *Reaper) {
	t.Helper()
	f := newSequencerFixture(t, opts)
	reaper := MustNewReaper(ReaperOptions{
		Repo:      f.repo,
		Sequencer: f.seq,
		Registry:  f.registry,
	})
	return f, reaper
}

// plantExpiredGate persists a gate_pending record whose response deadline is
// already in the past, with no sequencer attending it.
func plantExpiredGate(t *testing.T, f *sequencerFixture, id string) {
	t.Helper()
	ctx := context.Background()
	f.createJob(t, id)
	_, err := f.repo.MarkExecuting(ctx, id)
	require.NoError(t, err)
	now := time.Now().UTC()
	_, err = f.repo.BeginGate(ctx, core.BeginGateParams{
		ID: id, GateIndex: 1, FromStatus: model.JobStatusExecuting,
		NotifiedAt: now.Add(-10 * time.Minute), DeadlineAt: now.Add(-5 * time.Minute),
	})
	require.NoError(t, err)
}

func TestReaperSweepAppliesCancelPolicy(t *testing.T) {
	f, reaper := newReaperFixture(t, fixtureOptions{
		gates: []model.GateConfig{cancelGate(time.Minute)},
	})
	f.registerEcho(t)
	plantExpiredGate(t, f, "job-1")

	adopted, err := reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, adopted)

	final := f.waitTerminal(t, "job-1")
	assert.Equal(t, model.JobStatusCancelled, final.Status)
	require.NotNil(t, final.ResultSummary)
	assert.Contains(t, *final.ResultSummary, "no response within")
}

func TestReaperSweepAppliesProceedPolicy(t *testing.T) {
	f, reaper := newReaperFixture(t, fixtureOptions{
		gates: []model.GateConfig{proceedGate(time.Minute)},
	})
	f.registerEcho(t)
	plantExpiredGate(t, f, "job-1")

	adopted, err := reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, adopted)

	final := f.waitTerminal(t, "job-1")
	assert.Equal(t, model.JobStatusCompleted, final.Status)
}

func TestReaperSweepSkipsOwnedJobs(t *testing.T) {
	f, reaper := newReaperFixture(t, fixtureOptions{
		gates: []model.GateConfig{cancelGate(time.Minute)},
	})
	f.registerEcho(t)
	plantExpiredGate(t, f, "job-1")

	_, ok := f.registry.Adopt(context.Background(), "job-1")
	require.True(t, ok)

	adopted, err := reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, adopted, "a live sequencer's timer is authoritative")

	job, err := f.repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusGatePending, job.Status)
}

func TestReaperSweepIgnoresUnexpiredGates(t *testing.T) {
	f, reaper := newReaperFixture(t, fixtureOptions{
		gates: []model.GateConfig{cancelGate(time.Minute)},
	})
	ctx := context.Background()
	f.createJob(t, "job-1")
	_, err := f.repo.MarkExecuting(ctx, "job-1")
	require.NoError(t, err)
	now := time.Now().UTC()
	_, err = f.repo.BeginGate(ctx, core.BeginGateParams{
		ID: "job-1", GateIndex: 1, FromStatus: model.JobStatusExecuting,
		NotifiedAt: now, DeadlineAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	adopted, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, adopted)
}

func TestReaperRunStopsOnContextCancel(t *testing.T) {
	_, reaper := newReaperFixture(t, fixtureOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := reaper.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
