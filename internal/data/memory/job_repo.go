// Package memory provides a fully in-memory implementation of the job
// repository. Safe for concurrent access. Intended for unit testing and
// development mode.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/voiceloop/gatehouse/internal/core"
	"github.com/voiceloop/gatehouse/internal/domain/model"
)

// JobRepo is an in-memory core.JobRepository. It enforces the same
// conditional-transition semantics as the PostgreSQL implementation.
type JobRepo struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
	now  func() time.Time
}

var _ core.JobRepository = (*JobRepo)(nil)

// NewJobRepo returns a new empty in-memory repository.
func NewJobRepo() *JobRepo {
	return &JobRepo{
		jobs: make(map[string]*model.Job),
		now:  time.Now,
	}
}

// SetNowFunc overrides the clock, for tests exercising deadline behavior.
func (m *JobRepo) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *JobRepo) clone(j *model.Job) *model.Job {
	cp := *j
	return &cp
}

// Create persists a new record in created status, or returns the existing
// record unchanged when the id was seen before.
func (m *JobRepo) Create(
	_ context.Context,
	req *model.CreateJobRequest,
	id string,
) (*model.Job, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.jobs[id]; ok {
		return m.clone(existing), false, nil
	}

	now := m.now().UTC()
	job := &model.Job{
		ID:             id,
		SessionRef:     req.SessionRef,
		IntentRef:      req.IntentRef,
		ActionName:     req.ActionName,
		Parameters:     req.Parameters,
		CallbackTarget: req.CallbackTarget,
		Status:         model.JobStatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.jobs[id] = job
	return m.clone(job), true, nil
}

// GetByID retrieves a job record by its id.
func (m *JobRepo) GetByID(_ context.Context, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	return m.clone(job), nil
}

// mutate applies fn to the stored record when check passes, mirroring the SQL
// conditional-update semantics.
func (m *JobRepo) mutate(
	id string,
	check func(*model.Job) bool,
	fn func(*model.Job),
) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	if !check(job) {
		return nil, model.ErrTransitionConflict
	}
	fn(job)
	job.UpdatedAt = m.now().UTC()
	return m.clone(job), nil
}

// MarkExecuting transitions created → executing.
func (m *JobRepo) MarkExecuting(_ context.Context, id string) (*model.Job, error) {
	return m.mutate(id,
		func(j *model.Job) bool { return j.Status == model.JobStatusCreated },
		func(j *model.Job) { j.Status = model.JobStatusExecuting })
}

// BeginGate transitions into gate_pending for the given gate.
func (m *JobRepo) BeginGate(_ context.Context, params core.BeginGateParams) (*model.Job, error) {
	return m.mutate(params.ID,
		func(j *model.Job) bool {
			return j.Status == params.FromStatus && j.GateIndex == params.FromGate
		},
		func(j *model.Job) {
			j.Status = model.JobStatusGatePending
			j.GateIndex = params.GateIndex
			notified := params.NotifiedAt.UTC()
			deadline := params.DeadlineAt.UTC()
			j.GateNotifiedAt = &notified
			j.GateDeadlineAt = &deadline
		})
}

// MarkActionRunning transitions gate_pending(fromGate) → action_running.
func (m *JobRepo) MarkActionRunning(_ context.Context, id string, fromGate int) (*model.Job, error) {
	return m.mutate(id,
		func(j *model.Job) bool {
			return j.Status == model.JobStatusGatePending && j.GateIndex == fromGate
		},
		func(j *model.Job) {
			j.Status = model.JobStatusActionRunning
			j.GateIndex = 0
			j.GateNotifiedAt = nil
			j.GateDeadlineAt = nil
		})
}

// Complete transitions action_running → completed.
func (m *JobRepo) Complete(_ context.Context, params core.CompleteParams) (*model.Job, error) {
	return m.mutate(params.ID,
		func(j *model.Job) bool { return j.Status == model.JobStatusActionRunning },
		func(j *model.Job) {
			j.Status = model.JobStatusCompleted
			j.Result = params.Result
			if len(j.Result) == 0 {
				j.Result = json.RawMessage("null")
			}
			summary := params.Summary
			j.ResultSummary = &summary
			j.QualityBelowThreshold = params.QualityBelowThreshold
			j.AttemptsUsed = params.AttemptsUsed
			completed := m.now().UTC()
			j.CompletedAt = &completed
		})
}

// Fail transitions any non-terminal status → failed.
func (m *JobRepo) Fail(_ context.Context, id, summary string) (*model.Job, error) {
	return m.mutate(id,
		func(j *model.Job) bool { return !j.Status.Terminal() },
		func(j *model.Job) {
			j.Status = model.JobStatusFailed
			j.ResultSummary = &summary
			completed := m.now().UTC()
			j.CompletedAt = &completed
		})
}

// Cancel transitions executing or gate_pending → cancelled.
func (m *JobRepo) Cancel(_ context.Context, id, summary string) (*model.Job, error) {
	return m.mutate(id,
		func(j *model.Job) bool {
			return j.Status == model.JobStatusExecuting || j.Status == model.JobStatusGatePending
		},
		func(j *model.Job) {
			j.Status = model.JobStatusCancelled
			j.ResultSummary = &summary
			completed := m.now().UTC()
			j.CompletedAt = &completed
		})
}

// ListNonTerminal returns every record not in a terminal status, oldest first.
func (m *JobRepo) ListNonTerminal(_ context.Context) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var jobs []*model.Job
	for _, j := range m.jobs {
		if !j.Status.Terminal() {
			jobs = append(jobs, m.clone(j))
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })
	return jobs, nil
}

// ListExpiredGates returns gate_pending records whose deadline passed before cutoff.
func (m *JobRepo) ListExpiredGates(
	_ context.Context,
	cutoff time.Time,
	limit int,
) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var jobs []*model.Job
	for _, j := range m.jobs {
		if j.Status == model.JobStatusGatePending &&
			j.GateDeadlineAt != nil && !j.GateDeadlineAt.After(cutoff) {
			jobs = append(jobs, m.clone(j))
		}
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].GateDeadlineAt.Before(*jobs[k].GateDeadlineAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Stats returns counts of jobs grouped by status.
func (m *JobRepo) Stats(_ context.Context) (*model.JobStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats model.JobStats
	for _, j := range m.jobs {
		switch j.Status {
		case model.JobStatusCreated:
			stats.Created++
		case model.JobStatusExecuting:
			stats.Executing++
		case model.JobStatusGatePending:
			stats.GatePending++
		case model.JobStatusActionRunning:
			stats.ActionRunning++
		case model.JobStatusCompleted:
			stats.Completed++
		case model.JobStatusCancelled:
			stats.Cancelled++
		case model.JobStatusFailed:
			stats.Failed++
		}
	}
	return &stats, nil
}
