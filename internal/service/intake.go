package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voiceloop/gatehouse/internal/core"
	"github.com/voiceloop/gatehouse/internal/data"
	"github.com/voiceloop/gatehouse/internal/domain/model"
	apperrors "github.com/voiceloop/gatehouse/internal/errors"
	"github.com/voiceloop/gatehouse/internal/observability/statsd"
)

// IntakeService accepts job submissions, resolves duplicates, and hands
// accepted jobs to the sequencer. It is the single entry point for creating,
// querying, and acknowledging jobs.
type IntakeService struct {
	repo      core.JobRepository
	sequencer *GateSequencer
	registry  *JobRegistry
	claims    core.ClaimCache
	claimTTL  time.Duration

	timeProvider data.TimeProvider
	logger       *slog.Logger
	metrics      statsd.Sink

	// spawn launches a job goroutine. Tests override it to run inline.
	spawn func(fn func())
}

// IntakeServiceOptions contains options for creating an IntakeService.
type IntakeServiceOptions struct {
	Repo      core.JobRepository
	Sequencer *GateSequencer
	Registry  *JobRegistry

	// Claims is the optional fast-path dedupe cache. Nil disables the fast
	// path; the store's unique id constraint still guarantees idempotency.
	Claims   core.ClaimCache
	ClaimTTL time.Duration

	TimeProvider data.TimeProvider
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// NewIntakeService creates an IntakeService with the given options.
func NewIntakeService(opts IntakeServiceOptions) (*IntakeService, error) {
	if opts.Repo == nil {
		return nil, fmt.Errorf("repo is required")
	}
	if opts.Sequencer == nil {
		return nil, fmt.Errorf("sequencer is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = statsd.Disabled()
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = 10 * time.Minute
	}
	return &IntakeService{
		repo:         opts.Repo,
		sequencer:    opts.Sequencer,
		registry:     opts.Registry,
		claims:       opts.Claims,
		claimTTL:     opts.ClaimTTL,
		timeProvider: opts.TimeProvider,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		spawn:        func(fn func()) { go fn() },
	}, nil
}

// MustNewIntakeService creates an IntakeService and panics on invalid options.
func MustNewIntakeService(opts IntakeServiceOptions) *IntakeService {
	s, err := NewIntakeService(opts)
	if err != nil {
		panic(err)
	}
	return s
}

// Submit validates and persists a job, then starts its sequencer. Submissions
// carrying a request id are idempotent: a repeat of an already-accepted id
// returns the existing record unchanged with created=false and starts nothing.
func (s *IntakeService) Submit(ctx context.Context, req *model.CreateJobRequest) (*model.Job, bool, error) {
	if req == nil {
		return nil, false, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, false, apperrors.Validation(err.Error())
	}

	id := uuid.NewString()
	claimed := false
	if req.RequestID != nil {
		// The request id doubles as the record id, so the store's primary key
		// is the durable idempotency constraint.
		id = *req.RequestID

		if s.claims != nil {
			ok, err := s.claims.Claim(ctx, id, s.claimTTL)
			if err != nil {
				// The cache is an optimization in front of the unique
				// constraint, never a correctness dependency.
				s.logger.WarnContext(ctx, "claim cache unavailable, falling through to store",
					"request_id", id, "error", err)
			} else if !ok {
				existing, err := s.repo.GetByID(ctx, id)
				if err == nil {
					s.metrics.Count("intake.duplicate", 1, nil)
					return existing, false, nil
				}
				if !errors.Is(err, model.ErrJobNotFound) {
					return nil, false, err
				}
				// Claimed but not yet visible in the store. Fall through to
				// Create, which resolves the race on the unique constraint.
			} else {
				claimed = true
			}
		}
	}

	job, created, err := s.repo.Create(ctx, req, id)
	if err != nil {
		if claimed && s.claims != nil {
			if rerr := s.claims.Release(ctx, id); rerr != nil {
				s.logger.WarnContext(ctx, "failed to release claim", "request_id", id, "error", rerr)
			}
		}
		return nil, false, err
	}
	if !created {
		s.metrics.Count("intake.duplicate", 1, nil)
		return job, false, nil
	}

	s.metrics.Count("intake.accepted", 1, map[string]string{"action": job.ActionName})
	s.logger.InfoContext(ctx, "job accepted",
		"job_id", job.ID, "action", job.ActionName, "callback", job.CallbackTarget)

	s.start(job)
	return job, true, nil
}

// GetJob returns the current record for a job id.
func (s *IntakeService) GetJob(ctx context.Context, id string) (*model.Job, error) {
	if id == "" {
		return nil, apperrors.ValidationField("id", "id is required")
	}
	return s.repo.GetByID(ctx, id)
}

// RespondToGate delivers a caller acknowledgment or cancel for a pending gate.
// The gate index must match the gate the job is currently blocked on.
func (s *IntakeService) RespondToGate(ctx context.Context, id string, gateIndex int, resp model.GateResponse) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusGatePending {
		return nil, apperrors.Conflictf("job %s is not awaiting a gate response (status %s)", id, job.Status)
	}
	if job.GateIndex != gateIndex {
		return nil, apperrors.Conflictf("job %s is at gate %d, not gate %d", id, job.GateIndex, gateIndex)
	}

	s.metrics.Count("intake.gate_response", 1,
		map[string]string{"gate": fmt.Sprint(gateIndex), "cancel": fmt.Sprint(resp.Cancel)})

	// Cancels act on the record directly rather than handing the decision to
	// a waiter, so the returned record is already terminal. Releasing the
	// registration tears down any live sequencer blocked on the gate.
	if resp.Cancel {
		reason := resp.Reason
		if reason == "" {
			reason = fmt.Sprintf("cancelled by caller at gate %d", gateIndex)
		}
		return s.cancelRecord(ctx, id, reason)
	}

	if s.registry.ResolveGate(id, gateIndex, resp) {
		// The sequencer applies the advance on its own goroutine; the re-read
		// may still show the gate for a moment after acceptance.
		return s.repo.GetByID(ctx, id)
	}
	return nil, apperrors.Conflictf("gate %d of job %s already resolved", gateIndex, id)
}

// CancelJob cancels a job that has not yet entered its action stage. The
// conditional update is applied before any live sequencer is torn down, so the
// returned record is already cancelled.
func (s *IntakeService) CancelJob(ctx context.Context, id, reason string) (*model.Job, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "cancelled by caller"
	}

	job, err := s.cancelRecord(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCancelled {
		return nil, apperrors.Conflictf("job %s can no longer be cancelled", id)
	}
	s.metrics.Count("intake.cancelled", 1, nil)
	return job, nil
}

// cancelRecord cancels the record, tears down any live sequencer for it, and
// dispatches the final cancellation notification in the background. A job that
// already reached a terminal state through another path is returned as-is.
func (s *IntakeService) cancelRecord(ctx context.Context, id, reason string) (*model.Job, error) {
	job, err := s.repo.Cancel(ctx, id, reason)
	if err != nil {
		if errors.Is(err, model.ErrTransitionConflict) {
			// The job advanced past its cancellable stages; its sequencer, if
			// any, must keep running undisturbed.
			return s.repo.GetByID(ctx, id)
		}
		return nil, err
	}
	s.registry.Release(id)

	// Delivery retries must not hold the caller; the notification context is
	// detached because the request ends with this call.
	log := s.logger.With("job_id", id)
	nctx := context.WithoutCancel(ctx)
	s.spawn(func() { s.sequencer.notifyFinal(nctx, log, job, reason) })
	return job, nil
}

// Stats returns job counts by status.
func (s *IntakeService) Stats(ctx context.Context) (*model.JobStats, error) {
	return s.repo.Stats(ctx)
}

// Recover re-adopts every non-terminal job after a restart and resumes each
// from its persisted stage. Returns the number of jobs resumed.
func (s *IntakeService) Recover(ctx context.Context) (int, error) {
	jobs, err := s.repo.ListNonTerminal(ctx)
	if err != nil {
		return 0, fmt.Errorf("list non-terminal jobs: %w", err)
	}

	resumed := 0
	for _, job := range jobs {
		if s.registry.Owns(job.ID) {
			continue
		}
		s.logger.InfoContext(ctx, "re-adopting job after restart",
			"job_id", job.ID, "status", job.Status, "gate", job.GateIndex)
		s.start(job)
		resumed++
	}
	if resumed > 0 {
		s.metrics.Count("intake.recovered", int64(resumed), nil)
	}
	return resumed, nil
}

// start adopts the job in the registry and runs its sequencer in a goroutine.
func (s *IntakeService) start(job *model.Job) {
	jctx, ok := s.registry.Adopt(context.Background(), job.ID)
	if !ok {
		s.logger.Warn("job already owned by a running sequencer", "job_id", job.ID)
		return
	}
	s.spawn(func() {
		s.sequencer.Run(jctx, job)
	})
}
