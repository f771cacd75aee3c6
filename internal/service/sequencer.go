package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voiceloop/gatehouse/internal/core"
	"github.com/voiceloop/gatehouse/internal/data"
	"github.com/voiceloop/gatehouse/internal/domain/model"
	"github.com/voiceloop/gatehouse/internal/observability/statsd"
)

// GateSequencer drives a job through its gate chain and action stage. One
// sequencer instance serves all jobs; each job runs in its own goroutine under
// a context owned by the JobRegistry.
//
// Every transition goes through the repository's conditional updates, so a
// sequencer that lost ownership of a record (reaper acted first, concurrent
// cancel) observes model.ErrTransitionConflict and stops without side effects.
type GateSequencer struct {
	repo      core.JobRepository
	notifier  core.CallbackNotifier
	executors *ExecutorRegistry
	registry  *JobRegistry

	gates             []model.GateConfig
	finalNotify       model.RetryPolicy
	actionMaxAttempts int
	actionTimeout     time.Duration
	strictQuality     bool

	timeProvider data.TimeProvider
	logger       *slog.Logger
	metrics      statsd.Sink
}

// GateSequencerOptions contains options for creating a GateSequencer.
type GateSequencerOptions struct {
	Repo      core.JobRepository
	Notifier  core.CallbackNotifier
	Executors *ExecutorRegistry
	Registry  *JobRegistry

	Gates             []model.GateConfig
	FinalNotify       model.RetryPolicy
	ActionMaxAttempts int
	ActionTimeout     time.Duration
	StrictQuality     bool

	TimeProvider data.TimeProvider
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// NewGateSequencer creates a GateSequencer with the given options.
func NewGateSequencer(opts GateSequencerOptions) (*GateSequencer, error) {
	if opts.Repo == nil {
		return nil, fmt.Errorf("repo is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if opts.Executors == nil {
		return nil, fmt.Errorf("executors is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if len(opts.Gates) == 0 {
		return nil, fmt.Errorf("at least one gate is required")
	}
	for i, gate := range opts.Gates {
		if err := gate.Validate(); err != nil {
			return nil, fmt.Errorf("gate %d: %w", i+1, err)
		}
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
	if opts.ActionMaxAttempts < 1 {
		opts.ActionMaxAttempts = 1
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 2 * time.Minute
	}
	return &GateSequencer{
		repo:              opts.Repo,
		notifier:          opts.Notifier,
		executors:         opts.Executors,
		registry:          opts.Registry,
		gates:             opts.Gates,
		finalNotify:       opts.FinalNotify,
		actionMaxAttempts: opts.ActionMaxAttempts,
		actionTimeout:     opts.ActionTimeout,
		strictQuality:     opts.StrictQuality,
		timeProvider:      opts.TimeProvider,
		logger:            opts.Logger,
		metrics:           opts.Metrics,
	}, nil
}

// MustNewGateSequencer creates a GateSequencer and panics on invalid options.
func MustNewGateSequencer(opts GateSequencerOptions) *GateSequencer {
	s, err := NewGateSequencer(opts)
	if err != nil {
		panic(err)
	}
	return s
}

// GateCount returns the number of configured gates.
func (s *GateSequencer) GateCount() int {
	return len(s.gates)
}

// Run drives one job to a terminal state. The job may be freshly created or a
// non-terminal record re-adopted after a restart; the starting stage is derived
// from the persisted status. Run owns the registry registration for the job and
// releases it on return.
func (s *GateSequencer) Run(ctx context.Context, job *model.Job) {
	jobID := job.ID
	defer s.registry.Release(jobID)

	log := s.logger.With("job_id", jobID, "action", job.ActionName)
	start := s.timeProvider.Now()

	var err error
	switch job.Status {
	case model.JobStatusCreated:
		job, err = s.repo.MarkExecuting(ctx, jobID)
		if err != nil {
			s.abandon(ctx, log, jobID, err)
			return
		}
		err = s.runGates(ctx, log, job, 1, nil)
	case model.JobStatusExecuting:
		// Interrupted before the first gate was persisted. The gate chain
		// restarts from the beginning.
		err = s.runGates(ctx, log, job, 1, nil)
	case model.JobStatusGatePending:
		// Interrupted mid-gate. The persisted deadline still bounds the
		// response window, so the caller's remaining time survives restarts.
		err = s.runGates(ctx, log, job, job.GateIndex, job.GateDeadlineAt)
	case model.JobStatusActionRunning:
		// The action may have partially executed before the crash. Re-running
		// it is unsafe, so the job fails with an explicit interruption summary.
		s.failJob(ctx, log, jobID, "action interrupted by restart, outcome unknown")
		return
	default:
		log.WarnContext(ctx, "sequencer started for terminal job", "status", job.Status)
		return
	}
	if err != nil {
		s.abandon(ctx, log, jobID, err)
		return
	}

	s.metrics.Timing("sequencer.job_duration", s.timeProvider.Now().Sub(start),
		map[string]string{"action": job.ActionName})
}

// runGates walks the gate chain from startGate. resumeDeadline, when non-nil,
// marks startGate as already persisted with that deadline, so the first
// iteration skips BeginGate and keeps the original response window.
func (s *GateSequencer) runGates(
	ctx context.Context,
	log *slog.Logger,
	job *model.Job,
	startGate int,
	resumeDeadline *time.Time,
) error {
	for i := startGate; i <= len(s.gates); i++ {
		gate := s.gates[i-1]

		var deadline time.Time
		if i == startGate && resumeDeadline != nil {
			deadline = *resumeDeadline
		} else {
			notifiedAt := s.timeProvider.Now()
			deadline = notifiedAt.Add(gate.ResponseTimeout)

			params := core.BeginGateParams{
				ID:         job.ID,
				GateIndex:  i,
				FromStatus: model.JobStatusExecuting,
				NotifiedAt: notifiedAt,
				DeadlineAt: deadline,
			}
			if i > 1 {
				params.FromStatus = model.JobStatusGatePending
				params.FromGate = i - 1
			}
			var err error
			job, err = s.repo.BeginGate(ctx, params)
			if err != nil {
				return fmt.Errorf("begin gate %d: %w", i, err)
			}
		}

		// Register the waiter before the notification goes out so an
		// immediate acknowledgment cannot race past it.
		responses := s.registry.AwaitGate(job.ID, i)

		// Always notify, including on resume: the record only proves the gate
		// was persisted, not that the pre-crash delivery attempt ever left the
		// process. Delivery is at-least-once, so a duplicate is harmless.
		s.notifyGate(ctx, log, job, i, gate)

		outcome, reason := s.awaitGate(ctx, job.ID, i, gate, deadline, responses)
		switch outcome {
		case gatePassed:
			s.metrics.Count("sequencer.gate_passed", 1, map[string]string{"gate": fmt.Sprint(i)})
			log.InfoContext(ctx, "gate passed", "gate", i, "reason", reason)
		case gateCancelled:
			s.metrics.Count("sequencer.gate_cancelled", 1, map[string]string{"gate": fmt.Sprint(i)})
			s.cancelJob(ctx, log, job.ID, reason)
			return nil
		case gateLost:
			// The waiter channel closed underneath us: another path already
			// drove the job to a terminal state, or the process is shutting
			// down. Either way this goroutine is done.
			log.InfoContext(ctx, "gate wait released", "gate", i)
			return nil
		}
	}

	lastGate := len(s.gates)
	job, err := s.repo.MarkActionRunning(ctx, job.ID, lastGate)
	if err != nil {
		return fmt.Errorf("mark action running: %w", err)
	}
	s.runAction(ctx, log, job)
	return nil
}

type gateOutcome int

const (
	gatePassed gateOutcome = iota
	gateCancelled
	gateLost
)

// awaitGate blocks until the gate resolves: a caller acknowledgment arrives,
// the wall-clock deadline passes, or the job context ends.
func (s *GateSequencer) awaitGate(
	ctx context.Context,
	jobID string,
	gateIndex int,
	gate model.GateConfig,
	deadline time.Time,
	responses <-chan model.GateResponse,
) (gateOutcome, string) {
	wait := deadline.Sub(s.timeProvider.Now())
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case resp, ok := <-responses:
		if !ok {
			return gateLost, ""
		}
		if resp.Cancel {
			reason := strings.TrimSpace(resp.Reason)
			if reason == "" {
				reason = fmt.Sprintf("cancelled by caller at gate %d", gateIndex)
			}
			return gateCancelled, reason
		}
		return gatePassed, "acknowledged"
	case <-timer.C:
		s.registry.dropGate(jobID, gateIndex)
		s.metrics.Count("sequencer.gate_timeout", 1,
			map[string]string{"gate": fmt.Sprint(gateIndex), "policy": string(gate.OnTimeout)})
		if gate.OnTimeout == model.TimeoutCancel {
			return gateCancelled, fmt.Sprintf("no response within %s at gate %d", gate.ResponseTimeout, gateIndex)
		}
		return gatePassed, "timeout, policy proceed"
	case <-ctx.Done():
		// Shutdown or external cancel of the job context. The record stays
		// gate_pending with its persisted deadline and is re-adopted on the
		// next start.
		return gateLost, ""
	}
}

// notifyGate delivers the gate notification in the background so delivery
// retries burn wall-clock time out of the response window rather than delaying
// it. Exhausted delivery is logged, not fatal: the gate's timeout policy is the
// authoritative outcome for an unreachable callback target.
func (s *GateSequencer) notifyGate(ctx context.Context, log *slog.Logger, job *model.Job, gateIndex int, gate model.GateConfig) {
	message := strings.ReplaceAll(gate.Message, "{action}", job.ActionName)
	n := model.GateNotification(job, gateIndex, message)
	target := job.CallbackTarget
	go func() {
		if err := s.notifier.Notify(ctx, target, n, gate.Notify); err != nil {
			log.WarnContext(ctx, "gate notification delivery failed",
				"gate", gateIndex, "error", err)
		}
	}()
}

// runAction executes the action stage for a job already in action_running and
// records the terminal outcome.
func (s *GateSequencer) runAction(ctx context.Context, log *slog.Logger, job *model.Job) {
	reg, ok := s.executors.Lookup(job.ActionName)
	if !ok {
		s.failJob(ctx, log, job.ID, fmt.Sprintf("no executor registered for action %q", job.ActionName))
		return
	}

	maxAttempts := s.actionMaxAttempts
	if !reg.Retryable {
		maxAttempts = 1
	}

	res, err := RunWithRetry(ctx, RunWithRetryParams{
		ActionName:  job.ActionName,
		Params:      job.Parameters,
		Executor:    &attemptTimeoutExecutor{inner: s.executors, timeout: s.actionTimeout},
		Evaluator:   reg.Evaluator,
		MaxAttempts: maxAttempts,
		Logger:      log,
	})
	if err != nil {
		s.failJob(ctx, log, job.ID, fmt.Sprintf("action failed after %d attempt(s): %v", res.AttemptsUsed, err))
		return
	}
	if res.QualityBelowThreshold && s.strictQuality {
		s.failJob(ctx, log, job.ID,
			fmt.Sprintf("result quality below threshold after %d attempt(s)", res.AttemptsUsed))
		return
	}

	summary := fmt.Sprintf("%s completed in %d attempt(s)", job.ActionName, res.AttemptsUsed)
	if res.QualityBelowThreshold {
		summary += ", quality below threshold"
	}
	job, err = s.repo.Complete(ctx, core.CompleteParams{
		ID:                    job.ID,
		Result:                res.Result,
		Summary:               summary,
		QualityBelowThreshold: res.QualityBelowThreshold,
		AttemptsUsed:          res.AttemptsUsed,
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to record completion", "error", err)
		return
	}

	s.metrics.Count("sequencer.job_completed", 1, map[string]string{"action": job.ActionName})
	log.InfoContext(ctx, "job completed", "attempts", res.AttemptsUsed,
		"quality_below_threshold", res.QualityBelowThreshold)
	s.notifyFinal(ctx, log, job, summary)
}

// cancelJob records cancellation and sends the final notification. A conflict
// means the record already reached a terminal state through another path.
func (s *GateSequencer) cancelJob(ctx context.Context, log *slog.Logger, jobID, reason string) {
	job, err := s.repo.Cancel(ctx, jobID, reason)
	if err != nil {
		if errors.Is(err, model.ErrTransitionConflict) {
			log.InfoContext(ctx, "cancel skipped, job already terminal")
			return
		}
		log.ErrorContext(ctx, "failed to record cancellation", "error", err)
		return
	}
	s.metrics.Count("sequencer.job_cancelled", 1, map[string]string{"action": job.ActionName})
	log.InfoContext(ctx, "job cancelled", "reason", reason)
	s.notifyFinal(ctx, log, job, reason)
}

// failJob records failure and sends the final notification.
func (s *GateSequencer) failJob(ctx context.Context, log *slog.Logger, jobID, summary string) {
	job, err := s.repo.Fail(ctx, jobID, summary)
	if err != nil {
		if errors.Is(err, model.ErrTransitionConflict) {
			log.InfoContext(ctx, "fail skipped, job already terminal")
			return
		}
		log.ErrorContext(ctx, "failed to record failure", "error", err)
		return
	}
	s.metrics.Count("sequencer.job_failed", 1, map[string]string{"action": job.ActionName})
	log.WarnContext(ctx, "job failed", "summary", summary)
	s.notifyFinal(ctx, log, job, summary)
}

// notifyFinal delivers the terminal notification. Delivery failure never
// reopens the job: the record is already terminal and the callback target can
// recover the outcome by polling.
func (s *GateSequencer) notifyFinal(ctx context.Context, log *slog.Logger, job *model.Job, message string) {
	// The job context may already be cancelled once the record is terminal;
	// the final notification still has to go out.
	nctx := context.WithoutCancel(ctx)
	n := model.FinalNotification(job, message)
	if err := s.notifier.Notify(nctx, job.CallbackTarget, n, s.finalNotify); err != nil {
		log.WarnContext(ctx, "final notification delivery failed",
			"status", job.Status, "error", err)
	}
}

// abandon handles a pipeline error that is not itself a recorded outcome. A
// transition conflict means another writer owns the record now; anything else
// is best-effort converted into a failed terminal state so the job cannot hang.
func (s *GateSequencer) abandon(ctx context.Context, log *slog.Logger, jobID string, err error) {
	if errors.Is(err, model.ErrTransitionConflict) {
		log.InfoContext(ctx, "sequencer yielded, record changed by another writer", "error", err)
		return
	}
	log.ErrorContext(ctx, "sequencer aborted, failing job", "error", err)
	s.failJob(context.WithoutCancel(ctx), log, jobID, fmt.Sprintf("internal error: %v", err))
}

// attemptTimeoutExecutor bounds each action invocation with its own timeout.
type attemptTimeoutExecutor struct {
	inner   core.ActionExecutor
	timeout time.Duration
}

func (e *attemptTimeoutExecutor) Execute(ctx context.Context, actionName string, params json.RawMessage) (json.RawMessage, error) {
	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.inner.Execute(actx, actionName, params)
}
