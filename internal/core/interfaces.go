// Package core defines the interfaces connecting the orchestration services to
// their collaborators (persistence, action execution, callback delivery).
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voiceloop/gatehouse/internal/domain/model"
)

// JobRepository defines the interface for job record persistence.
//
// All transition methods are conditional updates: they succeed only when the
// record still holds the expected prior state, and return
// model.ErrTransitionConflict otherwise. This is what enforces the single-writer
// invariant without process-level locking.
type JobRepository interface {
	// Create persists a new record in created status. A duplicate id returns
	// the existing record unchanged with created=false.
	Create(ctx context.Context, req *model.CreateJobRequest, id string) (job *model.Job, created bool, err error)
	GetByID(ctx context.Context, id string) (*model.Job, error)

	// MarkExecuting transitions created → executing.
	MarkExecuting(ctx context.Context, id string) (*model.Job, error)
	// BeginGate transitions executing|gate_pending(i-1) → gate_pending(i),
	// recording the wall-clock notification time and response deadline.
	BeginGate(ctx context.Context, params BeginGateParams) (*model.Job, error)
	// MarkActionRunning transitions gate_pending(lastGate) → action_running.
	MarkActionRunning(ctx context.Context, id string, fromGate int) (*model.Job, error)
	// Complete transitions action_running → completed with the result payload.
	Complete(ctx context.Context, params CompleteParams) (*model.Job, error)
	// Fail transitions any non-terminal status → failed.
	Fail(ctx context.Context, id, summary string) (*model.Job, error)
	// Cancel transitions executing or gate_pending → cancelled.
	Cancel(ctx context.Context, id, summary string) (*model.Job, error)

	// ListNonTerminal returns every record not in a terminal status, for
	// startup re-adoption.
	ListNonTerminal(ctx context.Context) ([]*model.Job, error)
	// ListExpiredGates returns gate_pending records whose persisted deadline
	// passed before cutoff, oldest first, at most limit.
	ListExpiredGates(ctx context.Context, cutoff time.Time, limit int) ([]*model.Job, error)
	Stats(ctx context.Context) (*model.JobStats, error)
}

// BeginGateParams groups parameters for JobRepository.BeginGate.
type BeginGateParams struct {
	ID         string
	GateIndex  int
	FromStatus model.JobStatus // executing or gate_pending
	FromGate   int             // prior gate index when FromStatus is gate_pending
	NotifiedAt time.Time
	DeadlineAt time.Time
}

// CompleteParams groups parameters for JobRepository.Complete.
type CompleteParams struct {
	ID                    string
	Result                json.RawMessage
	Summary               string
	QualityBelowThreshold bool
	AttemptsUsed          int
}

// ActionExecutor performs the actual side-effecting operation for a job once
// its gate chain has passed. Implementations own the schema of params and result.
type ActionExecutor interface {
	Execute(ctx context.Context, actionName string, params json.RawMessage) (json.RawMessage, error)
}

// QualityEvaluator scores an action result against an acceptance threshold.
type QualityEvaluator interface {
	// Evaluate returns whether the result is acceptable and, when it is not,
	// the specific deficiencies used to refine the next attempt's parameters.
	Evaluate(ctx context.Context, result json.RawMessage) (accepted bool, deficiencies []string, err error)
}

// CallbackNotifier delivers a notification payload to a callback target with
// at-least-once semantics. It never mutates job records.
type CallbackNotifier interface {
	Notify(ctx context.Context, target string, n model.Notification, policy model.RetryPolicy) error
}

// ClaimCache is the optional fast-path dedupe layer in front of the job store's
// unique constraint. A nil value disables it.
type ClaimCache interface {
	// Claim attempts to claim key for ttl. Returns false when another caller
	// already holds the claim.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
