package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	apperrors "github.com/voiceloop/gatehouse/internal/errors"

	"github.com/voiceloop/gatehouse/internal/core"
	"github.com/voiceloop/gatehouse/internal/domain/model"
)

// transition runs a conditional UPDATE and maps the empty result set to
// ErrTransitionConflict (record exists, wrong prior state) or ErrJobNotFound.
func (r *JobRepo) transition(ctx context.Context, query string, args ...any) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, query, args...)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("transition job record: %w", apperrors.MapDBError(err))
	}

	// No row matched: distinguish a missing record from a stale expected state.
	id, _ := args[0].(string)
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, model.ErrTransitionConflict
}

// MarkExecuting transitions created → executing.
func (r *JobRepo) MarkExecuting(ctx context.Context, id string) (*model.Job, error) {
	now := r.timeProvider.Now().UTC()
	return r.transition(ctx, `
		UPDATE job_records
		SET status = 'executing', updated_at = $2
		WHERE id = $1 AND status = 'created'
		RETURNING `+jobColumns, id, now)
}

// BeginGate transitions the record into gate_pending for the given gate,
// persisting the wall-clock notification time and response deadline so the
// remaining window survives a restart.
func (r *JobRepo) BeginGate(ctx context.Context, params core.BeginGateParams) (*model.Job, error) {
	now := r.timeProvider.Now().UTC()
	return r.transition(ctx, `
		UPDATE job_records
		SET status = 'gate_pending',
		    gate_index = $2,
		    gate_notified_at = $3,
		    gate_deadline_at = $4,
		    updated_at = $5
		WHERE id = $1 AND status = $6 AND gate_index = $7
		RETURNING `+jobColumns,
		params.ID, params.GateIndex, params.NotifiedAt.UTC(), params.DeadlineAt.UTC(),
		now, params.FromStatus, params.FromGate)
}

// MarkActionRunning transitions gate_pending(fromGate) → action_running and
// clears the gate bookkeeping.
func (r *JobRepo) MarkActionRunning(ctx context.Context, id string, fromGate int) (*model.Job, error) {
	now := r.timeProvider.Now().UTC()
	return r.transition(ctx, `
		UPDATE job_records
		SET status = 'action_running',
		    gate_index = 0,
		    gate_notified_at = NULL,
		    gate_deadline_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'gate_pending' AND gate_index = $2
		RETURNING `+jobColumns, id, fromGate, now)
}

// Complete transitions action_running → completed, setting the result payload,
// summary, quality flag, and attempts in one atomic update. completed_at is
// written here and never touched again.
func (r *JobRepo) Complete(ctx context.Context, params core.CompleteParams) (*model.Job, error) {
	now := r.timeProvider.Now().UTC()
	result := params.Result
	if len(result) == 0 {
		// The schema requires a result on completion; an executor returning an
		// empty payload still completes with an explicit JSON null.
		result = json.RawMessage("null")
	}
	return r.transition(ctx, `
		UPDATE job_records
		SET status = 'completed',
		    result = $2,
		    result_summary = $3,
		    quality_below_threshold = $4,
		    attempts_used = $5,
		    completed_at = $6,
		    updated_at = $6
		WHERE id = $1 AND status = 'action_running'
		RETURNING `+jobColumns,
		params.ID, []byte(result), params.Summary, params.QualityBelowThreshold,
		params.AttemptsUsed, now)
}

// Fail transitions any non-terminal status → failed with the given summary.
func (r *JobRepo) Fail(ctx context.Context, id, summary string) (*model.Job, error) {
	now := r.timeProvider.Now().UTC()
	return r.transition(ctx, `
		UPDATE job_records
		SET status = 'failed',
		    result_summary = $2,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled', 'failed')
		RETURNING `+jobColumns, id, summary, now)
}

// Cancel transitions executing or gate_pending → cancelled. Cancellation is a
// first-class terminal outcome, not an error.
func (r *JobRepo) Cancel(ctx context.Context, id, summary string) (*model.Job, error) {
	now := r.timeProvider.Now().UTC()
	return r.transition(ctx, `
		UPDATE job_records
		SET status = 'cancelled',
		    result_summary = $2,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status IN ('executing', 'gate_pending')
		RETURNING `+jobColumns, id, summary, now)
}
