// Package data provides PostgreSQL-backed persistence for gatehouse job records.
package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/voiceloop/gatehouse/internal/errors"

	"github.com/voiceloop/gatehouse/internal/core"
	"github.com/voiceloop/gatehouse/internal/domain/model"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for job record management.
//
// Every status transition is a conditional UPDATE against the expected prior
// status (and gate index where relevant). A transition that matches no row is
// reported as model.ErrTransitionConflict: it means another writer owns the
// record, which the protocol treats as a deployment error, not something to
// retry.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.JobRepository = (*JobRepo)(nil)

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  session_ref,
  intent_ref,
  action_name,
  parameters,
  callback_target,
  status,
  gate_index,
  gate_notified_at,
  gate_deadline_at,
  result,
  result_summary,
  quality_below_threshold,
  attempts_used,
  created_at,
  completed_at,
  updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var job model.Job
	err := row.Scan(
		&job.ID,
		&job.SessionRef,
		&job.IntentRef,
		&job.ActionName,
		&job.Parameters,
		&job.CallbackTarget,
		&job.Status,
		&job.GateIndex,
		&job.GateNotifiedAt,
		&job.GateDeadlineAt,
		&job.Result,
		&job.ResultSummary,
		&job.QualityBelowThreshold,
		&job.AttemptsUsed,
		&job.CreatedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Create persists a new job record in created status. When a record with the
// same id already exists it is returned unchanged with created=false, which is
// what makes intake retries safe.
func (r *JobRepo) Create(
	ctx context.Context,
	req *model.CreateJobRequest,
	id string,
) (*model.Job, bool, error) {
	if req == nil {
		return nil, false, apperrors.Validation("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid create job request")
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO job_records (
			id, session_ref, intent_ref, action_name, parameters, callback_target,
			status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'created', $7, $7)
		ON CONFLICT (id) DO NOTHING
		RETURNING `+jobColumns,
		id, req.SessionRef, req.IntentRef, req.ActionName, []byte(req.Parameters),
		req.CallbackTarget, now,
	)

	job, err := scanJob(row)
	if err == nil {
		return job, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("insert job record: %w", apperrors.MapDBError(err))
	}

	// Conflict path: the id was seen before. Return the existing record unchanged.
	existing, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, false, fmt.Errorf("load existing job record: %w", getErr)
	}
	return existing, false, nil
}

// GetByID retrieves a job record by its id.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM job_records WHERE id = $1`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job record: %w", apperrors.MapDBError(err))
	}
	return job, nil
}

// ListNonTerminal returns every record not in a terminal status, oldest first.
func (r *JobRepo) ListNonTerminal(ctx context.Context) ([]*model.Job, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM job_records
		WHERE status NOT IN ('completed', 'cancelled', 'failed')
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list non-terminal jobs: %w", apperrors.MapDBError(err))
	}
	return collectJobs(rows)
}

// ListExpiredGates returns gate_pending records whose deadline passed before
// cutoff, oldest deadline first, at most limit.
func (r *JobRepo) ListExpiredGates(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]*model.Job, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM job_records
		WHERE status = 'gate_pending' AND gate_deadline_at <= $1
		ORDER BY gate_deadline_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired gates: %w", apperrors.MapDBError(err))
	}
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]*model.Job, error) {
	defer func() {
		_ = rows.Close()
	}()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job record: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job records: %w", err)
	}
	return jobs, nil
}

// Stats returns counts of jobs grouped by status.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM job_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", apperrors.MapDBError(err))
	}
	defer func() {
		_ = rows.Close()
	}()

	var stats model.JobStats
	for rows.Next() {
		var status model.JobStatus
		var count int
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, fmt.Errorf("scan job stats: %w", scanErr)
		}
		switch status {
		case model.JobStatusCreated:
			stats.Created = count
		case model.JobStatusExecuting:
			stats.Executing = count
		case model.JobStatusGatePending:
			stats.GatePending = count
		case model.JobStatusActionRunning:
			stats.ActionRunning = count
		case model.JobStatusCompleted:
			stats.Completed = count
		case model.JobStatusCancelled:
			stats.Cancelled = count
		case model.JobStatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job stats: %w", err)
	}
	return &stats, nil
}
