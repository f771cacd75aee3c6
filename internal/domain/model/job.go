// Package model defines the core data types and structures used throughout the gatehouse orchestration system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// JobStatus represents the current stage of a gated job.
type JobStatus string

const (
	// JobStatusCreated indicates a job record has been persisted but orchestration has not begun.
	JobStatusCreated JobStatus = "created"
	// JobStatusExecuting indicates the gate chain is about to run.
	JobStatusExecuting JobStatus = "executing"
	// JobStatusGatePending indicates the job is blocked on a gate acknowledgment.
	// The GateIndex field carries which gate is pending.
	JobStatusGatePending JobStatus = "gate_pending"
	// JobStatusActionRunning indicates all gates passed and the action executor is running.
	JobStatusActionRunning JobStatus = "action_running"
	// JobStatusCompleted indicates the action finished and a result is available.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusCancelled indicates a gate response or timeout policy cancelled the job.
	JobStatusCancelled JobStatus = "cancelled"
	// JobStatusFailed indicates the action executor returned an error.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusCreated, JobStatusExecuting, JobStatusGatePending,
		JobStatusActionRunning, JobStatusCompleted, JobStatusCancelled, JobStatusFailed:
		return true
	}
	return false
}

// Terminal returns true if no further transition may leave this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled || s == JobStatusFailed
}

// ErrJobNotFound is returned when a job record does not exist.
var ErrJobNotFound = errors.New("job not found")

// ErrTransitionConflict is returned when a conditional status update matched no row,
// meaning another writer raced on the same job record. The protocol treats this as
// fatal to the racing caller rather than retrying.
var ErrTransitionConflict = errors.New("job status transition conflict")

// Job is the durable record of one gated execution. It is the single source of
// truth for the job's progress; callbacks are advisory.
type Job struct {
	ID             string          `json:"id"                          db:"id"`
	SessionRef     *string         `json:"session_ref,omitempty"       db:"session_ref"`
	IntentRef      *string         `json:"intent_ref,omitempty"        db:"intent_ref"`
	ActionName     string          `json:"action_name"                 db:"action_name"`
	Parameters     json.RawMessage `json:"parameters"                  db:"parameters"`
	CallbackTarget string          `json:"callback_target"             db:"callback_target"`
	Status         JobStatus       `json:"status"                      db:"status"`
	// GateIndex is the 1-based gate currently pending. Zero outside gate_pending.
	GateIndex      int        `json:"gate_index,omitempty"       db:"gate_index"`
	GateNotifiedAt *time.Time `json:"gate_notified_at,omitempty" db:"gate_notified_at"`
	GateDeadlineAt *time.Time `json:"gate_deadline_at,omitempty" db:"gate_deadline_at"`

	Result        json.RawMessage `json:"result,omitempty"         db:"result"`
	ResultSummary *string         `json:"result_summary,omitempty" db:"result_summary"`
	// QualityBelowThreshold marks a best-effort completion: the retry controller
	// exhausted its attempts without the evaluator accepting the result.
	QualityBelowThreshold bool `json:"quality_below_threshold" db:"quality_below_threshold"`
	AttemptsUsed          int  `json:"attempts_used"           db:"attempts_used"`

	CreatedAt   time.Time  `json:"created_at"             db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at"             db:"updated_at"`
}

// CreateJobRequest represents an intake request for a new gated job.
// RequestID is the caller-supplied idempotency key; when absent a fresh id is synthesized.
type CreateJobRequest struct {
	RequestID      *string         `json:"request_id,omitempty"`
	SessionRef     *string         `json:"session_ref,omitempty"`
	IntentRef      *string         `json:"intent_ref,omitempty"`
	ActionName     string          `json:"action_name"`
	Parameters     json.RawMessage `json:"parameters"`
	CallbackTarget string          `json:"callback_target"`
}

const maxRequestIDLen = 128

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.ActionName) == "" {
		return errors.New("action name is required")
	}
	if len(r.Parameters) == 0 {
		return errors.New("parameters are required")
	}
	if !json.Valid(r.Parameters) {
		return errors.New("parameters must be valid JSON")
	}
	if r.CallbackTarget == "" {
		return errors.New("callback target is required")
	}
	u, err := url.Parse(r.CallbackTarget)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("callback target must be an http(s) URL")
	}
	if r.RequestID != nil {
		id := strings.TrimSpace(*r.RequestID)
		if id == "" {
			return errors.New("request id must not be blank when supplied")
		}
		if len(id) > maxRequestIDLen {
			return fmt.Errorf("request id exceeds %d characters", maxRequestIDLen)
		}
	}
	return nil
}

// JobStats represents counts of jobs in each status.
type JobStats struct {
	Created       int `json:"created"`
	Executing     int `json:"executing"`
	GatePending   int `json:"gate_pending"`
	ActionRunning int `json:"action_running"`
	Completed     int `json:"completed"`
	Cancelled     int `json:"cancelled"`
	Failed        int `json:"failed"`
}
