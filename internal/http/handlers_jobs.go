// Package httpx provides HTTP handlers and utilities for the gatehouse job API.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/voiceloop/gatehouse/internal/domain/model"
	"github.com/voiceloop/gatehouse/internal/service"
)

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Svc *service.IntakeService
}

// CreateJob handles HTTP requests to submit a new gated job. Repeat
// submissions with the same request_id return the existing record with 200;
// a fresh acceptance returns 202 since the job runs asynchronously.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req model.CreateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, created, err := h.Svc.Submit(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusAccepted
	}
	WriteJSON(w, status, job)
}

// GetJob handles HTTP requests for a job's current record.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := h.Svc.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
			return
		}
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// gateResponseRequest is the body for acknowledging or cancelling a gate.
type gateResponseRequest struct {
	Cancel bool   `json:"cancel"`
	Reason string `json:"reason,omitempty"`
}

// RespondToGate handles a caller response to a pending gate.
func (h *JobHandlers) RespondToGate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	gateIndex, err := strconv.Atoi(r.PathValue("gate"))
	if err != nil || gateIndex < 1 {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("gate must be a positive integer"),
		})
		return
	}

	// A response that cannot be parsed still counts as an acknowledgment:
	// only an explicit {"cancel": true} cancels.
	var body gateResponseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			body = gateResponseRequest{}
		}
	}

	job, err := h.Svc.RespondToGate(r.Context(), id, gateIndex, model.GateResponse{
		Cancel: body.Cancel,
		Reason: body.Reason,
	})
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
			return
		}
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// cancelJobRequest is the body for cancelling a job outright.
type cancelJobRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelJob handles a mid-flight cancellation request.
func (h *JobHandlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body cancelJobRequest
	if r.ContentLength > 0 {
		if !DecodeJSON(w, r, &body) {
			return
		}
	}

	job, err := h.Svc.CancelJob(r.Context(), id, body.Reason)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
			return
		}
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Stats handles HTTP requests for job counts by status.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
