package model

import (
	"encoding/json"
	"time"
)

// Notification is the wire payload delivered to a job's callback target.
// Gate notifications carry Cancellable=true and a GateIndex; the final
// notification additionally carries Result and ResultSummary.
type Notification struct {
	JobID       string    `json:"job_id"`
	Status      JobStatus `json:"status"`
	GateIndex   int       `json:"gate_index,omitempty"`
	Cancellable bool      `json:"cancellable"`
	Message     string    `json:"message"`

	Result                json.RawMessage `json:"result,omitempty"`
	ResultSummary         string          `json:"result_summary,omitempty"`
	QualityBelowThreshold bool            `json:"quality_below_threshold,omitempty"`

	SentAt time.Time `json:"sent_at"`
}

// GateNotification builds the progress payload for gate i of a job.
func GateNotification(job *Job, gateIndex int, message string) Notification {
	return Notification{
		JobID:       job.ID,
		Status:      JobStatusGatePending,
		GateIndex:   gateIndex,
		Cancellable: true,
		Message:     message,
		SentAt:      time.Now().UTC(),
	}
}

// FinalNotification builds the terminal payload for a job that reached a
// terminal status. The job record must already reflect the terminal state.
func FinalNotification(job *Job, message string) Notification {
	n := Notification{
		JobID:                 job.ID,
		Status:                job.Status,
		Cancellable:           false,
		Message:               message,
		QualityBelowThreshold: job.QualityBelowThreshold,
		SentAt:                time.Now().UTC(),
	}
	if job.Status == JobStatusCompleted {
		n.Result = job.Result
	}
	if job.ResultSummary != nil {
		n.ResultSummary = *job.ResultSummary
	}
	return n
}
