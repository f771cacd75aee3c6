package service

import (
	"context"
	"sync"

	"github.com/voiceloop/gatehouse/internal/domain/model"
)

// gateKey identifies one pending gate wait.
type gateKey struct {
	jobID string
	gate  int
}

// JobRegistry tracks in-flight jobs and their pending gate waits. It is the
// only process-wide mutable state in the orchestrator: a concurrency-safe map
// of per-job cancel functions plus response channels keyed by (job id, gate),
// torn down when a job reaches a terminal state.
type JobRegistry struct {
	mu      sync.Mutex
	running map[string]context.CancelFunc
	waiters map[gateKey]chan model.GateResponse
}

// NewJobRegistry constructs an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{
		running: make(map[string]context.CancelFunc),
		waiters: make(map[gateKey]chan model.GateResponse),
	}
}

// Adopt registers a job as owned by this process and returns the context its
// sequencer runs under. Returns false when the job is already owned, which
// enforces the one-sequencer-per-job invariant inside a single process.
func (r *JobRegistry) Adopt(parent context.Context, jobID string) (context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.running[jobID]; ok {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	r.running[jobID] = cancel
	return ctx, true
}

// Release tears down a job's registration after a terminal transition.
func (r *JobRegistry) Release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.running[jobID]; ok {
		cancel()
		delete(r.running, jobID)
	}
	for key, ch := range r.waiters {
		if key.jobID == jobID {
			close(ch)
			delete(r.waiters, key)
		}
	}
}

// Owns reports whether this process currently owns the job.
func (r *JobRegistry) Owns(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[jobID]
	return ok
}

// AwaitGate registers a waiter for one gate and returns its response channel.
// The channel is closed without a value when the job is released.
func (r *JobRegistry) AwaitGate(jobID string, gate int) <-chan model.GateResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := gateKey{jobID: jobID, gate: gate}
	if ch, ok := r.waiters[key]; ok {
		return ch
	}
	ch := make(chan model.GateResponse, 1)
	r.waiters[key] = ch
	return ch
}

// ResolveGate delivers a caller acknowledgment to a pending gate wait.
// Returns false when no waiter is registered (unknown job, wrong gate, or the
// gate already resolved); the response is then simply dropped. A stray
// acknowledgment never aborts anything.
func (r *JobRegistry) ResolveGate(jobID string, gate int, resp model.GateResponse) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := gateKey{jobID: jobID, gate: gate}
	ch, ok := r.waiters[key]
	if !ok {
		return false
	}
	delete(r.waiters, key)
	ch <- resp
	close(ch)
	return true
}

// dropGate removes a waiter that timed out without closing it on a second path.
func (r *JobRegistry) dropGate(jobID string, gate int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := gateKey{jobID: jobID, gate: gate}
	if ch, ok := r.waiters[key]; ok {
		delete(r.waiters, key)
		close(ch)
	}
}
