package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/voiceloop/gatehouse/internal/core"
)

// ExecutorFunc adapts a plain function to the core.ActionExecutor interface.
type ExecutorFunc func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)

// ActionRegistration pairs an executor with the quality evaluator applied to
// its results. A nil evaluator accepts every result on the first attempt.
type ActionRegistration struct {
	Executor  ExecutorFunc
	Evaluator core.QualityEvaluator
	// Retryable marks the action as safe to re-invoke inside the quality loop.
	// Non-retryable actions (sends with external side effects) get exactly one
	// attempt regardless of the configured ceiling.
	Retryable bool
}

// ExecutorRegistry dispatches action invocations to registered executors by
// action name. It implements core.ActionExecutor.
type ExecutorRegistry struct {
	mu      sync.RWMutex
	actions map[string]ActionRegistration
}

var _ core.ActionExecutor = (*ExecutorRegistry)(nil)

// NewExecutorRegistry constructs an empty registry.
func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{actions: make(map[string]ActionRegistration)}
}

// Register adds or replaces the executor for an action name.
func (r *ExecutorRegistry) Register(actionName string, reg ActionRegistration) error {
	if actionName == "" {
		return fmt.Errorf("action name is required")
	}
	if reg.Executor == nil {
		return fmt.Errorf("executor for %q is required", actionName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[actionName] = reg
	return nil
}

// Lookup returns the registration for an action name.
func (r *ExecutorRegistry) Lookup(actionName string) (ActionRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.actions[actionName]
	return reg, ok
}

// Execute implements core.ActionExecutor by dispatching to the registered executor.
func (r *ExecutorRegistry) Execute(
	ctx context.Context,
	actionName string,
	params json.RawMessage,
) (json.RawMessage, error) {
	reg, ok := r.Lookup(actionName)
	if !ok {
		return nil, fmt.Errorf("no executor registered for action %q", actionName)
	}
	return reg.Executor(ctx, params)
}
