package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/voiceloop/gatehouse/internal/core"
)

// RetryResult is the outcome of a quality-gated execution loop.
type RetryResult struct {
	Result       json.RawMessage
	AttemptsUsed int
	// QualityBelowThreshold is set when the ceiling was reached without the
	// evaluator accepting a result. The job still completes with the last
	// result unless strict mode is configured.
	QualityBelowThreshold bool
}

// RunWithRetryParams groups parameters for RunWithRetry.
type RunWithRetryParams struct {
	ActionName  string
	Params      json.RawMessage
	Executor    core.ActionExecutor
	Evaluator   core.QualityEvaluator
	MaxAttempts int
	Logger      *slog.Logger
}

// RunWithRetry wraps a single logical action in a quality-gated
// execute/evaluate/refine loop. The loop is an ordinary bounded iteration
// inside this call stack: orchestration stages never point backward, so all
// "retry until acceptable" behavior lives here.
//
// An evaluator rejection refines the parameters additively from the reported
// deficiencies and re-executes. After MaxAttempts rejections the last result
// is returned flagged, not failed, so the job still completes best-effort.
func RunWithRetry(ctx context.Context, p RunWithRetryParams) (RetryResult, error) {
	if p.Executor == nil {
		return RetryResult{}, fmt.Errorf("executor is required")
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	params := p.Params
	var result json.RawMessage

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var err error
		result, err = p.Executor.Execute(ctx, p.ActionName, params)
		if err != nil {
			return RetryResult{AttemptsUsed: attempt}, fmt.Errorf("execute %s (attempt %d): %w", p.ActionName, attempt, err)
		}

		if p.Evaluator == nil {
			return RetryResult{Result: result, AttemptsUsed: attempt}, nil
		}

		accepted, deficiencies, evalErr := p.Evaluator.Evaluate(ctx, result)
		if evalErr != nil {
			// An evaluator that cannot score a result must not sink the job;
			// the result stands as delivered.
			if p.Logger != nil {
				p.Logger.WarnContext(ctx, "quality evaluation failed, accepting result",
					"action", p.ActionName, "attempt", attempt, "error", evalErr)
			}
			return RetryResult{Result: result, AttemptsUsed: attempt}, nil
		}
		if accepted {
			return RetryResult{Result: result, AttemptsUsed: attempt}, nil
		}
		if attempt == maxAttempts {
			break
		}

		params = RefineParameters(params, deficiencies)
		if p.Logger != nil {
			p.Logger.InfoContext(ctx, "result rejected by evaluator, refining parameters",
				"action", p.ActionName, "attempt", attempt, "deficiencies", deficiencies)
		}
	}

	return RetryResult{
		Result:                result,
		AttemptsUsed:          maxAttempts,
		QualityBelowThreshold: true,
	}, nil
}

// RefineParameters derives the next attempt's parameters from the evaluator's
// deficiency list. Refinement is additive: missing constraints are appended to
// a "refinements" list rather than rewritten as blanket negative constraints,
// which proved far more reliable for regeneration loops.
func RefineParameters(params json.RawMessage, deficiencies []string) json.RawMessage {
	if len(deficiencies) == 0 {
		return params
	}

	var decoded map[string]any
	if err := json.Unmarshal(params, &decoded); err != nil {
		// Non-object parameters cannot carry refinements; retry as-is.
		return params
	}

	existing, _ := decoded["refinements"].([]any)
	for _, d := range deficiencies {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		existing = append(existing, "include "+d)
	}
	decoded["refinements"] = existing

	refined, err := json.Marshal(decoded)
	if err != nil {
		return params
	}
	return refined
}

// AcceptAllEvaluator accepts every result. It is the explicit form of "no
// quality gating" for actions registered with an evaluator slot.
type AcceptAllEvaluator struct{}

var _ core.QualityEvaluator = AcceptAllEvaluator{}

// Evaluate accepts the result unconditionally.
func (AcceptAllEvaluator) Evaluate(context.Context, json.RawMessage) (bool, []string, error) {
	return true, nil, nil
}

// ThresholdEvaluator scores results by extracting a numeric value from the
// opaque result blob with a JMESPath expression and comparing it against a
// threshold. A second expression optionally extracts the deficiency list used
// for refinement.
type ThresholdEvaluator struct {
	scoreExpr        string
	deficienciesExpr string
	threshold        float64
}

var _ core.QualityEvaluator = (*ThresholdEvaluator)(nil)

// ThresholdEvaluatorOptions configures a ThresholdEvaluator.
type ThresholdEvaluatorOptions struct {
	// ScoreExpr is the JMESPath expression locating the numeric quality score.
	ScoreExpr string
	// DeficienciesExpr optionally locates a list of deficiency strings.
	DeficienciesExpr string
	// Threshold is the minimum acceptable score (inclusive).
	Threshold float64
}

// NewThresholdEvaluator validates the expressions and constructs the evaluator.
func NewThresholdEvaluator(opts ThresholdEvaluatorOptions) (*ThresholdEvaluator, error) {
	if strings.TrimSpace(opts.ScoreExpr) == "" {
		return nil, fmt.Errorf("score expression is required")
	}
	if _, err := jmespath.Compile(opts.ScoreExpr); err != nil {
		return nil, fmt.Errorf("compile score expression: %w", err)
	}
	if opts.DeficienciesExpr != "" {
		if _, err := jmespath.Compile(opts.DeficienciesExpr); err != nil {
			return nil, fmt.Errorf("compile deficiencies expression: %w", err)
		}
	}
	return &ThresholdEvaluator{
		scoreExpr:        opts.ScoreExpr,
		deficienciesExpr: opts.DeficienciesExpr,
		threshold:        opts.Threshold,
	}, nil
}

// Evaluate extracts the score and compares it against the threshold.
func (e *ThresholdEvaluator) Evaluate(
	_ context.Context,
	result json.RawMessage,
) (bool, []string, error) {
	var decoded any
	if err := json.Unmarshal(result, &decoded); err != nil {
		return false, nil, fmt.Errorf("decode result: %w", err)
	}

	raw, err := jmespath.Search(e.scoreExpr, decoded)
	if err != nil {
		return false, nil, fmt.Errorf("evaluate score expression: %w", err)
	}
	score, ok := raw.(float64)
	if !ok {
		return false, nil, fmt.Errorf("score expression %q did not yield a number", e.scoreExpr)
	}
	if score >= e.threshold {
		return true, nil, nil
	}
	return false, e.deficiencies(decoded), nil
}

func (e *ThresholdEvaluator) deficiencies(decoded any) []string {
	if e.deficienciesExpr == "" {
		return nil
	}
	raw, err := jmespath.Search(e.deficienciesExpr, decoded)
	if err != nil {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
