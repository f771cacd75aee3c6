package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/voiceloop/gatehouse/config"
	"github.com/voiceloop/gatehouse/internal/adapters/actions"
	"github.com/voiceloop/gatehouse/internal/core"
	"github.com/voiceloop/gatehouse/internal/service"
)

// QualityEvaluator builds the evaluator for the built-in actions from
// configuration. An empty score expression disables quality gating.
func QualityEvaluator(cfg config.OrchestratorConfig) (core.QualityEvaluator, error) {
	if cfg.QualityScoreExpr == "" {
		return service.AcceptAllEvaluator{}, nil
	}
	evaluator, err := service.NewThresholdEvaluator(service.ThresholdEvaluatorOptions{
		ScoreExpr:        cfg.QualityScoreExpr,
		DeficienciesExpr: cfg.QualityDeficienciesExpr,
		Threshold:        cfg.QualityThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("build quality evaluator: %w", err)
	}
	return evaluator, nil
}

// DefaultExecutors registers the built-in action executors with the given
// evaluator. Deployments extend the returned registry with their own actions
// before starting services.
func DefaultExecutors(logger *slog.Logger, evaluator core.QualityEvaluator) *service.ExecutorRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	registry := service.NewExecutorRegistry()

	forward := actions.NewHTTPForward(nil)
	mustRegister(logger, registry, "http_forward", service.ActionRegistration{
		Executor:  forward.Execute,
		Evaluator: evaluator,
		Retryable: true,
	})
	mustRegister(logger, registry, "echo", service.ActionRegistration{
		Executor:  actions.Echo,
		Evaluator: service.AcceptAllEvaluator{},
		Retryable: true,
	})

	return registry
}

func mustRegister(logger *slog.Logger, registry *service.ExecutorRegistry, name string, reg service.ActionRegistration) {
	if err := registry.Register(name, reg); err != nil {
		logger.Error("failed to register built-in action", "action", name, "error", err)
		panic(err)
	}
}
