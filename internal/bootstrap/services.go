package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/voiceloop/gatehouse/config"
	"github.com/voiceloop/gatehouse/internal/core"
	"github.com/voiceloop/gatehouse/internal/data"
	"github.com/voiceloop/gatehouse/internal/data/memory"
	httpx "github.com/voiceloop/gatehouse/internal/http"
	"github.com/voiceloop/gatehouse/internal/observability/statsd"
	"github.com/voiceloop/gatehouse/internal/service"
	"github.com/voiceloop/gatehouse/internal/service/notifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Repo      core.JobRepository
	Registry  *service.JobRegistry
	Executors *service.ExecutorRegistry
	Sequencer *service.GateSequencer
	Intake    *service.IntakeService
	Reaper    *service.Reaper
	Metrics   *statsd.Client
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Executors   *service.ExecutorRegistry
	Logger      *slog.Logger
}

// NewServices builds the service graph from configuration and infrastructure.
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	metrics, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Metrics.Enabled,
		Address: cfg.Metrics.Addr,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init statsd client: %w", err)
	}

	var repo core.JobRepository
	switch {
	case deps.DB != nil:
		repo = data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger})
	case cfg.IsDev:
		logger.Warn("no database configured, using in-memory job store")
		repo = memory.NewJobRepo()
	default:
		return nil, errors.New("database connection is required outside dev mode")
	}

	gates, err := cfg.Orchestrator.Gates()
	if err != nil {
		return nil, fmt.Errorf("parse gate spec: %w", err)
	}

	registry := service.NewJobRegistry()
	executors := deps.Executors
	if executors == nil {
		executors = service.NewExecutorRegistry()
	}

	webhook := notifier.New(notifier.Options{
		Logger:  logger.With("component", "callback_notifier"),
		Metrics: metrics,
	})

	sequencer, err := service.NewGateSequencer(service.GateSequencerOptions{
		Repo:              repo,
		Notifier:          webhook,
		Executors:         executors,
		Registry:          registry,
		Gates:             gates,
		FinalNotify:       cfg.Orchestrator.FinalNotifyPolicy(),
		ActionMaxAttempts: cfg.Orchestrator.ActionMaxAttempts,
		ActionTimeout:     cfg.Orchestrator.ActionTimeout,
		StrictQuality:     cfg.Orchestrator.StrictQuality,
		Logger:            logger.With("component", "sequencer"),
		Metrics:           metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("init sequencer: %w", err)
	}

	var claims core.ClaimCache
	if deps.RedisClient != nil {
		claims = data.NewRedisClaimCache(deps.RedisClient)
	}

	intake, err := service.NewIntakeService(service.IntakeServiceOptions{
		Repo:      repo,
		Sequencer: sequencer,
		Registry:  registry,
		Claims:    claims,
		ClaimTTL:  cfg.Redis.ClaimTTL,
		Logger:    logger.With("component", "intake"),
		Metrics:   metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("init intake: %w", err)
	}

	var reaper *service.Reaper
	if cfg.Reaper.Enabled {
		reaper, err = service.NewReaper(service.ReaperOptions{
			Repo:      repo,
			Sequencer: sequencer,
			Registry:  registry,
			Interval:  cfg.Reaper.Interval,
			BatchSize: cfg.Reaper.BatchSize,
			Logger:    logger.With("component", "reaper"),
			Metrics:   metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("init reaper: %w", err)
		}
	}

	return &ServiceContainer{
		Repo:      repo,
		Registry:  registry,
		Executors: executors,
		Sequencer: sequencer,
		Intake:    intake,
		Reaper:    reaper,
		Metrics:   metrics,
	}, nil
}

// RunConfig groups dependencies for RunServicesWithShutdown.
type RunConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown recovers interrupted jobs, then runs the HTTP server
// and background loops until a shutdown signal arrives or a service fails.
func RunServicesWithShutdown(cfg *RunConfig) error {
	if cfg == nil || cfg.Config == nil || cfg.Services == nil {
		return errors.New("run config with services is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Non-terminal records from a previous process resume before the server
	// starts accepting new submissions.
	if n, err := cfg.Services.Intake.Recover(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	} else if n > 0 {
		logger.InfoContext(ctx, "resumed interrupted jobs", "count", n)
	}

	server := &http.Server{
		Addr:              cfg.Config.HTTP.Addr,
		Handler:           httpx.NewRouter(httpx.RouterServices{Intake: cfg.Services.Intake, Logger: logger}),
		ReadHeaderTimeout: cfg.Config.HTTP.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Config.HTTP.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down HTTP server")
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Services.Reaper != nil {
		g.Go(func() error {
			if err := cfg.Services.Reaper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("reaper: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if cerr := cfg.Services.Metrics.Close(); cerr != nil {
		logger.Error("close metrics client failed", "error", cerr)
	}
	return err
}
