package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/voiceloop/gatehouse/internal/core"
	"github.com/voiceloop/gatehouse/internal/data"
	"github.com/voiceloop/gatehouse/internal/observability/statsd"
)

// Reaper periodically sweeps gate_pending records whose persisted response
// deadline has passed without a live sequencer attending them. Such records
// exist after partial restarts or when a sequencer goroutine died; the reaper
// re-adopts each one, and the resumed sequencer applies the gate's timeout
// policy against the already-expired deadline.
type Reaper struct {
	repo      core.JobRepository
	sequencer *GateSequencer
	registry  *JobRegistry

	interval  time.Duration
	batchSize int

	timeProvider data.TimeProvider
	logger       *slog.Logger
	metrics      statsd.Sink
}

// ReaperOptions contains options for creating a Reaper.
type ReaperOptions struct {
	Repo      core.JobRepository
	Sequencer *GateSequencer
	Registry  *JobRegistry

	Interval  time.Duration
	BatchSize int

	TimeProvider data.TimeProvider
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// NewReaper creates a Reaper with the given options.
func NewReaper(opts ReaperOptions) (*Reaper, error) {
	if opts.Repo == nil {
		return nil, fmt.Errorf("repo is required")
	}
	if opts.Sequencer == nil {
		return nil, fmt.Errorf("sequencer is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = statsd.Disabled()
	}
	return &Reaper{
		repo:         opts.Repo,
		sequencer:    opts.Sequencer,
		registry:     opts.Registry,
		interval:     opts.Interval,
		batchSize:    opts.BatchSize,
		timeProvider: opts.TimeProvider,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}, nil
}

// MustNewReaper creates a Reaper and panics on invalid options.
func MustNewReaper(opts ReaperOptions) *Reaper {
	r, err := NewReaper(opts)
	if err != nil {
		panic(err)
	}
	return r
}

// Run sweeps on a jittered interval until the context ends.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "reaper started", "interval", r.interval, "batch_size", r.batchSize)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "reaper stopped")
			return ctx.Err()
		case <-time.After(r.jitteredInterval()):
			if n, err := r.Sweep(ctx); err != nil {
				r.logger.ErrorContext(ctx, "reaper sweep failed", "error", err)
			} else if n > 0 {
				r.logger.InfoContext(ctx, "reaper sweep re-adopted jobs", "count", n)
			}
		}
	}
}

// Sweep performs one pass and returns the number of jobs re-adopted.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := r.timeProvider.Now()
	jobs, err := r.repo.ListExpiredGates(ctx, now, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired gates: %w", err)
	}

	adopted := 0
	for _, job := range jobs {
		if r.registry.Owns(job.ID) {
			// A live sequencer holds this gate; its own timer is authoritative.
			continue
		}
		jctx, ok := r.registry.Adopt(context.Background(), job.ID)
		if !ok {
			continue
		}
		r.logger.InfoContext(ctx, "re-adopting expired gate",
			"job_id", job.ID, "gate", job.GateIndex, "deadline", job.GateDeadlineAt)
		adopted++
		go r.sequencer.Run(jctx, job)
	}
	if adopted > 0 {
		r.metrics.Count("reaper.adopted", int64(adopted), nil)
	}
	return adopted, nil
}

// jitteredInterval spreads sweeps across replicas to avoid synchronized scans.
func (r *Reaper) jitteredInterval() time.Duration {
	jitter := time.Duration(rand.Int63n(int64(r.interval) / 5))
	return r.interval - r.interval/10 + jitter
}
