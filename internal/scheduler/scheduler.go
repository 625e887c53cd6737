// Package scheduler triggers full pipeline runs on a cron schedule.
package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/kitsudo/anime-dashboard/internal/config"
	"github.com/kitsudo/anime-dashboard/internal/domain"
	"github.com/kitsudo/anime-dashboard/internal/etl"
)

// RunHook is called after each completed pipeline run, e.g. to invalidate
// the analytics cache.
type RunHook func(ctx context.Context, summary domain.PipelineSummary)

// Scheduler runs the full job catalog on a cron expression. A tick that
// fires while the previous run is still going is skipped, not queued: the
// shared rate limiter makes overlapping runs pointless, they would only
// stretch each other out.
type Scheduler struct {
	cfg      config.SchedulerConfig
	pipeline *etl.Pipeline
	cron     *cron.Cron
	hook     RunHook
	running  atomic.Bool
	log      zerolog.Logger
}

// New creates a Scheduler. hook may be nil.
func New(cfg config.SchedulerConfig, pipeline *etl.Pipeline, hook RunHook, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		pipeline: pipeline,
		hook:     hook,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the cron entry and begins ticking. It returns immediately;
// runs happen on the cron goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.cfg.CronExpr, func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("cron", s.cfg.CronExpr).
		Bool("run_on_start", s.cfg.RunOnStart).Msg("scheduler started")

	if s.cfg.RunOnStart {
		go s.RunOnce(ctx)
	}
	return nil
}

// RunOnce executes the full catalog now, unless a run is already in
// progress.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn().Msg("previous pipeline run still in progress, skipping tick")
		return
	}
	defer s.running.Store(false)

	summary := s.pipeline.RunAll(ctx, s.cfg.Concurrency)
	if s.hook != nil {
		s.hook(ctx, summary)
	}
}

// Stop halts the cron ticker and waits for a running entry to return.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}
