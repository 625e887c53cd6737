// Command scheduler runs the full job catalog on a cron schedule and keeps
// the analytics cache fresh after every run.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/kitsudo/anime-dashboard/internal/analytics"
	"github.com/kitsudo/anime-dashboard/internal/config"
	"github.com/kitsudo/anime-dashboard/internal/domain"
	"github.com/kitsudo/anime-dashboard/internal/etl"
	"github.com/kitsudo/anime-dashboard/internal/jikan"
	"github.com/kitsudo/anime-dashboard/internal/metrics"
	"github.com/kitsudo/anime-dashboard/internal/scheduler"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "path to configuration file")
		runOnce    = flag.Bool("run-once", false, "run the full catalog immediately and exit")
	)
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database")
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("database unreachable")
	}
	cancel()

	m := metrics.New(prometheus.DefaultRegisterer)

	rdb := analytics.NewRedisClient(ctx, cfg.Redis.URL, log)
	cache := analytics.NewCache(rdb, m, log)
	if rdb != nil {
		defer rdb.Close()
	}

	limiter := jikan.NewRateLimiter(cfg.Jikan.Interval())
	client := jikan.NewClient(cfg.Jikan, limiter, log)
	client.OnRetry(m.FetchRetries.Inc)
	transformer := etl.NewTransformer(log)
	loader := etl.NewLoader(db, cfg.Loader.BatchSize, log)
	pipeline := etl.NewPipeline(cfg.Jobs, client, transformer, loader, m, log)

	hook := func(ctx context.Context, summary domain.PipelineSummary) {
		if summary.SuccessfulJobs+summary.PartialJobs > 0 {
			cache.Invalidate(ctx)
		}
	}

	sched := scheduler.New(cfg.Scheduler, pipeline, hook, log)

	if *runOnce {
		sched.RunOnce(ctx)
		return
	}

	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("starting scheduler")
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	sched.Stop()
}
