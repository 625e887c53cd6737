// Command etl runs snapshot jobs once and exits. It is the one-shot entry
// point; cmd/scheduler wraps the same pipeline in a cron loop.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/kitsudo/anime-dashboard/internal/analytics"
	"github.com/kitsudo/anime-dashboard/internal/config"
	"github.com/kitsudo/anime-dashboard/internal/domain"
	"github.com/kitsudo/anime-dashboard/internal/etl"
	"github.com/kitsudo/anime-dashboard/internal/jikan"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "path to configuration file")
		jobName    = flag.String("job", "", "run a single job by name (default: all jobs)")
		listJobs   = flag.Bool("list-jobs", false, "print the job catalog and exit")
		testConns  = flag.Bool("test-connections", false, "check database and upstream connectivity and exit")
		jsonOut    = flag.Bool("json", false, "print the run report as JSON")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	if *listJobs {
		printCatalog(cfg)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database")
	}
	defer db.Close()

	limiter := jikan.NewRateLimiter(cfg.Jikan.Interval())
	client := jikan.NewClient(cfg.Jikan, limiter, log)
	transformer := etl.NewTransformer(log)
	loader := etl.NewLoader(db, cfg.Loader.BatchSize, log)
	pipeline := etl.NewPipeline(cfg.Jobs, client, transformer, loader, nil, log)

	if *testConns {
		testConnections(ctx, db, cfg, log)
		return
	}

	var summary domain.PipelineSummary
	if *jobName != "" {
		result, err := pipeline.RunJob(ctx, *jobName)
		if err != nil {
			log.Fatal().Err(err).Str("job", *jobName).Msg("job run failed")
		}
		summary = domain.PipelineSummary{
			Jobs:      map[string]domain.JobResult{*jobName: result},
			TotalJobs: 1,
			Elapsed:   result.Elapsed,
		}
		switch result.Status {
		case domain.JobSuccess:
			summary.SuccessfulJobs = 1
		case domain.JobPartial:
			summary.PartialJobs = 1
		default:
			summary.FailedJobs = 1
		}
	} else {
		summary = pipeline.RunAll(ctx, cfg.Scheduler.Concurrency)
	}

	if rdb := analytics.NewRedisClient(ctx, cfg.Redis.URL, log); rdb != nil {
		analytics.NewCache(rdb, nil, log).Invalidate(ctx)
		rdb.Close()
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(summary)
	} else {
		printSummary(summary)
	}

	if summary.FailedJobs == summary.TotalJobs && summary.TotalJobs > 0 {
		os.Exit(1)
	}
}

func printCatalog(cfg *config.Config) {
	fmt.Println("Available jobs:")
	for _, name := range cfg.JobNames() {
		spec := cfg.Jobs[name]
		pages := "all pages"
		if spec.MaxPages > 0 {
			pages = fmt.Sprintf("max %d page(s)", spec.MaxPages)
		}
		fmt.Printf("  %-20s %-20s %s (%s)\n", name, spec.SnapshotType, spec.Description, pages)
	}
}

func printSummary(summary domain.PipelineSummary) {
	names := make([]string, 0, len(summary.Jobs))
	for name := range summary.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println(strings.Repeat("-", 72))
	for _, name := range names {
		r := summary.Jobs[name]
		fmt.Printf("%-20s %-8s fetched=%-4d inserted=%-4d updated=%-4d rejected=%-3d %s\n",
			name, r.Status, r.Fetched, r.Inserted, r.Updated, r.Rejected,
			r.Elapsed.Round(time.Millisecond))
		if r.Error != "" {
			fmt.Printf("%-20s   error: %s\n", "", r.Error)
		}
	}
	fmt.Println(strings.Repeat("-", 72))
	fmt.Printf("jobs: %d total, %d success, %d partial, %d failed (%s)\n",
		summary.TotalJobs, summary.SuccessfulJobs, summary.PartialJobs,
		summary.FailedJobs, summary.Elapsed.Round(time.Millisecond))
}

func testConnections(ctx context.Context, db *sql.DB, cfg *config.Config, log zerolog.Logger) {
	ok := true

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		log.Error().Err(err).Msg("database: FAILED")
		ok = false
	} else {
		log.Info().Msg("database: ok")
	}
	cancel()

	if rdb := analytics.NewRedisClient(ctx, cfg.Redis.URL, log); rdb != nil {
		log.Info().Msg("redis: ok")
		rdb.Close()
	} else {
		log.Warn().Msg("redis: unavailable (cache will be disabled)")
	}

	if !ok {
		os.Exit(1)
	}
}
