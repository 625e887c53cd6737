package etl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kitsudo/anime-dashboard/internal/config"
	"github.com/kitsudo/anime-dashboard/internal/domain"
	"github.com/kitsudo/anime-dashboard/internal/jikan"
	"github.com/kitsudo/anime-dashboard/internal/metrics"
)

// Pipeline wires extractor, transformer, and loader into named job runs. All
// jobs in a run share the client's single rate limiter, so concurrency never
// multiplies the outbound request rate.
type Pipeline struct {
	jobs        map[string]config.JobSpec
	client      *jikan.Client
	transformer *Transformer
	loader      *Loader
	metrics     *metrics.Metrics
	log         zerolog.Logger
	now         func() time.Time
}

// NewPipeline creates a Pipeline over the given job catalog. Metrics may be
// nil when no collector is registered (one-shot CLI runs).
func NewPipeline(jobs map[string]config.JobSpec, client *jikan.Client, transformer *Transformer, loader *Loader, m *metrics.Metrics, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		jobs:        jobs,
		client:      client,
		transformer: transformer,
		loader:      loader,
		metrics:     m,
		log:         log.With().Str("component", "pipeline").Logger(),
		now:         time.Now,
	}
}

// JobNames returns the catalog's job names.
func (p *Pipeline) JobNames() []string {
	names := make([]string, 0, len(p.jobs))
	for name := range p.jobs {
		names = append(names, name)
	}
	return names
}

// RunJob executes one named job end to end: fetch every page, validate and
// normalize the records, and upsert them keyed on (mal_id, snapshot_type,
// snapshot_date). The snapshot date is the run's UTC calendar date, stamped
// once so every page of a run lands under the same key. A fetch failure
// after retries stops pagination but the records already collected still go
// through transform and load.
func (p *Pipeline) RunJob(ctx context.Context, name string) (domain.JobResult, error) {
	spec, ok := p.jobs[name]
	if !ok {
		return domain.JobResult{}, fmt.Errorf("unknown job %q", name)
	}

	started := p.now()
	result := domain.JobResult{
		RunID:     uuid.NewString(),
		JobName:   name,
		StartedAt: started,
	}
	log := p.log.With().Str("job", name).Str("run_id", result.RunID).Logger()
	log.Info().Str("snapshot_type", string(spec.SnapshotType)).Msg("job started")

	snapshotDate := started.UTC().Truncate(24 * time.Hour)

	raw, pages, fetchErr := p.client.FetchAll(ctx, spec.Params, spec.MaxPages)
	result.Fetched = len(raw)
	if fetchErr != nil {
		log.Error().Err(fetchErr).Int("pages", pages).
			Int("fetched", len(raw)).Msg("fetch stopped early")
		result.Error = fetchErr.Error()
	}
	if ctx.Err() != nil && len(raw) == 0 {
		result.Status = domain.JobFailed
		p.finalize(&result, started)
		return result, ctx.Err()
	}

	snapshots, verrs := p.transformer.TransformBatch(raw, spec.SnapshotType, snapshotDate)
	result.Validated = len(snapshots)

	stats, loadErr := p.loader.UpsertBatch(ctx, snapshots)
	result.Inserted = stats.Inserted
	result.Updated = stats.Updated
	result.Rejected = len(verrs) + stats.Rejected
	if loadErr != nil && result.Error == "" {
		result.Error = loadErr.Error()
	}

	loaded := stats.Inserted + stats.Updated
	switch {
	case loaded == 0:
		result.Status = domain.JobFailed
		if result.Error == "" && result.Fetched == 0 {
			result.Error = "no records fetched"
		}
	case fetchErr != nil || result.Rejected > 0:
		result.Status = domain.JobPartial
	default:
		result.Status = domain.JobSuccess
	}

	p.finalize(&result, started)
	log.Info().Str("status", string(result.Status)).
		Int("fetched", result.Fetched).Int("validated", result.Validated).
		Int("inserted", result.Inserted).Int("updated", result.Updated).
		Int("rejected", result.Rejected).Dur("elapsed", result.Elapsed).
		Msg("job finished")
	return result, nil
}

func (p *Pipeline) finalize(result *domain.JobResult, started time.Time) {
	result.Elapsed = p.now().Sub(started)
	if p.metrics == nil {
		return
	}
	p.metrics.JobRuns.WithLabelValues(result.JobName, string(result.Status)).Inc()
	p.metrics.JobDuration.WithLabelValues(result.JobName).Observe(result.Elapsed.Seconds())
	p.metrics.RecordsLoaded.WithLabelValues(result.JobName, "insert").Add(float64(result.Inserted))
	p.metrics.RecordsLoaded.WithLabelValues(result.JobName, "update").Add(float64(result.Updated))
	p.metrics.RecordsRejected.WithLabelValues(result.JobName, "pipeline").Add(float64(result.Rejected))
}

// RunJobs executes the named jobs with at most concurrency running at once
// and returns the aggregate report. Unknown names are a configuration error
// caught before anything runs. One job's failure never stops the others;
// the shared rate limiter keeps total upstream pressure constant regardless
// of concurrency.
func (p *Pipeline) RunJobs(ctx context.Context, names []string, concurrency int) (domain.PipelineSummary, error) {
	for _, name := range names {
		if _, ok := p.jobs[name]; !ok {
			return domain.PipelineSummary{}, fmt.Errorf("unknown job %q", name)
		}
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	started := p.now()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		sem     = make(chan struct{}, concurrency)
		results = make(map[string]domain.JobResult, len(names))
	)

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, _ := p.RunJob(ctx, name)

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	summary := domain.PipelineSummary{
		Jobs:      results,
		TotalJobs: len(results),
		Elapsed:   p.now().Sub(started),
	}
	for _, r := range results {
		switch r.Status {
		case domain.JobSuccess:
			summary.SuccessfulJobs++
		case domain.JobPartial:
			summary.PartialJobs++
		default:
			summary.FailedJobs++
		}
	}

	p.log.Info().Int("total", summary.TotalJobs).
		Int("success", summary.SuccessfulJobs).
		Int("partial", summary.PartialJobs).
		Int("failed", summary.FailedJobs).
		Dur("elapsed", summary.Elapsed).
		Msg("pipeline run finished")
	return summary, nil
}

// RunAll executes every job in the catalog.
func (p *Pipeline) RunAll(ctx context.Context, concurrency int) domain.PipelineSummary {
	summary, _ := p.RunJobs(ctx, p.JobNames(), concurrency)
	return summary
}
