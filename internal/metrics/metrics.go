// Package metrics registers the Prometheus instruments shared by the ETL
// pipeline and the API server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors for one process. Register once, share the
// instance; a second registration of the same names panics in promauto.
type Metrics struct {
	JobRuns         *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
	RecordsLoaded   *prometheus.CounterVec
	RecordsRejected *prometheus.CounterVec
	FetchRetries    prometheus.Counter
	CacheOps        *prometheus.CounterVec
}

// New creates and registers the collectors on the given registerer. Pass
// prometheus.DefaultRegisterer in binaries; tests use a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_job_runs_total",
			Help: "ETL job executions by job name and terminal status.",
		}, []string{"job", "status"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_job_duration_seconds",
			Help:    "Wall-clock duration of ETL job executions.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"job"}),
		RecordsLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_records_loaded_total",
			Help: "Records written to storage, split by insert vs update.",
		}, []string{"job", "operation"}),
		RecordsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_records_rejected_total",
			Help: "Records dropped during validation or load.",
		}, []string{"job", "stage"}),
		FetchRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "etl_fetch_retries_total",
			Help: "Upstream fetch attempts beyond the first.",
		}),
		CacheOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_cache_ops_total",
			Help: "Analytics cache operations by result (hit, miss, error).",
		}, []string{"result"}),
	}
}
