package domain

import "time"

// JobStatus is the terminal state of one ETL job execution.
type JobStatus string

const (
	// JobSuccess: every fetched record loaded, no rejects, no fetch failures.
	JobSuccess JobStatus = "success"
	// JobPartial: some records rejected or pagination aborted after retries,
	// but at least one record was loaded. Loaded rows are kept.
	JobPartial JobStatus = "partial"
	// JobFailed: zero records loaded.
	JobFailed JobStatus = "failed"
)

// LoadStats reports the outcome of one or more upsert batches. Inserted and
// Updated are distinguished by the database's own conflict signal, never by
// counting attempted writes.
type LoadStats struct {
	Inserted int           `json:"inserted"`
	Updated  int           `json:"updated"`
	Rejected int           `json:"rejected"`
	Errors   []RecordError `json:"errors,omitempty"`
}

// Add accumulates batch stats into the receiver.
func (s *LoadStats) Add(other LoadStats) {
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Rejected += other.Rejected
	s.Errors = append(s.Errors, other.Errors...)
}

// RecordError describes a single record the loader rejected.
type RecordError struct {
	MalID  int    `json:"mal_id"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// JobResult summarizes one named job execution. It is created when the job
// starts, finalized when it ends, and handed to the pipeline's aggregate
// report; it is not persisted.
type JobResult struct {
	RunID     string        `json:"run_id"`
	JobName   string        `json:"job_name"`
	Status    JobStatus     `json:"status"`
	Fetched   int           `json:"fetched"`
	Validated int           `json:"validated"`
	Inserted  int           `json:"inserted"`
	Updated   int           `json:"updated"`
	Rejected  int           `json:"rejected"`
	Elapsed   time.Duration `json:"elapsed"`
	StartedAt time.Time     `json:"started_at"`
	Error     string        `json:"error,omitempty"`
}

// PipelineSummary aggregates the results of a multi-job run.
type PipelineSummary struct {
	Jobs           map[string]JobResult `json:"jobs"`
	TotalJobs      int                  `json:"total_jobs"`
	SuccessfulJobs int                  `json:"successful_jobs"`
	PartialJobs    int                  `json:"partial_jobs"`
	FailedJobs     int                  `json:"failed_jobs"`
	Elapsed        time.Duration        `json:"elapsed"`
}
