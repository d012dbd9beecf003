package jobs

import (
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"

	"github.com/planzy/server/internal/metrics"
)

const (
	JobKindScrape         = "scrape"
	JobKindIngestBatch    = "ingest_batch"
	JobKindEmbeddingSweep = "embedding_sweep"
	JobKindPlacesRefresh  = "places_refresh"
)

// QueuePlaces is a single-worker queue: the Places API is rate limited, so
// refresh jobs must never run concurrently.
const QueuePlaces = "places"

const (
	ScrapeMaxAttempts         = 1
	IngestBatchMaxAttempts    = 3
	EmbeddingSweepMaxAttempts = 3
	PlacesRefreshMaxAttempts  = 3
)

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

// NewRetryPolicy returns the default retry policy configuration.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: IngestBatchMaxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			// A failed scrape is not retried; the next scheduled run covers it.
			JobKindScrape: {
				MaxAttempts: ScrapeMaxAttempts,
				BaseDelay:   0,
				MaxDelay:    0,
			},
			JobKindIngestBatch: {
				MaxAttempts: IngestBatchMaxAttempts,
				BaseDelay:   30 * time.Second,
				MaxDelay:    5 * time.Minute,
			},
			JobKindEmbeddingSweep: {
				MaxAttempts: EmbeddingSweepMaxAttempts,
				BaseDelay:   1 * time.Minute,
				MaxDelay:    30 * time.Minute,
			},
			JobKindPlacesRefresh: {
				MaxAttempts: PlacesRefreshMaxAttempts,
				BaseDelay:   2 * time.Minute,
				MaxDelay:    1 * time.Hour,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	config := p.configFor(job.Kind)
	if config.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}

	return time.Now().Add(delay)
}

// InsertOptsForKind returns default insert options for a job kind.
func InsertOptsForKind(kind string) river.InsertOpts {
	config := NewRetryPolicy().configFor(kind)
	opts := river.InsertOpts{MaxAttempts: config.MaxAttempts}
	if kind == JobKindPlacesRefresh {
		opts.Queue = QueuePlaces
	}
	return opts
}

// NewClientConfig builds a River client configuration with retry policy.
func NewClientConfig(workers *river.Workers, logger *slog.Logger, periodicJobs []*river.PeriodicJob) *river.Config {
	policy := NewRetryPolicy()
	config := &river.Config{
		Workers:      workers,
		RetryPolicy:  policy,
		MaxAttempts:  policy.Default.MaxAttempts,
		PeriodicJobs: periodicJobs,
		Hooks:        []rivertype.Hook{metrics.NewJobMetricsHook()},
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 4},
			QueuePlaces:        {MaxWorkers: 1},
		},
	}
	if logger != nil {
		config.Logger = logger
		config.ErrorHandler = NewAlertingErrorHandler(logger, nil)
	}
	return config
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, periodicJobs []*river.PeriodicJob) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, logger, periodicJobs))
}

// dailyAt fires once a day at the given UTC hour.
type dailyAt struct {
	hour int
}

func (s dailyAt) Next(t time.Time) time.Time {
	next := time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), s.hour, 0, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// NewPeriodicJobs creates the default periodic job schedule:
// - Scrape sweep: daily at 1 AM UTC
// - Place refresh sweep: daily at 3 AM UTC, on the single-worker places queue
// - Embedding sweep: hourly, and once on startup to drain any backlog
func NewPeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			dailyAt{hour: 1},
			func() (river.JobArgs, *river.InsertOpts) {
				opts := InsertOptsForKind(JobKindScrape)
				return ScrapeArgs{}, &opts
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		),
		river.NewPeriodicJob(
			dailyAt{hour: 3},
			func() (river.JobArgs, *river.InsertOpts) {
				opts := InsertOptsForKind(JobKindPlacesRefresh)
				return PlacesRefreshArgs{}, &opts
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				opts := InsertOptsForKind(JobKindEmbeddingSweep)
				return EmbeddingSweepArgs{}, &opts
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: IngestBatchMaxAttempts, BaseDelay: 30 * time.Second, MaxDelay: 30 * time.Minute}
	}
	if config, ok := p.ByKind[kind]; ok {
		return config
	}
	return p.Default
}
