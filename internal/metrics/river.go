package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Background job metrics
var (
	// JobsQueued counts jobs inserted into the queue by kind
	JobsQueued = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_queued_total",
			Help:      "Total number of background jobs queued",
		},
		[]string{"kind"},
	)

	// JobsInFlight tracks currently executing jobs by kind
	JobsInFlight = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Current number of background jobs executing",
		},
		[]string{"kind"},
	)

	// JobDuration tracks job execution duration by kind
	JobDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Background job execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		},
		[]string{"kind"},
	)

	// JobsCompleted counts finished jobs by kind and result
	JobsCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of background jobs completed",
		},
		[]string{"kind", "result"}, // result: success|error
	)
)

// JobMetricsHook implements River's insert and work hooks, feeding the job
// metrics above. Safe for concurrent workers.
type JobMetricsHook struct {
	river.HookDefaults

	mu      sync.Mutex
	started map[int64]time.Time
}

func NewJobMetricsHook() *JobMetricsHook {
	return &JobMetricsHook{started: make(map[int64]time.Time)}
}

func (h *JobMetricsHook) InsertBegin(ctx context.Context, params *rivertype.JobInsertParams) error {
	JobsQueued.WithLabelValues(params.Kind).Inc()
	return nil
}

func (h *JobMetricsHook) WorkBegin(ctx context.Context, job *rivertype.JobRow) error {
	JobsInFlight.WithLabelValues(job.Kind).Inc()
	h.mu.Lock()
	h.started[job.ID] = time.Now()
	h.mu.Unlock()
	return nil
}

func (h *JobMetricsHook) WorkEnd(ctx context.Context, job *rivertype.JobRow, err error) error {
	JobsInFlight.WithLabelValues(job.Kind).Dec()

	h.mu.Lock()
	startedAt, ok := h.started[job.ID]
	if ok {
		delete(h.started, job.ID)
	}
	h.mu.Unlock()
	if ok {
		JobDuration.WithLabelValues(job.Kind).Observe(time.Since(startedAt).Seconds())
	}

	result := "success"
	if err != nil {
		result = "error"
	}
	JobsCompleted.WithLabelValues(job.Kind, result).Inc()
	return nil
}
