package jobs

import (
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetryPolicy(t *testing.T) {
	policy := NewRetryPolicy()
	require.NotNil(t, policy)

	assert.Equal(t, IngestBatchMaxAttempts, policy.Default.MaxAttempts)
	assert.Equal(t, 30*time.Second, policy.Default.BaseDelay)

	tests := []struct {
		kind        string
		maxAttempts int
		baseDelay   time.Duration
		maxDelay    time.Duration
	}{
		{JobKindScrape, ScrapeMaxAttempts, 0, 0},
		{JobKindIngestBatch, IngestBatchMaxAttempts, 30 * time.Second, 5 * time.Minute},
		{JobKindEmbeddingSweep, EmbeddingSweepMaxAttempts, 1 * time.Minute, 30 * time.Minute},
		{JobKindPlacesRefresh, PlacesRefreshMaxAttempts, 2 * time.Minute, 1 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			config, ok := policy.ByKind[tt.kind]
			require.True(t, ok)
			assert.Equal(t, tt.maxAttempts, config.MaxAttempts)
			assert.Equal(t, tt.baseDelay, config.BaseDelay)
			assert.Equal(t, tt.maxDelay, config.MaxDelay)
		})
	}
}

func TestRetryPolicyNextRetryBacksOff(t *testing.T) {
	policy := NewRetryPolicy()
	now := time.Now()

	tests := []struct {
		name    string
		kind    string
		attempt int
		delay   time.Duration
	}{
		{"ingest first attempt", JobKindIngestBatch, 1, 30 * time.Second},
		{"ingest second attempt", JobKindIngestBatch, 2, time.Minute},
		{"ingest hits max delay", JobKindIngestBatch, 6, 5 * time.Minute},
		{"refresh first attempt", JobKindPlacesRefresh, 1, 2 * time.Minute},
		{"refresh second attempt", JobKindPlacesRefresh, 2, 4 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &rivertype.JobRow{Kind: tt.kind, Attempt: tt.attempt, AttemptedAt: &now}
			next := policy.NextRetry(job)
			assert.Equal(t, tt.delay, next.Sub(now))
		})
	}
}

func TestInsertOptsForKind(t *testing.T) {
	opts := InsertOptsForKind(JobKindScrape)
	assert.Equal(t, ScrapeMaxAttempts, opts.MaxAttempts)
	assert.Empty(t, opts.Queue)

	opts = InsertOptsForKind(JobKindPlacesRefresh)
	assert.Equal(t, PlacesRefreshMaxAttempts, opts.MaxAttempts)
	assert.Equal(t, QueuePlaces, opts.Queue)

	// unknown kinds fall back to the default policy
	opts = InsertOptsForKind("unknown-kind")
	assert.Equal(t, IngestBatchMaxAttempts, opts.MaxAttempts)
}

func TestDailyAtSchedule(t *testing.T) {
	schedule := dailyAt{hour: 3}

	before := time.Date(2026, time.August, 24, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.August, 24, 3, 0, 0, 0, time.UTC), schedule.Next(before))

	after := time.Date(2026, time.August, 24, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.August, 25, 3, 0, 0, 0, time.UTC), schedule.Next(after))
}

func TestNewPeriodicJobs(t *testing.T) {
	jobs := NewPeriodicJobs()
	require.Len(t, jobs, 3)
	for _, job := range jobs {
		require.NotNil(t, job)
	}
}

func TestNewClientConfigQueues(t *testing.T) {
	config := NewClientConfig(river.NewWorkers(), nil, nil)
	require.Contains(t, config.Queues, river.QueueDefault)
	require.Contains(t, config.Queues, QueuePlaces)
	assert.Equal(t, 1, config.Queues[QueuePlaces].MaxWorkers)
}

func TestJobKindConstantsUnique(t *testing.T) {
	kinds := []string{JobKindScrape, JobKindIngestBatch, JobKindEmbeddingSweep, JobKindPlacesRefresh}
	seen := make(map[string]bool)
	for _, kind := range kinds {
		require.NotEmpty(t, kind)
		require.False(t, seen[kind], "duplicate kind %s", kind)
		seen[kind] = true
	}
}
