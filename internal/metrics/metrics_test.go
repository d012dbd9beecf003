package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	Init("v1.0.0", "abc123", "2026-08-24")

	assert.NotZero(t, testutil.CollectAndCount(AppInfo))
	assert.Equal(t, 1.0, testutil.ToFloat64(AppInfo.WithLabelValues("v1.0.0", "abc123", "2026-08-24")))
}

func TestHTTPMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	})

	rec := httptest.NewRecorder()
	HTTPMiddleware(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/missing", "404")))
	assert.NotZero(t, testutil.CollectAndCount(HTTPRequestDuration))
}

func TestHTTPMiddlewareDefaultsStatusToOK(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no explicit WriteHeader
		_, _ = w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	HTTPMiddleware(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/implicit", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/implicit", "200")))
}

func TestDBCollectorNilPool(t *testing.T) {
	collector := NewDBCollector(nil)
	collector.collect()
	collector.Stop()
}

func TestDBCollectorStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		NewDBCollector(nil).Start(ctx, time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop on context cancellation")
	}
}

func TestJobMetricsHookLifecycle(t *testing.T) {
	hook := NewJobMetricsHook()
	ctx := context.Background()
	job := &rivertype.JobRow{ID: 42, Kind: "test_kind"}

	require.NoError(t, hook.InsertBegin(ctx, &rivertype.JobInsertParams{Kind: "test_kind"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(JobsQueued.WithLabelValues("test_kind")))

	require.NoError(t, hook.WorkBegin(ctx, job))
	assert.Equal(t, 1.0, testutil.ToFloat64(JobsInFlight.WithLabelValues("test_kind")))

	require.NoError(t, hook.WorkEnd(ctx, job, nil))
	assert.Equal(t, 0.0, testutil.ToFloat64(JobsInFlight.WithLabelValues("test_kind")))
	assert.Equal(t, 1.0, testutil.ToFloat64(JobsCompleted.WithLabelValues("test_kind", "success")))

	require.NoError(t, hook.WorkBegin(ctx, job))
	require.NoError(t, hook.WorkEnd(ctx, job, errors.New("boom")))
	assert.Equal(t, 1.0, testutil.ToFloat64(JobsCompleted.WithLabelValues("test_kind", "error")))

	// start times are cleaned up after WorkEnd
	hook.mu.Lock()
	assert.Empty(t, hook.started)
	hook.mu.Unlock()
}
