package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all Planzy metrics
const namespace = "planzy"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// Scraper metrics

// ScrapeEventsTotal tracks raw documents produced per source per run outcome
var ScrapeEventsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_events_total",
		Help:      "Total number of raw event documents produced by adapters",
	},
	[]string{"source"},
)

// ScrapeRunsTotal tracks adapter run completions by outcome
var ScrapeRunsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_runs_total",
		Help:      "Total number of adapter runs",
	},
	[]string{"source", "status"}, // status: success|error|capped
)

// ScrapeDuration tracks per-source adapter run duration
var ScrapeDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scrape_duration_seconds",
		Help:      "Adapter run duration in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	},
	[]string{"source"},
)

// Ingestion metrics

// IngestEventsTotal tracks integrator outcomes per document
var IngestEventsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_events_total",
		Help:      "Total number of documents processed by the integrator",
	},
	[]string{"source", "outcome"}, // outcome: created|updated|skipped|failed
)

// IngestTimestampsDefaulted counts documents whose start or end time was
// substituted because the source provided none
var IngestTimestampsDefaulted = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_timestamps_defaulted_total",
		Help:      "Total number of documents ingested with substituted timestamps",
	},
	[]string{"source"},
)

// IngestChunkDuration tracks per-chunk transaction duration
var IngestChunkDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_chunk_duration_seconds",
		Help:      "Integrator chunk transaction duration in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	},
	[]string{"source"},
)

// LinkRacesTotal counts relationship inserts lost to concurrent workers and
// absorbed by the linker
var LinkRacesTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "link_races_total",
		Help:      "Total number of relationship insert races absorbed",
	},
	[]string{"kind"}, // kind: artists|tags
)

// Places enrichment metrics

// PlacesRequestsTotal tracks Google Places API requests by endpoint and status
var PlacesRequestsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "places_requests_total",
		Help:      "Total number of Places API requests",
	},
	[]string{"endpoint", "status"}, // endpoint: textsearch|details, status: success|error
)

// PlacesCacheHitsTotal tracks venue lookups served from the database cache
var PlacesCacheHitsTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "places_cache_hits_total",
		Help:      "Total number of venue enrichments served from cache",
	},
)

// PlacesCacheMissesTotal tracks venue lookups requiring API calls
var PlacesCacheMissesTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "places_cache_misses_total",
		Help:      "Total number of venue enrichments requiring Places API calls",
	},
)

// PlacesLatency tracks Places API request latency
var PlacesLatency = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "places_latency_seconds",
		Help:      "Places API request latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"endpoint"},
)

// BreakerState reports the circuit breaker state per external provider
// Values: 0 = closed, 1 = half-open, 2 = open
var BreakerState = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	},
	[]string{"provider"},
)

// BreakerTransitionsTotal counts breaker state transitions per provider
var BreakerTransitionsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "breaker_transitions_total",
		Help:      "Total number of circuit breaker state transitions",
	},
	[]string{"provider", "from", "to"},
)

// Embedding metrics

// EmbeddingRequestsTotal tracks embedding API requests by status
var EmbeddingRequestsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_requests_total",
		Help:      "Total number of embedding API requests",
	},
	[]string{"status"}, // status: success|error
)

// EmbeddingVectorsTotal tracks vectors written to storage
var EmbeddingVectorsTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_vectors_total",
		Help:      "Total number of event vectors stored",
	},
)

// EmbeddingTokensTotal tracks prompt tokens reported by the embedding API
var EmbeddingTokensTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_tokens_total",
		Help:      "Total number of prompt tokens consumed by embedding requests",
	},
)

// SimilarityQueriesTotal tracks similarity searches by outcome
var SimilarityQueriesTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "similarity_queries_total",
		Help:      "Total number of similarity searches",
	},
	[]string{"status"}, // status: success|error
)

// Init initializes the metrics registry and sets version information
func Init(version, commit, buildDate string) {
	// Register default Go metrics (memory, goroutines, GC, etc.)
	Registry.MustRegister(collectors.NewGoCollector())

	// Register process metrics (CPU, memory, file descriptors)
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Set application version info (value is always 1, info is in labels)
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
