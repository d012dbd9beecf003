package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"

	"github.com/planzy/server/internal/domain/events"
	"github.com/planzy/server/internal/domain/places"
	"github.com/planzy/server/internal/embedding"
	"github.com/planzy/server/internal/scraper"
)

// ScrapeArgs triggers a full scrape of every registered adapter. The first
// ingest chunk runs inside the job; the rest are fanned out as ingest_batch
// jobs so a slow portal never blocks the queue.
type ScrapeArgs struct{}

func (ScrapeArgs) Kind() string { return JobKindScrape }

// IngestBatchArgs carries one deferred chunk of normalized documents.
type IngestBatchArgs struct {
	Documents []events.Document `json:"documents"`
}

func (IngestBatchArgs) Kind() string { return JobKindIngestBatch }

type EmbeddingSweepArgs struct{}

func (EmbeddingSweepArgs) Kind() string { return JobKindEmbeddingSweep }

type PlacesRefreshArgs struct {
	// Limit caps how many venues one sweep touches; 0 means the default.
	Limit int `json:"limit,omitempty"`
}

func (PlacesRefreshArgs) Kind() string { return JobKindPlacesRefresh }

const (
	defaultIngestChunk   = 50
	defaultRefreshLimit  = 200
	scrapeInsertBatchMax = 100
)

// ScrapeWorker runs the adapter orchestrator and hands the merged documents
// to the integrator, deferring all but the first chunk to ingest_batch jobs.
type ScrapeWorker struct {
	river.WorkerDefaults[ScrapeArgs]
	Orchestrator *scraper.Orchestrator
	Integrator   *events.Integrator
	Client       *river.Client[pgx.Tx]
	ChunkSize    int
	Logger       zerolog.Logger
}

func (ScrapeWorker) Kind() string { return JobKindScrape }

func (w ScrapeWorker) Work(ctx context.Context, job *river.Job[ScrapeArgs]) error {
	if w.Orchestrator == nil || w.Integrator == nil {
		return fmt.Errorf("scrape worker not configured")
	}

	docs, results := w.Orchestrator.Run(ctx)
	for _, result := range results {
		if result.Err != nil {
			w.Logger.Warn().Err(result.Err).Str("source", result.Source).Msg("jobs: adapter failed")
		}
	}
	if len(docs) == 0 {
		w.Logger.Warn().Msg("jobs: scrape produced no documents")
		return nil
	}

	chunkSize := w.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultIngestChunk
	}

	client := w.Client
	if client == nil {
		// the worker is normally constructed before the client exists, so
		// fall back to the client running this job
		client, _ = river.ClientFromContextSafely[pgx.Tx](ctx)
	}

	first := docs
	var deferred []events.Document
	if client != nil && len(docs) > chunkSize {
		first = docs[:chunkSize]
		deferred = docs[chunkSize:]
	}

	stats, err := w.Integrator.ProcessAll(ctx, first)
	if err != nil {
		return fmt.Errorf("ingest scrape results: %w", err)
	}
	w.Logger.Info().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("deferred", len(deferred)).
		Msg("jobs: scrape ingested")

	return w.enqueueDeferred(ctx, client, deferred, chunkSize)
}

func (w ScrapeWorker) enqueueDeferred(ctx context.Context, client *river.Client[pgx.Tx], docs []events.Document, chunkSize int) error {
	if len(docs) == 0 {
		return nil
	}

	var params []river.InsertManyParams
	for start := 0; start < len(docs); start += chunkSize {
		end := min(start+chunkSize, len(docs))
		opts := InsertOptsForKind(JobKindIngestBatch)
		params = append(params, river.InsertManyParams{
			Args:       IngestBatchArgs{Documents: docs[start:end]},
			InsertOpts: &opts,
		})
		if len(params) >= scrapeInsertBatchMax {
			if _, err := client.InsertMany(ctx, params); err != nil {
				return fmt.Errorf("enqueue ingest batches: %w", err)
			}
			params = params[:0]
		}
	}
	if len(params) > 0 {
		if _, err := client.InsertMany(ctx, params); err != nil {
			return fmt.Errorf("enqueue ingest batches: %w", err)
		}
	}
	return nil
}

// IngestBatchWorker replays one deferred chunk through the integrator.
type IngestBatchWorker struct {
	river.WorkerDefaults[IngestBatchArgs]
	Integrator *events.Integrator
	Logger     zerolog.Logger
}

func (IngestBatchWorker) Kind() string { return JobKindIngestBatch }

func (w IngestBatchWorker) Work(ctx context.Context, job *river.Job[IngestBatchArgs]) error {
	if w.Integrator == nil {
		return fmt.Errorf("ingest worker not configured")
	}
	if len(job.Args.Documents) == 0 {
		return nil
	}

	stats, err := w.Integrator.ProcessAll(ctx, job.Args.Documents)
	if err != nil {
		return fmt.Errorf("ingest batch: %w", err)
	}
	w.Logger.Debug().
		Int("documents", len(job.Args.Documents)).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Msg("jobs: deferred chunk ingested")
	return nil
}

// EmbeddingSweepWorker vectorizes every event missing an embedding.
type EmbeddingSweepWorker struct {
	river.WorkerDefaults[EmbeddingSweepArgs]
	Worker *embedding.Worker
	Logger zerolog.Logger
}

func (EmbeddingSweepWorker) Kind() string { return JobKindEmbeddingSweep }

func (w EmbeddingSweepWorker) Work(ctx context.Context, job *river.Job[EmbeddingSweepArgs]) error {
	if w.Worker == nil {
		return fmt.Errorf("embedding worker not configured")
	}
	stored, err := w.Worker.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("embedding sweep: %w", err)
	}
	if stored > 0 {
		w.Logger.Info().Int("vectors", stored).Msg("jobs: embedding sweep complete")
	}
	return nil
}

// PlacesRefreshWorker re-enriches stale venues against the places provider.
type PlacesRefreshWorker struct {
	river.WorkerDefaults[PlacesRefreshArgs]
	Service *places.Service
	Logger  zerolog.Logger
}

func (PlacesRefreshWorker) Kind() string { return JobKindPlacesRefresh }

func (w PlacesRefreshWorker) Work(ctx context.Context, job *river.Job[PlacesRefreshArgs]) error {
	if w.Service == nil {
		return fmt.Errorf("places service not configured")
	}
	limit := job.Args.Limit
	if limit <= 0 {
		limit = defaultRefreshLimit
	}
	refreshed, err := w.Service.RefreshStale(ctx, limit)
	if err != nil {
		return fmt.Errorf("places refresh: %w", err)
	}
	w.Logger.Info().Int("refreshed", refreshed).Msg("jobs: place refresh complete")
	return nil
}

// WorkerDeps carries everything the workers need; nil fields disable the
// corresponding worker.
type WorkerDeps struct {
	Orchestrator *scraper.Orchestrator
	Integrator   *events.Integrator
	Embedding    *embedding.Worker
	Places       *places.Service
	Client       *river.Client[pgx.Tx]
	Logger       zerolog.Logger
}

// NewWorkers registers every configured worker.
func NewWorkers(deps WorkerDeps) *river.Workers {
	workers := river.NewWorkers()
	if deps.Orchestrator != nil && deps.Integrator != nil {
		river.AddWorker[ScrapeArgs](workers, ScrapeWorker{
			Orchestrator: deps.Orchestrator,
			Integrator:   deps.Integrator,
			Client:       deps.Client,
			Logger:       deps.Logger,
		})
	}
	if deps.Integrator != nil {
		river.AddWorker[IngestBatchArgs](workers, IngestBatchWorker{
			Integrator: deps.Integrator,
			Logger:     deps.Logger,
		})
	}
	if deps.Embedding != nil {
		river.AddWorker[EmbeddingSweepArgs](workers, EmbeddingSweepWorker{
			Worker: deps.Embedding,
			Logger: deps.Logger,
		})
	}
	if deps.Places != nil {
		river.AddWorker[PlacesRefreshArgs](workers, PlacesRefreshWorker{
			Service: deps.Places,
			Logger:  deps.Logger,
		})
	}
	return workers
}
