package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgvector "github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"github.com/planzy/server/internal/domain/events"
	"github.com/planzy/server/internal/metrics"
	"github.com/planzy/server/internal/telemetry"
)

// VectorStore is the persistence surface the worker needs. Events come back
// hydrated (venue, artists, tags) so the composed text can use them; vectors
// are written by id through the DB-native vector type.
type VectorStore interface {
	CountMissing(ctx context.Context) (int, error)
	ListMissing(ctx context.Context, limit int) ([]events.Event, error)
	StoreVector(ctx context.Context, eventID int64, vec pgvector.Vector) error
}

type WorkerConfig struct {
	// SubBatch is how many texts go into one provider call.
	SubBatch int
	// BatchLimit caps how many events one sweep picks up.
	BatchLimit int
	// Sleep between provider calls, to stay under rate limits.
	Sleep time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.SubBatch <= 0 {
		c.SubBatch = 20
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 1000
	}
	if c.Sleep <= 0 {
		c.Sleep = time.Second
	}
	return c
}

// Worker sweeps events whose vector is null, composes their texts and writes
// the vectors the provider returns. Runs on its own loop, independent of the
// ingest pipeline.
type Worker struct {
	store    VectorStore
	provider Provider
	cfg      WorkerConfig
	logger   zerolog.Logger
}

func NewWorker(store VectorStore, provider Provider, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	return &Worker{
		store:    store,
		provider: provider,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Sweep processes one batch of vector-less events and returns how many
// vectors were written. A provider error fails only its sub-batch; the sweep
// moves on. ErrDimensionMismatch aborts the sweep, since every further call
// would fail the same way.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	ctx, span := telemetry.GetTracer("github.com/planzy/server/internal/embedding").
		Start(ctx, "embedding.Sweep")
	defer span.End()

	total, err := w.store.CountMissing(ctx)
	if err != nil {
		return 0, fmt.Errorf("count events without vectors: %w", err)
	}
	if total == 0 {
		w.logger.Debug().Msg("embedding: no events pending")
		return 0, nil
	}

	pending, err := w.store.ListMissing(ctx, w.cfg.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("list events without vectors: %w", err)
	}
	w.logger.Info().Int("pending", total).Int("batch", len(pending)).Msg("embedding: sweep started")

	written := 0
	for start := 0; start < len(pending); start += w.cfg.SubBatch {
		end := min(start+w.cfg.SubBatch, len(pending))

		n, err := w.processSubBatch(ctx, pending[start:end])
		written += n
		if err != nil {
			if errors.Is(err, ErrDimensionMismatch) {
				return written, err
			}
			w.logger.Error().Err(err).Int("from", start).Int("to", end).Msg("embedding: sub-batch failed")
		}

		if end < len(pending) {
			select {
			case <-time.After(w.cfg.Sleep):
			case <-ctx.Done():
				return written, ctx.Err()
			}
		}
	}

	w.logger.Info().Int("written", written).Msg("embedding: sweep finished")
	return written, nil
}

func (w *Worker) processSubBatch(ctx context.Context, batch []events.Event) (int, error) {
	texts := make([]string, len(batch))
	for i, ev := range batch {
		texts[i] = ComposeEventText(ev)
	}

	vectors, err := w.provider.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	written := 0
	for i, vec := range vectors {
		if err := w.store.StoreVector(ctx, batch[i].ID, pgvector.NewVector(vec)); err != nil {
			w.logger.Error().Err(err).Int64("event_id", batch[i].ID).Msg("embedding: store vector failed")
			continue
		}
		written++
		metrics.EmbeddingVectorsTotal.Inc()
	}
	return written, nil
}
