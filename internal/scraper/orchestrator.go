package scraper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/planzy/server/internal/domain/events"
	"github.com/planzy/server/internal/metrics"
	"github.com/planzy/server/internal/telemetry"
)

// RunStats summarizes one adapter run for the scraper_runs bookkeeping.
type RunStats struct {
	EventsFound   int
	EventsMapped  int
	EventsSkipped int
	Capped        bool
}

// RunStore records scrape runs. May be nil on the Orchestrator, in which case
// bookkeeping is skipped (tests, dry runs).
type RunStore interface {
	StartRun(ctx context.Context, source string) (uuid.UUID, error)
	CompleteRun(ctx context.Context, id uuid.UUID, stats RunStats) error
	FailRun(ctx context.Context, id uuid.UUID, message string) error
}

// RunResult is the per-adapter outcome of an orchestrated run.
type RunResult struct {
	Source  string
	Found   int
	Mapped  int
	Skipped int
	Capped  bool
	Err     error
}

type OrchestratorConfig struct {
	// CapPerSource bounds how many raw records one adapter may contribute.
	CapPerSource int
	// TotalCap bounds the merged output. 0 = unbounded.
	TotalCap int
	// Concurrency bounds how many adapters run at once.
	Concurrency int
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.CapPerSource <= 0 {
		c.CapPerSource = 3000
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// Orchestrator runs all registered adapters in parallel and merges their
// outputs into one list of normalized documents, first write wins per
// canonical URL. An adapter failing never aborts the others.
type Orchestrator struct {
	adapters []Adapter
	runs     RunStore
	cfg      OrchestratorConfig
	logger   zerolog.Logger
}

func NewOrchestrator(adapters []Adapter, runs RunStore, cfg OrchestratorConfig, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		adapters: adapters,
		runs:     runs,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Run executes every adapter and returns the merged documents together with
// per-adapter results. All adapters complete (success or failure) before the
// merge; the merge visits adapters in registration order, so duplicate
// resolution is deterministic.
func (o *Orchestrator) Run(ctx context.Context) ([]events.Document, []RunResult) {
	perAdapter := make([][]events.Document, len(o.adapters))
	results := make([]RunResult, len(o.adapters))

	var group errgroup.Group
	group.SetLimit(o.cfg.Concurrency)

	for i, adapter := range o.adapters {
		group.Go(func() error {
			perAdapter[i], results[i] = o.runAdapter(ctx, adapter)
			return nil
		})
	}
	_ = group.Wait()

	return o.merge(perAdapter), results
}

func (o *Orchestrator) runAdapter(ctx context.Context, adapter Adapter) ([]events.Document, RunResult) {
	source := adapter.Name()
	result := RunResult{Source: source}
	started := time.Now()

	ctx, span := telemetry.GetTracer("github.com/planzy/server/internal/scraper").
		Start(ctx, "scraper.runAdapter")
	span.SetAttributes(attribute.String("source", source))
	defer span.End()

	var runID uuid.UUID
	if o.runs != nil {
		id, err := o.runs.StartRun(ctx, source)
		if err != nil {
			o.logger.Warn().Err(err).Str("source", source).Msg("scraper: failed to record run start")
		} else {
			runID = id
		}
	}

	raws, err := adapter.Fetch(ctx)
	if err != nil {
		// Partial data is still usable; the error is recorded, not fatal.
		o.logger.Error().Err(err).Str("source", source).Int("partial", len(raws)).
			Msg("scraper: adapter fetch failed")
		result.Err = err
	}

	if len(raws) > o.cfg.CapPerSource {
		raws = raws[:o.cfg.CapPerSource]
		result.Capped = true
	}
	result.Found = len(raws)

	var docs []events.Document
	for _, raw := range raws {
		doc, mapErr := adapter.Map(raw)
		if mapErr != nil {
			o.logger.Debug().Err(mapErr).Str("source", source).
				Msg("scraper: skipping record that failed mapping")
			result.Skipped++
			continue
		}
		docs = append(docs, doc)
	}
	result.Mapped = len(docs)

	if result.Found == 0 && result.Err == nil {
		o.logger.Warn().Str("source", source).Msg("scraper: adapter returned zero records")
	}

	o.recordRun(ctx, runID, result)
	o.observeRun(source, result, time.Since(started))

	o.logger.Info().
		Str("source", source).
		Int("found", result.Found).
		Int("mapped", result.Mapped).
		Int("skipped", result.Skipped).
		Bool("capped", result.Capped).
		Dur("took", time.Since(started)).
		Msg("scraper: adapter run finished")

	return docs, result
}

func (o *Orchestrator) recordRun(ctx context.Context, runID uuid.UUID, result RunResult) {
	if o.runs == nil || runID == uuid.Nil {
		return
	}
	if result.Err != nil {
		if err := o.runs.FailRun(ctx, runID, result.Err.Error()); err != nil {
			o.logger.Warn().Err(err).Str("source", result.Source).Msg("scraper: failed to record run failure")
		}
		return
	}
	stats := RunStats{
		EventsFound:   result.Found,
		EventsMapped:  result.Mapped,
		EventsSkipped: result.Skipped,
		Capped:        result.Capped,
	}
	if err := o.runs.CompleteRun(ctx, runID, stats); err != nil {
		o.logger.Warn().Err(err).Str("source", result.Source).Msg("scraper: failed to record run completion")
	}
}

func (o *Orchestrator) observeRun(source string, result RunResult, took time.Duration) {
	metrics.ScrapeEventsTotal.WithLabelValues(source).Add(float64(result.Found))
	metrics.ScrapeDuration.WithLabelValues(source).Observe(took.Seconds())

	status := "success"
	switch {
	case result.Err != nil:
		status = "error"
	case result.Capped:
		status = "capped"
	}
	metrics.ScrapeRunsTotal.WithLabelValues(source, status).Inc()
}

// merge flattens per-adapter outputs, dropping documents whose canonical URL
// was already emitted (first write wins), and applies the total cap.
func (o *Orchestrator) merge(perAdapter [][]events.Document) []events.Document {
	var merged []events.Document
	seen := make(map[string]struct{})

	for _, docs := range perAdapter {
		for _, doc := range docs {
			if doc.URL == "" {
				continue
			}
			if _, dup := seen[doc.URL]; dup {
				continue
			}
			seen[doc.URL] = struct{}{}
			merged = append(merged, doc)
			if o.cfg.TotalCap > 0 && len(merged) >= o.cfg.TotalCap {
				return merged
			}
		}
	}
	return merged
}
