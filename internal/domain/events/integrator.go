package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/planzy/server/internal/domain/artists"
	"github.com/planzy/server/internal/domain/places"
	"github.com/planzy/server/internal/domain/tags"
	"github.com/planzy/server/internal/metrics"
	"github.com/planzy/server/internal/sanitize"
	"github.com/planzy/server/internal/telemetry"
)

type IntegratorConfig struct {
	// ChunkSize is the transactional unit (default 50 documents).
	ChunkSize int
	// BatchSize caps how many documents one ProcessBatch call accepts.
	BatchSize int
	// Tick is the interval between deferred chunk runs (default 10s).
	Tick time.Duration
	// UpdateExisting switches seen URLs from skip to overwrite-if-different.
	UpdateExisting bool
}

func (c IntegratorConfig) withDefaults() IntegratorConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 50
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.Tick <= 0 {
		c.Tick = 10 * time.Second
	}
	return c
}

type Stats struct {
	Created   int
	Updated   int
	Skipped   int
	Failed    int
	Defaulted int
}

func (s *Stats) add(other Stats) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Defaulted += other.Defaulted
}

// Integrator turns normalized documents into persisted events with their
// artist, tag and venue relationships. Documents are deduplicated by
// canonical URL against a seen-set primed from the database once per run;
// each chunk of ~50 documents runs in its own transaction, and a document's
// failure rolls back only that document's savepoint.
type Integrator struct {
	store   Store
	artists *artists.Registry
	tags    *tags.Registry
	venues  *places.Service
	linker  *Linker
	cfg     IntegratorConfig
	logger  zerolog.Logger

	seenMu sync.Mutex
	seen   map[string]struct{}
	primed bool

	pendingMu sync.Mutex
	pending   [][]Document
	ticking   atomic.Bool
}

func NewIntegrator(
	store Store,
	artistRegistry *artists.Registry,
	tagRegistry *tags.Registry,
	venueService *places.Service,
	cfg IntegratorConfig,
	logger zerolog.Logger,
) *Integrator {
	return &Integrator{
		store:   store,
		artists: artistRegistry,
		tags:    tagRegistry,
		venues:  venueService,
		linker:  NewLinker(logger),
		cfg:     cfg.withDefaults(),
		logger:  logger,
		seen:    make(map[string]struct{}),
	}
}

// ProcessAll ingests every document synchronously, chunk by chunk. Used by
// the CLI path where there is no background loop to hand work to.
func (i *Integrator) ProcessAll(ctx context.Context, docs []Document) (Stats, error) {
	if err := i.prime(ctx); err != nil {
		return Stats{}, err
	}

	var total Stats
	for _, chunk := range i.split(docs) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		total.add(i.processChunk(ctx, chunk))
	}
	return total, nil
}

// ProcessBatch ingests the first chunk synchronously and queues the rest for
// the periodic tick, smoothing load from large scrape runs. The returned
// stats cover only the synchronous chunk.
func (i *Integrator) ProcessBatch(ctx context.Context, docs []Document) (Stats, error) {
	if err := i.prime(ctx); err != nil {
		return Stats{}, err
	}

	if len(docs) > i.cfg.BatchSize {
		i.logger.Warn().
			Int("supplied", len(docs)).
			Int("cap", i.cfg.BatchSize).
			Msg("integrator: batch truncated")
		docs = docs[:i.cfg.BatchSize]
	}

	chunks := i.split(docs)
	if len(chunks) == 0 {
		return Stats{}, nil
	}

	stats := i.processChunk(ctx, chunks[0])
	if len(chunks) > 1 {
		i.pendingMu.Lock()
		i.pending = append(i.pending, chunks[1:]...)
		queued := len(i.pending)
		i.pendingMu.Unlock()
		i.logger.Info().Int("queued_chunks", queued).Msg("integrator: deferred chunks queued")
	}
	return stats, nil
}

// Run drains deferred chunks, one per tick, until the context is cancelled.
// A CAS flag keeps ticks from overlapping should a chunk outlast the
// interval.
func (i *Integrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(i.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !i.ticking.CompareAndSwap(false, true) {
				continue
			}
			chunk, ok := i.popPending()
			if ok {
				i.processChunk(ctx, chunk)
			}
			i.ticking.Store(false)
		}
	}
}

// PendingChunks reports how many deferred chunks await processing.
func (i *Integrator) PendingChunks() int {
	i.pendingMu.Lock()
	defer i.pendingMu.Unlock()
	return len(i.pending)
}

func (i *Integrator) popPending() ([]Document, bool) {
	i.pendingMu.Lock()
	defer i.pendingMu.Unlock()
	if len(i.pending) == 0 {
		return nil, false
	}
	chunk := i.pending[0]
	i.pending = i.pending[1:]
	return chunk, true
}

func (i *Integrator) prime(ctx context.Context) error {
	i.seenMu.Lock()
	defer i.seenMu.Unlock()
	if i.primed {
		return nil
	}
	urls, err := i.store.ListURLs(ctx)
	if err != nil {
		return fmt.Errorf("prime seen urls: %w", err)
	}
	for _, url := range urls {
		i.seen[url] = struct{}{}
	}
	i.primed = true
	i.logger.Info().Int("known_urls", len(urls)).Msg("integrator: seen-set primed")
	return nil
}

func (i *Integrator) isSeen(url string) bool {
	i.seenMu.Lock()
	defer i.seenMu.Unlock()
	_, ok := i.seen[url]
	return ok
}

func (i *Integrator) markSeen(url string) {
	i.seenMu.Lock()
	i.seen[url] = struct{}{}
	i.seenMu.Unlock()
}

func (i *Integrator) split(docs []Document) [][]Document {
	var chunks [][]Document
	for start := 0; start < len(docs); start += i.cfg.ChunkSize {
		end := start + i.cfg.ChunkSize
		if end > len(docs) {
			end = len(docs)
		}
		chunks = append(chunks, docs[start:end])
	}
	return chunks
}

func (i *Integrator) processChunk(ctx context.Context, docs []Document) Stats {
	var stats Stats
	started := time.Now()
	source := chunkSource(docs)

	ctx, span := telemetry.GetTracer("github.com/planzy/server/internal/domain/events").
		Start(ctx, "integrator.processChunk")
	span.SetAttributes(attribute.String("source", source), attribute.Int("documents", len(docs)))
	defer span.End()

	err := i.store.WithTx(ctx, func(ctx context.Context, repo Store) error {
		for _, doc := range docs {
			stats.add(i.processDocument(ctx, repo, doc))
		}
		return nil
	})
	if err != nil {
		// The whole chunk rolled back; everything in it counts as failed.
		i.logger.Error().Err(err).Int("documents", len(docs)).Msg("integrator: chunk rolled back")
		metrics.IngestEventsTotal.WithLabelValues(source, "failed").Add(float64(len(docs)))
		return Stats{Failed: len(docs)}
	}

	metrics.IngestChunkDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())
	i.logger.Info().
		Int("documents", len(docs)).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Msg("integrator: chunk complete")
	return stats
}

func (i *Integrator) processDocument(ctx context.Context, repo Store, doc Document) Stats {
	url := strings.TrimSpace(doc.URL)
	source := doc.Source
	if source == "" {
		source = "unknown"
	}

	if url == "" {
		metrics.IngestEventsTotal.WithLabelValues(source, "skipped").Inc()
		return Stats{Skipped: 1}
	}
	seen := i.isSeen(url)
	if seen && !i.cfg.UpdateExisting {
		metrics.IngestEventsTotal.WithLabelValues(source, "skipped").Inc()
		return Stats{Skipped: 1}
	}

	var stats Stats
	err := repo.WithTx(ctx, func(ctx context.Context, repo Store) error {
		s, err := i.materialize(ctx, repo, doc, url, seen)
		if err != nil {
			return err
		}
		stats = s
		return nil
	})
	if err != nil {
		i.logger.Warn().Err(err).Str("url", url).Str("source", source).Msg("integrator: document failed")
		metrics.IngestEventsTotal.WithLabelValues(source, "failed").Inc()
		return Stats{Failed: 1}
	}

	i.markSeen(url)
	return stats
}

func (i *Integrator) materialize(ctx context.Context, repo Store, doc Document, url string, update bool) (Stats, error) {
	if err := doc.Validate(); err != nil {
		return Stats{}, err
	}

	var stats Stats
	now := time.Now().UTC()

	start := ParseTimestamp(doc.StartDate)
	if start == nil {
		start = &now
		stats.Defaulted = 1
	}
	end := ParseTimestamp(doc.EndDate)
	if end == nil {
		defaulted := now.Add(time.Hour)
		end = &defaulted
		stats.Defaulted = 1
	}
	if stats.Defaulted > 0 {
		metrics.IngestTimestampsDefaulted.WithLabelValues(doc.Source).Inc()
	}
	if end.Before(*start) {
		i.logger.Warn().Str("url", url).Time("start", *start).Time("end", *end).Msg("integrator: end before start")
	}

	// Venue resolution completes before the event row is written; a failed
	// or disabled enrichment leaves the reference null (degraded mode).
	var placeID *string
	if i.venues != nil && i.venues.Enabled() {
		venue, err := i.venues.EnsureVenue(ctx, doc.Place, doc.Location)
		if err != nil {
			i.logger.Warn().Err(err).Str("url", url).Msg("integrator: venue enrichment failed")
		} else if venue != nil {
			placeID = &venue.PlaceID
		}
	}

	params := CreateParams{
		Name:        sanitize.Text(doc.EventName),
		StartDate:   *start,
		EndDate:     *end,
		Thumbnail:   strings.TrimSpace(doc.Thumbnail),
		URL:         url,
		Location:    sanitize.Text(doc.Location),
		Category:    sanitize.Text(doc.Category),
		Description: strings.TrimSpace(sanitize.Text(doc.Description)),
		Source:      doc.Source,
		PlaceID:     placeID,
	}

	var event *Event
	var err error
	if update {
		event, err = repo.UpdateByURL(ctx, url, params)
		stats.Updated = 1
	} else {
		event, err = repo.Create(ctx, params)
		stats.Created = 1
	}
	if err != nil {
		return Stats{}, err
	}

	if err := i.linkArtists(ctx, repo, event.ID, doc.Artists); err != nil {
		return Stats{}, err
	}
	if err := i.linkTags(ctx, repo, event.ID, doc.Tags); err != nil {
		return Stats{}, err
	}

	outcome := "created"
	if update {
		outcome = "updated"
	}
	metrics.IngestEventsTotal.WithLabelValues(doc.Source, outcome).Inc()
	return stats, nil
}

func (i *Integrator) linkArtists(ctx context.Context, repo Store, eventID int64, field string) error {
	names := artists.SplitList(field)
	if len(names) == 0 {
		return nil
	}
	resolved, err := i.artists.FindOrCreateByName(ctx, names)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(resolved))
	for _, artist := range resolved {
		ids = append(ids, artist.ID)
	}
	return i.linker.LinkArtists(ctx, repo, eventID, ids)
}

func (i *Integrator) linkTags(ctx context.Context, repo Store, eventID int64, field string) error {
	names := tags.SplitList(field)
	if len(names) == 0 {
		return nil
	}
	resolved, err := i.tags.FindOrCreateByName(ctx, names)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(resolved))
	for _, tag := range resolved {
		ids = append(ids, tag.ID)
	}
	return i.linker.LinkTags(ctx, repo, eventID, ids)
}

func chunkSource(docs []Document) string {
	if len(docs) == 0 {
		return "unknown"
	}
	if docs[0].Source == "" {
		return "unknown"
	}
	return docs[0].Source
}
