package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	pgvector "github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"github.com/planzy/server/internal/domain/events"
	"github.com/planzy/server/internal/metrics"
)

// DefaultSearchLimit applies when a caller asks for zero or fewer results.
const DefaultSearchLimit = 10

// SearchIndex runs the nearest-neighbour query. Ids come back ordered by
// ascending cosine distance, ties broken by id.
type SearchIndex interface {
	SimilarIDs(ctx context.Context, vec pgvector.Vector, limit int) ([]int64, error)
}

// Similarity translates free-text queries into ranked events: embed the
// query, run the vector search, hydrate the hits, keep the vector order.
type Similarity struct {
	index    SearchIndex
	events   events.Repository
	provider Provider
	logger   zerolog.Logger
	now      func() time.Time
}

func NewSimilarity(index SearchIndex, repo events.Repository, provider Provider, logger zerolog.Logger) *Similarity {
	return &Similarity{
		index:    index,
		events:   repo,
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
}

// FindSimilar returns up to limit events ranked by semantic similarity to the
// query text. Events already started and events without a resolved venue are
// filtered out after ranking. An empty query is an invalid argument; an empty
// result set is not an error.
func (s *Similarity) FindSimilar(ctx context.Context, query string, limit int) ([]events.Event, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", events.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	vectors, err := s.provider.Embed(ctx, []string{query})
	if err != nil {
		metrics.SimilarityQueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}

	ids, err := s.index.SimilarIDs(ctx, pgvector.NewVector(vectors[0]), limit)
	if err != nil {
		metrics.SimilarityQueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if len(ids) == 0 {
		metrics.SimilarityQueriesTotal.WithLabelValues("success").Inc()
		return []events.Event{}, nil
	}

	hydrated, err := s.events.GetByIDs(ctx, ids)
	if err != nil {
		metrics.SimilarityQueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("hydrate events: %w", err)
	}

	// Hydration does not preserve input order; restore the vector order.
	byID := make(map[int64]events.Event, len(hydrated))
	for _, ev := range hydrated {
		byID[ev.ID] = ev
	}

	now := s.now()
	result := make([]events.Event, 0, len(ids))
	for _, id := range ids {
		ev, ok := byID[id]
		if !ok {
			continue
		}
		if ev.StartDate.Before(now) || ev.PlaceID == nil {
			continue
		}
		result = append(result, ev)
	}

	metrics.SimilarityQueriesTotal.WithLabelValues("success").Inc()
	s.logger.Debug().Int("requested", limit).Int("returned", len(result)).Msg("similarity: query served")
	return result, nil
}
