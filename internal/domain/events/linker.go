package events

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/planzy/server/internal/metrics"
)

// Linker materializes event↔entity pairs idempotently: existing pairs are
// skipped, and duplicate-key races with concurrent workers are absorbed and
// counted rather than surfaced.
type Linker struct {
	logger zerolog.Logger
}

func NewLinker(logger zerolog.Logger) *Linker {
	return &Linker{logger: logger}
}

func (l *Linker) LinkArtists(ctx context.Context, repo Repository, eventID int64, artistIDs []int64) error {
	return l.link(ctx, eventID, artistIDs, "artists", repo.LinkedArtistIDs, repo.LinkArtists)
}

func (l *Linker) LinkTags(ctx context.Context, repo Repository, eventID int64, tagIDs []int64) error {
	return l.link(ctx, eventID, tagIDs, "tags", repo.LinkedTagIDs, repo.LinkTags)
}

func (l *Linker) link(
	ctx context.Context,
	eventID int64,
	ids []int64,
	kind string,
	existingFn func(context.Context, int64) ([]int64, error),
	insertFn func(context.Context, int64, []int64) (int64, error),
) error {
	if len(ids) == 0 {
		return nil
	}

	existing, err := existingFn(ctx, eventID)
	if err != nil {
		return fmt.Errorf("read existing %s links: %w", kind, err)
	}
	present := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		present[id] = struct{}{}
	}

	missing := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := present[id]; ok {
			continue
		}
		present[id] = struct{}{}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return nil
	}

	inserted, err := insertFn(ctx, eventID, missing)
	if err != nil {
		return fmt.Errorf("insert %s links: %w", kind, err)
	}

	// Rows skipped by the insert were created by a concurrent worker between
	// our read and write.
	if raced := int64(len(missing)) - inserted; raced > 0 {
		metrics.LinkRacesTotal.WithLabelValues(kind).Add(float64(raced))
		l.logger.Debug().
			Int64("event_id", eventID).
			Int64("raced", raced).
			Str("kind", kind).
			Msg("linker: concurrent insert absorbed")
	}
	return nil
}
