package storage

import (
	"context"

	"github.com/planzy/server/internal/domain/artists"
	"github.com/planzy/server/internal/domain/events"
	"github.com/planzy/server/internal/domain/places"
	"github.com/planzy/server/internal/domain/tags"
	"github.com/planzy/server/internal/embedding"
	"github.com/planzy/server/internal/scraper"
)

// Repository groups data access by domain. Implementations hand out views
// that share one connection pool, or one transaction when obtained inside
// WithTx.
type Repository interface {
	Events() events.Store
	Artists() artists.Repository
	Tags() tags.Repository
	Places() places.Repository
	ScrapeRuns() scraper.RunStore
	Vectors() embedding.VectorStore
	Similarity() embedding.SearchIndex

	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
