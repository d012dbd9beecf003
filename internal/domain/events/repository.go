package events

import "context"

type Repository interface {
	// ListURLs returns every canonical URL currently persisted. Used once
	// per run to prime the integrator's seen-set.
	ListURLs(ctx context.Context) ([]string, error)
	GetByURL(ctx context.Context, url string) (*Event, error)
	Create(ctx context.Context, params CreateParams) (*Event, error)
	// UpdateByURL overwrites the mutable attributes of an existing event.
	// When name, category or description change, the stored embedding is
	// nulled so the worker regenerates it.
	UpdateByURL(ctx context.Context, url string, params CreateParams) (*Event, error)
	// GetByIDs fetches events with venue, artists and tags joined. Result
	// order is unspecified; callers reorder as needed.
	GetByIDs(ctx context.Context, ids []int64) ([]Event, error)

	LinkedArtistIDs(ctx context.Context, eventID int64) ([]int64, error)
	// LinkArtists inserts (event, artist) pairs, skipping pairs that already
	// exist, and returns the number of rows actually inserted.
	LinkArtists(ctx context.Context, eventID int64, artistIDs []int64) (int64, error)
	LinkedTagIDs(ctx context.Context, eventID int64) ([]int64, error)
	LinkTags(ctx context.Context, eventID int64, tagIDs []int64) (int64, error)
}

// Store is a Repository that can scope itself to a transaction. Each
// integrator chunk runs inside one WithTx call; a nested call inside a
// transaction opens a savepoint, which is how a single document's failure is
// rolled back without poisoning the rest of its chunk.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Store) error) error
}
