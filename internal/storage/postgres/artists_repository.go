package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planzy/server/internal/domain/artists"
)

var _ artists.Repository = (*ArtistRepository)(nil)

type ArtistRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewArtistRepository(pool *pgxpool.Pool) *ArtistRepository {
	return &ArtistRepository{pool: pool}
}

func (r *ArtistRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *ArtistRepository) FindByNames(ctx context.Context, names []string) ([]artists.Artist, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := r.queryer().Query(ctx, `
SELECT id, name FROM artists WHERE name = ANY($1) ORDER BY name
`, names)
	if err != nil {
		return nil, fmt.Errorf("find artists: %w", err)
	}
	defer rows.Close()
	return collectNamed[artists.Artist](rows, func(id int64, name string) artists.Artist {
		return artists.Artist{ID: id, Name: name}
	})
}

// CreateMany inserts the names in one statement. Names already present are
// skipped and absent from the result; callers pick them up with a re-read.
func (r *ArtistRepository) CreateMany(ctx context.Context, names []string) ([]artists.Artist, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := r.queryer().Query(ctx, `
INSERT INTO artists (name)
SELECT unnest($1::text[])
ON CONFLICT (name) DO NOTHING
RETURNING id, name
`, names)
	if err != nil {
		return nil, fmt.Errorf("create artists: %w", err)
	}
	defer rows.Close()
	return collectNamed[artists.Artist](rows, func(id int64, name string) artists.Artist {
		return artists.Artist{ID: id, Name: name}
	})
}
