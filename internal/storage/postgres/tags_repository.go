package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planzy/server/internal/domain/tags"
)

var _ tags.Repository = (*TagRepository)(nil)

type TagRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewTagRepository(pool *pgxpool.Pool) *TagRepository {
	return &TagRepository{pool: pool}
}

func (r *TagRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *TagRepository) FindByNames(ctx context.Context, names []string) ([]tags.Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := r.queryer().Query(ctx, `
SELECT id, name FROM tags WHERE name = ANY($1) ORDER BY name
`, names)
	if err != nil {
		return nil, fmt.Errorf("find tags: %w", err)
	}
	defer rows.Close()
	return collectNamed[tags.Tag](rows, func(id int64, name string) tags.Tag {
		return tags.Tag{ID: id, Name: name}
	})
}

// CreateMany inserts the names in one statement. Names racing a concurrent
// insert are skipped and absent from the result; the registry re-reads them.
func (r *TagRepository) CreateMany(ctx context.Context, names []string) ([]tags.Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := r.queryer().Query(ctx, `
INSERT INTO tags (name)
SELECT unnest($1::text[])
ON CONFLICT (name) DO NOTHING
RETURNING id, name
`, names)
	if err != nil {
		return nil, fmt.Errorf("create tags: %w", err)
	}
	defer rows.Close()
	return collectNamed[tags.Tag](rows, func(id int64, name string) tags.Tag {
		return tags.Tag{ID: id, Name: name}
	})
}
