package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/planzy/server/internal/domain/events"
	"github.com/planzy/server/internal/embedding"
)

var (
	_ embedding.VectorStore = (*VectorRepository)(nil)
	_ embedding.SearchIndex = (*VectorRepository)(nil)
)

// VectorRepository owns the embedding column of the events table. Vectors
// never travel through the events.Event struct; they are written and queried
// here only.
type VectorRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewVectorRepository(pool *pgxpool.Pool) *VectorRepository {
	return &VectorRepository{pool: pool}
}

func (r *VectorRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *VectorRepository) CountMissing(ctx context.Context) (int, error) {
	var count int
	err := r.queryer().QueryRow(ctx, `
SELECT count(*) FROM events WHERE embedding IS NULL
`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count missing embeddings: %w", err)
	}
	return count, nil
}

// ListMissing returns events without a vector, fully hydrated so the text
// composer sees venue, artists and tags.
func (r *VectorRepository) ListMissing(ctx context.Context, limit int) ([]events.Event, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id FROM events WHERE embedding IS NULL ORDER BY id LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list missing embeddings: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	eventsRepo := &EventRepository{pool: r.pool, tx: r.tx}
	hydrated, err := eventsRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return hydrated, nil
}

func (r *VectorRepository) StoreVector(ctx context.Context, eventID int64, vec pgvector.Vector) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE events SET embedding = $1 WHERE id = $2
`, vec, eventID)
	if err != nil {
		return fmt.Errorf("store vector: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store vector: %w: id %d", events.ErrNotFound, eventID)
	}
	return nil
}

// SimilarIDs returns event ids ordered by cosine distance to vec, nearest
// first, ties broken by id for a stable order.
func (r *VectorRepository) SimilarIDs(ctx context.Context, vec pgvector.Vector, limit int) ([]int64, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id
  FROM events
 WHERE embedding IS NOT NULL
 ORDER BY embedding <=> $1, id
 LIMIT $2
`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan similar id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar ids: %w", err)
	}
	return ids, nil
}
