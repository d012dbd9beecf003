package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/planzy/server/internal/domain/artists"
	"github.com/planzy/server/internal/domain/events"
	"github.com/planzy/server/internal/domain/places"
	"github.com/planzy/server/internal/domain/tags"
	"github.com/planzy/server/internal/embedding"
	"github.com/planzy/server/internal/scraper"
	"github.com/planzy/server/internal/storage"
)

// queryer is the subset of pgx shared by pools and transactions, so each
// repository can run against whichever it was scoped to.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewPool opens a pgx pool with the pgvector codec registered on every
// connection, so vector columns scan and bind without manual casts.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	return pool, nil
}

type Repository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ storage.Repository = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Events() events.Store {
	return &EventRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Artists() artists.Repository {
	return &ArtistRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Tags() tags.Repository {
	return &TagRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Places() places.Repository {
	return &PlaceRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) ScrapeRuns() scraper.RunStore {
	return &ScrapeRunRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Vectors() embedding.VectorStore {
	return &VectorRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Similarity() embedding.SearchIndex {
	return &VectorRepository{pool: r.pool, tx: r.tx}
}

// WithTx runs fn inside a transaction. Called on a repository already scoped
// to a transaction it opens a savepoint instead, so an inner failure rolls
// back without poisoning the outer transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	tx, err := begin(ctx, r.pool, r.tx)
	if err != nil {
		return err
	}

	wrapped := &Repository{pool: r.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// begin opens a transaction on the pool, or a savepoint when already inside
// one (pgx implements nested Begin as SAVEPOINT / RELEASE).
func begin(ctx context.Context, pool *pgxpool.Pool, tx pgx.Tx) (pgx.Tx, error) {
	if tx != nil {
		inner, err := tx.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin savepoint: %w", err)
		}
		return inner, nil
	}
	inner, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return inner, nil
}
