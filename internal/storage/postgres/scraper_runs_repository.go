package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planzy/server/internal/scraper"
)

var _ scraper.RunStore = (*ScrapeRunRepository)(nil)

// ScrapeRunRepository persists per-source run bookkeeping so operators can
// see when a portal last delivered and how it failed.
type ScrapeRunRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewScrapeRunRepository(pool *pgxpool.Pool) *ScrapeRunRepository {
	return &ScrapeRunRepository{pool: pool}
}

func (r *ScrapeRunRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *ScrapeRunRepository) StartRun(ctx context.Context, source string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.queryer().Exec(ctx, `
INSERT INTO scrape_runs (id, source, status, started_at)
VALUES ($1, $2, 'running', now())
`, id, source)
	if err != nil {
		return uuid.Nil, fmt.Errorf("start scrape run: %w", err)
	}
	return id, nil
}

func (r *ScrapeRunRepository) CompleteRun(ctx context.Context, id uuid.UUID, stats scraper.RunStats) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE scrape_runs
   SET status = 'completed',
       finished_at = now(),
       events_found = $2,
       events_mapped = $3,
       events_skipped = $4,
       capped = $5
 WHERE id = $1
`, id, stats.EventsFound, stats.EventsMapped, stats.EventsSkipped, stats.Capped)
	if err != nil {
		return fmt.Errorf("complete scrape run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete scrape run: unknown run %s", id)
	}
	return nil
}

func (r *ScrapeRunRepository) FailRun(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE scrape_runs
   SET status = 'failed',
       finished_at = now(),
       error_message = $2
 WHERE id = $1
`, id, message)
	if err != nil {
		return fmt.Errorf("fail scrape run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fail scrape run: unknown run %s", id)
	}
	return nil
}
