package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planzy/server/internal/domain/events"
	"github.com/planzy/server/internal/domain/places"
)

var _ events.Store = (*EventRepository)(nil)

type EventRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

// WithTx runs fn against a repository scoped to one transaction. Inside an
// existing transaction a savepoint is opened instead, which is what lets the
// integrator roll back a single document without losing the rest of its chunk.
func (r *EventRepository) WithTx(ctx context.Context, fn func(ctx context.Context, repo events.Store) error) error {
	tx, err := begin(ctx, r.pool, r.tx)
	if err != nil {
		return err
	}

	wrapped := &EventRepository{pool: r.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const eventColumns = `id, name, start_date, end_date, thumbnail, url,
       location, category, description, source, place_id, created_at, updated_at`

func scanEvent(row pgx.Row) (*events.Event, error) {
	var ev events.Event
	err := row.Scan(
		&ev.ID,
		&ev.Name,
		&ev.StartDate,
		&ev.EndDate,
		&ev.Thumbnail,
		&ev.URL,
		&ev.Location,
		&ev.Category,
		&ev.Description,
		&ev.Source,
		&ev.PlaceID,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *EventRepository) ListURLs(ctx context.Context) ([]string, error) {
	rows, err := r.queryer().Query(ctx, `SELECT url FROM events ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("list event urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan event url: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event urls: %w", err)
	}
	return urls, nil
}

func (r *EventRepository) GetByURL(ctx context.Context, url string) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE url = $1
`, url)

	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: url %s", events.ErrNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("get event by url: %w", err)
	}
	return ev, nil
}

func (r *EventRepository) Create(ctx context.Context, params events.CreateParams) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, `
INSERT INTO events (name, start_date, end_date, thumbnail, url, location,
                    category, description, source, place_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+eventColumns+`
`,
		params.Name,
		params.StartDate,
		params.EndDate,
		params.Thumbnail,
		params.URL,
		params.Location,
		params.Category,
		params.Description,
		params.Source,
		params.PlaceID,
	)

	ev, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return ev, nil
}

// UpdateByURL overwrites the mutable attributes of the event behind url. The
// stored embedding is nulled only when the text feeding it changed, so
// untouched events keep their vector across re-scrapes. The CASE runs against
// the pre-update column values.
func (r *EventRepository) UpdateByURL(ctx context.Context, url string, params events.CreateParams) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, `
UPDATE events
   SET embedding = CASE
         WHEN name IS DISTINCT FROM $2
           OR category IS DISTINCT FROM $8
           OR description IS DISTINCT FROM $9
         THEN NULL
         ELSE embedding
       END,
       name = $2,
       start_date = $3,
       end_date = $4,
       thumbnail = $5,
       location = $6,
       place_id = $7,
       category = $8,
       description = $9,
       source = $10,
       updated_at = now()
 WHERE url = $1
RETURNING `+eventColumns+`
`,
		url,
		params.Name,
		params.StartDate,
		params.EndDate,
		params.Thumbnail,
		params.Location,
		params.PlaceID,
		params.Category,
		params.Description,
		params.Source,
	)

	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: url %s", events.ErrNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("update event by url: %w", err)
	}
	return ev, nil
}

func (r *EventRepository) GetByIDs(ctx context.Context, ids []int64) ([]events.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.queryer().Query(ctx, `
SELECT e.id, e.name, e.start_date, e.end_date, e.thumbnail, e.url,
       e.location, e.category, e.description, e.source, e.place_id,
       e.created_at, e.updated_at,
       p.place_id, p.name_scraped, p.name_google, p.formatted_address,
       p.latitude, p.longitude, p.city, p.country, p.state, p.street,
       p.street_number, p.neighborhood, p.postal_code, p.website,
       p.phone_number, p.rating, p.user_ratings_total, p.popularity_score,
       p.price_level, p.place_types, p.photo_reference, p.review_count
  FROM events e
  LEFT JOIN places p ON p.place_id = e.place_id
 WHERE e.id = ANY($1)
`, ids)
	if err != nil {
		return nil, fmt.Errorf("get events by ids: %w", err)
	}
	defer rows.Close()

	result := make([]events.Event, 0, len(ids))
	for rows.Next() {
		var ev events.Event
		var venue venueRow
		err := rows.Scan(
			&ev.ID,
			&ev.Name,
			&ev.StartDate,
			&ev.EndDate,
			&ev.Thumbnail,
			&ev.URL,
			&ev.Location,
			&ev.Category,
			&ev.Description,
			&ev.Source,
			&ev.PlaceID,
			&ev.CreatedAt,
			&ev.UpdatedAt,
			&venue.PlaceID,
			&venue.NameScraped,
			&venue.NameGoogle,
			&venue.FormattedAddress,
			&venue.Latitude,
			&venue.Longitude,
			&venue.City,
			&venue.Country,
			&venue.State,
			&venue.Street,
			&venue.StreetNumber,
			&venue.Neighborhood,
			&venue.PostalCode,
			&venue.Website,
			&venue.PhoneNumber,
			&venue.Rating,
			&venue.UserRatingsTotal,
			&venue.PopularityScore,
			&venue.PriceLevel,
			&venue.PlaceTypes,
			&venue.PhotoReference,
			&venue.ReviewCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Venue = venue.toVenue()
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	if err := r.attachRelations(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// attachRelations fills Artists and Tags for the given events in two batched
// queries instead of one pair per event.
func (r *EventRepository) attachRelations(ctx context.Context, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	ids := make([]int64, len(evs))
	index := make(map[int64]int, len(evs))
	for i := range evs {
		ids[i] = evs[i].ID
		index[evs[i].ID] = i
	}

	artistRows, err := r.queryer().Query(ctx, `
SELECT ea.event_id, a.name
  FROM event_artists ea
  JOIN artists a ON a.id = ea.artist_id
 WHERE ea.event_id = ANY($1)
 ORDER BY ea.event_id, a.name
`, ids)
	if err != nil {
		return fmt.Errorf("load event artists: %w", err)
	}
	defer artistRows.Close()
	for artistRows.Next() {
		var eventID int64
		var name string
		if err := artistRows.Scan(&eventID, &name); err != nil {
			return fmt.Errorf("scan event artist: %w", err)
		}
		i := index[eventID]
		evs[i].Artists = append(evs[i].Artists, name)
	}
	if err := artistRows.Err(); err != nil {
		return fmt.Errorf("iterate event artists: %w", err)
	}

	tagRows, err := r.queryer().Query(ctx, `
SELECT et.event_id, t.name
  FROM event_tags et
  JOIN tags t ON t.id = et.tag_id
 WHERE et.event_id = ANY($1)
 ORDER BY et.event_id, t.name
`, ids)
	if err != nil {
		return fmt.Errorf("load event tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var eventID int64
		var name string
		if err := tagRows.Scan(&eventID, &name); err != nil {
			return fmt.Errorf("scan event tag: %w", err)
		}
		i := index[eventID]
		evs[i].Tags = append(evs[i].Tags, name)
	}
	if err := tagRows.Err(); err != nil {
		return fmt.Errorf("iterate event tags: %w", err)
	}
	return nil
}

func (r *EventRepository) LinkedArtistIDs(ctx context.Context, eventID int64) ([]int64, error) {
	return r.linkedIDs(ctx, `SELECT artist_id FROM event_artists WHERE event_id = $1 ORDER BY artist_id`, eventID)
}

func (r *EventRepository) LinkArtists(ctx context.Context, eventID int64, artistIDs []int64) (int64, error) {
	return r.link(ctx, `
INSERT INTO event_artists (event_id, artist_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT DO NOTHING
`, eventID, artistIDs)
}

func (r *EventRepository) LinkedTagIDs(ctx context.Context, eventID int64) ([]int64, error) {
	return r.linkedIDs(ctx, `SELECT tag_id FROM event_tags WHERE event_id = $1 ORDER BY tag_id`, eventID)
}

func (r *EventRepository) LinkTags(ctx context.Context, eventID int64, tagIDs []int64) (int64, error) {
	return r.link(ctx, `
INSERT INTO event_tags (event_id, tag_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT DO NOTHING
`, eventID, tagIDs)
}

func (r *EventRepository) linkedIDs(ctx context.Context, sql string, eventID int64) ([]int64, error) {
	rows, err := r.queryer().Query(ctx, sql, eventID)
	if err != nil {
		return nil, fmt.Errorf("list linked ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan linked id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate linked ids: %w", err)
	}
	return ids, nil
}

func (r *EventRepository) link(ctx context.Context, sql string, eventID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.queryer().Exec(ctx, sql, eventID, ids)
	if err != nil {
		return 0, fmt.Errorf("link event relations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// venueRow carries the nullable left-join columns of a places row.
type venueRow struct {
	PlaceID          *string
	NameScraped      *string
	NameGoogle       *string
	FormattedAddress *string
	Latitude         *float64
	Longitude        *float64
	City             *string
	Country          *string
	State            *string
	Street           *string
	StreetNumber     *string
	Neighborhood     *string
	PostalCode       *string
	Website          *string
	PhoneNumber      *string
	Rating           *float64
	UserRatingsTotal *int
	PopularityScore  *float64
	PriceLevel       *int
	PlaceTypes       []string
	PhotoReference   *string
	ReviewCount      *int
}

func (row venueRow) toVenue() *places.Venue {
	if row.PlaceID == nil {
		return nil
	}
	venue := &places.Venue{
		PlaceID:          *row.PlaceID,
		NameScraped:      derefString(row.NameScraped),
		NameGoogle:       derefString(row.NameGoogle),
		FormattedAddress: derefString(row.FormattedAddress),
		Latitude:         row.Latitude,
		Longitude:        row.Longitude,
		City:             derefString(row.City),
		Country:          derefString(row.Country),
		State:            derefString(row.State),
		Street:           derefString(row.Street),
		StreetNumber:     derefString(row.StreetNumber),
		Neighborhood:     derefString(row.Neighborhood),
		PostalCode:       derefString(row.PostalCode),
		Website:          derefString(row.Website),
		PhoneNumber:      derefString(row.PhoneNumber),
		Rating:           row.Rating,
		UserRatingsTotal: row.UserRatingsTotal,
		PopularityScore:  row.PopularityScore,
		PriceLevel:       row.PriceLevel,
		PlaceTypes:       row.PlaceTypes,
		PhotoReference:   derefString(row.PhotoReference),
	}
	if row.ReviewCount != nil {
		venue.ReviewCount = *row.ReviewCount
	}
	return venue
}
