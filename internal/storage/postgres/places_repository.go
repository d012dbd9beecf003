package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planzy/server/internal/domain/places"
)

var _ places.Repository = (*PlaceRepository)(nil)

type PlaceRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewPlaceRepository(pool *pgxpool.Pool) *PlaceRepository {
	return &PlaceRepository{pool: pool}
}

func (r *PlaceRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const placeColumns = `place_id, name_scraped, name_google, formatted_address,
       latitude, longitude, city, country, state, street, street_number,
       neighborhood, postal_code, website, phone_number, rating,
       user_ratings_total, popularity_score, price_level, place_types,
       photo_reference, review_count, last_enriched_date`

func scanVenue(row pgx.Row) (*places.Venue, error) {
	var raw venueRow
	var lastEnriched *time.Time
	err := row.Scan(
		&raw.PlaceID,
		&raw.NameScraped,
		&raw.NameGoogle,
		&raw.FormattedAddress,
		&raw.Latitude,
		&raw.Longitude,
		&raw.City,
		&raw.Country,
		&raw.State,
		&raw.Street,
		&raw.StreetNumber,
		&raw.Neighborhood,
		&raw.PostalCode,
		&raw.Website,
		&raw.PhoneNumber,
		&raw.Rating,
		&raw.UserRatingsTotal,
		&raw.PopularityScore,
		&raw.PriceLevel,
		&raw.PlaceTypes,
		&raw.PhotoReference,
		&raw.ReviewCount,
		&lastEnriched,
	)
	if err != nil {
		return nil, err
	}
	venue := raw.toVenue()
	venue.LastEnriched = lastEnriched
	return venue, nil
}

func (r *PlaceRepository) GetByID(ctx context.Context, placeID string) (*places.Venue, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+placeColumns+`
  FROM places
 WHERE place_id = $1
`, placeID)

	venue, err := scanVenue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", places.ErrNotFound, placeID)
	}
	if err != nil {
		return nil, fmt.Errorf("get place: %w", err)
	}
	return venue, nil
}

func (r *PlaceRepository) Upsert(ctx context.Context, venue *places.Venue) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO places (place_id, name_scraped, name_google, formatted_address,
                    latitude, longitude, city, country, state, street,
                    street_number, neighborhood, postal_code, website,
                    phone_number, rating, user_ratings_total, popularity_score,
                    price_level, place_types, photo_reference, review_count,
                    last_enriched_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
        $16, $17, $18, $19, $20, $21, $22, $23)
ON CONFLICT (place_id) DO UPDATE SET
       name_scraped = EXCLUDED.name_scraped,
       name_google = EXCLUDED.name_google,
       formatted_address = EXCLUDED.formatted_address,
       latitude = EXCLUDED.latitude,
       longitude = EXCLUDED.longitude,
       city = EXCLUDED.city,
       country = EXCLUDED.country,
       state = EXCLUDED.state,
       street = EXCLUDED.street,
       street_number = EXCLUDED.street_number,
       neighborhood = EXCLUDED.neighborhood,
       postal_code = EXCLUDED.postal_code,
       website = EXCLUDED.website,
       phone_number = EXCLUDED.phone_number,
       rating = EXCLUDED.rating,
       user_ratings_total = EXCLUDED.user_ratings_total,
       popularity_score = EXCLUDED.popularity_score,
       price_level = EXCLUDED.price_level,
       place_types = EXCLUDED.place_types,
       photo_reference = EXCLUDED.photo_reference,
       review_count = EXCLUDED.review_count,
       last_enriched_date = EXCLUDED.last_enriched_date,
       updated_at = now()
`,
		venue.PlaceID,
		venue.NameScraped,
		venue.NameGoogle,
		venue.FormattedAddress,
		venue.Latitude,
		venue.Longitude,
		venue.City,
		venue.Country,
		venue.State,
		venue.Street,
		venue.StreetNumber,
		venue.Neighborhood,
		venue.PostalCode,
		venue.Website,
		venue.PhoneNumber,
		venue.Rating,
		venue.UserRatingsTotal,
		venue.PopularityScore,
		venue.PriceLevel,
		venue.PlaceTypes,
		venue.PhotoReference,
		venue.ReviewCount,
		venue.LastEnriched,
	)
	if err != nil {
		return fmt.Errorf("upsert place: %w", err)
	}
	return nil
}

func (r *PlaceRepository) TouchEnriched(ctx context.Context, placeID string, at time.Time) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE places
   SET last_enriched_date = $2, updated_at = now()
 WHERE place_id = $1
`, placeID, at)
	if err != nil {
		return fmt.Errorf("touch place: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", places.ErrNotFound, placeID)
	}
	return nil
}

// ListStale returns venues due for re-enrichment, oldest first. Stub venues
// carry no provider place id to refresh against and are skipped.
func (r *PlaceRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]places.Venue, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT `+placeColumns+`
  FROM places
 WHERE place_id NOT LIKE 'stub:%'
   AND (last_enriched_date IS NULL OR last_enriched_date < $1)
 ORDER BY last_enriched_date ASC NULLS FIRST, place_id ASC
 LIMIT $2
`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale places: %w", err)
	}
	defer rows.Close()

	var venues []places.Venue
	for rows.Next() {
		venue, err := scanVenue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		venues = append(venues, *venue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate places: %w", err)
	}
	return venues, nil
}
