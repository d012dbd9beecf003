package places

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("places: venue not found")

	// ErrProviderUnavailable is returned by a Provider when the places API
	// cannot be reached: circuit open, retries exhausted, or quota issues.
	// The enricher falls back to stub behavior instead of failing the caller.
	ErrProviderUnavailable = errors.New("places: provider unavailable")
)

const stubPrefix = "stub:"

// Venue is a physical place hosting events, keyed by the provider's place id.
// Stub venues carry a synthetic id and no provider-sourced attributes.
type Venue struct {
	PlaceID          string
	NameScraped      string
	NameGoogle       string
	FormattedAddress string
	Latitude         *float64
	Longitude        *float64
	City             string
	Country          string
	State            string
	Street           string
	StreetNumber     string
	Neighborhood     string
	PostalCode       string
	Website          string
	PhoneNumber      string
	Rating           *float64
	UserRatingsTotal *int
	PopularityScore  *float64
	PriceLevel       *int
	PlaceTypes       []string
	PhotoReference   string
	ReviewCount      int
	LastEnriched     *time.Time
}

// IsStub reports whether the venue was persisted without a provider place id.
func (v *Venue) IsStub() bool {
	return strings.HasPrefix(v.PlaceID, stubPrefix)
}

// Stale reports whether the venue needs re-enrichment given the staleness
// horizon. Venues never enriched are always stale.
func (v *Venue) Stale(horizon time.Duration, now time.Time) bool {
	if v.LastEnriched == nil {
		return true
	}
	return now.Sub(*v.LastEnriched) > horizon
}

// StubID derives a deterministic synthetic place id for venues whose name
// could not be resolved against the provider, so repeated failures reuse one
// row instead of growing the table.
func StubID(scrapedName, locationHint string) string {
	sum := sha1.Sum([]byte(scrapedName + "|" + locationHint))
	return stubPrefix + hex.EncodeToString(sum[:8])
}

// Details is the provider-sourced attribute set for one place.
type Details struct {
	PlaceID          string
	Name             string
	FormattedAddress string
	Latitude         *float64
	Longitude        *float64
	City             string
	Country          string
	State            string
	Street           string
	StreetNumber     string
	Neighborhood     string
	PostalCode       string
	Website          string
	PhoneNumber      string
	Rating           *float64
	UserRatingsTotal *int
	PriceLevel       *int
	Types            []string
	PhotoReference   string
	ReviewCount      int
}

// Provider is the remote places API surface the enricher depends on.
type Provider interface {
	// FindPlaceID resolves a free-text query to a place id. Empty string
	// means the provider found nothing (not an error).
	FindPlaceID(ctx context.Context, query string) (string, error)
	// FetchDetails returns the attribute set for a known place id.
	FetchDetails(ctx context.Context, placeID string) (*Details, error)
}

type Repository interface {
	GetByID(ctx context.Context, placeID string) (*Venue, error)
	Upsert(ctx context.Context, venue *Venue) error
	// TouchEnriched advances last_enriched_date without changing attributes.
	TouchEnriched(ctx context.Context, placeID string, at time.Time) error
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]Venue, error)
}
