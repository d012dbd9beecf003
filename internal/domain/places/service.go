package places

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/planzy/server/internal/metrics"
)

type ServiceConfig struct {
	// Enabled gates all outbound provider calls. When false, EnsureVenue
	// returns nil and events keep a null venue reference.
	Enabled bool
	// RefreshHorizon is the staleness interval after which a venue is
	// re-enriched (default 30 days).
	RefreshHorizon time.Duration
}

// Service drives the venue lifecycle: resolve a scraped name to a place id,
// enrich it with provider attributes, fall back to a stub when the provider
// has nothing or is unreachable, and refresh stale venues.
type Service struct {
	repo     Repository
	provider Provider
	cfg      ServiceConfig
	logger   zerolog.Logger

	mu       sync.RWMutex
	placeIDs map[string]string // "scrapedName|locationHint" → place id
}

func NewService(repo Repository, provider Provider, cfg ServiceConfig, logger zerolog.Logger) *Service {
	if cfg.RefreshHorizon <= 0 {
		cfg.RefreshHorizon = 30 * 24 * time.Hour
	}
	return &Service{
		repo:     repo,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		placeIDs: make(map[string]string),
	}
}

func (s *Service) Enabled() bool {
	return s.cfg.Enabled
}

// Resolve maps a scraped venue name plus location hint to a provider place
// id. Results are cached in-process; an empty id means the provider found
// nothing. Provider outages surface ErrProviderUnavailable so the caller can
// take the stub path without counting a lookup failure.
func (s *Service) Resolve(ctx context.Context, scrapedName, locationHint string) (string, error) {
	key := cacheKey(scrapedName, locationHint)

	s.mu.RLock()
	id, ok := s.placeIDs[key]
	s.mu.RUnlock()
	if ok {
		metrics.PlacesCacheHitsTotal.Inc()
		return id, nil
	}
	metrics.PlacesCacheMissesTotal.Inc()

	query := strings.TrimSpace(scrapedName + " " + locationHint)
	id, err := s.provider.FindPlaceID(ctx, query)
	if err != nil {
		return "", err
	}
	if id != "" {
		s.mu.Lock()
		s.placeIDs[key] = id
		s.mu.Unlock()
	}
	return id, nil
}

// EnsureVenue returns a persisted venue for the scraped name, enriching it
// when missing or stale. It never fails the caller on provider trouble: the
// degraded paths produce a stub or the last known attributes. A nil venue is
// returned only when enrichment is disabled or the name is empty.
func (s *Service) EnsureVenue(ctx context.Context, scrapedName, locationHint string) (*Venue, error) {
	scrapedName = strings.TrimSpace(scrapedName)
	if !s.cfg.Enabled || scrapedName == "" {
		return nil, nil
	}

	now := time.Now()

	placeID, err := s.Resolve(ctx, scrapedName, locationHint)
	if err != nil || placeID == "" {
		if err != nil && !errors.Is(err, ErrProviderUnavailable) {
			s.logger.Warn().Err(err).Str("venue", scrapedName).Msg("places: resolve failed")
		}
		return s.ensureStub(ctx, scrapedName, locationHint, now)
	}

	existing, err := s.repo.GetByID(ctx, placeID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load venue %s: %w", placeID, err)
	}
	if existing != nil && !existing.Stale(s.cfg.RefreshHorizon, now) {
		return existing, nil
	}

	details, err := s.provider.FetchDetails(ctx, placeID)
	if err != nil {
		// Stamp last_enriched so a flapping provider does not cause a tight
		// retry loop on every event referencing this venue.
		if existing != nil {
			if touchErr := s.repo.TouchEnriched(ctx, placeID, now); touchErr != nil {
				return nil, fmt.Errorf("touch venue %s: %w", placeID, touchErr)
			}
			s.logger.Warn().Err(err).Str("place_id", placeID).Msg("places: enrich failed, keeping stale attributes")
			return existing, nil
		}
		minimal := &Venue{
			PlaceID:      placeID,
			NameScraped:  scrapedName,
			LastEnriched: &now,
		}
		if upsertErr := s.repo.Upsert(ctx, minimal); upsertErr != nil {
			return nil, fmt.Errorf("persist minimal venue %s: %w", placeID, upsertErr)
		}
		s.logger.Warn().Err(err).Str("place_id", placeID).Msg("places: enrich failed, persisted minimal venue")
		return minimal, nil
	}

	venue := venueFromDetails(scrapedName, details, now)
	if existing != nil {
		venue.NameScraped = existing.NameScraped
	}
	if err := s.repo.Upsert(ctx, venue); err != nil {
		return nil, fmt.Errorf("persist venue %s: %w", placeID, err)
	}
	return venue, nil
}

// RefreshStale re-enriches up to limit venues whose last enrichment is older
// than the configured horizon. Per-venue failures are logged and skipped.
// Returns the number of venues refreshed.
func (s *Service) RefreshStale(ctx context.Context, limit int) (int, error) {
	if !s.cfg.Enabled {
		return 0, nil
	}

	cutoff := time.Now().Add(-s.cfg.RefreshHorizon)
	stale, err := s.repo.ListStale(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale venues: %w", err)
	}

	refreshed := 0
	for i := range stale {
		venue := &stale[i]
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if err := s.refreshOne(ctx, venue); err != nil {
			s.logger.Warn().Err(err).Str("place_id", venue.PlaceID).Msg("places: refresh failed")
			continue
		}
		refreshed++
	}
	s.logger.Info().Int("stale", len(stale)).Int("refreshed", refreshed).Msg("places: refresh sweep complete")
	return refreshed, nil
}

func (s *Service) refreshOne(ctx context.Context, venue *Venue) error {
	now := time.Now()

	placeID := venue.PlaceID
	if venue.IsStub() {
		// A stub may resolve now that the provider knows the place.
		id, err := s.provider.FindPlaceID(ctx, strings.TrimSpace(venue.NameScraped+" "+venue.City))
		if err != nil || id == "" {
			return s.repo.TouchEnriched(ctx, venue.PlaceID, now)
		}
		placeID = id
	}

	details, err := s.provider.FetchDetails(ctx, placeID)
	if err != nil {
		return s.repo.TouchEnriched(ctx, venue.PlaceID, now)
	}

	updated := venueFromDetails(venue.NameScraped, details, now)
	return s.repo.Upsert(ctx, updated)
}

// ClearCache drops the in-process place-id cache.
func (s *Service) ClearCache() {
	s.mu.Lock()
	s.placeIDs = make(map[string]string)
	s.mu.Unlock()
}

func (s *Service) ensureStub(ctx context.Context, scrapedName, locationHint string, now time.Time) (*Venue, error) {
	stubID := StubID(scrapedName, locationHint)

	existing, err := s.repo.GetByID(ctx, stubID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load stub venue: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	stub := &Venue{
		PlaceID:      stubID,
		NameScraped:  scrapedName,
		City:         strings.TrimSpace(locationHint),
		LastEnriched: &now,
	}
	if err := s.repo.Upsert(ctx, stub); err != nil {
		return nil, fmt.Errorf("persist stub venue: %w", err)
	}
	return stub, nil
}

func venueFromDetails(scrapedName string, details *Details, now time.Time) *Venue {
	venue := &Venue{
		PlaceID:          details.PlaceID,
		NameScraped:      scrapedName,
		NameGoogle:       details.Name,
		FormattedAddress: details.FormattedAddress,
		Latitude:         details.Latitude,
		Longitude:        details.Longitude,
		City:             details.City,
		Country:          details.Country,
		State:            details.State,
		Street:           details.Street,
		StreetNumber:     details.StreetNumber,
		Neighborhood:     details.Neighborhood,
		PostalCode:       details.PostalCode,
		Website:          details.Website,
		PhoneNumber:      details.PhoneNumber,
		Rating:           details.Rating,
		UserRatingsTotal: details.UserRatingsTotal,
		PriceLevel:       details.PriceLevel,
		PlaceTypes:       details.Types,
		PhotoReference:   details.PhotoReference,
		ReviewCount:      details.ReviewCount,
		LastEnriched:     &now,
	}
	if details.Rating != nil {
		total := 0
		if details.UserRatingsTotal != nil {
			total = *details.UserRatingsTotal
		}
		score := Popularity(details.Rating, total)
		venue.PopularityScore = &score
	}
	return venue
}

func cacheKey(scrapedName, locationHint string) string {
	return strings.TrimSpace(scrapedName) + "|" + strings.TrimSpace(locationHint)
}
