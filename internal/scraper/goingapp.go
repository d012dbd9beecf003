package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"

	"github.com/planzy/server/internal/domain/events"
	"github.com/planzy/server/internal/domain/tags"
)

const (
	goingSource    = "GoingApp"
	goingSearchURL = "https://goingapp.pl/szukaj?refinementList%5Btype%5D%5B0%5D=rundate&refinementList%5Btype%5D%5B1%5D=activity"

	goingEventURLPrefix  = "https://queue.goingapp.pl/wydarzenie/"
	goingThumbnailPrefix = "https://res.cloudinary.com/dr89d8ldb/image/upload/c_fill,h_350,w_405/f_webp/q_auto:eco/v1/"

	goingCookieButton   = "#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll"
	goingLoadMoreButton = ".ais-InfiniteHits-loadMore"
	goingAlgoliaPattern = "*algolia.net/1/indexes/*"
)

// GoingAppAdapter drives a headless browser over goingapp.pl search: dismiss
// the consent overlay, click "load more" until it disappears or the cap is
// met, and intercept the Algolia XHR responses that carry the records. The
// page itself is never parsed.
type GoingAppAdapter struct {
	cap         int
	searchURL   string
	settleDelay time.Duration
	logger      zerolog.Logger
}

func NewGoingAppAdapter(cap int, logger zerolog.Logger) *GoingAppAdapter {
	return &GoingAppAdapter{
		cap:         cap,
		searchURL:   goingSearchURL,
		settleDelay: 4 * time.Second,
		logger:      logger,
	}
}

func (a *GoingAppAdapter) Name() string { return goingSource }

type algoliaResponse struct {
	Results []struct {
		Hits []json.RawMessage `json:"hits"`
	} `json:"results"`
}

func (a *GoingAppAdapter) Fetch(ctx context.Context) ([]json.RawMessage, error) {
	a.logger.Info().Str("source", goingSource).Int("cap", a.cap).
		Msg("scraper: started browser fetch")

	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("goingapp: launch browser: %w", err)
	}

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("goingapp: connect browser: %w", err)
	}
	defer func() { _ = browser.Close() }()

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("goingapp: open stealth page: %w", err)
	}

	var (
		mu       sync.Mutex
		hits     []json.RawMessage
		inflight sync.WaitGroup
	)

	router := page.HijackRequests()
	err = router.Add(goingAlgoliaPattern, proto.NetworkResourceTypeXHR, func(h *rod.Hijack) {
		inflight.Add(1)
		defer inflight.Done()

		if err := h.LoadResponse(http.DefaultClient, true); err != nil {
			a.logger.Warn().Err(err).Str("source", goingSource).Msg("scraper: hijacked request failed")
			return
		}

		var payload algoliaResponse
		if err := json.Unmarshal([]byte(h.Response.Body()), &payload); err != nil {
			a.logger.Warn().Err(err).Str("source", goingSource).Msg("scraper: malformed search response")
			return
		}
		if len(payload.Results) == 0 {
			return
		}

		mu.Lock()
		for _, hit := range payload.Results[0].Hits {
			if a.cap > 0 && len(hits) >= a.cap {
				break
			}
			hits = append(hits, hit)
		}
		mu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("goingapp: install response hook: %w", err)
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	if err := page.Navigate(a.searchURL); err != nil {
		return nil, fmt.Errorf("goingapp: navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("goingapp: wait for page load: %w", err)
	}

	a.dismissCookieBanner(page)
	a.settle(&inflight)

	for {
		if err := ctx.Err(); err != nil {
			return hits, err
		}

		mu.Lock()
		collected := len(hits)
		mu.Unlock()
		if a.cap > 0 && collected >= a.cap {
			a.logger.Info().Str("source", goingSource).Int("cap", a.cap).
				Msg("scraper: record cap reached")
			break
		}

		if !a.clickLoadMore(page) {
			break
		}
		a.settle(&inflight)

		a.logger.Debug().Str("source", goingSource).Int("collected", collected).
			Msg("scraper: load-more round finished")
	}

	// Countdown gate: every hijacked request must complete before the
	// browser goes away.
	inflight.Wait()

	a.logger.Info().Str("source", goingSource).Int("fetched", len(hits)).
		Msg("scraper: finished browser fetch")
	return hits, nil
}

// clickLoadMore reports whether another page of results was requested. A
// missing or disabled button means all content is loaded.
func (a *GoingAppAdapter) clickLoadMore(page *rod.Page) bool {
	button, err := page.Timeout(5 * time.Second).Element(goingLoadMoreButton)
	if err != nil {
		a.logger.Info().Str("source", goingSource).Msg("scraper: no load-more control, all content loaded")
		return false
	}
	if disabled, _ := button.Attribute("disabled"); disabled != nil {
		a.logger.Info().Str("source", goingSource).Msg("scraper: load-more disabled, all content loaded")
		return false
	}

	if err := button.ScrollIntoView(); err != nil {
		a.logger.Warn().Err(err).Str("source", goingSource).Msg("scraper: scroll to load-more failed")
	}
	if err := button.Click(proto.InputMouseButtonLeft, 1); err != nil {
		a.logger.Warn().Err(err).Str("source", goingSource).Msg("scraper: load-more click failed")
		return false
	}
	return true
}

func (a *GoingAppAdapter) dismissCookieBanner(page *rod.Page) {
	button, err := page.Timeout(5 * time.Second).Element(goingCookieButton)
	if err != nil {
		return
	}
	if err := button.Click(proto.InputMouseButtonLeft, 1); err != nil {
		a.logger.Warn().Err(err).Str("source", goingSource).Msg("scraper: consent dismissal failed")
		return
	}
	a.logger.Info().Str("source", goingSource).Msg("scraper: consent overlay dismissed")
}

// settle gives the page time to issue its XHRs, then waits for all hijacked
// requests to drain.
func (a *GoingAppAdapter) settle(inflight *sync.WaitGroup) {
	time.Sleep(a.settleDelay)
	inflight.Wait()
}

type goingHit struct {
	NamePL             string      `json:"name_pl"`
	ArtistsNames       []string    `json:"artists_names"`
	StartDateTimestamp json.Number `json:"start_date_timestamp"`
	EndDateTimestamp   json.Number `json:"end_date_timestamp"`
	LocationsNames     []string    `json:"locations_names"`
	PlaceName          string      `json:"place_name"`
	CategoryName       string      `json:"category_name"`
	TagsNames          []string    `json:"tags_names"`
	Thumbnail          string      `json:"thumbnail"`
	Slug               string      `json:"slug"`
	RundateSlug        string      `json:"rundate_slug"`
	DescriptionPL      string      `json:"description_pl"`
}

// Map converts one Algolia hit into the normalized document. Timestamps pass
// through as the portal sent them; the integrator coerces milliseconds.
func (a *GoingAppAdapter) Map(raw json.RawMessage) (events.Document, error) {
	var hit goingHit
	if err := json.Unmarshal(raw, &hit); err != nil {
		return events.Document{}, fmt.Errorf("goingapp: parse hit: %w", err)
	}
	if hit.NamePL == "" {
		return events.Document{}, fmt.Errorf("goingapp: hit without a name")
	}
	if hit.Slug == "" || hit.RundateSlug == "" {
		return events.Document{}, fmt.Errorf("goingapp: hit %q without slugs", hit.NamePL)
	}

	location := ""
	if len(hit.LocationsNames) > 0 {
		location = hit.LocationsNames[0]
	}

	thumbnail := ""
	if hit.Thumbnail != "" {
		thumbnail = goingThumbnailPrefix + encodeThumbnailPath(hit.Thumbnail)
	}

	return events.Document{
		EventName:   hit.NamePL,
		StartDate:   hit.StartDateTimestamp.String(),
		EndDate:     hit.EndDateTimestamp.String(),
		Thumbnail:   thumbnail,
		URL:         goingEventURLPrefix + hit.Slug + "/" + hit.RundateSlug,
		Location:    location,
		Place:       hit.PlaceName,
		Category:    hit.CategoryName,
		Tags:        strings.Join(tags.SplitList(strings.Join(hit.TagsNames, ", ")), ", "),
		Artists:     strings.Join(hit.ArtistsNames, ", "),
		Description: hit.DescriptionPL,
		Source:      goingSource,
	}, nil
}

// encodeThumbnailPath escapes each path segment while preserving the path
// structure, so Polish diacritics and spaces survive the CDN URL.
func encodeThumbnailPath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
