package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/planzy/server/internal/domain/events"
)

const (
	ebiletSource      = "Ebilet"
	ebiletBaseURL     = "https://www.ebilet.pl"
	ebiletPageSize    = 20
	ebiletHTTPTimeout = 10 * time.Second
)

// EbiletAdapter pages the ebilet.pl title-listing API linearly until an empty
// page arrives. A failure mid-run returns the records collected so far.
type EbiletAdapter struct {
	httpClient *http.Client
	baseURL    string
	cap        int
	logger     zerolog.Logger
}

func NewEbiletAdapter(cap int, logger zerolog.Logger) *EbiletAdapter {
	return &EbiletAdapter{
		httpClient: &http.Client{Timeout: ebiletHTTPTimeout},
		baseURL:    ebiletBaseURL,
		cap:        cap,
		logger:     logger,
	}
}

func (a *EbiletAdapter) Name() string { return ebiletSource }

type ebiletPage struct {
	Titles []json.RawMessage `json:"titles"`
}

func (a *EbiletAdapter) Fetch(ctx context.Context) ([]json.RawMessage, error) {
	var collected []json.RawMessage
	top := 0

	a.logger.Info().Str("source", ebiletSource).Msg("scraper: started fetching")

	for {
		if a.cap > 0 && len(collected) >= a.cap {
			a.logger.Info().Str("source", ebiletSource).Int("cap", a.cap).
				Msg("scraper: record cap reached")
			break
		}

		url := fmt.Sprintf("%s/api/TitleListing/Search?currentTab=2&sort=1&top=%d&size=%d",
			a.baseURL, top, ebiletPageSize)

		page, err := a.fetchPage(ctx, url)
		if err != nil {
			return collected, fmt.Errorf("ebilet: fetch page at offset %d: %w", top, err)
		}
		if len(page.Titles) == 0 {
			break
		}

		collected = append(collected, page.Titles...)
		top += ebiletPageSize
	}

	a.logger.Info().Str("source", ebiletSource).Int("fetched", len(collected)).
		Msg("scraper: finished fetching")
	return collected, nil
}

func (a *EbiletAdapter) fetchPage(ctx context.Context, url string) (*ebiletPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var page ebiletPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &page, nil
}

type ebiletTitle struct {
	Title           string `json:"title"`
	Subtitle        string `json:"subtitle"`
	CategoryName    string `json:"categoryName"`
	SubcategoryName string `json:"subcategoryName"`
	CategorySlug    string `json:"categorySlug"`
	SubcategorySlug string `json:"subcategorySlug"`
	Slug            string `json:"slug"`
	DateFrom        string `json:"dateFrom"`
	DateTo          string `json:"dateTo"`
	Place           string `json:"place"`
	City            string `json:"city"`
	ImageLandscape  string `json:"imageLandscape"`
	Artists         string `json:"artists"`
}

// Map converts one title-listing record into the normalized document. The
// canonical URL is rebuilt from the category and title slugs.
func (a *EbiletAdapter) Map(raw json.RawMessage) (events.Document, error) {
	var title ebiletTitle
	if err := json.Unmarshal(raw, &title); err != nil {
		return events.Document{}, fmt.Errorf("ebilet: parse title: %w", err)
	}
	if title.Title == "" {
		return events.Document{}, fmt.Errorf("ebilet: title without a name")
	}
	if title.Slug == "" || title.CategorySlug == "" {
		return events.Document{}, fmt.Errorf("ebilet: title %q without slugs", title.Title)
	}

	segments := []string{a.baseURL, title.CategorySlug}
	if title.SubcategorySlug != "" {
		segments = append(segments, title.SubcategorySlug)
	}
	segments = append(segments, title.Slug)

	location := title.City
	if location == "" {
		location = title.Place
	}

	return events.Document{
		EventName:   title.Title,
		StartDate:   title.DateFrom,
		EndDate:     title.DateTo,
		Thumbnail:   title.ImageLandscape,
		URL:         strings.Join(segments, "/"),
		Location:    location,
		Place:       title.Place,
		Category:    title.CategoryName,
		Tags:        title.SubcategoryName,
		Artists:     title.Artists,
		Description: title.Subtitle,
		Source:      ebiletSource,
	}, nil
}
