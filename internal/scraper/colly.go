package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"

	"github.com/planzy/server/internal/domain/events"
)

const collyUserAgent = "PlanzyBot/1.0 (+https://planzy.pl)"

// rawListing is the intermediate record a CSS crawl produces; Fetch emits it
// marshaled, Map turns it into the normalized document.
type rawListing struct {
	Name        string `json:"name"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Location    string `json:"location"`
	Place       string `json:"place"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Image       string `json:"image"`
	Artists     string `json:"artists"`
	Tags        string `json:"tags"`
}

// CSSAdapter scrapes a plain HTML listing portal by applying the CSS
// selectors from a YAML source config. It respects robots.txt (colly
// default) and rate-limits per domain.
type CSSAdapter struct {
	source    SourceConfig
	rateLimit time.Duration
	logger    zerolog.Logger
}

func NewCSSAdapter(source SourceConfig, logger zerolog.Logger) *CSSAdapter {
	return &CSSAdapter{
		source:    source,
		rateLimit: time.Second,
		logger:    logger,
	}
}

func (a *CSSAdapter) Name() string { return a.source.Name }

// Fetch crawls the source URL and linked pages up to MaxPages, collecting one
// raw record per matching event card. If ctx is cancelled mid-crawl, the
// records collected so far are returned.
func (a *CSSAdapter) Fetch(ctx context.Context) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allowedDomain, err := extractDomain(a.source.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: parse source url: %w", a.source.Name, err)
	}

	var (
		mu        sync.Mutex
		results   []json.RawMessage
		pagesSeen int
	)

	maxPages := a.source.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}

	c := colly.NewCollector(
		colly.UserAgent(collyUserAgent),
		colly.AllowedDomains(allowedDomain),
	)

	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: a.rateLimit}); err != nil {
		a.logger.Warn().Err(err).Str("source", a.source.Name).Msg("scraper: failed to set rate limit rule")
	}

	sel := a.source.Selectors
	c.OnHTML(sel.EventList, func(h *colly.HTMLElement) {
		if ctx.Err() != nil {
			return
		}

		raw := rawListing{
			Name:        strings.TrimSpace(h.ChildText(sel.Name)),
			StartDate:   childDate(h, sel.StartDate),
			EndDate:     childDate(h, sel.EndDate),
			Location:    childText(h, sel.Location),
			Place:       childText(h, sel.Place),
			Description: childText(h, sel.Description),
			Artists:     childList(h, sel.Artists),
			Tags:        childList(h, sel.Tags),
		}
		if sel.URL != "" {
			if href := h.ChildAttr(sel.URL, "href"); href != "" {
				raw.URL = h.Request.AbsoluteURL(href)
			}
		}
		if sel.Image != "" {
			if src := h.ChildAttr(sel.Image, "src"); src != "" {
				raw.Image = h.Request.AbsoluteURL(src)
			}
		}

		if raw.Name == "" || raw.URL == "" {
			return
		}

		payload, err := json.Marshal(raw)
		if err != nil {
			return
		}

		mu.Lock()
		results = append(results, payload)
		mu.Unlock()
	})

	if sel.Pagination != "" {
		c.OnHTML(sel.Pagination, func(h *colly.HTMLElement) {
			if ctx.Err() != nil {
				return
			}

			mu.Lock()
			current := pagesSeen
			mu.Unlock()
			if current >= maxPages {
				return
			}

			href := h.Attr("href")
			if href == "" {
				href = h.ChildAttr("a", "href")
			}
			if href == "" {
				return
			}

			nextURL := h.Request.AbsoluteURL(href)
			if nextURL == "" {
				return
			}
			if err := c.Visit(nextURL); err != nil {
				a.logger.Warn().Err(err).Str("url", nextURL).Msg("scraper: failed to queue pagination URL")
			}
		})
	}

	c.OnRequest(func(r *colly.Request) {
		mu.Lock()
		pagesSeen++
		reachedMax := pagesSeen > maxPages
		mu.Unlock()

		if reachedMax {
			r.Abort()
			return
		}
		a.logger.Debug().Str("url", r.URL.String()).Int("page", pagesSeen).Msg("scraper: visiting page")
	})

	c.OnError(func(r *colly.Response, err error) {
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn().
			Str("url", r.Request.URL.String()).
			Int("status", r.StatusCode).
			Err(err).
			Msg("scraper: request error")
	})

	if err := c.Visit(a.source.URL); err != nil {
		if ctx.Err() != nil {
			return results, nil
		}
		return nil, err
	}
	c.Wait()

	return results, nil
}

// Map converts one crawled record into the normalized document. The source
// config may pin a category for the whole portal.
func (a *CSSAdapter) Map(raw json.RawMessage) (events.Document, error) {
	var listing rawListing
	if err := json.Unmarshal(raw, &listing); err != nil {
		return events.Document{}, fmt.Errorf("%s: parse listing: %w", a.source.Name, err)
	}
	if listing.Name == "" {
		return events.Document{}, fmt.Errorf("%s: listing without a name", a.source.Name)
	}
	if listing.URL == "" {
		return events.Document{}, fmt.Errorf("%s: listing %q without a URL", a.source.Name, listing.Name)
	}

	return events.Document{
		EventName:   listing.Name,
		StartDate:   listing.StartDate,
		EndDate:     listing.EndDate,
		Thumbnail:   listing.Image,
		URL:         listing.URL,
		Location:    listing.Location,
		Place:       listing.Place,
		Category:    a.source.Category,
		Tags:        listing.Tags,
		Artists:     listing.Artists,
		Description: listing.Description,
		Source:      a.source.Name,
	}, nil
}

// extractDomain parses rawURL and returns just the hostname (no port).
func extractDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}

func childText(h *colly.HTMLElement, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(h.ChildText(selector))
}

// childList joins every element matching selector with ", ". ChildText would
// concatenate sibling matches without a separator, fusing adjacent names.
func childList(h *colly.HTMLElement, selector string) string {
	if selector == "" {
		return ""
	}
	var parts []string
	h.DOM.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, ", ")
}

// childDate prefers the datetime attribute of the HTML5 time element,
// falling back to text content.
func childDate(h *colly.HTMLElement, selector string) string {
	if selector == "" {
		return ""
	}
	if dt := h.ChildAttr(selector, "datetime"); dt != "" {
		return strings.TrimSpace(dt)
	}
	return strings.TrimSpace(h.ChildText(selector))
}
