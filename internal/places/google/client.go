package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/planzy/server/internal/domain/places"
	"github.com/planzy/server/internal/metrics"
	"github.com/planzy/server/internal/resilience"
)

const breakerName = "google-places"

const (
	// DefaultBaseURL is the Google Maps Web Service root
	DefaultBaseURL = "https://maps.googleapis.com/maps/api"
	// DefaultTimeout for HTTP requests
	DefaultTimeout = 10 * time.Second
	// DefaultMinInterval between outbound requests (5 rps)
	DefaultMinInterval = 200 * time.Millisecond
	// MaxRetries for transient errors
	MaxRetries = 3
	// RetryBaseDelay is the initial backoff delay
	RetryBaseDelay = 300 * time.Millisecond
)

// Client talks to the Google Places text-search and details endpoints with
// process-wide rate limiting, bounded retries and a circuit breaker. It
// implements places.Provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	maxRetries int
	retryBase  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMinInterval sets the minimum interval between outbound requests.
func WithMinInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

// WithRetrySettings overrides the retry budget and base backoff delay.
func WithRetrySettings(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		if maxRetries > 0 {
			c.maxRetries = maxRetries
		}
		if baseDelay > 0 {
			c.retryBase = baseDelay
		}
	}
}

// WithBreakerSettings overrides the circuit breaker thresholds.
func WithBreakerSettings(cfg resilience.BreakerConfig) Option {
	return func(c *Client) {
		c.breaker = resilience.NewBreaker[[]byte](breakerName, cfg)
	}
}

// NewClient creates a Places API client. The API key is sent as a query
// parameter on every request, per the provider's auth scheme.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Every(DefaultMinInterval), 1),
		breaker:    resilience.NewBreaker[[]byte](breakerName, resilience.DefaultBreakerConfig()),
		maxRetries: MaxRetries,
		retryBase:  RetryBaseDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// FindPlaceID resolves a free-text query against the text-search endpoint.
// Returns "" when the provider has no match (ZERO_RESULTS), and
// places.ErrProviderUnavailable when the circuit is open or retries are
// exhausted.
func (c *Client) FindPlaceID(ctx context.Context, query string) (string, error) {
	if query == "" {
		return "", fmt.Errorf("google places: query cannot be empty")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("key", c.apiKey)
	requestURL := fmt.Sprintf("%s/place/textsearch/json?%s", c.baseURL, params.Encode())

	body, err := c.get(ctx, "textsearch", requestURL)
	if err != nil {
		return "", err
	}

	var parsed textSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("google places: parse search response: %w", err)
	}
	switch parsed.Status {
	case statusOK:
		if len(parsed.Results) == 0 {
			return "", nil
		}
		return parsed.Results[0].PlaceID, nil
	case statusZeroResults:
		return "", nil
	default:
		return "", fmt.Errorf("google places: search status %s: %s", parsed.Status, parsed.ErrorMessage)
	}
}

// FetchDetails returns the attribute set for a place id.
func (c *Client) FetchDetails(ctx context.Context, placeID string) (*places.Details, error) {
	if placeID == "" {
		return nil, fmt.Errorf("google places: place id cannot be empty")
	}

	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailsFields)
	params.Set("key", c.apiKey)
	requestURL := fmt.Sprintf("%s/place/details/json?%s", c.baseURL, params.Encode())

	body, err := c.get(ctx, "details", requestURL)
	if err != nil {
		return nil, err
	}

	var parsed detailsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("google places: parse details response: %w", err)
	}
	if parsed.Status != statusOK {
		return nil, fmt.Errorf("google places: details status %s: %s", parsed.Status, parsed.ErrorMessage)
	}

	return detailsFromResult(parsed.Result), nil
}

// get runs one rate-limited, retried, breaker-guarded GET and returns the
// response body.
func (c *Client) get(ctx context.Context, endpoint, requestURL string) ([]byte, error) {
	started := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.doWithRetry(ctx, requestURL)
	})
	metrics.PlacesLatency.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.PlacesRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", places.ErrProviderUnavailable)
		}
		if resilience.IsTransient(err) {
			return nil, fmt.Errorf("%w: %v", places.ErrProviderUnavailable, err)
		}
		return nil, err
	}
	metrics.PlacesRequestsTotal.WithLabelValues(endpoint, "success").Inc()
	return body, nil
}

// doWithRetry executes an HTTP GET with exponential backoff on transient
// failures. Permanent failures (4xx other than 429) fail fast.
func (c *Client) doWithRetry(ctx context.Context, requestURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 300ms, 600ms, 1.2s, ...
			delay := c.retryBase * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = resilience.Transient("http request: %v", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = resilience.Transient("read response: %v", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = resilience.Transient("rate limited (429)")
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = resilience.Transient("server error (%d)", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
		}

		// OVER_QUERY_LIMIT arrives with HTTP 200; treat it as transient so
		// it backs off and counts against the breaker.
		if status := peekStatus(body); status == statusOverQueryLimit {
			lastErr = resilience.Transient("over query limit")
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func peekStatus(body []byte) string {
	var probe struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.Status
}

func detailsFromResult(r detailsResult) *places.Details {
	lat := r.Geometry.Location.Lat
	lng := r.Geometry.Location.Lng

	photoRef := ""
	if len(r.Photos) > 0 {
		photoRef = r.Photos[0].PhotoReference
	}

	neighborhood := r.component("neighborhood")
	if neighborhood == "" {
		neighborhood = r.component("sublocality")
	}

	return &places.Details{
		PlaceID:          r.PlaceID,
		Name:             r.Name,
		FormattedAddress: r.FormattedAddress,
		Latitude:         &lat,
		Longitude:        &lng,
		City:             r.component("locality"),
		Country:          r.component("country"),
		State:            r.component("administrative_area_level_1"),
		Street:           r.component("route"),
		StreetNumber:     r.component("street_number"),
		Neighborhood:     neighborhood,
		PostalCode:       r.component("postal_code"),
		Website:          r.Website,
		PhoneNumber:      r.PhoneNumber,
		Rating:           r.Rating,
		UserRatingsTotal: r.UserRatingsTotal,
		PriceLevel:       r.PriceLevel,
		Types:            r.Types,
		PhotoReference:   photoRef,
		ReviewCount:      len(r.Reviews),
	}
}
