// Package embedding computes dense vector representations for events via an
// external embedding provider and serves nearest-neighbour queries over them.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/planzy/server/internal/metrics"
	"github.com/planzy/server/internal/resilience"
)

const breakerName = "openai-embeddings"

const (
	// DefaultBaseURL is the OpenAI-compatible API root
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel used when none is configured
	DefaultModel = "text-embedding-3-small"
	// DefaultDimensions of the stored vectors
	DefaultDimensions = 1536
	// DefaultTimeout for HTTP requests; embedding batches can be slow
	DefaultTimeout = 60 * time.Second
	// MaxRetries for transient errors
	MaxRetries = 3
	// RetryBaseDelay is the initial backoff delay
	RetryBaseDelay = time.Second
)

var (
	// ErrProviderUnavailable is returned when the provider cannot be reached:
	// circuit open, retries exhausted, rate limits.
	ErrProviderUnavailable = errors.New("embedding: provider unavailable")
	// ErrDimensionMismatch is returned when the provider answers with vectors
	// of the wrong width. This is a deployment misconfiguration, not a
	// transient fault, and must surface to the operator.
	ErrDimensionMismatch = errors.New("embedding: dimension mismatch")
)

// Provider turns texts into vectors. Result order matches input order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Client is an OpenAI-compatible embeddings client with bounded retries and a
// circuit breaker. It implements Provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	breaker    *gobreaker.CircuitBreaker[*embeddingResponse]
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

// WithModel sets the embedding model and vector dimensions.
func WithModel(model string, dimensions int) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
		if dimensions > 0 {
			c.dimensions = dimensions
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
		c.breaker = resilience.NewBreaker[*embeddingResponse](breakerName, cfg)
	}
}

// NewClient creates an embeddings client authenticating with a bearer token.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      DefaultModel,
		dimensions: DefaultDimensions,
		breaker:    resilience.NewBreaker[*embeddingResponse](breakerName, resilience.DefaultBreakerConfig()),
		maxRetries: MaxRetries,
		retryBase:  RetryBaseDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Dimensions returns the configured vector width.
func (c *Client) Dimensions() int { return c.dimensions }

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage *usage          `json:"usage"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed requests one vector per input text. Vectors are returned in input
// order regardless of the order the provider answers in.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	parsed, err := c.breaker.Execute(func() (*embeddingResponse, error) {
		return c.doWithRetry(ctx, embeddingRequest{
			Model:      c.model,
			Input:      texts,
			Dimensions: c.dimensions,
		})
	})
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrProviderUnavailable)
		}
		if resilience.IsTransient(err) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil, err
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("success").Inc()

	if parsed.Usage != nil {
		metrics.EmbeddingTokensTotal.Add(float64(parsed.Usage.PromptTokens))
		log.Debug().
			Int("prompt_tokens", parsed.Usage.PromptTokens).
			Int("total_tokens", parsed.Usage.TotalTokens).
			Int("texts", len(texts)).
			Msg("embedding: provider usage")
	}

	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d texts", len(parsed.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding: vector index %d out of range", d.Index)
		}
		if len(d.Embedding) != c.dimensions {
			return nil, fmt.Errorf("%w: want %d floats, got %d", ErrDimensionMismatch, c.dimensions, len(d.Embedding))
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embedding: provider returned no vector for input %d", i)
		}
	}
	return vectors, nil
}

func (c *Client) doWithRetry(ctx context.Context, reqBody embeddingRequest) (*embeddingResponse, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryBase * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
			var detail apiError
			_ = json.Unmarshal(body, &detail)
			return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, detail.Error.Message)
		}

		var parsed embeddingResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		return &parsed, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
