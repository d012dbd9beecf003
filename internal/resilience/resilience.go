// Package resilience carries the retry/breaker policy pieces shared by the
// outbound API clients, so thresholds live in one place instead of at every
// call site.
package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/planzy/server/internal/metrics"
)

// transientError marks failures worth retrying: network trouble, 5xx, rate
// limits, provider quota pushback. Only these count against a breaker.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps a formatted error as retryable.
func Transient(format string, args ...any) error {
	return &transientError{err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err (or anything it wraps) was marked by
// Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	// FailureRatePct opens the circuit when reached (with MinRequests seen).
	FailureRatePct int
	// MinRequests is the statistical floor before the breaker may trip.
	MinRequests uint32
	// Window is the closed-state interval over which counts accumulate; an
	// approximation of a sliding call window.
	Window time.Duration
	// OpenWait is how long the circuit stays open before half-open.
	OpenWait time.Duration
	// HalfOpenProbes bounds concurrent requests in half-open state.
	HalfOpenProbes uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureRatePct: 50,
		MinRequests:    10,
		Window:         time.Minute,
		OpenWait:       30 * time.Second,
		HalfOpenProbes: 10,
	}
}

// NewBreaker builds a circuit breaker wired to the breaker metrics under the
// given provider name. Permanent errors (auth, bad request) do not count as
// failures; only transient trouble indicates provider health.
func NewBreaker[T any](name string, cfg BreakerConfig) *gobreaker.CircuitBreaker[T] {
	metrics.BreakerState.WithLabelValues(name).Set(0) // 0 = closed

	threshold := float64(cfg.FailureRatePct) / 100

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenProbes,
		Interval:    cfg.Window,
		Timeout:     cfg.OpenWait,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= threshold
		},

		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			log.Warn().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("resilience: breaker state change")
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.BreakerTransitionsTotal.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
