package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(Transient("boom")))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", Transient("inner"))))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(nil))
}

func TestBreakerIgnoresPermanentErrors(t *testing.T) {
	breaker := NewBreaker[int]("test-permanent", BreakerConfig{
		FailureRatePct: 50,
		MinRequests:    5,
		Window:         time.Minute,
		OpenWait:       30 * time.Second,
		HalfOpenProbes: 1,
	})

	// permanent failures never trip the circuit
	for range 20 {
		_, err := breaker.Execute(func() (int, error) {
			return 0, errors.New("permanent")
		})
		require.Error(t, err)
		require.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
	assert.Equal(t, gobreaker.StateClosed, breaker.State())
}

func TestBreakerTripsOnTransientErrors(t *testing.T) {
	breaker := NewBreaker[int]("test-transient", BreakerConfig{
		FailureRatePct: 50,
		MinRequests:    5,
		Window:         time.Minute,
		OpenWait:       30 * time.Second,
		HalfOpenProbes: 1,
	})

	for range 5 {
		_, _ = breaker.Execute(func() (int, error) {
			return 0, Transient("unreachable")
		})
	}
	assert.Equal(t, gobreaker.StateOpen, breaker.State())

	_, err := breaker.Execute(func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
