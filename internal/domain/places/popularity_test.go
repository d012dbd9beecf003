package places

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ratingPtr(v float64) *float64 { return &v }

func TestPopularityNilRating(t *testing.T) {
	assert.Zero(t, Popularity(nil, 1000))
}

func TestPopularityBounds(t *testing.T) {
	cases := []struct {
		rating float64
		total  int
	}{
		{0, 0}, {0, 100000}, {5, 0}, {5, 100000}, {2.5, 50}, {4.0, 500},
	}
	for _, c := range cases {
		score := Popularity(ratingPtr(c.rating), c.total)
		assert.GreaterOrEqual(t, score, 0.0, "rating=%v total=%d", c.rating, c.total)
		assert.LessOrEqual(t, score, 100.0, "rating=%v total=%d", c.rating, c.total)
	}
}

func TestPopularityWellRatedVenue(t *testing.T) {
	// rating=4.6 over 1200 reviews must land in [80, 95]
	score := Popularity(ratingPtr(4.6), 1200)
	confidence := math.Log(1201) / math.Log(501)
	if confidence > 1 {
		confidence = 1
	}
	bayes := 0.92*confidence + 0.8*(1-confidence)
	expected := (0.7*bayes + 0.3*confidence) * 100
	assert.InDelta(t, expected, score, 1e-9)
	assert.GreaterOrEqual(t, score, 80.0)
	assert.LessOrEqual(t, score, 95.0)
}

func TestPopularityMonotoneInRating(t *testing.T) {
	prev := -1.0
	for rating := 0.0; rating <= 5.0; rating += 0.5 {
		score := Popularity(ratingPtr(rating), 200)
		assert.GreaterOrEqual(t, score, prev)
		prev = score
	}
}

func TestPopularityMonotoneInVolumeAboveprior(t *testing.T) {
	// with rating above the 4.0 prior, more ratings can only help
	prev := -1.0
	for _, total := range []int{0, 10, 50, 100, 500, 2000} {
		score := Popularity(ratingPtr(4.5), total)
		assert.GreaterOrEqual(t, score, prev, "total=%d", total)
		prev = score
	}
}

func TestPopularityFewRatingsPulledToPrior(t *testing.T) {
	// a single 5-star rating should not outrank an established 4.5 venue
	newcomer := Popularity(ratingPtr(5.0), 1)
	established := Popularity(ratingPtr(4.5), 1200)
	assert.Less(t, newcomer, established)
}
