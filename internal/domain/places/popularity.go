package places

import "math"

// Anchor for the rating-volume confidence curve: a venue with ~500 ratings
// is treated as fully established.
const confidenceAnchor = 500

// Popularity computes a Bayesian-adjusted popularity score in [0,100] from a
// Google rating (0-5) and its rating count. Venues with few ratings are
// pulled toward the 4.0-star prior; the score grows with both rating and
// volume. A nil rating scores 0.
func Popularity(rating *float64, totalRatings int) float64 {
	if rating == nil {
		return 0
	}
	if totalRatings < 0 {
		totalRatings = 0
	}

	normalized := *rating / 5.0
	confidence := math.Log(1+float64(totalRatings)) / math.Log(1+confidenceAnchor)
	if confidence > 1 {
		confidence = 1
	}

	bayes := normalized*confidence + 0.8*(1-confidence)
	return (0.7*bayes + 0.3*confidence) * 100
}
