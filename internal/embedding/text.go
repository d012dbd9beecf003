package embedding

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/planzy/server/internal/domain/events"
	"github.com/planzy/server/internal/sanitize"
)

// descriptionLimit bounds how much of the description enters the embedding
// text so it cannot overwhelm the weighted fields above it.
const descriptionLimit = 1000

// ComposeEventText builds the embedding input for one event. The text is
// intentionally redundant: the name is repeated and artists get a synonym
// line, which biases cosine similarity toward name and artist matches.
// Unavailable fields are omitted; field order is fixed.
func ComposeEventText(ev events.Event) string {
	var b strings.Builder

	if name := sanitize.EmbeddingText(ev.Name); name != "" {
		fmt.Fprintf(&b, "Event: %s. Title: %s. ", name, name)
	}
	if category := sanitize.EmbeddingText(ev.Category); category != "" {
		fmt.Fprintf(&b, "Category: %s. ", category)
	}
	if artists := sanitize.EmbeddingText(strings.Join(ev.Artists, ", ")); artists != "" {
		fmt.Fprintf(&b, "Artists: %s. Performers: %s. ", artists, artists)
	}
	if tags := sanitize.EmbeddingText(strings.Join(ev.Tags, ", ")); tags != "" {
		fmt.Fprintf(&b, "Tags: %s. ", tags)
	}
	if location := sanitize.EmbeddingText(ev.Location); location != "" {
		fmt.Fprintf(&b, "Location: %s. ", location)
	}

	if ev.Venue != nil {
		writeVenueBlock(&b, ev)
	}

	if !ev.StartDate.IsZero() {
		fmt.Fprintf(&b, "Time: %s. ", timeContext(ev.StartDate))
	}

	if description := sanitize.EmbeddingText(ev.Description); description != "" {
		fmt.Fprintf(&b, "Description: %s", sanitize.TruncateRunes(description, descriptionLimit))
	}

	return strings.TrimSpace(b.String())
}

func writeVenueBlock(b *strings.Builder, ev events.Event) {
	venue := ev.Venue

	if types := sanitize.EmbeddingText(strings.Join(venue.PlaceTypes, ", ")); types != "" {
		fmt.Fprintf(b, "Venue Type: %s. ", types)
	}

	if venue.Rating != nil {
		fmt.Fprintf(b, "Venue Rating: %s stars", strconv.FormatFloat(*venue.Rating, 'g', -1, 64))
		if venue.UserRatingsTotal != nil && *venue.UserRatingsTotal > 0 {
			fmt.Fprintf(b, " based on %d reviews", *venue.UserRatingsTotal)
		}
		b.WriteString(". ")
	}

	if venue.PopularityScore != nil {
		score := *venue.PopularityScore
		b.WriteString("Venue Popularity: ")
		b.WriteString(popularityPhrase(score))
		if city := sanitize.EmbeddingText(venue.City); city != "" {
			b.WriteString(", ")
			b.WriteString(cityPhrase(score, city))
		}
		b.WriteString(". ")
	}
}

// popularityPhrase buckets the score into a coarse phrase the embedding model
// can latch onto.
func popularityPhrase(score float64) string {
	switch {
	case score >= 90:
		return "extremely popular venue"
	case score >= 80:
		return "highly popular venue"
	case score >= 70:
		return "very popular venue"
	case score >= 50:
		return "popular venue"
	default:
		return "venue with moderate popularity"
	}
}

func cityPhrase(score float64, city string) string {
	switch {
	case score >= 85:
		return "top-rated venue in " + city
	case score >= 70:
		return "well-known venue in " + city
	default:
		return "venue in " + city
	}
}

// timeContext describes when the event happens in coarse terms: weekday or
// weekend, time of day, season. Improves temporal matching for queries like
// "something for saturday evening".
func timeContext(t time.Time) string {
	var parts [3]string

	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		parts[0] = "weekend"
	default:
		parts[0] = "weekday"
	}

	switch hour := t.Hour(); {
	case hour >= 5 && hour < 12:
		parts[1] = "morning"
	case hour >= 12 && hour < 17:
		parts[1] = "afternoon"
	case hour >= 17 && hour < 21:
		parts[1] = "evening"
	default:
		parts[1] = "night"
	}

	switch t.Month() {
	case time.December, time.January, time.February:
		parts[2] = "winter"
	case time.March, time.April, time.May:
		parts[2] = "spring"
	case time.June, time.July, time.August:
		parts[2] = "summer"
	default:
		parts[2] = "autumn"
	}

	return parts[0] + " " + parts[1] + " " + parts[2]
}
