package events

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/planzy/server/internal/domain/places"
)

var (
	ErrNotFound        = errors.New("events: not found")
	ErrInvalidArgument = errors.New("events: invalid argument")
)

// Event is a persisted event row. The embedding column is deliberately
// absent: vectors are read and written only by native SQL in the embedding
// package, never through this struct.
type Event struct {
	ID          int64
	Name        string
	StartDate   time.Time
	EndDate     time.Time
	Thumbnail   string
	URL         string
	Location    string
	Category    string
	Description string
	Source      string
	PlaceID     *string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Hydrated relations, populated by GetByIDs on the read path.
	Venue   *places.Venue
	Artists []string
	Tags    []string
}

// Document is the normalized event document every adapter emits; the single
// contract between scraping and integration. Timestamp fields hold epoch
// seconds as decimal digits (milliseconds tolerated), or "null".
type Document struct {
	EventName   string `json:"event_name" validate:"required"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Thumbnail   string `json:"thumbnail"`
	URL         string `json:"url" validate:"required,url"`
	Location    string `json:"location"`
	Place       string `json:"place"`
	Category    string `json:"category"`
	Tags        string `json:"tags"`
	Artists     string `json:"artists"`
	Description string `json:"description"`
	Source      string `json:"source" validate:"required"`
}

var documentValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the document carries the fields integration cannot proceed
// without: a name, a canonical URL and a source identifier.
func (d Document) Validate() error {
	if err := documentValidator.Struct(d); err != nil {
		return errors.Join(ErrInvalidArgument, err)
	}
	return nil
}

type CreateParams struct {
	Name        string
	StartDate   time.Time
	EndDate     time.Time
	Thumbnail   string
	URL         string
	Location    string
	Category    string
	Description string
	Source      string
	PlaceID     *string
}
