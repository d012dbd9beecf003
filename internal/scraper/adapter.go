package scraper

import (
	"context"
	"encoding/json"

	"github.com/planzy/server/internal/domain/events"
)

// Adapter is one portal connector. Fetch emits a finite sequence of raw
// records by paging the portal until no further page exists, the per-source
// cap is reached, or a fatal error arrives after partial data — in which case
// it returns what it has alongside the error. Map transforms one raw record
// into the normalized event document; it must be pure and deterministic.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context) ([]json.RawMessage, error)
	Map(raw json.RawMessage) (events.Document, error)
}
