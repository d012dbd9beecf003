package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<!DOCTYPE html>
<html><body>
<div class="event-card">
  <h2 class="title">Wieczór poezji</h2>
  <time class="date" datetime="2025-09-05T18:00:00">5 września</time>
  <span class="artist">Julia Hartwig</span>
  <span class="artist">Adam Zagajewski</span>
  <span class="where">Mediateka</span>
  <p class="desc">Spotkanie autorskie.</p>
  <a class="more" href="/wydarzenia/wieczor-poezji">więcej</a>
</div>
<div class="event-card">
  <h2 class="title">Koncert kameralny</h2>
  <time class="date" datetime="2025-09-06T19:00:00">6 września</time>
  <span class="where">NFM</span>
  <p class="desc">Kwartet smyczkowy.</p>
  <a class="more" href="/wydarzenia/koncert-kameralny">więcej</a>
</div>
<div class="event-card">
  <h2 class="title"></h2>
  <a class="more" href="/wydarzenia/bez-nazwy">więcej</a>
</div>
</body></html>`

func newCSSTestAdapter(t *testing.T) (*CSSAdapter, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingHTML))
	}))
	t.Cleanup(server.Close)

	cfg := SourceConfig{
		Name:     "kultura-test",
		URL:      server.URL + "/wydarzenia",
		Enabled:  true,
		MaxPages: 2,
		Category: "Kultura",
		Selectors: SelectorConfig{
			EventList:   ".event-card",
			Name:        ".title",
			StartDate:   "time.date",
			Location:    ".where",
			Description: ".desc",
			URL:         "a.more",
			Artists:     ".artist",
		},
	}
	adapter := NewCSSAdapter(cfg, zerolog.Nop())
	adapter.rateLimit = time.Millisecond
	return adapter, server
}

func TestCSSAdapterFetchAndMap(t *testing.T) {
	adapter, server := newCSSTestAdapter(t)

	raws, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	// the card without a name is dropped during collection
	require.Len(t, raws, 2)

	doc, err := adapter.Map(raws[0])
	require.NoError(t, err)
	assert.Equal(t, "Wieczór poezji", doc.EventName)
	assert.Equal(t, "2025-09-05T18:00:00", doc.StartDate)
	assert.Equal(t, "Mediateka", doc.Location)
	assert.Equal(t, "Spotkanie autorskie.", doc.Description)
	// sibling matches are joined, not fused
	assert.Equal(t, "Julia Hartwig, Adam Zagajewski", doc.Artists)
	assert.Equal(t, "Kultura", doc.Category)
	assert.Equal(t, server.URL+"/wydarzenia/wieczor-poezji", doc.URL)
	assert.Equal(t, "kultura-test", doc.Source)
	require.NoError(t, doc.Validate())
}

func TestCSSAdapterMapRejectsIncomplete(t *testing.T) {
	adapter, _ := newCSSTestAdapter(t)

	_, err := adapter.Map([]byte(`{"url":"https://x.pl"}`))
	assert.Error(t, err)

	_, err = adapter.Map([]byte(`{"name":"Koncert"}`))
	assert.Error(t, err)
}
