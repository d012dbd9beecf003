package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planzy/server/internal/domain/artists"
	"github.com/planzy/server/internal/domain/tags"
)

// fakeStore is an in-memory Store. WithTx snapshots state and restores it
// when fn fails, mimicking transaction/savepoint rollback.
type fakeStore struct {
	mu          sync.Mutex
	byURL       map[string]*Event
	byID        map[int64]*Event
	artistLinks map[int64]map[int64]struct{}
	tagLinks    map[int64]map[int64]struct{}
	nextID      int64

	failURLs map[string]struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byURL:       make(map[string]*Event),
		byID:        make(map[int64]*Event),
		artistLinks: make(map[int64]map[int64]struct{}),
		tagLinks:    make(map[int64]map[int64]struct{}),
		nextID:      1,
		failURLs:    make(map[string]struct{}),
	}
}

func (f *fakeStore) snapshot() *fakeStore {
	clone := newFakeStore()
	clone.nextID = f.nextID
	for url, ev := range f.byURL {
		copied := *ev
		clone.byURL[url] = &copied
		clone.byID[ev.ID] = &copied
	}
	for id, links := range f.artistLinks {
		inner := make(map[int64]struct{}, len(links))
		for k := range links {
			inner[k] = struct{}{}
		}
		clone.artistLinks[id] = inner
	}
	for id, links := range f.tagLinks {
		inner := make(map[int64]struct{}, len(links))
		for k := range links {
			inner[k] = struct{}{}
		}
		clone.tagLinks[id] = inner
	}
	return clone
}

func (f *fakeStore) restore(from *fakeStore) {
	f.byURL = from.byURL
	f.byID = from.byID
	f.artistLinks = from.artistLinks
	f.tagLinks = from.tagLinks
	f.nextID = from.nextID
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo Store) error) error {
	f.mu.Lock()
	saved := f.snapshot()
	f.mu.Unlock()
	if err := fn(ctx, f); err != nil {
		f.mu.Lock()
		f.restore(saved)
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) ListURLs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	urls := make([]string, 0, len(f.byURL))
	for url := range f.byURL {
		urls = append(urls, url)
	}
	return urls, nil
}

func (f *fakeStore) GetByURL(ctx context.Context, url string) (*Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev, ok := f.byURL[url]; ok {
		copied := *ev
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) Create(ctx context.Context, params CreateParams) (*Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.failURLs[params.URL]; ok {
		return nil, errors.New("simulated insert failure")
	}
	if _, ok := f.byURL[params.URL]; ok {
		return nil, errors.New("duplicate key value violates unique constraint")
	}
	ev := &Event{
		ID:          f.nextID,
		Name:        params.Name,
		StartDate:   params.StartDate,
		EndDate:     params.EndDate,
		Thumbnail:   params.Thumbnail,
		URL:         params.URL,
		Location:    params.Location,
		Category:    params.Category,
		Description: params.Description,
		Source:      params.Source,
		PlaceID:     params.PlaceID,
		CreatedAt:   time.Now(),
	}
	f.nextID++
	f.byURL[params.URL] = ev
	f.byID[ev.ID] = ev
	return ev, nil
}

func (f *fakeStore) UpdateByURL(ctx context.Context, url string, params CreateParams) (*Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.byURL[url]
	if !ok {
		return nil, ErrNotFound
	}
	ev.Name = params.Name
	ev.Category = params.Category
	ev.Description = params.Description
	ev.StartDate = params.StartDate
	ev.EndDate = params.EndDate
	ev.UpdatedAt = time.Now()
	copied := *ev
	return &copied, nil
}

func (f *fakeStore) GetByIDs(ctx context.Context, ids []int64) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, id := range ids {
		if ev, ok := f.byID[id]; ok {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (f *fakeStore) LinkedArtistIDs(ctx context.Context, eventID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for id := range f.artistLinks[eventID] {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeStore) LinkArtists(ctx context.Context, eventID int64, artistIDs []int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.artistLinks[eventID] == nil {
		f.artistLinks[eventID] = make(map[int64]struct{})
	}
	var inserted int64
	for _, id := range artistIDs {
		if _, ok := f.artistLinks[eventID][id]; ok {
			continue
		}
		f.artistLinks[eventID][id] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (f *fakeStore) LinkedTagIDs(ctx context.Context, eventID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for id := range f.tagLinks[eventID] {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeStore) LinkTags(ctx context.Context, eventID int64, tagIDs []int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tagLinks[eventID] == nil {
		f.tagLinks[eventID] = make(map[int64]struct{})
	}
	var inserted int64
	for _, id := range tagIDs {
		if _, ok := f.tagLinks[eventID][id]; ok {
			continue
		}
		f.tagLinks[eventID][id] = struct{}{}
		inserted++
	}
	return inserted, nil
}

// in-memory registry repos

type memArtistRepo struct {
	mu     sync.Mutex
	rows   map[string]int64
	nextID int64
}

func (m *memArtistRepo) FindByNames(ctx context.Context, names []string) ([]artists.Artist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []artists.Artist
	for _, name := range names {
		if id, ok := m.rows[name]; ok {
			out = append(out, artists.Artist{ID: id, Name: name})
		}
	}
	return out, nil
}

func (m *memArtistRepo) CreateMany(ctx context.Context, names []string) ([]artists.Artist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []artists.Artist
	for _, name := range names {
		if _, ok := m.rows[name]; ok {
			continue
		}
		m.rows[name] = m.nextID
		out = append(out, artists.Artist{ID: m.nextID, Name: name})
		m.nextID++
	}
	return out, nil
}

type memTagRepo struct {
	mu     sync.Mutex
	rows   map[string]int64
	nextID int64
}

func (m *memTagRepo) FindByNames(ctx context.Context, names []string) ([]tags.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tags.Tag
	for _, name := range names {
		if id, ok := m.rows[name]; ok {
			out = append(out, tags.Tag{ID: id, Name: name})
		}
	}
	return out, nil
}

func (m *memTagRepo) CreateMany(ctx context.Context, names []string) ([]tags.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tags.Tag
	for _, name := range names {
		if _, ok := m.rows[name]; ok {
			continue
		}
		m.rows[name] = m.nextID
		out = append(out, tags.Tag{ID: m.nextID, Name: name})
		m.nextID++
	}
	return out, nil
}

func newTestIntegrator(store *fakeStore, cfg IntegratorConfig) (*Integrator, *memArtistRepo, *memTagRepo) {
	artistRepo := &memArtistRepo{rows: make(map[string]int64), nextID: 1}
	tagRepo := &memTagRepo{rows: make(map[string]int64), nextID: 1}
	integrator := NewIntegrator(
		store,
		artists.NewRegistry(artistRepo),
		tags.NewRegistry(tagRepo),
		nil, // venue enrichment disabled
		cfg,
		zerolog.Nop(),
	)
	return integrator, artistRepo, tagRepo
}

func doc(url, name string) Document {
	return Document{
		EventName: name,
		StartDate: "1735689600",
		EndDate:   "1735696800",
		URL:       url,
		Location:  "Warszawa",
		Category:  "muzyka",
		Source:    "ebilet",
	}
}

func TestProcessAllCreatesEventsWithRelationships(t *testing.T) {
	store := newFakeStore()
	integrator, _, _ := newTestIntegrator(store, IntegratorConfig{})

	d := doc("https://example.com/e/1", "Koncert")
	d.Artists = "Dawid Podsiadło, sanah"
	d.Tags = "Rock Alternatywny, rock-alternatywny, Pop"

	stats, err := integrator.ProcessAll(context.Background(), []Document{d})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Zero(t, stats.Failed)

	ev, err := store.GetByURL(context.Background(), "https://example.com/e/1")
	require.NoError(t, err)
	assert.Equal(t, "Koncert", ev.Name)
	assert.Len(t, store.artistLinks[ev.ID], 2)
	// the two alternative spellings normalize to one tag
	assert.Len(t, store.tagLinks[ev.ID], 2)
}

func TestProcessAllIdempotent(t *testing.T) {
	store := newFakeStore()
	docs := []Document{doc("https://example.com/e/1", "A"), doc("https://example.com/e/2", "B")}
	docs[0].Artists = "sanah"
	docs[0].Tags = "pop"

	integrator, _, _ := newTestIntegrator(store, IntegratorConfig{})
	first, err := integrator.ProcessAll(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	eventsAfterFirst := len(store.byURL)
	linksAfterFirst := len(store.artistLinks[1])

	second, err := integrator.ProcessAll(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Skipped)
	assert.Zero(t, second.Created)
	assert.Equal(t, eventsAfterFirst, len(store.byURL))
	assert.Equal(t, linksAfterFirst, len(store.artistLinks[1]))
}

func TestProcessAllPrimesSeenSetFromDatabase(t *testing.T) {
	store := newFakeStore()
	_, err := store.Create(context.Background(), CreateParams{Name: "old", URL: "https://example.com/e/1", Source: "ebilet"})
	require.NoError(t, err)

	integrator, _, _ := newTestIntegrator(store, IntegratorConfig{})
	stats, err := integrator.ProcessAll(context.Background(), []Document{doc("https://example.com/e/1", "new")})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)

	ev, err := store.GetByURL(context.Background(), "https://example.com/e/1")
	require.NoError(t, err)
	assert.Equal(t, "old", ev.Name)
}

func TestProcessAllSkipsMissingURL(t *testing.T) {
	store := newFakeStore()
	integrator, _, _ := newTestIntegrator(store, IntegratorConfig{})

	d := doc("", "Koncert")
	stats, err := integrator.ProcessAll(context.Background(), []Document{d})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, store.byURL)
}

func TestProcessAllDefaultsNullTimestamps(t *testing.T) {
	store := newFakeStore()
	integrator, _, _ := newTestIntegrator(store, IntegratorConfig{})

	d := doc("https://example.com/e/1", "Koncert")
	d.StartDate = "null"
	d.EndDate = "null"

	before := time.Now().UTC().Add(-time.Minute)
	stats, err := integrator.ProcessAll(context.Background(), []Document{d})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Defaulted)

	ev, err := store.GetByURL(context.Background(), "https://example.com/e/1")
	require.NoError(t, err)
	assert.True(t, ev.StartDate.After(before))
	assert.InDelta(t, time.Hour.Seconds(), ev.EndDate.Sub(ev.StartDate).Seconds(), 60)
}

func TestDocumentFailureDoesNotPoisonChunk(t *testing.T) {
	store := newFakeStore()
	store.failURLs["https://example.com/e/2"] = struct{}{}
	integrator, _, _ := newTestIntegrator(store, IntegratorConfig{ChunkSize: 10})

	docs := []Document{
		doc("https://example.com/e/1", "A"),
		doc("https://example.com/e/2", "B"),
		doc("https://example.com/e/3", "C"),
	}
	stats, err := integrator.ProcessAll(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.Failed)
	assert.Len(t, store.byURL, 2)
}

func TestUpdateExistingOverwrites(t *testing.T) {
	store := newFakeStore()
	first, _, _ := newTestIntegrator(store, IntegratorConfig{})
	_, err := first.ProcessAll(context.Background(), []Document{doc("https://example.com/e/1", "old name")})
	require.NoError(t, err)

	updater, _, _ := newTestIntegrator(store, IntegratorConfig{UpdateExisting: true})
	d := doc("https://example.com/e/1", "new name")
	stats, err := updater.ProcessAll(context.Background(), []Document{d})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)

	ev, err := store.GetByURL(context.Background(), "https://example.com/e/1")
	require.NoError(t, err)
	assert.Equal(t, "new name", ev.Name)
	assert.Len(t, store.byURL, 1)
}

func TestProcessBatchDefersTrailingChunks(t *testing.T) {
	store := newFakeStore()
	integrator, _, _ := newTestIntegrator(store, IntegratorConfig{ChunkSize: 1, Tick: 10 * time.Millisecond})

	docs := []Document{
		doc("https://example.com/e/1", "A"),
		doc("https://example.com/e/2", "B"),
		doc("https://example.com/e/3", "C"),
	}
	stats, err := integrator.ProcessBatch(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 2, integrator.PendingChunks())

	// the tick loop drains the queue
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = integrator.Run(ctx)
	assert.Zero(t, integrator.PendingChunks())
	assert.Len(t, store.byURL, 3)
}

func TestDocumentValidation(t *testing.T) {
	store := newFakeStore()
	integrator, _, _ := newTestIntegrator(store, IntegratorConfig{})

	// invalid URL scheme fails validation, not the chunk
	d := Document{EventName: "Koncert", URL: "not a url", Source: "ebilet"}
	stats, err := integrator.ProcessAll(context.Background(), []Document{d})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
}
