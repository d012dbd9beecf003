package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	pgvector "github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planzy/server/internal/domain/events"
)

type fakeIndex struct {
	ids      []int64
	err      error
	gotLimit int
}

func (f *fakeIndex) SimilarIDs(_ context.Context, _ pgvector.Vector, limit int) ([]int64, error) {
	f.gotLimit = limit
	return f.ids, f.err
}

// fakeEventReader implements the slice of events.Repository the similarity
// service touches; every other method panics to catch accidental use.
type fakeEventReader struct {
	events.Repository
	byID map[int64]events.Event
}

func (f *fakeEventReader) GetByIDs(_ context.Context, ids []int64) ([]events.Event, error) {
	// deliberately return in reverse id order: hydration order must not leak
	// into results
	var out []events.Event
	for i := len(ids) - 1; i >= 0; i-- {
		if ev, ok := f.byID[ids[i]]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func futureEvent(id int64) events.Event {
	placeID := "ChIJabc"
	return events.Event{
		ID:        id,
		Name:      "Wydarzenie",
		StartDate: time.Now().Add(24 * time.Hour),
		PlaceID:   &placeID,
	}
}

func newTestSimilarity(index *fakeIndex, reader *fakeEventReader, provider Provider) *Similarity {
	return NewSimilarity(index, reader, provider, zerolog.Nop())
}

func TestFindSimilarPreservesVectorOrder(t *testing.T) {
	index := &fakeIndex{ids: []int64{2, 1, 3}}
	reader := &fakeEventReader{byID: map[int64]events.Event{
		1: futureEvent(1),
		2: futureEvent(2),
		3: futureEvent(3),
	}}

	result, err := newTestSimilarity(index, reader, &stubProvider{}).
		FindSimilar(context.Background(), "koncert rockowy", 3)
	require.NoError(t, err)

	require.Len(t, result, 3)
	assert.Equal(t, int64(2), result[0].ID)
	assert.Equal(t, int64(1), result[1].ID)
	assert.Equal(t, int64(3), result[2].ID)
}

func TestFindSimilarEmptyQuery(t *testing.T) {
	svc := newTestSimilarity(&fakeIndex{}, &fakeEventReader{}, &stubProvider{})

	_, err := svc.FindSimilar(context.Background(), "   ", 5)
	assert.ErrorIs(t, err, events.ErrInvalidArgument)
}

func TestFindSimilarEmptyResult(t *testing.T) {
	svc := newTestSimilarity(&fakeIndex{}, &fakeEventReader{}, &stubProvider{})

	result, err := svc.FindSimilar(context.Background(), "koncert", 5)
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestFindSimilarFiltersPastAndVenueless(t *testing.T) {
	past := futureEvent(2)
	past.StartDate = time.Now().Add(-time.Hour)
	noVenue := futureEvent(3)
	noVenue.PlaceID = nil

	index := &fakeIndex{ids: []int64{1, 2, 3}}
	reader := &fakeEventReader{byID: map[int64]events.Event{
		1: futureEvent(1),
		2: past,
		3: noVenue,
	}}

	result, err := newTestSimilarity(index, reader, &stubProvider{}).
		FindSimilar(context.Background(), "koncert", 3)
	require.NoError(t, err)

	require.Len(t, result, 1)
	assert.Equal(t, int64(1), result[0].ID)
}

func TestFindSimilarDefaultLimit(t *testing.T) {
	index := &fakeIndex{}
	svc := newTestSimilarity(index, &fakeEventReader{}, &stubProvider{})

	_, err := svc.FindSimilar(context.Background(), "koncert", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultSearchLimit, index.gotLimit)
}

func TestFindSimilarProviderError(t *testing.T) {
	provider := &stubProvider{errOn: 1, err: errors.New("provider down")}
	svc := newTestSimilarity(&fakeIndex{}, &fakeEventReader{}, provider)

	_, err := svc.FindSimilar(context.Background(), "koncert", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed query")
}

func TestFindSimilarSkipsVanishedEvents(t *testing.T) {
	// id 2 ranked but deleted between search and hydration
	index := &fakeIndex{ids: []int64{1, 2}}
	reader := &fakeEventReader{byID: map[int64]events.Event{1: futureEvent(1)}}

	result, err := newTestSimilarity(index, reader, &stubProvider{}).
		FindSimilar(context.Background(), "koncert", 2)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, int64(1), result[0].ID)
}
