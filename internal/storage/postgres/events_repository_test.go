package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planzy/server/internal/domain/events"
)

func TestEventRepositoryCreateAndGetByURL(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewEventRepository(pool)

	params := eventParams("Nosowska", "https://www.ebilet.pl/muzyka/pop/nosowska")
	created, err := repo.Create(ctx, params)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, params.Name, created.Name)
	assert.True(t, params.StartDate.Equal(created.StartDate))
	assert.False(t, created.CreatedAt.IsZero())

	fetched, err := repo.GetByURL(ctx, params.URL)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "Muzyka", fetched.Category)
	assert.Nil(t, fetched.PlaceID)

	_, err = repo.GetByURL(ctx, "https://www.ebilet.pl/nie-ma")
	assert.ErrorIs(t, err, events.ErrNotFound)
}

func TestEventRepositoryListURLs(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewEventRepository(pool)

	_, err := repo.Create(ctx, eventParams("A", "https://a.pl/1"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, eventParams("B", "https://b.pl/1"))
	require.NoError(t, err)

	urls, err := repo.ListURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.pl/1", "https://b.pl/1"}, urls)
}

func TestEventRepositoryUpdateInvalidatesEmbedding(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewEventRepository(pool)
	vectors := NewVectorRepository(pool)

	params := eventParams("Koncert", "https://a.pl/koncert")
	created, err := repo.Create(ctx, params)
	require.NoError(t, err)
	require.NoError(t, vectors.StoreVector(ctx, created.ID, unitVector(0)))

	missing, err := vectors.CountMissing(ctx)
	require.NoError(t, err)
	require.Zero(t, missing)

	// moving the date alone keeps the vector
	moved := params
	moved.StartDate = params.StartDate.AddDate(0, 0, 7)
	moved.EndDate = params.EndDate.AddDate(0, 0, 7)
	_, err = repo.UpdateByURL(ctx, params.URL, moved)
	require.NoError(t, err)

	missing, err = vectors.CountMissing(ctx)
	require.NoError(t, err)
	assert.Zero(t, missing)

	// renaming changes the embedded text, so the vector is dropped
	renamed := moved
	renamed.Name = "Koncert specjalny"
	updated, err := repo.UpdateByURL(ctx, params.URL, renamed)
	require.NoError(t, err)
	assert.Equal(t, "Koncert specjalny", updated.Name)

	missing, err = vectors.CountMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, missing)
}

func TestEventRepositoryUpdateUnknownURL(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewEventRepository(pool)

	_, err := repo.UpdateByURL(ctx, "https://a.pl/nie-ma", eventParams("X", "https://a.pl/nie-ma"))
	assert.ErrorIs(t, err, events.ErrNotFound)
}

func TestEventRepositoryGetByIDsHydrates(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewEventRepository(pool)

	insertPlace(t, ctx, pool, "ChIJstodola", "Klub Stodoła", "Warszawa")

	params := eventParams("Nosowska", "https://a.pl/nosowska")
	placeID := "ChIJstodola"
	params.PlaceID = &placeID
	created, err := repo.Create(ctx, params)
	require.NoError(t, err)

	bare, err := repo.Create(ctx, eventParams("Bez sali", "https://a.pl/bez-sali"))
	require.NoError(t, err)

	artistRepo := NewArtistRepository(pool)
	made, err := artistRepo.CreateMany(ctx, []string{"Nosowska", "Smolik"})
	require.NoError(t, err)
	artistIDs := []int64{made[0].ID, made[1].ID}
	inserted, err := repo.LinkArtists(ctx, created.ID, artistIDs)
	require.NoError(t, err)
	require.EqualValues(t, 2, inserted)

	tagRepo := NewTagRepository(pool)
	tagsMade, err := tagRepo.CreateMany(ctx, []string{"pop", "rock alternatywny"})
	require.NoError(t, err)
	_, err = repo.LinkTags(ctx, created.ID, []int64{tagsMade[0].ID, tagsMade[1].ID})
	require.NoError(t, err)

	hydrated, err := repo.GetByIDs(ctx, []int64{created.ID, bare.ID})
	require.NoError(t, err)
	require.Len(t, hydrated, 2)

	byID := make(map[int64]events.Event, len(hydrated))
	for _, ev := range hydrated {
		byID[ev.ID] = ev
	}

	full := byID[created.ID]
	require.NotNil(t, full.Venue)
	assert.Equal(t, "Klub Stodoła", full.Venue.NameGoogle)
	assert.Equal(t, "Warszawa", full.Venue.City)
	assert.Equal(t, []string{"Nosowska", "Smolik"}, full.Artists)
	assert.Equal(t, []string{"pop", "rock alternatywny"}, full.Tags)

	assert.Nil(t, byID[bare.ID].Venue)
	assert.Empty(t, byID[bare.ID].Artists)
}

func TestEventRepositoryLinkingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewEventRepository(pool)

	created, err := repo.Create(ctx, eventParams("Koncert", "https://a.pl/koncert"))
	require.NoError(t, err)

	artistRepo := NewArtistRepository(pool)
	made, err := artistRepo.CreateMany(ctx, []string{"Brodka"})
	require.NoError(t, err)

	inserted, err := repo.LinkArtists(ctx, created.ID, []int64{made[0].ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, inserted)

	// replay loses the race on purpose and reports zero rows
	inserted, err = repo.LinkArtists(ctx, created.ID, []int64{made[0].ID})
	require.NoError(t, err)
	assert.Zero(t, inserted)

	ids, err := repo.LinkedArtistIDs(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{made[0].ID}, ids)
}

func TestEventRepositoryWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewEventRepository(pool)

	sentinel := errors.New("boom")
	err := repo.WithTx(ctx, func(ctx context.Context, txRepo events.Store) error {
		if _, err := txRepo.Create(ctx, eventParams("Znika", "https://a.pl/znika")); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = repo.GetByURL(ctx, "https://a.pl/znika")
	assert.ErrorIs(t, err, events.ErrNotFound)
}

func TestEventRepositoryNestedWithTxUsesSavepoint(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewEventRepository(pool)

	sentinel := errors.New("bad document")
	err := repo.WithTx(ctx, func(ctx context.Context, outer events.Store) error {
		if _, err := outer.Create(ctx, eventParams("Zostaje", "https://a.pl/zostaje")); err != nil {
			return err
		}

		// inner failure rolls back to the savepoint only
		innerErr := outer.WithTx(ctx, func(ctx context.Context, inner events.Store) error {
			if _, err := inner.Create(ctx, eventParams("Znika", "https://a.pl/znika")); err != nil {
				return err
			}
			return sentinel
		})
		require.ErrorIs(t, innerErr, sentinel)

		// the outer transaction is still usable after the rollback
		_, err := outer.Create(ctx, eventParams("Też zostaje", "https://a.pl/tez-zostaje"))
		return err
	})
	require.NoError(t, err)

	urls, err := repo.ListURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.pl/tez-zostaje", "https://a.pl/zostaje"}, urls)
}

func TestEventRepositoryGetByIDsEmpty(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewEventRepository(pool)

	hydrated, err := repo.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, hydrated)
}

func unitVector(dim int) pgvector.Vector {
	values := make([]float32, 1536)
	values[dim] = 1
	return pgvector.NewVector(values)
}
