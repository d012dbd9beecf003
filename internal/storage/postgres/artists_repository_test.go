package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planzy/server/internal/domain/artists"
)

func TestArtistRepositoryCreateManySkipsExisting(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewArtistRepository(pool)

	created, err := repo.CreateMany(ctx, []string{"Nosowska", "Brodka"})
	require.NoError(t, err)
	require.Len(t, created, 2)

	more, err := repo.CreateMany(ctx, []string{"Nosowska", "Smolik"})
	require.NoError(t, err)
	require.Len(t, more, 1)
	assert.Equal(t, "Smolik", more[0].Name)
}

func TestArtistRepositoryFindByNamesKeepsCasing(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewArtistRepository(pool)

	_, err := repo.CreateMany(ctx, []string{"Dawid Podsiadło"})
	require.NoError(t, err)

	// artist names match case-sensitively, unlike tags
	found, err := repo.FindByNames(ctx, []string{"dawid podsiadło"})
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = repo.FindByNames(ctx, []string{"Dawid Podsiadło"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Dawid Podsiadło", found[0].Name)
}

func TestArtistRegistryAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	registry := artists.NewRegistry(NewArtistRepository(pool))

	resolved, err := registry.FindOrCreateByName(ctx, []string{"Nosowska", " Brodka ", ""})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Contains(t, resolved, "Nosowska")
	assert.Contains(t, resolved, "Brodka")
}
