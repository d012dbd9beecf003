package events

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkerIdempotent(t *testing.T) {
	store := newFakeStore()
	linker := NewLinker(zerolog.Nop())

	require.NoError(t, linker.LinkArtists(context.Background(), store, 1, []int64{10, 20}))
	require.NoError(t, linker.LinkArtists(context.Background(), store, 1, []int64{10, 20}))

	assert.Len(t, store.artistLinks[1], 2)
}

func TestLinkerAddsOnlyMissingPairs(t *testing.T) {
	store := newFakeStore()
	_, err := store.LinkArtists(context.Background(), 1, []int64{10})
	require.NoError(t, err)

	linker := NewLinker(zerolog.Nop())
	require.NoError(t, linker.LinkArtists(context.Background(), store, 1, []int64{10, 20, 30}))
	assert.Len(t, store.artistLinks[1], 3)
}

func TestLinkerDeduplicatesInput(t *testing.T) {
	store := newFakeStore()
	linker := NewLinker(zerolog.Nop())

	require.NoError(t, linker.LinkTags(context.Background(), store, 7, []int64{5, 5, 5}))
	assert.Len(t, store.tagLinks[7], 1)
}

func TestLinkerEmptyInputNoQueries(t *testing.T) {
	store := newFakeStore()
	linker := NewLinker(zerolog.Nop())

	require.NoError(t, linker.LinkArtists(context.Background(), store, 1, nil))
	assert.Empty(t, store.artistLinks)
}
