package tags

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	rows    map[string]int64
	nextID  int64
	failAll bool

	findCalls   int
	createCalls int
	// names the fake pretends a concurrent worker inserted between the
	// lookup and the insert
	racedNames map[string]struct{}
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: make(map[string]int64), nextID: 1, racedNames: make(map[string]struct{})}
}

func (f *fakeRepo) FindByNames(ctx context.Context, names []string) ([]Tag, error) {
	if f.failAll {
		return nil, errors.New("connection refused")
	}
	f.findCalls++
	var out []Tag
	for _, name := range names {
		if id, ok := f.rows[name]; ok {
			out = append(out, Tag{ID: id, Name: name})
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateMany(ctx context.Context, names []string) ([]Tag, error) {
	if f.failAll {
		return nil, errors.New("connection refused")
	}
	f.createCalls++
	var out []Tag
	for _, name := range names {
		if _, raced := f.racedNames[name]; raced {
			// simulate ON CONFLICT DO NOTHING: the row exists, nothing returned
			if _, ok := f.rows[name]; !ok {
				f.rows[name] = f.nextID
				f.nextID++
			}
			continue
		}
		if _, ok := f.rows[name]; ok {
			continue
		}
		f.rows[name] = f.nextID
		out = append(out, Tag{ID: f.nextID, Name: name})
		f.nextID++
	}
	return out, nil
}

func TestRegistryFindOrCreateByName(t *testing.T) {
	repo := newFakeRepo()
	registry := NewRegistry(repo)

	resolved, err := registry.FindOrCreateByName(context.Background(), []string{"Rock", "Pop", "rock"})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Contains(t, resolved, "rock")
	assert.Contains(t, resolved, "pop")

	// second call is served entirely from cache
	findBefore := repo.findCalls
	again, err := registry.FindOrCreateByName(context.Background(), []string{"Rock", "Pop"})
	require.NoError(t, err)
	assert.Equal(t, resolved["rock"].ID, again["rock"].ID)
	assert.Equal(t, findBefore, repo.findCalls)
}

func TestRegistryDropsEmptyNames(t *testing.T) {
	repo := newFakeRepo()
	registry := NewRegistry(repo)

	resolved, err := registry.FindOrCreateByName(context.Background(), []string{"", "   ", "---", "Rock"})
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
}

func TestRegistryAbsorbsInsertRace(t *testing.T) {
	repo := newFakeRepo()
	repo.racedNames["techno"] = struct{}{}
	registry := NewRegistry(repo)

	resolved, err := registry.FindOrCreateByName(context.Background(), []string{"Techno"})
	require.NoError(t, err)
	require.Contains(t, resolved, "techno")
	assert.NotZero(t, resolved["techno"].ID)
}

func TestRegistrySurfacesBackendUnavailable(t *testing.T) {
	repo := newFakeRepo()
	repo.failAll = true
	registry := NewRegistry(repo)

	_, err := registry.FindOrCreateByName(context.Background(), []string{"Rock"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestRegistryClearCache(t *testing.T) {
	repo := newFakeRepo()
	registry := NewRegistry(repo)

	_, err := registry.FindOrCreateByName(context.Background(), []string{"Rock"})
	require.NoError(t, err)

	registry.ClearCache()
	findBefore := repo.findCalls
	_, err = registry.FindOrCreateByName(context.Background(), []string{"Rock"})
	require.NoError(t, err)
	assert.Equal(t, findBefore+1, repo.findCalls)
}
