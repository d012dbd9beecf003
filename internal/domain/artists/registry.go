package artists

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrBackendUnavailable = errors.New("artists: backend unavailable")

type Artist struct {
	ID   int64
	Name string
}

type Repository interface {
	FindByNames(ctx context.Context, names []string) ([]Artist, error)
	CreateMany(ctx context.Context, names []string) ([]Artist, error)
}

// Registry resolves artist names to persisted rows. Names are matched
// case-sensitively after trimming; unlike tags, artist names keep their
// original casing.
type Registry struct {
	repo Repository

	mu    sync.RWMutex
	cache map[string]int64
}

func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo, cache: make(map[string]int64)}
}

// FindOrCreateByName resolves every trimmed, non-empty name to an artist,
// creating missing rows in one batched insert. Unique-violation races with
// concurrent workers are absorbed by a retry read.
func (r *Registry) FindOrCreateByName(ctx context.Context, names []string) (map[string]Artist, error) {
	resolved := make(map[string]Artist)
	var misses []string

	r.mu.RLock()
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := resolved[name]; ok {
			continue
		}
		if id, ok := r.cache[name]; ok {
			resolved[name] = Artist{ID: id, Name: name}
		} else {
			misses = append(misses, name)
		}
	}
	r.mu.RUnlock()

	if len(misses) == 0 {
		return resolved, nil
	}

	found, err := r.repo.FindByNames(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup: %v", ErrBackendUnavailable, err)
	}
	for _, artist := range found {
		resolved[artist.Name] = artist
	}

	var missing []string
	for _, name := range misses {
		if _, ok := resolved[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		created, err := r.repo.CreateMany(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("%w: insert: %v", ErrBackendUnavailable, err)
		}
		for _, artist := range created {
			resolved[artist.Name] = artist
		}

		var raced []string
		for _, name := range missing {
			if _, ok := resolved[name]; !ok {
				raced = append(raced, name)
			}
		}
		if len(raced) > 0 {
			reread, err := r.repo.FindByNames(ctx, raced)
			if err != nil {
				return nil, fmt.Errorf("%w: retry read: %v", ErrBackendUnavailable, err)
			}
			for _, artist := range reread {
				resolved[artist.Name] = artist
			}
		}
	}

	r.mu.Lock()
	for name, artist := range resolved {
		r.cache[name] = artist.ID
	}
	r.mu.Unlock()

	return resolved, nil
}

func (r *Registry) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]int64)
	r.mu.Unlock()
}

// SplitList parses a comma-separated artist field into trimmed, deduplicated
// names, keeping their original casing.
func SplitList(field string) []string {
	parts := strings.Split(field, ",")
	seen := make(map[string]struct{}, len(parts))
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
