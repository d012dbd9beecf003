package tags

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBackendUnavailable wraps database failures so callers can decide to
// retry the whole batch.
var ErrBackendUnavailable = errors.New("tags: backend unavailable")

type Tag struct {
	ID   int64
	Name string
}

type Repository interface {
	// FindByNames returns the tags whose names appear in the input, in one
	// statement. Missing names are simply absent from the result.
	FindByNames(ctx context.Context, names []string) ([]Tag, error)
	// CreateMany inserts the given names in one batched statement, skipping
	// names already present, and returns the rows it actually inserted.
	CreateMany(ctx context.Context, names []string) ([]Tag, error)
}

// Registry resolves tag names to persisted rows with an in-process
// name→id cache in front of batched lookups.
type Registry struct {
	repo Repository

	mu    sync.RWMutex
	cache map[string]int64
}

func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo, cache: make(map[string]int64)}
}

// FindOrCreateByName resolves every normalized, non-empty name in the input
// to a tag, creating missing rows. Concurrent inserts of the same name are
// absorbed by a retry read; the caller never sees a unique-violation error.
func (r *Registry) FindOrCreateByName(ctx context.Context, names []string) (map[string]Tag, error) {
	resolved := make(map[string]Tag)
	var misses []string

	r.mu.RLock()
	for _, raw := range names {
		name := Normalize(raw)
		if name == "" {
			continue
		}
		if _, ok := resolved[name]; ok {
			continue
		}
		if id, ok := r.cache[name]; ok {
			resolved[name] = Tag{ID: id, Name: name}
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
	for _, tag := range found {
		resolved[tag.Name] = tag
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
		for _, tag := range created {
			resolved[tag.Name] = tag
		}

		// Names skipped by the insert were created by a concurrent worker;
		// a second read picks them up.
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
			for _, tag := range reread {
				resolved[tag.Name] = tag
			}
		}
	}

	r.mu.Lock()
	for name, tag := range resolved {
		r.cache[name] = tag.ID
	}
	r.mu.Unlock()

	return resolved, nil
}

// ClearCache drops the in-process cache. Used by admin actions and tests.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]int64)
	r.mu.Unlock()
}
