package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/events"
	"github.com/glorpus-work/featurectl/pkg/model"
)

// Removed is a repository taken out of the registry. Passing it to Restore
// puts it back in its previous position.
type Removed struct {
	Repository *model.Repository
	position   int
}

// Registry holds the known repositories, keyed by URI, and lazily builds the
// merged catalog. Reads are safe from any goroutine.
type Registry struct {
	loader     Loader
	dispatcher *events.Dispatcher

	mu      sync.RWMutex
	repos   map[string]*model.Repository
	order   []string
	catalog Catalog
}

// NewRegistry creates an empty registry. dispatcher may be nil.
func NewRegistry(loader Loader, dispatcher *events.Dispatcher) *Registry {
	if dispatcher == nil {
		dispatcher = events.NewDispatcher()
	}
	return &Registry{
		loader:     loader,
		dispatcher: dispatcher,
		repos:      map[string]*model.Repository{},
	}
}

// Add loads and registers the repository at uri.
func (r *Registry) Add(ctx context.Context, uri string) (*model.Repository, error) {
	return r.add(ctx, uri, false)
}

// AddPersisted registers a repository remembered from an earlier run. Its
// addition reaches listeners as a replay.
func (r *Registry) AddPersisted(ctx context.Context, uri string) (*model.Repository, error) {
	return r.add(ctx, uri, true)
}

func (r *Registry) add(ctx context.Context, uri string, replay bool) (*model.Repository, error) {
	if r.Contains(uri) {
		return nil, fmt.Errorf("features repository %s: %w", uri, errors.ErrAlreadyExists)
	}
	repo, err := r.loader.Load(ctx, uri)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, ok := r.repos[uri]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("features repository %s: %w", uri, errors.ErrAlreadyExists)
	}
	r.insertLocked(repo, len(r.order))
	r.mu.Unlock()

	logger.Debug("Added features repository", logger.Fields{"uri": uri, "features": len(repo.Features), "replay": replay})
	if replay {
		r.dispatcher.ReplayRepository(repo)
	} else {
		r.dispatcher.FireRepository(repo, events.RepositoryAdded)
	}
	return repo, nil
}

// Remove unregisters the repository at uri and returns it.
func (r *Registry) Remove(uri string) (Removed, error) {
	r.mu.Lock()
	repo, ok := r.repos[uri]
	if !ok {
		r.mu.Unlock()
		return Removed{}, fmt.Errorf("features repository %s: %w", uri, errors.ErrNotFound)
	}
	position := 0
	for i, u := range r.order {
		if u == uri {
			position = i
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	delete(r.repos, uri)
	r.catalog = nil
	r.mu.Unlock()

	logger.Debug("Removed features repository", logger.Fields{"uri": uri})
	r.dispatcher.FireRepository(repo, events.RepositoryRemoved)
	return Removed{Repository: repo, position: position}, nil
}

// Restore re-registers a previously removed repository. Restoring over a
// repository that is registered again replaces it.
func (r *Registry) Restore(removed Removed) {
	if removed.Repository == nil {
		return
	}
	uri := removed.Repository.URI

	r.mu.Lock()
	if _, ok := r.repos[uri]; ok {
		for i, u := range r.order {
			if u == uri {
				r.order = append(r.order[:i:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.insertLocked(removed.Repository, removed.position)
	r.mu.Unlock()

	logger.Debug("Restored features repository", logger.Fields{"uri": uri})
	r.dispatcher.FireRepository(removed.Repository, events.RepositoryAdded)
}

// Refresh reloads the repository at uri. When reloading fails the previous
// definition is restored and the error returned.
func (r *Registry) Refresh(ctx context.Context, uri string) (*model.Repository, error) {
	removed, err := r.Remove(uri)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}
	repo, err := r.Add(ctx, uri)
	if err != nil {
		r.Restore(removed)
		return nil, errors.Wrapf(err, "unable to refresh features repository %s", uri)
	}
	return repo, nil
}

// Catalog returns the merged feature catalog. Repositories referenced by
// registered ones are added first, transitively, until no new ones appear.
func (r *Registry) Catalog(ctx context.Context) (Catalog, error) {
	r.mu.RLock()
	c := r.catalog
	r.mu.RUnlock()
	if c != nil {
		return c, nil
	}

	for {
		missing := r.missingReferences()
		if len(missing) == 0 {
			break
		}
		for _, uri := range missing {
			if _, err := r.Add(ctx, uri); err != nil && !errors.Is(err, errors.ErrAlreadyExists) {
				return nil, err
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.catalog == nil {
		r.catalog = buildCatalog(r.listLocked())
	}
	return r.catalog, nil
}

func (r *Registry) missingReferences() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	seen := map[string]bool{}
	for _, uri := range r.order {
		for _, ref := range r.repos[uri].Repositories {
			if _, ok := r.repos[ref]; !ok && !seen[ref] {
				seen[ref] = true
				missing = append(missing, ref)
			}
		}
	}
	return missing
}

// Contains reports whether uri is registered.
func (r *Registry) Contains(uri string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.repos[uri]
	return ok
}

// Get returns the repository registered under uri, or nil.
func (r *Registry) Get(uri string) *model.Repository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.repos[uri]
}

// List returns the registered repositories in registration order.
func (r *Registry) List() []*model.Repository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

// URIs returns the registered repository URIs in registration order.
func (r *Registry) URIs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) listLocked() []*model.Repository {
	out := make([]*model.Repository, 0, len(r.order))
	for _, uri := range r.order {
		out = append(out, r.repos[uri])
	}
	return out
}

func (r *Registry) insertLocked(repo *model.Repository, position int) {
	if position < 0 || position > len(r.order) {
		position = len(r.order)
	}
	r.order = append(r.order, "")
	copy(r.order[position+1:], r.order[position:])
	r.order[position] = repo.URI
	r.repos[repo.URI] = repo
	r.catalog = nil
}
