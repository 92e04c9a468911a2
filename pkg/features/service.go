// Package features installs and uninstalls features into a module host and
// keeps the ledger of which modules each installed feature owns.
package features

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/configstore"
	"github.com/glorpus-work/featurectl/pkg/download"
	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/events"
	"github.com/glorpus-work/featurectl/pkg/host"
	"github.com/glorpus-work/featurectl/pkg/model"
	"github.com/glorpus-work/featurectl/pkg/override"
	"github.com/glorpus-work/featurectl/pkg/refresh"
	"github.com/glorpus-work/featurectl/pkg/repository"
	"github.com/glorpus-work/featurectl/pkg/resolver"
	"github.com/glorpus-work/featurectl/pkg/state"
)

// ErrStopped is returned for work submitted after Stop.
var ErrStopped = fmt.Errorf("features service stopped")

// Collaborators are the components a Service drives. Host, Registry and
// Downloader are required.
type Collaborators struct {
	Host       host.Host
	Registry   *repository.Registry
	Downloader download.Manager
	Dispatcher *events.Dispatcher
	Overrides  *override.Resolver
	Resolvers  *resolver.Registry
	Configs    configstore.Store
	State      *state.Store
	Hooks      Hooks
}

// Service is the feature installer. Mutations run one at a time on a single
// worker goroutine; read operations may run concurrently with them.
type Service struct {
	host       host.Host
	registry   *repository.Registry
	downloader download.Manager
	dispatcher *events.Dispatcher
	overrides  *override.Resolver
	resolvers  *resolver.Registry
	configs    configstore.Store
	state      *state.Store
	hooks      Hooks
	settings   Settings

	mu            sync.RWMutex
	installed     map[model.FeatureID]refresh.Set
	definitions   map[model.FeatureID]*model.Feature
	bootInstalled bool
	// bootRefresh is closed once the refresh fired by the boot batch ends.
	bootRefresh chan struct{}

	tasks    chan task
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type task struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error
}

// New creates a Service and starts its worker.
func New(c Collaborators, settings Settings) (*Service, error) {
	if c.Host == nil || c.Registry == nil || c.Downloader == nil {
		return nil, fmt.Errorf("features service requires a host, a repository registry and a downloader")
	}
	if c.Dispatcher == nil {
		c.Dispatcher = events.NewDispatcher()
	}
	if c.Resolvers == nil {
		c.Resolvers = resolver.NewRegistry()
	}
	if settings.ResolverTimeout <= 0 {
		settings.ResolverTimeout = DefaultResolverTimeout
	}
	s := &Service{
		host:        c.Host,
		registry:    c.Registry,
		downloader:  c.Downloader,
		dispatcher:  c.Dispatcher,
		overrides:   c.Overrides,
		resolvers:   c.Resolvers,
		configs:     c.Configs,
		state:       c.State,
		hooks:       c.Hooks,
		settings:    settings,
		installed:   make(map[model.FeatureID]refresh.Set),
		definitions: make(map[model.FeatureID]*model.Feature),
		tasks:       make(chan task),
		quit:        make(chan struct{}),
	}
	s.wg.Add(1)
	go s.worker()
	return s, nil
}

func (s *Service) worker() {
	defer s.wg.Done()
	for {
		select {
		case t := <-s.tasks:
			t.done <- t.run(t.ctx)
		case <-s.quit:
			return
		}
	}
}

// submit hands fn to the worker and waits for its result. Once started, fn
// runs to completion with a context that is never cancelled, even when the
// caller stops waiting.
func (s *Service) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	t := task{ctx: context.WithoutCancel(ctx), run: fn, done: make(chan error, 1)}
	select {
	case s.tasks <- t:
	case <-s.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop removes every repository from the registry and stops the worker.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		err := s.submit(context.Background(), func(context.Context) error {
			for _, uri := range s.registry.URIs() {
				if _, err := s.registry.Remove(uri); err != nil {
					logger.Debug("Unable to remove features repository", logger.Fields{"uri": uri, "error": err.Error()})
				}
			}
			return nil
		})
		if err != nil {
			logger.Debug("Stopping features service", logger.Fields{"error": err.Error()})
		}
		close(s.quit)
		s.wg.Wait()
	})
}

// RegisterListener registers l and replays the current repositories and
// installed features to it.
func (s *Service) RegisterListener(l events.Listener) {
	s.dispatcher.Register(l, func() ([]*model.Repository, []*model.Feature) {
		return s.registry.List(), s.ListInstalledFeatures()
	})
}

// UnregisterListener removes l.
func (s *Service) UnregisterListener(l events.Listener) {
	s.dispatcher.Unregister(l)
}

// ListRepositories returns the registered repositories.
func (s *Service) ListRepositories() []*model.Repository {
	return s.registry.List()
}

// ListFeatures returns every feature of every repository.
func (s *Service) ListFeatures(ctx context.Context) ([]*model.Feature, error) {
	catalog, err := s.registry.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.All(), nil
}

// ListInstalledFeatures returns the installed features ordered by id.
func (s *Service) ListInstalledFeatures() []*model.Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]model.FeatureID, 0, len(s.installed))
	for id := range s.installed {
		ids = append(ids, id)
	}
	sortFeatureIDs(ids)
	out := make([]*model.Feature, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.definitionLocked(id))
	}
	return out
}

// IsInstalled reports whether the feature is installed.
func (s *Service) IsInstalled(f *model.Feature) bool {
	if f == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.installed[f.ID()]
	return ok
}

// InstalledModules returns the modules owned by an installed feature.
func (s *Service) InstalledModules(id model.FeatureID) ([]host.ModuleID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.installed[id]
	if !ok {
		return nil, false
	}
	return set.Sorted(), true
}

// GetFeature returns the feature name in version. An exact match wins;
// otherwise the empty or default version selects the highest version and any
// other version is read as a range selecting the highest match. It returns
// nil when nothing matches.
func (s *Service) GetFeature(ctx context.Context, name, ver string) (*model.Feature, error) {
	catalog, err := s.registry.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return lookup(catalog, name, ver), nil
}

// FeaturesContainingModule returns the catalog features declaring location.
func (s *Service) FeaturesContainingModule(ctx context.Context, location string) ([]*model.Feature, error) {
	catalog, err := s.registry.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.Feature
	for _, f := range catalog.All() {
		for _, b := range f.Bundles {
			if b.Location == location {
				out = append(out, f)
				break
			}
		}
	}
	return out, nil
}

// AddRepository registers the repository at uri, or refreshes it when it is
// already known. With install every feature it declares is installed.
func (s *Service) AddRepository(ctx context.Context, uri string, install bool) error {
	return s.submit(ctx, func(ctx context.Context) error {
		if s.registry.Contains(uri) {
			return s.refreshRepository(ctx, uri, install)
		}
		repo, err := s.registry.Add(ctx, uri)
		if err != nil {
			return err
		}
		s.saveState()
		if install {
			return s.installAll(ctx, repo)
		}
		return nil
	})
}

// RemoveRepository unregisters the repository at uri. With uninstall its
// installed features are uninstalled first.
func (s *Service) RemoveRepository(ctx context.Context, uri string, uninstall bool) error {
	return s.submit(ctx, func(ctx context.Context) error {
		return s.removeRepository(ctx, uri, uninstall)
	})
}

// RefreshRepository reloads the repository at uri. When reloading fails the
// previous definition stays registered.
func (s *Service) RefreshRepository(ctx context.Context, uri string) error {
	return s.submit(ctx, func(ctx context.Context) error {
		return s.refreshRepository(ctx, uri, false)
	})
}

func (s *Service) removeRepository(ctx context.Context, uri string, uninstall bool) error {
	repo := s.registry.Get(uri)
	if repo == nil {
		return fmt.Errorf("features repository %s: %w", uri, errors.ErrNotFound)
	}
	if uninstall {
		if err := s.uninstallAll(ctx, repo); err != nil {
			return err
		}
	}
	if _, err := s.registry.Remove(uri); err != nil {
		return err
	}
	s.saveState()
	return nil
}

func (s *Service) refreshRepository(ctx context.Context, uri string, install bool) error {
	if install {
		if repo := s.registry.Get(uri); repo != nil {
			if err := s.uninstallAll(ctx, repo); err != nil {
				return errors.Wrapf(err, "unable to refresh features repository %s", uri)
			}
		}
	}
	repo, err := s.registry.Refresh(ctx, uri)
	if err != nil {
		return err
	}
	s.saveState()
	if install {
		return s.installAll(ctx, repo)
	}
	return nil
}

func (s *Service) installAll(ctx context.Context, repo *model.Repository) error {
	for _, f := range repo.Features {
		if err := s.installFeatures(ctx, []*model.Feature{f}, 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) uninstallAll(ctx context.Context, repo *model.Repository) error {
	for _, f := range repo.Features {
		if !s.IsInstalled(f) {
			continue
		}
		if err := s.uninstallFeature(ctx, f.ID(), 0); err != nil {
			return err
		}
	}
	return nil
}

// definitionLocked returns the known definition of an installed feature,
// falling back to a bare feature carrying only its id.
func (s *Service) definitionLocked(id model.FeatureID) *model.Feature {
	if f, ok := s.definitions[id]; ok && f != nil {
		return f
	}
	return &model.Feature{Name: id.Name, Version: id.Version}
}

// saveState persists the ledger. Failures are logged only.
func (s *Service) saveState() {
	if s.state == nil {
		return
	}
	s.mu.RLock()
	st := &state.State{
		Repositories:          s.registry.URIs(),
		Features:              make(map[model.FeatureID][]host.ModuleID, len(s.installed)),
		BootFeaturesInstalled: s.bootInstalled,
	}
	for id, modules := range s.installed {
		st.Features[id] = modules.Sorted()
	}
	s.mu.RUnlock()

	if err := s.state.Save(st); err != nil {
		logger.Error("Error persisting features service state", logger.Fields{"path": s.state.Path(), "error": err.Error()})
	}
}

func sortFeatureIDs(ids []model.FeatureID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Name != ids[j].Name {
			return ids[i].Name < ids[j].Name
		}
		return ids[i].Version < ids[j].Version
	})
}
