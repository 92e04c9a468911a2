package features

import (
	"context"
	"strings"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/model"
	"github.com/glorpus-work/featurectl/pkg/refresh"
	"github.com/glorpus-work/featurectl/pkg/repository"
	"github.com/glorpus-work/featurectl/pkg/state"
)

// BootJob is the installation of the boot features started by Start.
type BootJob struct {
	done chan struct{}
	err  error
}

func newBootJob() *BootJob {
	return &BootJob{done: make(chan struct{})}
}

func (j *BootJob) finish(err error) {
	j.err = err
	close(j.done)
}

// Done is closed once the boot features were handled.
func (j *BootJob) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finished or ctx is done.
func (j *BootJob) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the outcome of a finished job, nil while it runs.
func (j *BootJob) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Start restores the persisted ledger, or registers the configured
// repositories on first start, and then installs the boot features unless an
// earlier start already did.
func (s *Service) Start(ctx context.Context) (*BootJob, error) {
	if err := s.submit(ctx, s.restore); err != nil {
		return nil, err
	}

	s.mu.RLock()
	booted := s.bootInstalled
	s.mu.RUnlock()

	job := newBootJob()
	if booted || len(ParseBootFeatures(s.settings.BootFeatures)) == 0 {
		job.finish(nil)
		return job, nil
	}

	bootCtx := context.WithoutCancel(ctx)
	if s.settings.BootAsync {
		go func() { job.finish(s.installBootFeatures(bootCtx)) }()
	} else {
		job.finish(s.installBootFeatures(bootCtx))
	}
	return job, nil
}

func (s *Service) restore(ctx context.Context) error {
	var st *state.State
	if s.state != nil {
		loaded, err := s.state.Load()
		if err != nil {
			logger.Error("Error loading features service state", logger.Fields{"path": s.state.Path(), "error": err.Error()})
		} else {
			st = loaded
		}
	}

	if st == nil {
		for _, uri := range s.settings.Repositories {
			s.addRepositoryAtStartup(ctx, uri, false)
		}
		s.saveState()
		return nil
	}

	for _, uri := range st.Repositories {
		s.addRepositoryAtStartup(ctx, uri, true)
	}
	catalog, err := s.registry.Catalog(ctx)
	if err != nil {
		logger.Warn("Unable to build the feature catalog at startup", logger.Fields{"error": err.Error()})
		catalog = repository.Catalog{}
	}

	s.mu.Lock()
	ids := make([]model.FeatureID, 0, len(st.Features))
	for id, modules := range st.Features {
		s.installed[id] = refresh.NewSet(modules...)
		if f := catalog.Get(id.Name, id.Version); f != nil {
			s.definitions[id] = f
		}
		ids = append(ids, id)
	}
	s.bootInstalled = st.BootFeaturesInstalled
	sortFeatureIDs(ids)
	restored := make([]*model.Feature, 0, len(ids))
	for _, id := range ids {
		restored = append(restored, s.definitionLocked(id))
	}
	s.mu.Unlock()

	for _, f := range restored {
		s.dispatcher.ReplayFeature(f)
	}
	logger.Debug("Restored features service state", logger.Fields{"features": len(restored), "repositories": len(st.Repositories)})
	return nil
}

// addRepositoryAtStartup registers uri, announcing it as a replay when it
// comes from the persisted ledger.
func (s *Service) addRepositoryAtStartup(ctx context.Context, uri string, persisted bool) {
	if s.registry.Contains(uri) {
		return
	}
	add := s.registry.Add
	if persisted {
		add = s.registry.AddPersisted
	}
	if _, err := add(ctx, uri); err != nil {
		logger.Warnf("Unable to add features repository %s at startup: %v", uri, err)
	}
}

// installBootFeatures installs the boot features as a single batch that
// keeps going past failures. The boot is marked done whatever the outcome.
func (s *Service) installBootFeatures(ctx context.Context) error {
	var features []*model.Feature
	seen := make(map[model.FeatureID]bool)
	for _, id := range ParseBootFeatures(s.settings.BootFeatures) {
		f, err := s.GetFeature(ctx, id.Name, id.Version)
		if err != nil || f == nil {
			logger.Error("Error installing boot feature: feature not found", logger.Fields{"feature": id.String()})
			continue
		}
		if seen[f.ID()] {
			continue
		}
		seen[f.ID()] = true
		features = append(features, f)
	}

	err := s.submit(ctx, func(ctx context.Context) error {
		return s.installFeatures(ctx, features, NoCleanIfFailure|ContinueBatchOnFailure|Boot)
	})
	if err != nil {
		logger.Error("Error installing boot features", logger.Fields{"error": err.Error()})
	}

	s.mu.RLock()
	refreshed := s.bootRefresh
	s.mu.RUnlock()
	if refreshed != nil {
		select {
		case <-refreshed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	markErr := s.submit(ctx, func(context.Context) error {
		s.mu.Lock()
		s.bootInstalled = true
		s.mu.Unlock()
		s.saveState()
		return nil
	})
	if err == nil {
		err = markErr
	}
	return err
}

// ParseBootFeatures parses a comma separated list of name or
// name;version=x entries. Entries without a version select the default
// version.
func ParseBootFeatures(list string) []model.FeatureID {
	var ids []model.FeatureID
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ";")
		id := model.FeatureID{Name: strings.TrimSpace(parts[0]), Version: model.DefaultVersion}
		for _, attr := range parts[1:] {
			key, value, ok := strings.Cut(attr, "=")
			if ok && strings.TrimSpace(key) == "version" {
				id.Version = strings.Trim(strings.TrimSpace(value), `"`)
			}
		}
		if id.Name != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
