package features

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/events"
	"github.com/glorpus-work/featurectl/pkg/model"
	"github.com/glorpus-work/featurectl/pkg/refresh"
)

// UninstallFeature uninstalls the installed feature name. An empty version
// is accepted only while a single version of name is installed.
func (s *Service) UninstallFeature(ctx context.Context, name, ver string, opts Option) error {
	return s.submit(ctx, func(ctx context.Context) error {
		id, err := s.installedID(ctx, name, ver)
		if err != nil {
			return err
		}
		return s.uninstallFeature(ctx, id, opts)
	})
}

func (s *Service) installedID(ctx context.Context, name, ver string) (model.FeatureID, error) {
	ver = strings.TrimSpace(ver)
	if ver == "" {
		s.mu.RLock()
		var versions []string
		for id := range s.installed {
			if id.Name == name {
				versions = append(versions, id.Version)
			}
		}
		s.mu.RUnlock()
		switch len(versions) {
		case 0:
			return model.FeatureID{}, errors.FeatureNotInstalled(name, "")
		case 1:
			return model.FeatureID{Name: name, Version: versions[0]}, nil
		default:
			sort.Strings(versions)
			return model.FeatureID{}, fmt.Errorf("feature %s has versions %s installed, specify the one to uninstall: %w",
				name, strings.Join(versions, ", "), errors.ErrAmbiguousVersion)
		}
	}

	id := model.FeatureID{Name: name, Version: ver}
	if s.isInstalledID(id) {
		return id, nil
	}
	f, err := s.GetFeature(ctx, name, ver)
	if err != nil {
		return model.FeatureID{}, err
	}
	if f != nil && s.isInstalledID(f.ID()) {
		return f.ID(), nil
	}
	return model.FeatureID{}, errors.FeatureNotInstalled(name, ver)
}

// uninstallFeature drops id from the ledger together with its conditionals
// and those of other features that no longer hold, then uninstalls every
// module no remaining feature owns.
func (s *Service) uninstallFeature(ctx context.Context, id model.FeatureID, opts Option) error {
	catalog, err := s.registry.Catalog(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	owned, ok := s.installed[id]
	if !ok {
		s.mu.Unlock()
		return errors.FeatureNotInstalled(id.Name, id.Version)
	}
	def := fullDefinition(catalog, s.definitionLocked(id))
	removed := owned.Clone()
	delete(s.installed, id)
	delete(s.definitions, id)

	for _, c := range def.Conditionals {
		s.dropLocked(c.AsFeature(def.Name, def.Version).ID(), removed)
	}

	remaining := make([]model.FeatureID, 0, len(s.installed))
	for other := range s.installed {
		remaining = append(remaining, other)
	}
	sortFeatureIDs(remaining)
	for _, other := range remaining {
		if _, ok := s.installed[other]; !ok {
			continue
		}
		odef := fullDefinition(catalog, s.definitionLocked(other))
		for _, c := range odef.Conditionals {
			if dependenciesSatisfied(catalog, c.Condition, s.installed) {
				continue
			}
			s.dropLocked(c.AsFeature(odef.Name, odef.Version).ID(), removed)
		}
	}

	for _, set := range s.installed {
		removed = removed.Minus(set)
	}
	s.mu.Unlock()

	logger.Debug("Uninstalling feature", logger.Fields{"feature": id.String(), "modules": len(removed)})
	s.report(opts, Event{Phase: "uninstalling", ID: id.String(), Msg: "Uninstalling feature " + id.String()})

	var result *multierror.Error
	for _, mid := range removed.Sorted() {
		d, ok := s.host.Describe(mid)
		if !ok {
			continue
		}
		s.report(opts, Event{Phase: "uninstalling", ID: mid.String(), Msg: "Uninstalling module " + d.Location})
		if err := s.host.Uninstall(ctx, mid); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if !opts.Has(NoAutoRefresh) {
		s.report(opts, Event{Phase: "refreshing", Msg: "Refreshing modules"})
		if err := s.refreshModules(nil); err != nil {
			result = multierror.Append(result, err)
		}
	}

	s.dispatcher.FireFeature(def, events.FeatureUninstalled)
	s.saveState()

	if err := result.ErrorOrNil(); err != nil {
		return hostError(err, "uninstall feature %s", id)
	}
	logger.Info("Uninstalled feature", logger.Fields{"feature": id.String()})
	s.report(opts, Event{Phase: "done", ID: id.String(), Msg: "Uninstalled feature " + id.String()})
	return nil
}

// dropLocked removes a materialized conditional from the ledger and adds
// its modules to removed.
func (s *Service) dropLocked(id model.FeatureID, removed refresh.Set) {
	set, ok := s.installed[id]
	if !ok {
		return
	}
	logger.Debug("Removing conditional", logger.Fields{"conditional": id.String()})
	for mid := range set {
		removed.Add(mid)
	}
	delete(s.installed, id)
	delete(s.definitions, id)
}
