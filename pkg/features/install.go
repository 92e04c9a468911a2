package features

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/configstore"
	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/events"
	"github.com/glorpus-work/featurectl/pkg/fsutil"
	"github.com/glorpus-work/featurectl/pkg/host"
	"github.com/glorpus-work/featurectl/pkg/manifest"
	"github.com/glorpus-work/featurectl/pkg/model"
	"github.com/glorpus-work/featurectl/pkg/refresh"
	"github.com/glorpus-work/featurectl/pkg/repository"
	"github.com/glorpus-work/featurectl/pkg/resolver"
)

// installationState tracks what a batch, or a single feature of it, did to
// the host.
type installationState struct {
	// installed are the modules the batch installed itself.
	installed refresh.Set
	// modules are all modules the batch touched, preexisting ones included.
	modules     refresh.Set
	moduleInfos map[host.ModuleID]model.BundleInfo
	features    map[model.FeatureID]refresh.Set
	definitions map[model.FeatureID]*model.Feature
	// batch is the enclosing batch state of a per-feature state.
	batch *installationState
}

func newInstallationState() *installationState {
	return &installationState{
		installed:   refresh.NewSet(),
		modules:     refresh.NewSet(),
		moduleInfos: make(map[host.ModuleID]model.BundleInfo),
		features:    make(map[model.FeatureID]refresh.Set),
		definitions: make(map[model.FeatureID]*model.Feature),
	}
}

// claims reports whether a feature of this state, or of the enclosing batch,
// owns mid.
func (st *installationState) claims(mid host.ModuleID) bool {
	for ; st != nil; st = st.batch {
		for _, set := range st.features {
			if set.Contains(mid) {
				return true
			}
		}
	}
	return false
}

func (st *installationState) merge(o *installationState) {
	for id := range o.installed {
		st.installed.Add(id)
	}
	for id := range o.modules {
		st.modules.Add(id)
	}
	for id, info := range o.moduleInfos {
		st.moduleInfos[id] = info
	}
	for id, set := range o.features {
		st.features[id] = set
	}
	for id, f := range o.definitions {
		st.definitions[id] = f
	}
}

// InstallFeature installs the feature name in version, selected the way
// GetFeature selects it.
func (s *Service) InstallFeature(ctx context.Context, name, ver string, opts Option) error {
	f, err := s.GetFeature(ctx, name, ver)
	if err != nil {
		return err
	}
	if f == nil {
		if strings.TrimSpace(ver) == "" {
			ver = model.DefaultVersion
		}
		return errors.FeatureNotFound(name, ver)
	}
	return s.InstallFeatures(ctx, []*model.Feature{f}, opts)
}

// InstallFeatures installs features as one batch. Unless NoCleanIfFailure is
// set, a failing batch leaves the host as it was.
func (s *Service) InstallFeatures(ctx context.Context, features []*model.Feature, opts Option) error {
	return s.submit(ctx, func(ctx context.Context) error {
		return s.installFeatures(ctx, features, opts)
	})
}

func (s *Service) installFeatures(ctx context.Context, features []*model.Feature, opts Option) error {
	batch := uuid.NewString()
	ids := make([]string, 0, len(features))
	for _, f := range features {
		ids = append(ids, f.ID().String())
	}
	logger.Debug("Installing features", logger.Fields{"batch": batch, "features": strings.Join(ids, ", "), "options": opts.String()})

	st := newInstallationState()
	failure := newInstallationState()
	succeeded, err := s.runBatch(ctx, batch, features, opts, st, failure)
	if err != nil {
		s.rollback(ctx, batch, opts, st, failure)
		s.report(opts, Event{Phase: "error", Msg: err.Error()})
		return err
	}

	for _, f := range succeeded {
		s.dispatcher.FireFeature(f, events.FeatureInstalled)
	}

	s.mu.Lock()
	for id, set := range st.features {
		if existing, ok := s.installed[id]; ok {
			for mid := range existing {
				set.Add(mid)
			}
		}
		s.installed[id] = set
		s.definitions[id] = st.definitions[id]
	}
	s.mu.Unlock()
	s.saveState()

	logger.Info("Installed features", logger.Fields{"batch": batch, "features": strings.Join(ids, ", ")})
	s.report(opts, Event{Phase: "done", Msg: fmt.Sprintf("Installed %d feature(s)", len(succeeded))})
	return nil
}

func (s *Service) runBatch(ctx context.Context, batch string, features []*model.Feature, opts Option, st, failure *installationState) ([]*model.Feature, error) {
	var succeeded []*model.Feature
	for _, f := range features {
		fs := newInstallationState()
		fs.batch = st
		err := s.installFeature(ctx, fs, f, opts, map[model.FeatureID]bool{})
		if err == nil {
			err = s.installConditionals(ctx, st, fs, f, opts)
		}
		if err != nil {
			failure.merge(fs)
			if opts.Has(ContinueBatchOnFailure) {
				logger.Warn("Error when installing feature", logger.Fields{"batch": batch, "feature": f.ID().String(), "error": err.Error()})
				continue
			}
			return nil, err
		}
		st.merge(fs)
		succeeded = append(succeeded, f)
	}

	toRefresh, err := s.refreshAfterInstall(opts, st)
	if err != nil {
		return nil, err
	}
	if err := s.startModules(ctx, st, opts); err != nil {
		return nil, err
	}

	if !opts.Has(NoCleanIfFailure) {
		var result *multierror.Error
		for _, id := range failure.installed.Minus(st.modules).Sorted() {
			if err := s.host.Uninstall(ctx, id); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := result.ErrorOrNil(); err != nil {
			logger.Debug("Error cleaning up modules of failed features", logger.Fields{"batch": batch, "error": err.Error()})
		}
	}

	if len(toRefresh) > 0 {
		done := make(chan struct{})
		finish := sync.OnceFunc(func() { close(done) })
		s.mu.Lock()
		s.bootRefresh = done
		s.mu.Unlock()
		err := s.host.Refresh(toRefresh, func(err error) {
			if err != nil {
				logger.Error("Error refreshing modules", logger.Fields{"batch": batch, "error": err.Error()})
			}
			finish()
		})
		if err != nil {
			logger.Error("Error refreshing modules", logger.Fields{"batch": batch, "error": err.Error()})
			finish()
		}
	}
	return succeeded, nil
}

// installConditionals installs the conditionals that f, or anything else
// installed or being installed, made satisfiable. They go straight into the
// batch state.
func (s *Service) installConditionals(ctx context.Context, st, fs *installationState, f *model.Feature, opts Option) error {
	catalog, err := s.registry.Catalog(ctx)
	if err != nil {
		return err
	}

	present := make(map[model.FeatureID]*model.Feature)
	s.mu.RLock()
	for id := range s.installed {
		present[id] = s.definitionLocked(id)
	}
	s.mu.RUnlock()
	for id, def := range st.definitions {
		present[id] = def
	}
	for id, def := range fs.definitions {
		present[id] = def
	}
	present[f.ID()] = f

	ids := make([]model.FeatureID, 0, len(present))
	for id := range present {
		ids = append(ids, id)
	}
	sortFeatureIDs(ids)

	for _, id := range ids {
		def := fullDefinition(catalog, present[id])
		for _, c := range def.Conditionals {
			cf := c.AsFeature(def.Name, def.Version)
			cid := cf.ID()
			if _, ok := st.features[cid]; ok {
				continue
			}
			if s.isInstalledID(cid) {
				continue
			}
			if !dependenciesSatisfied(catalog, c.Condition, present) {
				continue
			}
			logger.Debug("Installing conditional", logger.Fields{"feature": def.ID().String(), "conditional": cid.String()})
			if err := s.installFeature(ctx, st, cf, opts, map[model.FeatureID]bool{}); err != nil {
				return err
			}
			present[cid] = cf
		}
	}
	return nil
}

func (s *Service) ownedByInstalled(mid host.ModuleID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, set := range s.installed {
		if set.Contains(mid) {
			return true
		}
	}
	return false
}

func (s *Service) isInstalledID(id model.FeatureID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.installed[id]
	return ok
}

// dependenciesSatisfied reports whether every condition either names no known
// feature or names one present in installed.
func dependenciesSatisfied[T any](catalog repository.Catalog, conditions []model.Dependency, installed map[model.FeatureID]T) bool {
	for _, dep := range conditions {
		f := lookup(catalog, dep.Name, dep.VersionOrDefault())
		if f == nil {
			continue
		}
		if _, ok := installed[f.ID()]; !ok {
			return false
		}
	}
	return true
}

// fullDefinition returns the catalog definition for features known only by
// id, such as those restored from the ledger.
func fullDefinition(catalog repository.Catalog, f *model.Feature) *model.Feature {
	if len(f.Bundles) > 0 || len(f.Dependencies) > 0 || len(f.Conditionals) > 0 || len(f.Configs) > 0 || len(f.ConfigFiles) > 0 {
		return f
	}
	if def := catalog.Get(f.Name, f.ID().Version); def != nil {
		return def
	}
	return f
}

// installFeature installs f and, depth first, its dependencies into st.
// chain holds the features currently being installed up the call stack.
func (s *Service) installFeature(ctx context.Context, st *installationState, f *model.Feature, opts Option, chain map[model.FeatureID]bool) error {
	id := f.ID()
	if chain[id] {
		return fmt.Errorf("feature %s: %w", id, errors.ErrDependencyCycle)
	}
	chain[id] = true
	defer delete(chain, id)

	logger.Debug("Installing feature", logger.Fields{"feature": id.String()})
	s.report(opts, Event{Phase: "installing", ID: id.String(), Msg: "Installing feature " + id.String()})

	for _, dep := range f.Dependencies {
		picked, err := s.pickDependency(ctx, dep)
		if err != nil {
			return err
		}
		if picked == nil {
			return errors.FeatureNotFound(dep.Name, dep.VersionOrDefault())
		}
		pid := picked.ID()
		if pid == id {
			continue
		}
		if _, ok := st.features[pid]; ok {
			logger.Debug("Feature already installed by this batch", logger.Fields{"feature": pid.String()})
			continue
		}
		if err := s.installFeature(ctx, st, picked, opts, chain); err != nil {
			return err
		}
	}

	if err := s.applyConfigs(f); err != nil {
		return err
	}
	if err := s.installConfigFiles(ctx, f); err != nil {
		return err
	}

	infos, err := s.resolveModules(ctx, f)
	if err != nil {
		return err
	}
	if s.overrides != nil && s.settings.OverrideSource != "" {
		infos = s.overrides.Override(ctx, infos, s.settings.OverrideSource)
	}

	owned := refresh.NewSet()
	var fresh []host.ModuleID
	for _, info := range infos {
		mid, isNew, err := s.installModuleIfNeeded(ctx, st, info, opts)
		if err != nil {
			return err
		}
		if isNew {
			owned.Add(mid)
			st.moduleInfos[mid] = info
			fresh = append(fresh, mid)
		}
	}
	for _, mid := range fresh {
		level := st.moduleInfos[mid].StartLevel
		if level <= 0 {
			continue
		}
		if err := s.host.SetStartLevel(mid, level); err != nil {
			return hostError(err, "set start level of module %s", mid)
		}
	}
	// declared modules found in the host are shared only with features that
	// own them; modules nobody installed stay unowned
	for _, info := range f.Bundles {
		mid, ok, err := s.findInstalledModule(ctx, info.Location)
		if err != nil {
			return err
		}
		if ok && !owned.Contains(mid) && (st.claims(mid) || s.ownedByInstalled(mid)) {
			owned.Add(mid)
		}
	}

	st.features[id] = owned
	st.definitions[id] = f
	return nil
}

// pickDependency selects the feature satisfying dep, preferring installed
// versions over the catalog.
func (s *Service) pickDependency(ctx context.Context, dep model.Dependency) (*model.Feature, error) {
	r, err := dependencyRange(dep)
	if err != nil {
		return nil, fmt.Errorf("dependency %s: %w", dep, err)
	}
	catalog, err := s.registry.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var installed []string
	defs := make(map[string]*model.Feature)
	for id := range s.installed {
		if id.Name == dep.Name {
			installed = append(installed, id.Version)
			defs[id.Version] = s.definitionLocked(id)
		}
	}
	s.mu.RUnlock()

	if best, ok := highestIn(installed, r); ok {
		return fullDefinition(catalog, defs[best]), nil
	}
	if best, ok := highestIn(catalog.Versions(dep.Name), r); ok {
		return catalog.Get(dep.Name, best), nil
	}
	return nil, nil
}

// resolveModules asks the feature's resolver for its modules. A resolver name
// in parentheses is optional and falls back to the declared modules.
func (s *Service) resolveModules(ctx context.Context, f *model.Feature) ([]model.BundleInfo, error) {
	name := strings.TrimSpace(f.Resolver)
	if name == "" {
		return resolver.Default.Resolve(ctx, f)
	}
	if strings.HasPrefix(name, "(") && strings.HasSuffix(name, ")") {
		name = strings.TrimSpace(name[1 : len(name)-1])
		r, ok := s.resolvers.Lookup(name)
		if !ok {
			logger.Debug("Optional resolver not available, using declared modules", logger.Fields{"feature": f.ID().String(), "resolver": name})
			return resolver.Default.Resolve(ctx, f)
		}
		return r.Resolve(ctx, f)
	}
	r, err := s.resolvers.WaitFor(ctx, name, s.settings.ResolverTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to find required resolver %q for feature %s: %w", name, f.ID(), err)
	}
	return r.Resolve(ctx, f)
}

// installModuleIfNeeded installs the module unless a module with the same
// symbolic name and version is already present. It reports whether the
// module was installed now.
func (s *Service) installModuleIfNeeded(ctx context.Context, st *installationState, info model.BundleInfo, opts Option) (host.ModuleID, bool, error) {
	path, identity, err := s.readIdentity(ctx, info.Location)
	if err != nil {
		return 0, false, err
	}
	if mid, ok := s.findModule(identity); ok {
		logger.Debug("Found installed module", logger.Fields{"module": identity.String(), "id": mid})
		st.modules.Add(mid)
		return mid, false, nil
	}

	s.report(opts, Event{Phase: "installing", ID: identity.String(), Msg: "Installing module " + info.Location})
	mid, err := s.installModule(ctx, info.Location, path)
	if err != nil {
		return 0, false, hostError(err, "install module %s", info.Location)
	}
	st.modules.Add(mid)
	st.installed.Add(mid)
	return mid, true, nil
}

func (s *Service) installModule(ctx context.Context, location, path string) (host.ModuleID, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if fi.IsDir() {
		return s.host.Install(ctx, location, nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	return s.host.Install(ctx, location, f)
}

func (s *Service) readIdentity(ctx context.Context, location string) (string, manifest.Identity, error) {
	path, err := s.downloader.Localize(ctx, location)
	if err != nil {
		return "", manifest.Identity{}, fmt.Errorf("could not fetch module %s: %w", location, err)
	}
	identity, err := manifest.ReadIdentity(ctx, path)
	if err != nil {
		return "", manifest.Identity{}, fmt.Errorf("module %s: %w", location, err)
	}
	return path, identity, nil
}

func (s *Service) findModule(identity manifest.Identity) (host.ModuleID, bool) {
	for _, mid := range s.host.Modules() {
		d, ok := s.host.Describe(mid)
		if !ok {
			continue
		}
		if d.SymbolicName == identity.SymbolicName && d.Version.Equal(identity.Version) {
			return mid, true
		}
	}
	return 0, false
}

func (s *Service) findInstalledModule(ctx context.Context, location string) (host.ModuleID, bool, error) {
	_, identity, err := s.readIdentity(ctx, location)
	if err != nil {
		return 0, false, err
	}
	mid, ok := s.findModule(identity)
	return mid, ok, nil
}

// applyConfigs creates missing configurations. Existing ones are only
// touched when the declaration appends, and then only gain missing keys.
func (s *Service) applyConfigs(f *model.Feature) error {
	if len(f.Configs) == 0 {
		return nil
	}
	if s.configs == nil {
		logger.Warn("No configuration store available, skipping configurations", logger.Fields{"feature": f.ID().String()})
		return nil
	}
	for _, c := range f.Configs {
		pid, factoryPid := configstore.ParsePID(c.PID)
		cfg, err := s.configs.Find(pid, factoryPid)
		if err != nil {
			return errors.Wrapf(err, "feature %s: configuration %s", f.ID(), c.PID)
		}
		if cfg == nil {
			cfg, err = s.configs.Create(pid, factoryPid)
			if err != nil {
				return errors.Wrapf(err, "feature %s: configuration %s", f.ID(), c.PID)
			}
			props := make(map[string]string, len(c.Properties)+1)
			for k, v := range c.Properties {
				props[k] = v
			}
			props[configstore.KeyProperty] = configstore.Key(pid, factoryPid)
			if err := s.configs.Update(cfg, props); err != nil {
				return errors.Wrapf(err, "feature %s: configuration %s", f.ID(), c.PID)
			}
			logger.Debug("Created configuration", logger.Fields{"feature": f.ID().String(), "pid": cfg.PID})
			continue
		}
		if !c.Append {
			continue
		}
		current, err := s.configs.Properties(cfg)
		if err != nil {
			return errors.Wrapf(err, "feature %s: configuration %s", f.ID(), c.PID)
		}
		added := 0
		for k, v := range c.Properties {
			if _, ok := current[k]; !ok {
				current[k] = v
				added++
			}
		}
		if added == 0 {
			continue
		}
		if err := s.configs.Update(cfg, current); err != nil {
			return errors.Wrapf(err, "feature %s: configuration %s", f.ID(), c.PID)
		}
		logger.Debug("Appended to configuration", logger.Fields{"feature": f.ID().String(), "pid": cfg.PID, "added": added})
	}
	return nil
}

// installConfigFiles copies the feature's config files below the configured
// base directory. A leading ${...} placeholder in the final name is dropped.
func (s *Service) installConfigFiles(ctx context.Context, f *model.Feature) error {
	for _, cf := range f.ConfigFiles {
		target := filepath.Join(s.settings.ConfigFileBaseDir, filepath.FromSlash(configFileName(cf.FinalName)))
		if fsutil.Exists(target) && !cf.Override {
			logger.Debug("Config file already exists, not overriding", logger.Fields{"feature": f.ID().String(), "path": target})
			continue
		}
		if err := s.copyConfigFile(ctx, cf.Location, target); err != nil {
			return fmt.Errorf("feature %s: config file %s: %w", f.ID(), cf.Location, err)
		}
		logger.Debug("Installed config file", logger.Fields{"feature": f.ID().String(), "path": target})
	}
	return nil
}

func (s *Service) copyConfigFile(ctx context.Context, location, target string) error {
	rc, err := s.downloader.Open(ctx, location)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	if err := fsutil.EnsureFileDir(target); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(target, rc, fsutil.FileModeDefault)
}

func configFileName(finalName string) string {
	if strings.Contains(finalName, "${") {
		if i := strings.Index(finalName, "}"); i >= 0 {
			return finalName[i+1:]
		}
	}
	return finalName
}

// refreshAfterInstall computes the modules the batch forces a refresh of.
// Unless the batch boots, they are refreshed right away. Boot batches get the
// list back so it can be refreshed once modules were started.
func (s *Service) refreshAfterInstall(opts Option, st *installationState) ([]host.ModuleID, error) {
	list := opts.Has(PrintModulesToRefresh)
	doRefresh := !opts.Has(NoAutoRefresh)
	if !list && !doRefresh {
		return nil, nil
	}
	seed := st.installed.Clone()
	ids := refresh.Analyze(s.host, s.host.Modules(), seed).Minus(seed).Sorted()
	if len(ids) == 0 {
		return nil, nil
	}

	names := s.describeModules(ids)
	logger.Debug("Modules to refresh", logger.Fields{"modules": names})
	if list {
		if doRefresh {
			emit(s.hooks, Event{Phase: "refreshing", Msg: "Refreshing modules " + names})
		} else {
			emit(s.hooks, Event{Phase: "refreshing", Msg: "The following modules may need to be refreshed: " + names})
		}
	}
	if !doRefresh {
		return nil, nil
	}
	if opts.Has(Boot) {
		return ids, nil
	}
	return nil, s.refreshModules(ids)
}

// refreshModules refreshes ids, or the host's default set for nil, and waits
// for the refresh to finish. Only a refresh that cannot be started fails.
func (s *Service) refreshModules(ids []host.ModuleID) error {
	done := make(chan error, 1)
	if err := s.host.Refresh(ids, func(err error) { done <- err }); err != nil {
		return hostError(err, "refresh modules")
	}
	if err := <-done; err != nil {
		logger.Error("Error refreshing modules", logger.Fields{"error": err.Error()})
	}
	return nil
}

func (s *Service) describeModules(ids []host.ModuleID) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.host.Describe(id); ok {
			names = append(names, fmt.Sprintf("%s (%s)", d.SymbolicName, id))
		} else {
			names = append(names, id.String())
		}
	}
	return strings.Join(names, ", ")
}

// startModules starts the modules of the batch that were installed now, or
// that are marked started but are not running. BundleInfo.Start and
// NoAutoStart can veto a start.
func (s *Service) startModules(ctx context.Context, st *installationState, opts Option) error {
	ids := st.modules.Sorted()
	if s.settings.RespectStartLevel {
		sort.SliceStable(ids, func(i, j int) bool {
			return s.host.StartLevel(ids[i]) < s.host.StartLevel(ids[j])
		})
	}
	for _, id := range ids {
		d, ok := s.host.Describe(id)
		if !ok || d.IsFragment() {
			continue
		}
		if !st.installed.Contains(id) && (s.host.IsActive(id) || !s.host.IsPersistentlyStarted(id)) {
			continue
		}
		if info, ok := st.moduleInfos[id]; ok && !info.Start {
			continue
		}
		if opts.Has(NoAutoStart) {
			continue
		}
		s.report(opts, Event{Phase: "starting", ID: id.String(), Msg: "Starting module " + d.Location})
		if err := s.host.Start(ctx, id); err != nil {
			return fmt.Errorf("could not start module %s in feature(s) %s: %w", d.Location, s.featureNamesContaining(ctx, d.Location), hostError(err, "start"))
		}
	}
	return nil
}

func (s *Service) featureNamesContaining(ctx context.Context, location string) string {
	features, err := s.FeaturesContainingModule(ctx, location)
	if err != nil || len(features) == 0 {
		return "unknown"
	}
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, f.ID().String())
	}
	return strings.Join(names, ", ")
}

// rollback undoes a failed batch. With NoCleanIfFailure the installed
// modules are force started instead. Errors are logged and dropped.
func (s *Service) rollback(ctx context.Context, batch string, opts Option, st, failure *installationState) {
	var result *multierror.Error
	if opts.Has(NoCleanIfFailure) {
		started := st.installed.Clone()
		for id := range failure.installed {
			started.Add(id)
		}
		for _, id := range started.Sorted() {
			if err := s.host.Start(ctx, id); err != nil {
				result = multierror.Append(result, err)
			}
		}
	} else {
		for _, id := range st.installed.Sorted() {
			if err := s.host.Uninstall(ctx, id); err != nil {
				result = multierror.Append(result, err)
			}
		}
		for _, id := range failure.installed.Minus(st.installed).Sorted() {
			if err := s.host.Uninstall(ctx, id); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Debug("Ignoring errors during rollback", logger.Fields{"batch": batch, "error": err.Error()})
	}
}

// report emits progress when the caller asked for it.
func (s *Service) report(opts Option, e Event) {
	if opts.Has(Verbose) || e.Phase == "error" || e.Phase == "done" {
		emit(s.hooks, e)
	}
}

// hostError makes sure err carries ErrHostOperation or ErrModuleFormat.
func hostError(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, errors.ErrHostOperation) || errors.Is(err, errors.ErrModuleFormat) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%s: %w: %w", msg, errors.ErrHostOperation, err)
}
