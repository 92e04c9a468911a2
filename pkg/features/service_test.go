package features

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/featurectl/pkg/configstore"
	"github.com/glorpus-work/featurectl/pkg/download"
	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/events"
	"github.com/glorpus-work/featurectl/pkg/host"
	"github.com/glorpus-work/featurectl/pkg/host/memhost"
	"github.com/glorpus-work/featurectl/pkg/host/mocks"
	"github.com/glorpus-work/featurectl/pkg/manifest"
	"github.com/glorpus-work/featurectl/pkg/model"
	"github.com/glorpus-work/featurectl/pkg/repository"
	"github.com/glorpus-work/featurectl/pkg/resolver"
	"github.com/glorpus-work/featurectl/pkg/state"
)

type recorder struct {
	mu     sync.Mutex
	events []events.FeatureEvent
}

func (r *recorder) FeatureEvent(e events.FeatureEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) RepositoryEvent(events.RepositoryEvent) {}

// ids returns "kind feature" for every recorded event, replays prefixed.
func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		prefix := ""
		if e.Replay {
			prefix = "replay "
		}
		out = append(out, prefix+e.Kind.String()+" "+e.Feature.ID().String())
	}
	return out
}

type fixture struct {
	t         *testing.T
	dir       string
	repo      string
	host      *memhost.Host
	front     host.Host
	resolvers *resolver.Registry
	hooks     Hooks
	configs   *configstore.FileStore
	state     *state.Store
	events    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{
		t:         t,
		dir:       dir,
		repo:      filepath.Join(dir, "features.yaml"),
		host:      memhost.New(),
		resolvers: resolver.NewRegistry(),
		state:     state.NewStore(filepath.Join(dir, "state")),
		events:    &recorder{},
	}
}

// module writes an exploded module and returns its location.
func (f *fixture) module(name string, headers manifest.Manifest) string {
	f.t.Helper()
	if headers == nil {
		headers = manifest.Manifest{}
	}
	if _, ok := headers[manifest.HeaderSymbolicName]; !ok {
		headers[manifest.HeaderSymbolicName] = "org.example." + name
	}
	if _, ok := headers[manifest.HeaderVersion]; !ok {
		headers[manifest.HeaderVersion] = "1.0.0"
	}
	moduleDir := filepath.Join(f.dir, "modules", name)
	require.NoError(f.t, os.MkdirAll(filepath.Join(moduleDir, "META-INF"), 0o755))
	var b bytes.Buffer
	_, err := headers.WriteTo(&b)
	require.NoError(f.t, err)
	require.NoError(f.t, os.WriteFile(filepath.Join(moduleDir, filepath.FromSlash(manifest.Path)), b.Bytes(), 0o644))
	return moduleDir
}

func (f *fixture) writeRepository(features ...*model.Feature) {
	f.t.Helper()
	data, err := yaml.Marshal(&model.Repository{Name: "test", Features: features})
	require.NoError(f.t, err)
	require.NoError(f.t, os.WriteFile(f.repo, data, 0o644))
}

func (f *fixture) newService(settings Settings) *Service {
	f.t.Helper()
	dl := download.NewManager(time.Second, "", filepath.Join(f.dir, "cache"))
	dispatcher := events.NewDispatcher()
	configs, err := configstore.NewFileStore(filepath.Join(f.dir, "configs"))
	require.NoError(f.t, err)
	f.configs = configs
	var h host.Host = f.host
	if f.front != nil {
		h = f.front
	}
	svc, err := New(Collaborators{
		Host:       h,
		Registry:   repository.NewRegistry(repository.NewYAMLLoader(dl, nil), dispatcher),
		Downloader: dl,
		Dispatcher: dispatcher,
		Resolvers:  f.resolvers,
		Configs:    configs,
		State:      f.state,
		Hooks:      f.hooks,
	}, settings)
	require.NoError(f.t, err)
	f.t.Cleanup(svc.Stop)
	svc.RegisterListener(f.events)
	return svc
}

// start writes the repository, creates a service and registers the repository.
func (f *fixture) start(features ...*model.Feature) *Service {
	f.t.Helper()
	f.writeRepository(features...)
	svc := f.newService(Settings{})
	require.NoError(f.t, svc.AddRepository(context.Background(), f.repo, false))
	return svc
}

func (f *fixture) symbolicNames() []string {
	var names []string
	for _, id := range f.host.Modules() {
		d, ok := f.host.Describe(id)
		require.True(f.t, ok)
		names = append(names, d.SymbolicName)
	}
	sort.Strings(names)
	return names
}

func (f *fixture) moduleID(symbolicName string) host.ModuleID {
	f.t.Helper()
	for _, id := range f.host.Modules() {
		if d, ok := f.host.Describe(id); ok && d.SymbolicName == symbolicName {
			return id
		}
	}
	f.t.Fatalf("module %s not installed", symbolicName)
	return 0
}

func bundle(location string) model.BundleInfo {
	return model.BundleInfo{Location: location, Start: true}
}

func dep(name, ver string) model.Dependency {
	return model.Dependency{Name: name, Version: ver}
}

func installedIDs(svc *Service) []string {
	var out []string
	for _, f := range svc.ListInstalledFeatures() {
		out = append(out, f.ID().String())
	}
	return out
}

func TestInstallFeature_WithDependencies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	api := f.module("api", manifest.Manifest{manifest.HeaderExportPackage: "org.example.api;version=1.0"})
	web := f.module("web", manifest.Manifest{manifest.HeaderImportPackage: `org.example.api;version="[1,2)"`})
	svc := f.start(
		&model.Feature{Name: "base", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(api)}},
		&model.Feature{Name: "web", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(web)}, Dependencies: []model.Dependency{dep("base", "")}},
	)

	require.NoError(t, svc.InstallFeature(ctx, "web", "", 0))

	assert.Equal(t, []string{"base/1.0.0", "web/1.0.0"}, installedIDs(svc))
	assert.Equal(t, []string{"org.example.api", "org.example.web"}, f.symbolicNames())
	assert.True(t, f.host.IsActive(f.moduleID("org.example.web")))
	assert.True(t, f.host.IsActive(f.moduleID("org.example.api")))

	modules, ok := svc.InstalledModules(model.FeatureID{Name: "base", Version: "1.0.0"})
	require.True(t, ok)
	assert.Equal(t, []host.ModuleID{f.moduleID("org.example.api")}, modules)

	assert.Equal(t, []string{"FeatureInstalled web/1.0.0"}, f.events.ids())

	saved, err := f.state.Load()
	require.NoError(t, err)
	assert.Len(t, saved.Features, 2)
	assert.Equal(t, []string{f.repo}, saved.Repositories)
}

func TestInstallFeature_NotFound(t *testing.T) {
	f := newFixture(t)
	svc := f.start(&model.Feature{Name: "web", Version: "1.0.0"})

	err := svc.InstallFeature(context.Background(), "web", "2.0.0", 0)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Empty(t, svc.ListInstalledFeatures())
}

func TestInstallFeature_UnsatisfiedDependencyRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lib := f.module("lib", nil)
	svc := f.start(
		&model.Feature{Name: "lib", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(lib)}},
		&model.Feature{Name: "app", Version: "1.0.0", Dependencies: []model.Dependency{dep("lib", ""), dep("missing", "")}},
	)

	err := svc.InstallFeature(ctx, "app", "1.0.0", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Contains(t, err.Error(), "missing")

	assert.Empty(t, f.host.Modules())
	assert.Empty(t, svc.ListInstalledFeatures())
	assert.Empty(t, f.events.ids())
}

func TestInstallFeatures_ContinueBatchOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lib := f.module("lib", nil)
	good := f.module("good", nil)
	broken := &model.Feature{Name: "broken", Version: "1.0.0", Dependencies: []model.Dependency{dep("lib", ""), dep("missing", "")}}
	fine := &model.Feature{Name: "fine", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(good)}}
	svc := f.start(
		&model.Feature{Name: "lib", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(lib)}},
		broken,
		fine,
	)

	require.NoError(t, svc.InstallFeatures(ctx, []*model.Feature{broken, fine}, ContinueBatchOnFailure))

	assert.Equal(t, []string{"fine/1.0.0"}, installedIDs(svc))
	assert.Equal(t, []string{"org.example.good"}, f.symbolicNames())
	assert.Equal(t, []string{"FeatureInstalled fine/1.0.0"}, f.events.ids())
}

func TestInstallFeatures_FailingBatchRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	good := f.module("good", nil)
	broken := &model.Feature{Name: "broken", Version: "1.0.0", Dependencies: []model.Dependency{dep("missing", "")}}
	fine := &model.Feature{Name: "fine", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(good)}}
	svc := f.start(broken, fine)

	err := svc.InstallFeatures(ctx, []*model.Feature{fine, broken}, 0)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Empty(t, f.host.Modules())
	assert.Empty(t, svc.ListInstalledFeatures())
}

func TestInstallFeature_StartFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	web := f.module("web", nil)
	svc := f.start(&model.Feature{Name: "web", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(web)}})
	f.host.FailStart("org.example.web", fmt.Errorf("activator failed"))

	err := svc.InstallFeature(ctx, "web", "1.0.0", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrHostOperation)
	assert.Contains(t, err.Error(), "could not start module "+web)
	assert.Contains(t, err.Error(), "web/1.0.0")

	assert.Empty(t, f.host.Modules())
	assert.Empty(t, svc.ListInstalledFeatures())
}

func TestInstallFeature_NoCleanIfFailureKeepsModules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	api := f.module("api", nil)
	web := f.module("web", nil)
	svc := f.start(&model.Feature{Name: "web", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(api), bundle(web)}})
	f.host.FailStart("org.example.web", fmt.Errorf("activator failed"))

	err := svc.InstallFeature(ctx, "web", "1.0.0", NoCleanIfFailure)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrHostOperation)

	assert.Equal(t, []string{"org.example.api", "org.example.web"}, f.symbolicNames())
	assert.True(t, f.host.IsActive(f.moduleID("org.example.api")))
	assert.False(t, f.host.IsActive(f.moduleID("org.example.web")))
	assert.True(t, f.host.IsPersistentlyStarted(f.moduleID("org.example.web")))
	assert.Empty(t, svc.ListInstalledFeatures())
	assert.Empty(t, f.events.ids())
}

// delegatingHost returns a mock host backed by mem that records the symbolic
// names of started modules. beforeRefreshed, when set, runs before a refresh
// reports completion.
func delegatingHost(t *testing.T, mem *memhost.Host, beforeRefreshed func()) (*mocks.MockHost, *[]string) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockHost(ctrl)
	var started []string
	m.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(mem.Install).AnyTimes()
	m.EXPECT().Uninstall(gomock.Any(), gomock.Any()).DoAndReturn(mem.Uninstall).AnyTimes()
	m.EXPECT().SetStartLevel(gomock.Any(), gomock.Any()).DoAndReturn(mem.SetStartLevel).AnyTimes()
	m.EXPECT().StartLevel(gomock.Any()).DoAndReturn(mem.StartLevel).AnyTimes()
	m.EXPECT().IsPersistentlyStarted(gomock.Any()).DoAndReturn(mem.IsPersistentlyStarted).AnyTimes()
	m.EXPECT().IsActive(gomock.Any()).DoAndReturn(mem.IsActive).AnyTimes()
	m.EXPECT().Modules().DoAndReturn(mem.Modules).AnyTimes()
	m.EXPECT().Describe(gomock.Any()).DoAndReturn(mem.Describe).AnyTimes()
	m.EXPECT().IsWired(gomock.Any(), gomock.Any()).DoAndReturn(mem.IsWired).AnyTimes()
	m.EXPECT().Refresh(gomock.Any(), gomock.Any()).DoAndReturn(func(ids []host.ModuleID, onComplete func(error)) error {
		return mem.Refresh(ids, func(err error) {
			if beforeRefreshed != nil {
				beforeRefreshed()
			}
			onComplete(err)
		})
	}).AnyTimes()
	m.EXPECT().Start(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, id host.ModuleID) error {
		if d, ok := mem.Describe(id); ok {
			started = append(started, d.SymbolicName)
		}
		return mem.Start(ctx, id)
	}).AnyTimes()
	return m, &started
}

func TestInstallFeature_StartOrder(t *testing.T) {
	bundles := func(f *fixture) []model.BundleInfo {
		return []model.BundleInfo{
			{Location: f.module("late", nil), Start: true, StartLevel: 90},
			{Location: f.module("middle", nil), Start: true},
			{Location: f.module("early", nil), Start: true, StartLevel: 10},
		}
	}

	tests := []struct {
		name     string
		respect  bool
		expected []string
	}{
		{name: "by start level", respect: true, expected: []string{"org.example.early", "org.example.middle", "org.example.late"}},
		{name: "install order", respect: false, expected: []string{"org.example.late", "org.example.middle", "org.example.early"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			mock, started := delegatingHost(t, f.host, nil)
			f.front = mock
			f.writeRepository(&model.Feature{Name: "app", Version: "1.0.0", Bundles: bundles(f)})
			svc := f.newService(Settings{RespectStartLevel: tt.respect})
			require.NoError(t, svc.AddRepository(ctx, f.repo, false))

			require.NoError(t, svc.InstallFeature(ctx, "app", "", 0))
			assert.Equal(t, tt.expected, *started)
		})
	}
}

func TestInstallFeature_PreexistingModuleIsNotOwned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	core := f.module("core", nil)
	web := f.module("web", nil)
	svc := f.start(
		&model.Feature{Name: "web", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(core), bundle(web)}},
		&model.Feature{Name: "console", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(web)}},
	)
	coreID, err := f.host.Install(ctx, core, nil)
	require.NoError(t, err)

	require.NoError(t, svc.InstallFeature(ctx, "web", "", 0))
	modules, ok := svc.InstalledModules(model.FeatureID{Name: "web", Version: "1.0.0"})
	require.True(t, ok)
	assert.Equal(t, []host.ModuleID{f.moduleID("org.example.web")}, modules)

	// a module owned by an installed feature is shared
	require.NoError(t, svc.InstallFeature(ctx, "console", "", 0))
	modules, ok = svc.InstalledModules(model.FeatureID{Name: "console", Version: "1.0.0"})
	require.True(t, ok)
	assert.Equal(t, []host.ModuleID{f.moduleID("org.example.web")}, modules)

	require.NoError(t, svc.UninstallFeature(ctx, "web", "", 0))
	assert.Equal(t, []string{"org.example.core", "org.example.web"}, f.symbolicNames())

	require.NoError(t, svc.UninstallFeature(ctx, "console", "", 0))
	assert.Equal(t, []host.ModuleID{coreID}, f.host.Modules())
}

func TestInstallFeature_NoAutoStartAndStartFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	eager := f.module("eager", nil)
	lazy := f.module("lazy", nil)
	svc := f.start(&model.Feature{Name: "app", Version: "1.0.0", Bundles: []model.BundleInfo{
		{Location: eager, Start: true, StartLevel: 60},
		{Location: lazy, Start: false},
	}})

	require.NoError(t, svc.InstallFeature(ctx, "app", "1.0.0", 0))
	assert.True(t, f.host.IsActive(f.moduleID("org.example.eager")))
	assert.False(t, f.host.IsActive(f.moduleID("org.example.lazy")))
	assert.Equal(t, 60, f.host.StartLevel(f.moduleID("org.example.eager")))

	require.NoError(t, svc.UninstallFeature(ctx, "app", "", NoAutoRefresh))
	require.NoError(t, svc.InstallFeature(ctx, "app", "1.0.0", NoAutoStart))
	assert.False(t, f.host.IsActive(f.moduleID("org.example.eager")))
}

func TestInstallFeature_SelfAndCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.start(
		&model.Feature{Name: "self", Version: "1.0.0", Dependencies: []model.Dependency{dep("self", "1.0.0")}},
		&model.Feature{Name: "a", Version: "1.0.0", Dependencies: []model.Dependency{dep("b", "")}},
		&model.Feature{Name: "b", Version: "1.0.0", Dependencies: []model.Dependency{dep("a", "")}},
	)

	require.NoError(t, svc.InstallFeature(ctx, "self", "", 0))
	err := svc.InstallFeature(ctx, "a", "", 0)
	assert.ErrorIs(t, err, errors.ErrDependencyCycle)
}

func TestInstallFeature_DependencyVersionRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v1 := f.module("lib-1", manifest.Manifest{manifest.HeaderSymbolicName: "org.example.lib", manifest.HeaderVersion: "1.5.0"})
	v2 := f.module("lib-2", manifest.Manifest{manifest.HeaderSymbolicName: "org.example.lib", manifest.HeaderVersion: "2.1.0"})
	svc := f.start(
		&model.Feature{Name: "lib", Version: "1.5.0", Bundles: []model.BundleInfo{bundle(v1)}},
		&model.Feature{Name: "lib", Version: "2.1.0", Bundles: []model.BundleInfo{bundle(v2)}},
		&model.Feature{Name: "app", Version: "1.0.0", Dependencies: []model.Dependency{dep("lib", "[1,2)")}},
	)

	require.NoError(t, svc.InstallFeature(ctx, "app", "", 0))
	assert.Equal(t, []string{"app/1.0.0", "lib/1.5.0"}, installedIDs(svc))
}

func TestUninstallFeature_SharedModulesStay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	shared := f.module("shared", nil)
	own := f.module("own", nil)
	svc := f.start(
		&model.Feature{Name: "first", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(shared), bundle(own)}},
		&model.Feature{Name: "second", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(shared)}},
	)
	require.NoError(t, svc.InstallFeature(ctx, "first", "", 0))
	require.NoError(t, svc.InstallFeature(ctx, "second", "", 0))

	require.NoError(t, svc.UninstallFeature(ctx, "first", "", 0))
	assert.Equal(t, []string{"org.example.shared"}, f.symbolicNames())
	assert.Equal(t, []string{"second/1.0.0"}, installedIDs(svc))

	require.NoError(t, svc.UninstallFeature(ctx, "second", "1.0.0", 0))
	assert.Empty(t, f.host.Modules())
	assert.Equal(t, []string{
		"FeatureInstalled first/1.0.0",
		"FeatureInstalled second/1.0.0",
		"FeatureUninstalled first/1.0.0",
		"FeatureUninstalled second/1.0.0",
	}, f.events.ids())
}

func TestUninstallFeature_NotInstalledAndAmbiguous(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v1 := f.module("lib-1", manifest.Manifest{manifest.HeaderSymbolicName: "org.example.lib", manifest.HeaderVersion: "1.0.0"})
	v2 := f.module("lib-2", manifest.Manifest{manifest.HeaderSymbolicName: "org.example.lib", manifest.HeaderVersion: "2.0.0"})
	svc := f.start(
		&model.Feature{Name: "lib", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(v1)}},
		&model.Feature{Name: "lib", Version: "2.0.0", Bundles: []model.BundleInfo{bundle(v2)}},
	)

	assert.ErrorIs(t, svc.UninstallFeature(ctx, "lib", "", 0), errors.ErrNotInstalled)

	require.NoError(t, svc.InstallFeature(ctx, "lib", "1.0.0", 0))
	require.NoError(t, svc.InstallFeature(ctx, "lib", "2.0.0", 0))

	err := svc.UninstallFeature(ctx, "lib", "", 0)
	assert.ErrorIs(t, err, errors.ErrAmbiguousVersion)
	assert.Contains(t, err.Error(), "1.0.0, 2.0.0")

	require.NoError(t, svc.UninstallFeature(ctx, "lib", "2.0.0", 0))
	require.NoError(t, svc.UninstallFeature(ctx, "lib", "", 0))
	assert.Empty(t, f.host.Modules())
}

func TestConditionals_InstalledAndRemovedWithCondition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	web := f.module("web", nil)
	ssh := f.module("ssh", nil)
	webSSH := f.module("web-ssh", nil)
	svc := f.start(
		&model.Feature{
			Name:    "web",
			Version: "1.0.0",
			Bundles: []model.BundleInfo{bundle(web)},
			Conditionals: []model.Conditional{{
				Condition: []model.Dependency{dep("ssh", "")},
				Bundles:   []model.BundleInfo{bundle(webSSH)},
			}},
		},
		&model.Feature{Name: "ssh", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(ssh)}},
	)

	require.NoError(t, svc.InstallFeature(ctx, "web", "", 0))
	assert.Equal(t, []string{"org.example.web"}, f.symbolicNames())

	require.NoError(t, svc.InstallFeature(ctx, "ssh", "", 0))
	assert.Equal(t, []string{"org.example.ssh", "org.example.web", "org.example.web-ssh"}, f.symbolicNames())
	assert.Equal(t, []string{"ssh/1.0.0", "web/1.0.0", "web-condition-ssh/1.0.0"}, installedIDs(svc))

	require.NoError(t, svc.UninstallFeature(ctx, "ssh", "", 0))
	assert.Equal(t, []string{"org.example.web"}, f.symbolicNames())
	assert.Equal(t, []string{"web/1.0.0"}, installedIDs(svc))
}

func TestConditionals_SatisfiedInSameBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ssh := f.module("ssh", nil)
	webSSH := f.module("web-ssh", nil)
	web := &model.Feature{
		Name:    "web",
		Version: "1.0.0",
		Conditionals: []model.Conditional{{
			Condition: []model.Dependency{dep("ssh", "")},
			Bundles:   []model.BundleInfo{bundle(webSSH)},
		}},
	}
	sshFeature := &model.Feature{Name: "ssh", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(ssh)}}
	svc := f.start(web, sshFeature)

	require.NoError(t, svc.InstallFeatures(ctx, []*model.Feature{web, sshFeature}, 0))
	assert.Equal(t, []string{"org.example.ssh", "org.example.web-ssh"}, f.symbolicNames())

	require.NoError(t, svc.UninstallFeature(ctx, "web", "", 0))
	assert.Equal(t, []string{"org.example.ssh"}, f.symbolicNames())
}

func TestInstallFeature_Configs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.start(
		&model.Feature{Name: "web", Version: "1.0.0", Configs: []model.ConfigInfo{
			{PID: "org.example.web", Properties: map[string]string{"port": "8080"}},
			{PID: "org.example.pool-main", Properties: map[string]string{"size": "5"}},
		}},
		&model.Feature{Name: "web-extra", Version: "1.0.0", Configs: []model.ConfigInfo{
			{PID: "org.example.web", Append: true, Properties: map[string]string{"port": "9090", "host": "localhost"}},
		}},
	)

	require.NoError(t, svc.InstallFeature(ctx, "web", "", 0))
	cfg, err := f.configs.Find("org.example.web", "")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	props, err := f.configs.Properties(cfg)
	require.NoError(t, err)
	assert.Equal(t, "8080", props["port"])
	assert.Equal(t, configstore.Key("org.example.web", ""), props[configstore.KeyProperty])

	pool, err := f.configs.Find("org.example.pool", "main")
	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.True(t, strings.HasPrefix(pool.PID, "org.example.pool."))

	require.NoError(t, svc.InstallFeature(ctx, "web-extra", "", 0))
	props, err = f.configs.Properties(cfg)
	require.NoError(t, err)
	assert.Equal(t, "8080", props["port"])
	assert.Equal(t, "localhost", props["host"])

	// a second install finds the factory instance instead of creating another
	require.NoError(t, svc.InstallFeature(ctx, "web", "", 0))
	assert.Len(t, f.configs.List(), 2)
}

func TestInstallFeature_ConfigFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	source := filepath.Join(f.dir, "web.cfg")
	require.NoError(t, os.WriteFile(source, []byte("port=8080\n"), 0o644))
	etc := filepath.Join(f.dir, "etc")

	f.writeRepository(
		&model.Feature{Name: "web", Version: "1.0.0", ConfigFiles: []model.ConfigFileInfo{
			{Location: source, FinalName: "${app.etc}/conf/web.cfg"},
		}},
		&model.Feature{Name: "web-override", Version: "1.0.0", ConfigFiles: []model.ConfigFileInfo{
			{Location: source, FinalName: "/conf/web.cfg", Override: true},
		}},
	)
	svc := f.newService(Settings{ConfigFileBaseDir: etc})
	require.NoError(t, svc.AddRepository(ctx, f.repo, false))

	target := filepath.Join(etc, "conf", "web.cfg")
	require.NoError(t, svc.InstallFeature(ctx, "web", "", 0))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "port=8080\n", string(data))

	require.NoError(t, os.WriteFile(source, []byte("port=9090\n"), 0o644))
	require.NoError(t, svc.InstallFeature(ctx, "web", "", 0))
	data, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "port=8080\n", string(data))

	require.NoError(t, svc.InstallFeature(ctx, "web-override", "", 0))
	data, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "port=9090\n", string(data))
}

func TestInstallFeature_Resolvers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	declared := f.module("declared", nil)
	resolved := f.module("resolved", nil)
	f.writeRepository(
		&model.Feature{Name: "optional", Version: "1.0.0", Resolver: "(custom)", Bundles: []model.BundleInfo{bundle(declared)}},
		&model.Feature{Name: "required", Version: "1.0.0", Resolver: "custom", Bundles: []model.BundleInfo{bundle(declared)}},
	)
	svc := f.newService(Settings{ResolverTimeout: 50 * time.Millisecond})
	require.NoError(t, svc.AddRepository(ctx, f.repo, false))

	require.NoError(t, svc.InstallFeature(ctx, "optional", "", 0))
	assert.Equal(t, []string{"org.example.declared"}, f.symbolicNames())

	err := svc.InstallFeature(ctx, "required", "", 0)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	f.resolvers.Register("custom", resolver.ResolverFunc(func(context.Context, *model.Feature) ([]model.BundleInfo, error) {
		return []model.BundleInfo{bundle(resolved)}, nil
	}))
	require.NoError(t, svc.InstallFeature(ctx, "required", "", 0))
	assert.Equal(t, []string{"org.example.declared", "org.example.resolved"}, f.symbolicNames())
}

func TestInstallFeature_RefreshesOptionalImporters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	consumer := f.module("consumer", manifest.Manifest{manifest.HeaderImportPackage: "org.example.logging;resolution:=optional"})
	provider := f.module("provider", manifest.Manifest{manifest.HeaderExportPackage: "org.example.logging;version=1.0"})

	var mu sync.Mutex
	var messages []string
	f.hooks = Hooks{OnEvent: func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		messages = append(messages, e.Msg)
	}}
	svc := f.start(
		&model.Feature{Name: "consumer", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(consumer)}},
		&model.Feature{Name: "provider", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(provider)}},
	)

	require.NoError(t, svc.InstallFeature(ctx, "consumer", "", 0))
	before := f.host.Refreshes()

	require.NoError(t, svc.InstallFeature(ctx, "provider", "", PrintModulesToRefresh))
	assert.Greater(t, f.host.Refreshes(), before)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, strings.Join(messages, "\n"), "Refreshing modules org.example.consumer")
}

func TestInstallFeature_NoAutoRefreshOnlyReports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	consumer := f.module("consumer", manifest.Manifest{manifest.HeaderImportPackage: "org.example.logging;resolution:=optional"})
	provider := f.module("provider", manifest.Manifest{manifest.HeaderExportPackage: "org.example.logging;version=1.0"})

	var messages []string
	f.hooks = Hooks{OnEvent: func(e Event) { messages = append(messages, e.Msg) }}
	svc := f.start(
		&model.Feature{Name: "consumer", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(consumer)}},
		&model.Feature{Name: "provider", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(provider)}},
	)
	require.NoError(t, svc.InstallFeature(ctx, "consumer", "", NoAutoRefresh))
	before := f.host.Refreshes()

	require.NoError(t, svc.InstallFeature(ctx, "provider", "", NoAutoRefresh|PrintModulesToRefresh))
	assert.Equal(t, before, f.host.Refreshes())
	assert.Contains(t, strings.Join(messages, "\n"), "may need to be refreshed: org.example.consumer")
}

func TestStart_RestoresLedgerAndReplays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	web := f.module("web", nil)
	svc := f.start(&model.Feature{Name: "web", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(web)}})
	require.NoError(t, svc.InstallFeature(ctx, "web", "", 0))
	modules, _ := svc.InstalledModules(model.FeatureID{Name: "web", Version: "1.0.0"})
	svc.Stop()

	f.events = &recorder{}
	restarted := f.newService(Settings{})
	job, err := restarted.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, job.Wait(ctx))

	assert.Equal(t, []string{"replay FeatureInstalled web/1.0.0"}, f.events.ids())
	assert.Equal(t, []string{"web/1.0.0"}, installedIDs(restarted))
	restoredModules, ok := restarted.InstalledModules(model.FeatureID{Name: "web", Version: "1.0.0"})
	require.True(t, ok)
	assert.Equal(t, modules, restoredModules)
	assert.Len(t, restarted.ListRepositories(), 1)

	// the restored definition is complete, so uninstalling removes its module
	require.NoError(t, restarted.UninstallFeature(ctx, "web", "", 0))
	assert.Empty(t, f.host.Modules())

	late := &recorder{}
	restarted.RegisterListener(late)
	assert.Empty(t, late.ids())
}

func TestStart_BootFeatures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	web := f.module("web", nil)
	f.writeRepository(&model.Feature{Name: "web", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(web)}})
	settings := Settings{
		Repositories: []string{f.repo},
		BootFeatures: "web;version=1.0.0, missing",
		BootAsync:    true,
	}

	svc := f.newService(settings)
	job, err := svc.Start(ctx)
	require.NoError(t, err)
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("boot did not finish")
	}
	require.NoError(t, job.Err())
	assert.Equal(t, []string{"web/1.0.0"}, installedIDs(svc))

	saved, err := f.state.Load()
	require.NoError(t, err)
	assert.True(t, saved.BootFeaturesInstalled)

	require.NoError(t, svc.UninstallFeature(ctx, "web", "", 0))
	svc.Stop()

	// boot features are installed once only
	again := f.newService(settings)
	job, err = again.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, job.Wait(ctx))
	assert.Empty(t, installedIDs(again))
	assert.Len(t, again.ListRepositories(), 1)
}

func TestStart_BootWaitsForRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	consumer := f.module("consumer", manifest.Manifest{manifest.HeaderImportPackage: "org.example.logging;resolution:=optional"})
	provider := f.module("provider", manifest.Manifest{manifest.HeaderExportPackage: "org.example.logging;version=1.0"})
	svc := f.start(
		&model.Feature{Name: "consumer", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(consumer)}},
		&model.Feature{Name: "provider", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(provider)}},
	)
	require.NoError(t, svc.InstallFeature(ctx, "consumer", "", 0))
	svc.Stop()

	var refreshed atomic.Bool
	mock, _ := delegatingHost(t, f.host, func() {
		time.Sleep(100 * time.Millisecond)
		refreshed.Store(true)
	})
	f.front = mock
	booted := f.newService(Settings{BootFeatures: "provider", BootAsync: true})
	job, err := booted.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, job.Wait(ctx))

	assert.True(t, refreshed.Load())
	assert.Equal(t, []string{"consumer/1.0.0", "provider/1.0.0"}, installedIDs(booted))
	assert.True(t, f.host.IsWired(f.moduleID("org.example.consumer"), manifest.Import{Package: "org.example.logging"}))
}

func TestParseBootFeatures(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []model.FeatureID
	}{
		{"empty", " ", nil},
		{"names", "a, b", []model.FeatureID{{Name: "a", Version: "0.0.0"}, {Name: "b", Version: "0.0.0"}}},
		{"versions", `a;version=1.0.0,b; version="[2,3)"`, []model.FeatureID{{Name: "a", Version: "1.0.0"}, {Name: "b", Version: "[2,3)"}}},
		{"blank entries", "a,,", []model.FeatureID{{Name: "a", Version: "0.0.0"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseBootFeatures(tt.in))
		})
	}
}

func TestRepositories_RefreshKeepsPreviousOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.start(&model.Feature{Name: "web", Version: "1.0.0"})

	require.NoError(t, os.WriteFile(f.repo, []byte("features: [\n"), 0o644))
	err := svc.RefreshRepository(ctx, f.repo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to refresh features repository")

	all, err := svc.ListFeatures(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "web", all[0].Name)

	f.writeRepository(&model.Feature{Name: "web", Version: "1.0.0"}, &model.Feature{Name: "api", Version: "1.0.0"})
	require.NoError(t, svc.AddRepository(ctx, f.repo, false))
	all, err = svc.ListFeatures(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRepositories_AddInstallAndRemoveUninstall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	web := f.module("web", nil)
	f.writeRepository(&model.Feature{Name: "web", Version: "1.0.0", Bundles: []model.BundleInfo{bundle(web)}})
	svc := f.newService(Settings{})

	require.NoError(t, svc.AddRepository(ctx, f.repo, true))
	assert.Equal(t, []string{"web/1.0.0"}, installedIDs(svc))

	features, err := svc.FeaturesContainingModule(ctx, web)
	require.NoError(t, err)
	require.Len(t, features, 1)

	require.NoError(t, svc.RemoveRepository(ctx, f.repo, true))
	assert.Empty(t, installedIDs(svc))
	assert.Empty(t, svc.ListRepositories())
	assert.Empty(t, f.host.Modules())

	assert.ErrorIs(t, svc.RemoveRepository(ctx, f.repo, false), errors.ErrNotFound)
}

func TestGetFeature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.start(
		&model.Feature{Name: "web", Version: "1.0.0"},
		&model.Feature{Name: "web", Version: "1.2.0"},
		&model.Feature{Name: "web", Version: "2.0.0"},
	)

	tests := []struct {
		ver  string
		want string
	}{
		{"", "2.0.0"},
		{"0.0.0", "2.0.0"},
		{"1.0.0", "1.0.0"},
		{"[1,2)", "1.2.0"},
		{"[3,4)", ""},
	}
	for _, tt := range tests {
		t.Run(tt.ver, func(t *testing.T) {
			got, err := svc.GetFeature(ctx, "web", tt.ver)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Version)
		})
	}
}

func TestService_Stop(t *testing.T) {
	f := newFixture(t)
	svc := f.start(&model.Feature{Name: "web", Version: "1.0.0"})
	svc.Stop()
	svc.Stop()

	assert.Empty(t, svc.ListRepositories())
	err := svc.InstallFeatures(context.Background(), []*model.Feature{{Name: "web"}}, 0)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestOption_String(t *testing.T) {
	assert.Equal(t, "", Option(0).String())
	assert.Equal(t, "NoCleanIfFailure|ContinueBatchOnFailure|Boot", (NoCleanIfFailure | ContinueBatchOnFailure | Boot).String())
	assert.True(t, (Verbose | NoAutoStart).Has(NoAutoStart))
	assert.False(t, Verbose.Has(Verbose|NoAutoStart))
}
