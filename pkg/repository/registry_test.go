package repository

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/featurectl/pkg/auth"
	"github.com/glorpus-work/featurectl/pkg/download"
	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/events"
	"github.com/glorpus-work/featurectl/pkg/model"
	"github.com/glorpus-work/featurectl/test/testutil"
)

type mapLoader struct {
	repos map[string]*model.Repository
	fail  map[string]bool
	loads int
}

func (l *mapLoader) Load(_ context.Context, uri string) (*model.Repository, error) {
	l.loads++
	if l.fail[uri] {
		return nil, fmt.Errorf("cannot reach %s", uri)
	}
	repo, ok := l.repos[uri]
	if !ok {
		return nil, fmt.Errorf("%s: %w", uri, errors.ErrNotFound)
	}
	return repo, nil
}

func feature(name, ver string) *model.Feature {
	return &model.Feature{Name: name, Version: ver}
}

func newTestRegistry(repos map[string]*model.Repository) (*Registry, *mapLoader, *[]events.RepositoryEvent) {
	loader := &mapLoader{repos: repos, fail: map[string]bool{}}
	d := events.NewDispatcher()
	var seen []events.RepositoryEvent
	d.Register(&events.ListenerFuncs{OnRepository: func(e events.RepositoryEvent) { seen = append(seen, e) }}, nil)
	return NewRegistry(loader, d), loader, &seen
}

func TestRegistryAddRemove(t *testing.T) {
	ctx := context.Background()
	repo := &model.Repository{URI: "a", Features: []*model.Feature{feature("web", "1.0.0")}}
	reg, _, seen := newTestRegistry(map[string]*model.Repository{"a": repo})

	_, err := reg.Add(ctx, "a")
	require.NoError(t, err)
	_, err = reg.Add(ctx, "a")
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)
	assert.Equal(t, []string{"a"}, reg.URIs())

	removed, err := reg.Remove("a")
	require.NoError(t, err)
	assert.Same(t, repo, removed.Repository)
	assert.Empty(t, reg.List())

	_, err = reg.Remove("a")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.Len(t, *seen, 2)
	assert.Equal(t, events.RepositoryAdded, (*seen)[0].Kind)
	assert.Equal(t, events.RepositoryRemoved, (*seen)[1].Kind)
}

func TestRegistryAddPersistedIsReplay(t *testing.T) {
	ctx := context.Background()
	reg, _, seen := newTestRegistry(map[string]*model.Repository{
		"a": {URI: "a"},
		"b": {URI: "b"},
	})

	_, err := reg.AddPersisted(ctx, "a")
	require.NoError(t, err)
	_, err = reg.Add(ctx, "b")
	require.NoError(t, err)
	_, err = reg.AddPersisted(ctx, "b")
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)

	require.Len(t, *seen, 2)
	assert.Equal(t, events.RepositoryAdded, (*seen)[0].Kind)
	assert.True(t, (*seen)[0].Replay)
	assert.Equal(t, events.RepositoryAdded, (*seen)[1].Kind)
	assert.False(t, (*seen)[1].Replay)
}

func TestRegistryCatalogLoadsReferencedRepositories(t *testing.T) {
	ctx := context.Background()
	reg, loader, _ := newTestRegistry(map[string]*model.Repository{
		"top":  {URI: "top", Repositories: []string{"mid"}, Features: []*model.Feature{feature("web", "1.0.0")}},
		"mid":  {URI: "mid", Repositories: []string{"leaf", "top"}, Features: []*model.Feature{feature("base", "1.0.0")}},
		"leaf": {URI: "leaf", Features: []*model.Feature{feature("base", "2.0.0"), feature("log", "0.0.0")}},
	})

	_, err := reg.Add(ctx, "top")
	require.NoError(t, err)

	c, err := reg.Catalog(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"top", "mid", "leaf"}, reg.URIs())
	assert.Equal(t, []string{"1.0.0", "2.0.0"}, c.Versions("base"))
	assert.NotNil(t, c.Get("log", "0.0.0"))
	assert.Len(t, c.All(), 4)

	loads := loader.loads
	again, err := reg.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, loads, loader.loads)
	assert.Len(t, again.All(), 4)
}

func TestRegistryCatalogInvalidatedOnChange(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(map[string]*model.Repository{
		"a": {URI: "a", Features: []*model.Feature{feature("web", "1.0.0")}},
		"b": {URI: "b", Features: []*model.Feature{feature("db", "1.0.0")}},
	})
	_, err := reg.Add(ctx, "a")
	require.NoError(t, err)
	c, err := reg.Catalog(ctx)
	require.NoError(t, err)
	assert.Nil(t, c.Get("db", "1.0.0"))

	_, err = reg.Add(ctx, "b")
	require.NoError(t, err)
	c, err = reg.Catalog(ctx)
	require.NoError(t, err)
	assert.NotNil(t, c.Get("db", "1.0.0"))
}

func TestRegistryRefreshRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	v1 := &model.Repository{URI: "a", Features: []*model.Feature{feature("web", "1.0.0")}}
	reg, loader, seen := newTestRegistry(map[string]*model.Repository{"a": v1, "b": {URI: "b"}})
	_, err := reg.Add(ctx, "a")
	require.NoError(t, err)
	_, err = reg.Add(ctx, "b")
	require.NoError(t, err)

	loader.fail["a"] = true
	_, err = reg.Refresh(ctx, "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to refresh features repository a")

	assert.Same(t, v1, reg.Get("a"))
	assert.Equal(t, []string{"a", "b"}, reg.URIs())
	c, err := reg.Catalog(ctx)
	require.NoError(t, err)
	assert.NotNil(t, c.Get("web", "1.0.0"))

	last := (*seen)[len(*seen)-1]
	assert.Equal(t, events.RepositoryAdded, last.Kind)
	assert.Same(t, v1, last.Repository)
}

func TestRegistryRefreshReplacesDefinition(t *testing.T) {
	ctx := context.Background()
	repos := map[string]*model.Repository{"a": {URI: "a", Features: []*model.Feature{feature("web", "1.0.0")}}}
	reg, _, _ := newTestRegistry(repos)
	_, err := reg.Add(ctx, "a")
	require.NoError(t, err)

	repos["a"] = &model.Repository{URI: "a", Features: []*model.Feature{feature("web", "1.1.0")}}
	_, err = reg.Refresh(ctx, "a")
	require.NoError(t, err)

	c, err := reg.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.0"}, c.Versions("web"))
}

func TestYAMLLoader(t *testing.T) {
	dir := t.TempDir()
	doc := `
name: web-features
repositories:
  - base.yaml
features:
  - name: web
    version: 1.0.0
    bundles:
      - file:/modules/http.jar
  - name: web
    version: 2.0.0
  - name: legacy
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "features.yaml"), []byte(doc), 0o644))

	loader := NewYAMLLoader(download.NewManager(time.Second, "test", ""), []string{"web/2.0.0", "nothing/[1,2)"})
	repo, err := loader.Load(context.Background(), filepath.Join(dir, "features.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "web-features", repo.Name)
	assert.Equal(t, []string{filepath.Join(dir, "base.yaml")}, repo.Repositories)
	require.Len(t, repo.Features, 2)
	assert.Equal(t, "web/1.0.0", repo.Features[0].String())
	assert.True(t, repo.Features[0].Bundles[0].Start)
	assert.Equal(t, model.DefaultVersion, repo.Features[1].Version)
}

func TestYAMLLoaderErrors(t *testing.T) {
	dir := t.TempDir()
	loader := NewYAMLLoader(download.NewManager(time.Second, "test", ""), nil)

	_, err := loader.Load(context.Background(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("features:\n  - version: 1.0\n"), 0o644))
	_, err = loader.Load(context.Background(), bad)
	assert.ErrorIs(t, err, errors.ErrInvalidRepository)
}

func TestResolveReference(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"http://example.com/repo/features.yaml", "../base/features.yaml", "http://example.com/base/features.yaml"},
		{"http://example.com/repo/features.yaml", "https://other/x.yaml", "https://other/x.yaml"},
		{"file:/srv/repo/features.yaml", "base.yaml", "file:///srv/repo/base.yaml"},
		{"/srv/repo/features.yaml", "base.yaml", "/srv/repo/base.yaml"},
		{"/srv/repo/features.yaml", "/abs/base.yaml", "/abs/base.yaml"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveReference(tt.base, tt.ref), tt.base+" + "+tt.ref)
	}
}

func TestYAMLLoaderRemoteWithAuth(t *testing.T) {
	server := testutil.NewTestServer(t, t.TempDir(), "s3cret")
	server.WriteFile(t, "repos/base.yaml", "name: base\nfeatures:\n  - name: base\n    version: 1.0.0\n")
	uri := server.WriteFile(t, "repos/web.yaml", `
name: web
repositories:
  - base.yaml
features:
  - name: web
    version: 1.0.0
    bundles:
      - ../modules/web.jar
`)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	dl := download.NewManager(time.Second, "test", t.TempDir())
	registry := NewRegistry(NewYAMLLoader(dl, nil), events.NewDispatcher())
	_, err = registry.Add(context.Background(), uri)
	require.ErrorIs(t, err, errors.ErrDownloadFailed)

	dl.WithAuth(auth.Hosts{u.Host: auth.BearerAuth{Token: "s3cret"}})
	repo, err := registry.Add(context.Background(), uri)
	require.NoError(t, err)
	assert.Equal(t, []string{server.URL + "/repos/base.yaml"}, repo.Repositories)
	assert.Equal(t, "../modules/web.jar", repo.Features[0].Bundles[0].Location)

	catalog, err := registry.Catalog(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, catalog.Get("base", "1.0.0"))
	assert.GreaterOrEqual(t, server.Requests(), int64(3))
}
