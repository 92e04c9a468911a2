package override

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/featurectl/pkg/download"
	"github.com/glorpus-work/featurectl/pkg/manifest"
	"github.com/glorpus-work/featurectl/pkg/model"
)

// writeModule creates an exploded module directory with the given identity.
func writeModule(t *testing.T, dir, name, symbolicName, ver string) string {
	t.Helper()
	moduleDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Join(moduleDir, "META-INF"), 0o755))
	f, err := os.Create(filepath.Join(moduleDir, filepath.FromSlash(manifest.Path)))
	require.NoError(t, err)
	_, err = manifest.Manifest{manifest.HeaderSymbolicName: symbolicName, manifest.HeaderVersion: ver}.WriteTo(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return moduleDir
}

func writeOverrides(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "overrides.properties")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func newResolver(t *testing.T, size int) *Resolver {
	t.Helper()
	r, err := NewResolver(download.NewManager(time.Second, "test", t.TempDir()), size)
	require.NoError(t, err)
	return r
}

func TestOverrideMicroUpdate(t *testing.T) {
	dir := t.TempDir()
	installed := writeModule(t, dir, "web-1.0.0", "org.example.web", "1.0.0")
	patch := writeModule(t, dir, "web-1.0.2", "org.example.web", "1.0.2")
	minor := writeModule(t, dir, "web-1.1.0", "org.example.web", "1.1.0")
	other := writeModule(t, dir, "log-1.0.5", "org.example.log", "1.0.5")

	source := writeOverrides(t, dir, "# patches", "", patch, minor, other)
	r := newResolver(t, 0)

	out := r.Override(context.Background(), []model.BundleInfo{{Location: installed, StartLevel: 40, Start: true}}, source)
	require.Len(t, out, 1)
	// 1.1.0 has no default range, 1.0.2 is a micro update
	assert.Equal(t, model.BundleInfo{Location: patch, StartLevel: 40, Start: true}, out[0])
}

func TestOverrideNeverDowngrades(t *testing.T) {
	dir := t.TempDir()
	installed := writeModule(t, dir, "web-1.0.5", "org.example.web", "1.0.5")
	older := writeModule(t, dir, "web-1.0.3", "org.example.web", "1.0.3")
	ranged := writeModule(t, dir, "web-0.9.0", "org.example.web", "0.9.0")

	source := writeOverrides(t, dir, older, ranged+`;range="[0,2)"`)
	r := newResolver(t, 0)

	infos := []model.BundleInfo{{Location: installed, Start: true}}
	assert.Equal(t, infos, r.Override(context.Background(), infos, source))
}

func TestOverrideExplicitRangeAndLastMatchWins(t *testing.T) {
	dir := t.TempDir()
	installed := writeModule(t, dir, "web-1.0.0", "org.example.web", "1.0.0")
	first := writeModule(t, dir, "web-1.2.0", "org.example.web", "1.2.0")
	second := writeModule(t, dir, "web-1.3.0", "org.example.web", "1.3.0")

	clauses := []manifest.Clause{
		{Name: first, Attributes: map[string]string{RangeAttribute: "[1.0,2.0)"}},
		{Name: second, Attributes: map[string]string{RangeAttribute: "[1.2,1.3)"}},
	}
	r := newResolver(t, 0)

	out := r.Apply(context.Background(), []model.BundleInfo{{Location: installed}}, clauses)
	require.Len(t, out, 1)
	assert.Equal(t, second, out[0].Location)
}

func TestOverrideKeepsUnreadableModules(t *testing.T) {
	dir := t.TempDir()
	patch := writeModule(t, dir, "web-1.0.2", "org.example.web", "1.0.2")
	r := newResolver(t, 0)

	infos := []model.BundleInfo{{Location: filepath.Join(dir, "missing.jar")}}
	out := r.Apply(context.Background(), infos, []manifest.Clause{{Name: patch}, {Name: filepath.Join(dir, "gone.jar")}})
	assert.Equal(t, infos, out)
}

func TestLoadClausesMissingSource(t *testing.T) {
	r := newResolver(t, 0)
	assert.Empty(t, r.LoadClauses(context.Background(), ""))
	assert.Empty(t, r.LoadClauses(context.Background(), filepath.Join(t.TempDir(), "none")))

	infos := []model.BundleInfo{{Location: "file:/modules/a.jar"}}
	assert.Equal(t, infos, r.Override(context.Background(), infos, ""))
}

func TestLoadClauses(t *testing.T) {
	dir := t.TempDir()
	source := writeOverrides(t, dir, "  # comment", "file:/p/a.jar", `file:/p/b.jar;range="[1.0,1.5)"`, "   ")
	clauses := newResolver(t, 0).LoadClauses(context.Background(), source)
	require.Len(t, clauses, 2)
	assert.Equal(t, "file:/p/a.jar", clauses[0].Name)
	assert.Equal(t, "[1.0,1.5)", clauses[1].Attribute(RangeAttribute))
}

func TestIdentityCacheIsBounded(t *testing.T) {
	dir := t.TempDir()
	r := newResolver(t, 2)
	ctx := context.Background()
	for _, v := range []string{"1.0.0", "1.0.1", "1.0.2"} {
		_, ok := r.Identity(ctx, writeModule(t, dir, "m-"+v, "m", v))
		require.True(t, ok)
	}
	assert.Equal(t, 2, r.Len())

	loc := filepath.Join(dir, "m-1.0.2")
	id, ok := r.Identity(ctx, loc)
	require.True(t, ok)
	assert.Equal(t, "1.0.2", id.Version.String())

	// a stale entry is served until invalidated
	require.NoError(t, os.RemoveAll(loc))
	_, ok = r.Identity(ctx, loc)
	assert.True(t, ok)
	r.Invalidate(loc)
	_, ok = r.Identity(ctx, loc)
	assert.False(t, ok)

	r.Purge()
	assert.Zero(t, r.Len())
}
