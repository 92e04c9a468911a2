package manifest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/version"
)

func TestParseHeader(t *testing.T) {
	clauses, err := ParseHeader(`org.example.api;version="[1.0,2.0)";resolution:=optional, org.example.util`)
	require.NoError(t, err)
	require.Len(t, clauses, 2)

	assert.Equal(t, "org.example.api", clauses[0].Name)
	assert.Equal(t, "[1.0,2.0)", clauses[0].Attribute("version"))
	assert.Equal(t, "optional", clauses[0].Directive("resolution"))
	assert.Equal(t, "org.example.util", clauses[1].Name)
	assert.Empty(t, clauses[1].Attributes)
}

func TestParseHeaderSharedParameters(t *testing.T) {
	clauses, err := ParseHeader("a;b;version=1.0")
	require.NoError(t, err)
	require.Len(t, clauses, 2)
	assert.Equal(t, "1.0", clauses[0].Attribute("version"))
	assert.Equal(t, "1.0", clauses[1].Attribute("version"))

	clauses[0].Attributes["version"] = "changed"
	assert.Equal(t, "1.0", clauses[1].Attribute("version"))
}

func TestParseHeaderOverrideLine(t *testing.T) {
	clauses, err := ParseHeader(`file:/modules/web-1.0.1.jar;range="[1.0,1.1)"`)
	require.NoError(t, err)
	require.Len(t, clauses, 1)
	assert.Equal(t, "file:/modules/web-1.0.1.jar", clauses[0].Name)
	assert.Equal(t, "[1.0,1.1)", clauses[0].Attribute("range"))
}

func TestParseHeaderErrors(t *testing.T) {
	_, err := ParseHeader("version=1.0")
	assert.Error(t, err)

	_, err = ParseHeader("a;version=1.0;b")
	assert.Error(t, err)

	clauses, err := ParseHeader("  ")
	require.NoError(t, err)
	assert.Empty(t, clauses)
}

func TestParseManifest(t *testing.T) {
	raw := "Manifest-Version: 1.0\r\n" +
		"Bundle-SymbolicName: org.example.web;singleton:=true\r\n" +
		"Bundle-Version: 1.2.3.RC1\r\n" +
		"Import-Package: org.example.api;version=\"[1.0,2.0)\",org.exa\r\n" +
		" mple.log;resolution:=optional\r\n" +
		"Export-Package: org.example.web;version=1.2\r\n" +
		"\r\n" +
		"Name: ignored/section\r\n" +
		"Bundle-Version: 9.9.9\r\n"

	m, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.RC1", m[HeaderVersion])

	info, err := m.Info()
	require.NoError(t, err)
	assert.Equal(t, "org.example.web", info.SymbolicName)
	assert.Equal(t, "1.2.3.RC1", info.Version.String())
	require.Len(t, info.Imports, 2)
	assert.False(t, info.Imports[0].Optional)
	assert.Equal(t, "org.example.log", info.Imports[1].Package)
	assert.True(t, info.Imports[1].Optional)
	require.Len(t, info.Exports, 1)
	assert.Equal(t, "1.2.0", info.Exports[0].Version.String())
	assert.False(t, info.IsFragment())
}

func TestIdentityErrors(t *testing.T) {
	_, err := Manifest{HeaderVersion: "1.0"}.Identity()
	assert.ErrorIs(t, err, errors.ErrModuleFormat)

	id, err := Manifest{HeaderSymbolicName: "bare"}.Identity()
	require.NoError(t, err)
	assert.Equal(t, version.Empty, id.Version)

	id, err = Manifest{HeaderSymbolicName: "sloppy", HeaderVersion: "2-SNAPSHOT"}.Identity()
	require.NoError(t, err)
	assert.Equal(t, "2.0.0.SNAPSHOT", id.Version.String())
}

func TestFragmentAndExportMatching(t *testing.T) {
	m := Manifest{
		HeaderSymbolicName: "org.example.web.nls",
		HeaderFragmentHost: `org.example.web;bundle-version="[1.0,2.0)"`,
	}
	info, err := m.Info()
	require.NoError(t, err)
	require.True(t, info.IsFragment())
	assert.True(t, info.FragmentHost.Matches(Identity{SymbolicName: "org.example.web", Version: version.MustParse("1.5.0")}))
	assert.False(t, info.FragmentHost.Matches(Identity{SymbolicName: "org.example.web", Version: version.MustParse("2.0.0")}))

	exp := Export{Package: "org.example.api", Version: version.MustParse("1.4.0")}
	r, err := version.ParseRange("[1.0,2.0)")
	require.NoError(t, err)
	assert.True(t, exp.Satisfies(Import{Package: "org.example.api", Range: r}))
	assert.False(t, exp.Satisfies(Import{Package: "org.example.other", Range: r}))
}

func TestPackAndRead(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "org", "example"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "org", "example", "Web.class"), []byte("cafebabe"), 0o644))

	m := Manifest{HeaderSymbolicName: "org.example.web", HeaderVersion: "1.0.1"}

	for _, name := range []string{"web.jar", "web.tar.gz"} {
		t.Run(name, func(t *testing.T) {
			archivePath := filepath.Join(tempDir, name)
			require.NoError(t, Pack(ctx, src, archivePath, m))

			id, err := ReadIdentity(ctx, archivePath)
			require.NoError(t, err)
			assert.Equal(t, "org.example.web/1.0.1", id.String())
		})
	}

	// exploded directories are modules too
	id, err := ReadIdentity(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, "org.example.web", id.SymbolicName)
}

func TestReadFileWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0o644))

	_, err := ReadFile(context.Background(), dir)
	assert.ErrorIs(t, err, errors.ErrModuleFormat)
}

func TestWriteToRoundTrip(t *testing.T) {
	m := Manifest{HeaderSymbolicName: "a", HeaderVersion: "1.0.0", HeaderExportPackage: "a.api"}
	var b strings.Builder
	_, err := m.WriteTo(&b)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(b.String(), "Manifest-Version: 1.0\n"))

	back, err := Parse(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, "a.api", back[HeaderExportPackage])
	assert.Equal(t, "1.0", back[HeaderManifestVersion])
}

func TestReadBytes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	archivePath := filepath.Join(dir, "api.jar")
	require.NoError(t, Pack(ctx, src, archivePath, Manifest{HeaderSymbolicName: "org.example.api", HeaderVersion: "2.0"}))

	data, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	m, err := ReadBytes(ctx, "mvn-download", data)
	require.NoError(t, err)
	id, err := m.Identity()
	require.NoError(t, err)
	assert.Equal(t, "org.example.api/2.0.0", id.String())

	_, err = ReadBytes(ctx, "garbage.jar", []byte("not a zip"))
	assert.ErrorIs(t, err, errors.ErrModuleFormat)
}
