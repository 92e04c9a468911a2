package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureFileDir(t *testing.T) {
	base := t.TempDir()
	tests := []struct {
		name string
		file string
	}{
		{name: "ledger under fresh state dir", file: filepath.Join(base, "state", "featurectl-state.properties")},
		{name: "nested config file", file: filepath.Join(base, "etc", "conf", "web.cfg")},
		{name: "existing parent", file: filepath.Join(base, "host.json")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, EnsureFileDir(tt.file))
			dir := filepath.Dir(tt.file)
			assert.DirExists(t, dir)

			if runtime.GOOS != "windows" && dir != base {
				info, err := os.Stat(dir)
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(DirModeDefault), info.Mode().Perm())
			}
		})
	}

	// a bare file name has "." as parent
	assert.NoError(t, EnsureFileDir("host.json"))
}

func TestEnsureDir_ReadOnlyParent(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permissions are not enforced")
	}

	readonly := filepath.Join(t.TempDir(), "readonly")
	require.NoError(t, os.Mkdir(readonly, 0o555))

	assert.Error(t, EnsureDir(filepath.Join(readonly, "configs")))
}

func TestApplicationDirs(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only applies on linux")
	}
	data := t.TempDir()
	t.Setenv("XDG_DATA_HOME", data)
	t.Setenv("XDG_CACHE_HOME", filepath.Join(data, "cache"))

	stateDir, err := GetStateDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(data, AppName, "state"), stateDir)

	downloads, err := GetDownloadCacheDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(data, "cache", AppName, "downloads"), downloads)
}
