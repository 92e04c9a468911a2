package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"

	"github.com/glorpus-work/featurectl/pkg/errors"
)

// ReadFile reads the manifest of the module at path. The module may be a
// zip/jar archive, any other archive format understood by mholt/archives, or
// an exploded directory.
func ReadFile(ctx context.Context, path string) (Manifest, error) {
	fsys, err := archives.FileSystem(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open module %s: %w", path, errors.ErrModuleFormat)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	f, err := fsys.Open(Path)
	if err != nil {
		return nil, fmt.Errorf("module %s has no manifest: %w", path, errors.ErrModuleFormat)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// ReadBytes reads the manifest of an in-memory module archive. name is used
// as a format hint only.
func ReadBytes(ctx context.Context, name string, data []byte) (Manifest, error) {
	fsys, err := archives.FileSystem(ctx, name, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open module %s: %w", name, errors.ErrModuleFormat)
	}
	f, err := fsys.Open(Path)
	if err != nil {
		return nil, fmt.Errorf("module %s has no manifest: %w", name, errors.ErrModuleFormat)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// ReadIdentity reads the symbolic name and version of the module at path.
func ReadIdentity(ctx context.Context, path string) (Identity, error) {
	m, err := ReadFile(ctx, path)
	if err != nil {
		return Identity{}, err
	}
	return m.Identity()
}

// ReadInfo reads the wiring metadata of the module at path.
func ReadInfo(ctx context.Context, path string) (*Info, error) {
	m, err := ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return m.Info()
}

// Pack writes the content of sourceDir into a module archive at archivePath.
// A manifest, when given, is written to META-INF/MANIFEST.MF before packing.
// Archives ending in .jar or .zip are zip files, anything else is a gzipped tarball.
func Pack(ctx context.Context, sourceDir, archivePath string, m Manifest) error {
	absolutePath, err := filepath.Abs(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for source directory: %w", err)
	}

	if m != nil {
		manifestPath := filepath.Join(absolutePath, filepath.FromSlash(Path))
		if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
			return fmt.Errorf("failed to create manifest directory: %w", err)
		}
		f, err := os.Create(manifestPath)
		if err != nil {
			return fmt.Errorf("failed to create manifest: %w", err)
		}
		_, werr := m.WriteTo(f)
		cerr := f.Close()
		if werr != nil {
			return fmt.Errorf("failed to write manifest: %w", werr)
		}
		if cerr != nil {
			return fmt.Errorf("failed to close manifest: %w", cerr)
		}
	}

	files, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		absolutePath + string(os.PathSeparator): "",
	})
	if err != nil {
		return fmt.Errorf("failed to read files from disk: %w", err)
	}

	file, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", archivePath, err)
	}
	defer func() {
		_ = file.Sync()
		_ = file.Close()
	}()

	var format archives.Archiver
	switch strings.ToLower(filepath.Ext(archivePath)) {
	case ".jar", ".zip":
		format = archives.Zip{}
	default:
		format = archives.CompressedArchive{
			Compression: archives.Gz{},
			Archival:    archives.Tar{},
		}
	}

	if err := format.Archive(ctx, file, files); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	return nil
}
