package cache

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/fsutil"
)

// lastCleanedMarker records the time of the last clean through its mtime.
const lastCleanedMarker = ".last-cleaned"

// DefaultManager implements the Manager interface for the download cache.
// Completed downloads are modules; temporary files left behind by an
// interrupted download are partial.
type DefaultManager struct {
	directory string
}

// NewManager creates a new cache manager.
func NewManager(directory string) *DefaultManager {
	return &DefaultManager{
		directory: directory,
	}
}

// NewDefaultManager creates a new cache manager on the default download
// cache directory.
func NewDefaultManager() (*DefaultManager, error) {
	cacheDir, err := fsutil.GetDownloadCacheDir()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get download cache directory")
	}
	return NewManager(cacheDir), nil
}

type entry struct {
	path    string
	size    int64
	partial bool
}

// Clean removes cached files according to the specified options.
func (cm *DefaultManager) Clean(options CleanOptions) (*CleanResult, error) {
	if cm.directory == "" {
		return nil, ErrCacheDirectory
	}
	if !options.Modules && !options.Partial {
		options.All = true
	}

	entries, err := cm.scan()
	if err != nil {
		return nil, errors.Wrap(ErrCacheClean, err.Error())
	}

	result := &CleanResult{}
	for _, e := range entries {
		if !options.All && !selected(options, e) {
			continue
		}
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return result, errors.Wrapf(ErrCacheClean, "failed to remove %s: %v", e.path, err)
		}
		if e.partial {
			result.PartialFreed += e.size
		} else {
			result.ModuleFreed += e.size
		}
		result.FilesRemoved++
	}
	result.TotalFreed = result.ModuleFreed + result.PartialFreed
	cm.pruneEmptyDirs()

	if err := cm.markCleaned(); err != nil {
		return result, errors.Wrap(ErrCacheClean, err.Error())
	}
	return result, nil
}

// GetInfo returns information about the cache. A missing directory is an
// empty cache.
func (cm *DefaultManager) GetInfo() (*Info, error) {
	if cm.directory == "" {
		return nil, ErrCacheDirectory
	}
	entries, err := cm.scan()
	if err != nil {
		return nil, errors.Wrap(ErrCacheInfo, err.Error())
	}

	info := &Info{Directory: cm.directory}
	for _, e := range entries {
		if e.partial {
			info.PartialSize += e.size
			info.PartialFiles++
		} else {
			info.ModuleSize += e.size
			info.ModuleFiles++
		}
	}
	info.TotalSize = info.ModuleSize + info.PartialSize

	if st, err := os.Stat(filepath.Join(cm.directory, lastCleanedMarker)); err == nil {
		info.LastCleaned = st.ModTime()
	}
	return info, nil
}

// GetDirectory returns the cache directory path.
func (cm *DefaultManager) GetDirectory() string {
	return cm.directory
}

func (cm *DefaultManager) scan() ([]entry, error) {
	if _, err := os.Stat(cm.directory); os.IsNotExist(err) {
		return nil, nil
	}
	var entries []entry
	err := filepath.WalkDir(cm.directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == lastCleanedMarker {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, entry{path: path, size: info.Size(), partial: isPartial(d.Name())})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error walking directory %s", cm.directory)
	}
	return entries, nil
}

// pruneEmptyDirs drops sub directories emptied by a clean, deepest first.
func (cm *DefaultManager) pruneEmptyDirs() {
	var dirs []string
	_ = filepath.WalkDir(cm.directory, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && path != cm.directory {
			dirs = append(dirs, path)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}
}

func (cm *DefaultManager) markCleaned() error {
	if err := os.MkdirAll(cm.directory, fsutil.DirModeSecure); err != nil {
		return err
	}
	marker := filepath.Join(cm.directory, lastCleanedMarker)
	if err := os.WriteFile(marker, nil, fsutil.FileModeDefault); err != nil {
		return err
	}
	now := time.Now()
	return os.Chtimes(marker, now, now)
}

func selected(options CleanOptions, e entry) bool {
	if e.partial {
		return options.Partial
	}
	return options.Modules
}

// isPartial matches the temporary files the downloader writes before the
// final rename.
func isPartial(name string) bool {
	return strings.HasPrefix(name, "dl-") && strings.HasSuffix(name, ".tmp")
}
