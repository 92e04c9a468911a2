package cache

import (
	"fmt"
	"time"

	"github.com/glorpus-work/featurectl/internal/logger"
)

// Operation renders cache management results for the command line.
type Operation struct {
	manager Manager
}

// NewOperation creates a new cache operation instance.
func NewOperation(manager Manager) *Operation {
	return &Operation{
		manager: manager,
	}
}

// Clean cleans the cache based on the provided options.
func (op *Operation) Clean(all, modules, partial bool) (string, error) {
	options := CleanOptions{
		All:     all,
		Modules: modules,
		Partial: partial,
	}

	logger.Debug("Cleaning cache", logger.Fields{
		"all":     options.All,
		"modules": options.Modules,
		"partial": options.Partial,
	})

	result, err := op.manager.Clean(options)
	if err != nil {
		return "", fmt.Errorf("failed to clean cache: %w", err)
	}

	if result.FilesRemoved == 0 {
		return "No files were removed from the cache.", nil
	}
	msg := fmt.Sprintf("Successfully cleaned cache. Freed %s of disk space (%d files).", formatBytes(result.TotalFreed), result.FilesRemoved)
	if result.ModuleFreed > 0 {
		msg += fmt.Sprintf("\n- Modules: %s", formatBytes(result.ModuleFreed))
	}
	if result.PartialFreed > 0 {
		msg += fmt.Sprintf("\n- Partial downloads: %s", formatBytes(result.PartialFreed))
	}
	return msg, nil
}

// GetInfo returns information about the cache.
func (op *Operation) GetInfo() (string, error) {
	info, err := op.manager.GetInfo()
	if err != nil {
		return "", fmt.Errorf("failed to get cache info: %w", err)
	}

	lastCleaned := "never"
	if !info.LastCleaned.IsZero() {
		lastCleaned = info.LastCleaned.Format(time.RFC1123)
	}

	return fmt.Sprintf(`Cache Information:
  Directory:    %s
  Total Size:   %s
  Modules:      %s (%d files)
  Partial:      %s (%d files)
  Last Cleaned: %s`,
		info.Directory,
		formatBytes(info.TotalSize),
		formatBytes(info.ModuleSize),
		info.ModuleFiles,
		formatBytes(info.PartialSize),
		info.PartialFiles,
		lastCleaned,
	), nil
}

// GetDirectory returns the cache directory path.
func (op *Operation) GetDirectory() string {
	return op.manager.GetDirectory()
}

// formatBytes converts bytes to a human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T", "P", "E"}
	if exp < len(units) {
		return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
	}
	return fmt.Sprintf("%d B", bytes)
}
