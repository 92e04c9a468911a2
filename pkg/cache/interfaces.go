// Package cache inspects and cleans the download cache that holds remote
// modules and configuration files localized during installation.
package cache

import "time"

// Manager defines the interface for cache management operations.
type Manager interface {
	Clean(options CleanOptions) (*CleanResult, error)
	GetInfo() (*Info, error)
	GetDirectory() string
}

// CleanOptions specifies what to clean from the cache. With nothing set,
// everything is cleaned.
type CleanOptions struct {
	All     bool
	Modules bool
	Partial bool
}

// CleanResult contains information about what was cleaned.
type CleanResult struct {
	TotalFreed   int64
	ModuleFreed  int64
	PartialFreed int64
	FilesRemoved int
}

// Info represents cache information.
type Info struct {
	Directory    string
	TotalSize    int64
	ModuleSize   int64
	ModuleFiles  int
	PartialSize  int64
	PartialFiles int
	LastCleaned  time.Time
}
