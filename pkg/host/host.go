//go:generate mockgen -destination=mocks/host.go -package=mocks . Host

// Package host defines the module host featurectl installs modules into.
package host

import (
	"context"
	"io"
	"strconv"

	"github.com/glorpus-work/featurectl/pkg/manifest"
	"github.com/glorpus-work/featurectl/pkg/version"
)

// ModuleID identifies an installed module within a host.
type ModuleID int64

func (id ModuleID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseModuleID parses the decimal form produced by String.
func ParseModuleID(s string) (ModuleID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	return ModuleID(n), err
}

// Descriptor describes an installed module.
type Descriptor struct {
	ID           ModuleID
	Location     string
	SymbolicName string
	Version      version.Version
	Imports      []manifest.Import
	Exports      []manifest.Export
	FragmentHost *manifest.HostRef
}

// IsFragment reports whether the module attaches to a host module.
func (d Descriptor) IsFragment() bool {
	return d.FragmentHost != nil
}

// Identity returns the symbolic name and version.
func (d Descriptor) Identity() manifest.Identity {
	return manifest.Identity{SymbolicName: d.SymbolicName, Version: d.Version}
}

// Host is a running module host.
type Host interface {
	// Install installs the module from r, recording location. A nil r means
	// location is a local module the host references in place.
	Install(ctx context.Context, location string, r io.Reader) (ModuleID, error)
	Uninstall(ctx context.Context, id ModuleID) error
	Start(ctx context.Context, id ModuleID) error
	SetStartLevel(id ModuleID, level int) error
	StartLevel(id ModuleID) int
	// IsPersistentlyStarted reports whether the module is marked to be started.
	IsPersistentlyStarted(id ModuleID) bool
	IsActive(id ModuleID) bool
	Modules() []ModuleID
	Describe(id ModuleID) (Descriptor, bool)
	// IsWired reports whether the import of module id is currently wired.
	IsWired(id ModuleID, imp manifest.Import) bool
	// Refresh rewires the given modules, or the host's default set when ids is
	// nil. onComplete is called once the refresh finished.
	Refresh(ids []ModuleID, onComplete func(error)) error
}
