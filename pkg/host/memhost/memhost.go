// Package memhost is an in-process module host. It keeps module metadata,
// wiring and lifecycle state in memory and can persist them to a JSON
// snapshot so that the featurectl binary survives restarts.
package memhost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/download"
	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/fsutil"
	"github.com/glorpus-work/featurectl/pkg/host"
	"github.com/glorpus-work/featurectl/pkg/manifest"
)

// DefaultStartLevel is the start level of modules installed without one.
const DefaultStartLevel = 80

type module struct {
	desc       host.Descriptor
	headers    manifest.Manifest
	startLevel int
	persistent bool
	active     bool
	resolved   bool
	// wires maps an imported package to the module providing it
	wires map[string]host.ModuleID
}

// Host is an in-memory module host safe for concurrent use.
type Host struct {
	mu           sync.RWMutex
	modules      map[host.ModuleID]*module
	nextID       host.ModuleID
	snapshotPath string
	startErrors  map[string]error
	refreshes    int
}

var _ host.Host = (*Host)(nil)

// New creates an empty host without persistence.
func New() *Host {
	return &Host{
		modules:     map[host.ModuleID]*module{},
		nextID:      1,
		startErrors: map[string]error{},
	}
}

// Open creates a host persisted to snapshotPath, loading it when present.
func Open(snapshotPath string) (*Host, error) {
	h := New()
	h.snapshotPath = filepath.Clean(snapshotPath)
	if err := h.load(); err != nil {
		return nil, err
	}
	return h, nil
}

// FailStart makes every start of modules named symbolicName fail with err.
// A nil err clears the failure.
func (h *Host) FailStart(symbolicName string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.startErrors, symbolicName)
		return
	}
	h.startErrors[symbolicName] = err
}

// Refreshes returns the number of completed refresh operations.
func (h *Host) Refreshes() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.refreshes
}

// Install installs a module. Installing a location twice returns the
// existing module.
func (h *Host) Install(ctx context.Context, location string, r io.Reader) (host.ModuleID, error) {
	headers, err := readHeaders(ctx, location, r)
	if err != nil {
		return 0, err
	}
	info, err := headers.Info()
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, m := range h.modules {
		if m.desc.Location == location {
			return id, nil
		}
		if m.desc.SymbolicName == info.SymbolicName && m.desc.Version.Equal(info.Version) {
			return 0, fmt.Errorf("module %s is already installed from %s: %w", info.Identity, m.desc.Location, errors.ErrHostOperation)
		}
	}

	id := h.nextID
	h.nextID++
	h.modules[id] = &module{
		desc:       descriptor(id, location, info),
		headers:    headers,
		startLevel: DefaultStartLevel,
		wires:      map[string]host.ModuleID{},
	}
	logger.Debug("Installed module", logger.Fields{"id": id, "location": location, "module": info.Identity.String()})
	return id, h.saveLocked()
}

func readHeaders(ctx context.Context, location string, r io.Reader) (manifest.Manifest, error) {
	if r == nil {
		path, ok := download.LocalPath(location)
		if !ok {
			return nil, fmt.Errorf("no content for remote module %s: %w", location, errors.ErrHostOperation)
		}
		return manifest.ReadFile(ctx, path)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read module %s", location)
	}
	return manifest.ReadBytes(ctx, filepath.Base(location), data)
}

func descriptor(id host.ModuleID, location string, info *manifest.Info) host.Descriptor {
	return host.Descriptor{
		ID:           id,
		Location:     location,
		SymbolicName: info.SymbolicName,
		Version:      info.Version,
		Imports:      info.Imports,
		Exports:      info.Exports,
		FragmentHost: info.FragmentHost,
	}
}

// Uninstall removes a module. Wires of other modules to it stay in place
// until they are refreshed.
func (h *Host) Uninstall(_ context.Context, id host.ModuleID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.modules[id]
	if !ok {
		return fmt.Errorf("module %s: %w", id, errors.ErrNotFound)
	}
	delete(h.modules, id)
	logger.Debug("Uninstalled module", logger.Fields{"id": id, "location": m.desc.Location})
	return h.saveLocked()
}

// Start resolves the module if needed and activates it.
func (h *Host) Start(_ context.Context, id host.ModuleID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.modules[id]
	if !ok {
		return fmt.Errorf("module %s: %w", id, errors.ErrNotFound)
	}
	if m.desc.IsFragment() {
		return fmt.Errorf("fragment %s cannot be started: %w", m.desc.Identity(), errors.ErrHostOperation)
	}
	m.persistent = true
	if err := h.activateLocked(m); err != nil {
		_ = h.saveLocked()
		return err
	}
	return h.saveLocked()
}

func (h *Host) activateLocked(m *module) error {
	if err := h.startErrors[m.desc.SymbolicName]; err != nil {
		return err
	}
	if err := h.resolveLocked(m); err != nil {
		return err
	}
	m.active = true
	return nil
}

// resolveLocked wires the imports of m. Mandatory imports must be satisfied;
// optional ones are wired when a provider exists at resolution time.
func (h *Host) resolveLocked(m *module) error {
	if m.resolved {
		return nil
	}
	wires := map[string]host.ModuleID{}
	for _, imp := range m.desc.Imports {
		provider, ok := h.providerLocked(imp)
		if !ok {
			if imp.Optional {
				continue
			}
			return fmt.Errorf("module %s: unresolved requirement: Import-Package: %s; version=%q: %w",
				m.desc.Identity(), imp.Package, imp.Range.String(), errors.ErrHostOperation)
		}
		wires[imp.Package] = provider
	}
	m.wires = wires
	m.resolved = true
	return nil
}

func (h *Host) providerLocked(imp manifest.Import) (host.ModuleID, bool) {
	var best host.ModuleID
	var bestExport *manifest.Export
	for _, id := range h.sortedIDsLocked() {
		candidate := h.modules[id]
		if candidate.desc.IsFragment() {
			continue
		}
		for i := range candidate.desc.Exports {
			exp := candidate.desc.Exports[i]
			if !exp.Satisfies(imp) {
				continue
			}
			if bestExport == nil || bestExport.Version.Less(exp.Version) {
				best, bestExport = id, &exp
			}
		}
	}
	return best, bestExport != nil
}

// SetStartLevel sets the start level of a module.
func (h *Host) SetStartLevel(id host.ModuleID, level int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.modules[id]
	if !ok {
		return fmt.Errorf("module %s: %w", id, errors.ErrNotFound)
	}
	m.startLevel = level
	return h.saveLocked()
}

// StartLevel returns the start level of a module, 0 when unknown.
func (h *Host) StartLevel(id host.ModuleID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if m, ok := h.modules[id]; ok {
		return m.startLevel
	}
	return 0
}

// IsPersistentlyStarted reports whether the module is marked started.
func (h *Host) IsPersistentlyStarted(id host.ModuleID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.modules[id]
	return ok && m.persistent
}

// IsActive reports whether the module is running.
func (h *Host) IsActive(id host.ModuleID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.modules[id]
	return ok && m.active
}

// Modules returns the installed module ids in ascending order.
func (h *Host) Modules() []host.ModuleID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sortedIDsLocked()
}

func (h *Host) sortedIDsLocked() []host.ModuleID {
	ids := make([]host.ModuleID, 0, len(h.modules))
	for id := range h.modules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Describe returns the descriptor of an installed module.
func (h *Host) Describe(id host.ModuleID) (host.Descriptor, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.modules[id]
	if !ok {
		return host.Descriptor{}, false
	}
	return m.desc, true
}

// IsWired reports whether the import is wired to a provider.
func (h *Host) IsWired(id host.ModuleID, imp manifest.Import) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.modules[id]
	if !ok {
		return false
	}
	_, wired := m.wires[imp.Package]
	return wired
}

// Refresh rewires the given modules and every module depending on them, then
// restarts those that were active. A nil ids refreshes every module.
// onComplete runs on a separate goroutine once done.
func (h *Host) Refresh(ids []host.ModuleID, onComplete func(error)) error {
	go func() {
		err := h.refresh(ids)
		if onComplete != nil {
			onComplete(err)
		}
	}()
	return nil
}

func (h *Host) refresh(ids []host.ModuleID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	targets := h.dependencyClosureLocked(ids)
	var wasActive []*module
	for _, id := range h.sortedIDsLocked() {
		if !targets[id] {
			continue
		}
		m := h.modules[id]
		if m.active {
			wasActive = append(wasActive, m)
		}
		m.active = false
		m.resolved = false
		m.wires = map[string]host.ModuleID{}
	}

	var result error
	for _, m := range wasActive {
		if err := h.activateLocked(m); err != nil {
			logger.Warn("Module failed to restart after refresh", logger.Fields{"module": m.desc.Identity().String(), "error": err.Error()})
			if result == nil {
				result = err
			}
		}
	}
	h.refreshes++
	if err := h.saveLocked(); err != nil && result == nil {
		result = err
	}
	return result
}

// dependencyClosureLocked adds modules wired to, or attached as fragments to,
// any module in the set until nothing changes.
func (h *Host) dependencyClosureLocked(ids []host.ModuleID) map[host.ModuleID]bool {
	set := map[host.ModuleID]bool{}
	if ids == nil {
		for id := range h.modules {
			set[id] = true
		}
		return set
	}
	for _, id := range ids {
		if _, ok := h.modules[id]; ok {
			set[id] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for id, m := range h.modules {
			if set[id] {
				continue
			}
			if h.dependsOnLocked(m, set) {
				set[id] = true
				changed = true
			}
		}
	}
	return set
}

func (h *Host) dependsOnLocked(m *module, set map[host.ModuleID]bool) bool {
	for _, provider := range m.wires {
		if set[provider] {
			return true
		}
	}
	if m.desc.FragmentHost != nil {
		for id := range set {
			if target, ok := h.modules[id]; ok && m.desc.FragmentHost.Matches(target.desc.Identity()) {
				return true
			}
		}
	}
	return false
}

type snapshot struct {
	FormatVersion string   `json:"format_version"`
	NextID        int64    `json:"next_id"`
	Modules       []record `json:"modules"`
}

type record struct {
	ID         int64             `json:"id"`
	Location   string            `json:"location"`
	Manifest   map[string]string `json:"manifest"`
	StartLevel int               `json:"start_level"`
	Persistent bool              `json:"persistently_started"`
	Active     bool              `json:"active"`
	Wires      map[string]int64  `json:"wires"`
}

func (h *Host) saveLocked() error {
	if h.snapshotPath == "" {
		return nil
	}
	snap := snapshot{FormatVersion: "1", NextID: int64(h.nextID)}
	for _, id := range h.sortedIDsLocked() {
		m := h.modules[id]
		rec := record{
			ID:         int64(id),
			Location:   m.desc.Location,
			Manifest:   m.headers,
			StartLevel: m.startLevel,
			Persistent: m.persistent,
			Active:     m.active,
		}
		if m.resolved {
			rec.Wires = map[string]int64{}
			for pkg, provider := range m.wires {
				rec.Wires[pkg] = int64(provider)
			}
		}
		snap.Modules = append(snap.Modules, rec)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal host snapshot: %w", err)
	}
	if err := fsutil.WriteFileAtomic(h.snapshotPath, bytes.NewReader(data), fsutil.FileModeDefault); err != nil {
		return fmt.Errorf("failed to save host snapshot: %v: %w", err, errors.ErrPersistence)
	}
	return nil
}

func (h *Host) load() error {
	data, err := os.ReadFile(h.snapshotPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read host snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse host snapshot: %w", err)
	}
	for _, rec := range snap.Modules {
		headers := manifest.Manifest(rec.Manifest)
		info, err := headers.Info()
		if err != nil {
			return fmt.Errorf("invalid module %s in host snapshot: %w", rec.Location, err)
		}
		id := host.ModuleID(rec.ID)
		m := &module{
			desc:       descriptor(id, rec.Location, info),
			headers:    headers,
			startLevel: rec.StartLevel,
			persistent: rec.Persistent,
			active:     rec.Active,
			resolved:   rec.Wires != nil,
			wires:      map[string]host.ModuleID{},
		}
		for pkg, provider := range rec.Wires {
			m.wires[pkg] = host.ModuleID(provider)
		}
		h.modules[id] = m
	}
	h.nextID = host.ModuleID(snap.NextID)
	if h.nextID < 1 {
		h.nextID = 1
	}
	return nil
}
