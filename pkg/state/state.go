// Package state persists the installation ledger as a properties file.
package state

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/magiconair/properties"

	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/fsutil"
	"github.com/glorpus-work/featurectl/pkg/host"
	"github.com/glorpus-work/featurectl/pkg/model"
)

// FileName is the ledger file inside the state directory.
const FileName = "featurectl-state.properties"

const (
	keyRepositoriesCount = "repositories.count"
	keyRepositoryItem    = "repositories.item."
	keyFeaturePrefix     = "features."
	keyBootInstalled     = "bootFeaturesInstalled"
)

// State is the persisted installation ledger.
type State struct {
	Repositories          []string
	Features              map[model.FeatureID][]host.ModuleID
	BootFeaturesInstalled bool
}

// Store reads and writes the ledger file.
type Store struct {
	path string
}

// NewStore returns a store keeping its file in dir.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName)}
}

// Path returns the ledger file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the ledger. It returns nil without error when no ledger exists.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(errors.ErrPersistence, "read %s: %v", s.path, err)
	}
	loader := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes(data)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "parse %s: %v", s.path, err)
	}
	return decode(props)
}

func decode(props *properties.Properties) (*State, error) {
	st := &State{Features: make(map[model.FeatureID][]host.ModuleID)}

	if raw, ok := props.Get(keyRepositoriesCount); ok {
		count, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || count < 0 {
			return nil, errors.Wrapf(errors.ErrPersistence, "invalid %s %q", keyRepositoriesCount, raw)
		}
		for i := 0; i < count; i++ {
			uri, ok := props.Get(keyRepositoryItem + strconv.Itoa(i))
			if !ok {
				return nil, errors.Wrapf(errors.ErrPersistence, "missing %s%d", keyRepositoryItem, i)
			}
			st.Repositories = append(st.Repositories, uri)
		}
	}

	features := props.FilterStripPrefix(keyFeaturePrefix)
	for _, key := range features.Keys() {
		id, err := model.ParseFeatureID(key)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrPersistence, "invalid feature key %q: %v", key, err)
		}
		ids, err := parseModuleIDs(features.GetString(key, ""))
		if err != nil {
			return nil, errors.Wrapf(errors.ErrPersistence, "feature %s: %v", id, err)
		}
		st.Features[id] = ids
	}

	st.BootFeaturesInstalled = props.GetBool(keyBootInstalled, false)
	return st, nil
}

// Save writes the ledger atomically.
func (s *Store) Save(st *State) error {
	props, err := encode(st)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString("# featurectl state\n")
	if _, err := props.Write(&buf, properties.UTF8); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "encode state: %v", err)
	}
	if err := fsutil.EnsureFileDir(s.path); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "create state directory: %v", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, &buf, fsutil.FileModeDefault); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "write %s: %v", s.path, err)
	}
	return nil
}

func encode(st *State) (*properties.Properties, error) {
	props := properties.NewProperties()
	props.DisableExpansion = true

	set := func(k, v string) error {
		if _, _, err := props.Set(k, v); err != nil {
			return errors.Wrapf(errors.ErrPersistence, "set %s: %v", k, err)
		}
		return nil
	}

	if err := set(keyRepositoriesCount, strconv.Itoa(len(st.Repositories))); err != nil {
		return nil, err
	}
	for i, uri := range st.Repositories {
		if err := set(keyRepositoryItem+strconv.Itoa(i), uri); err != nil {
			return nil, err
		}
	}

	ids := make([]model.FeatureID, 0, len(st.Features))
	for id := range st.Features {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		if err := set(keyFeaturePrefix+id.String(), formatModuleIDs(st.Features[id])); err != nil {
			return nil, err
		}
	}

	if err := set(keyBootInstalled, strconv.FormatBool(st.BootFeaturesInstalled)); err != nil {
		return nil, err
	}
	return props, nil
}

func formatModuleIDs(ids []host.ModuleID) string {
	sorted := append([]host.ModuleID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

func parseModuleIDs(s string) ([]host.ModuleID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]host.ModuleID, 0, len(parts))
	for _, p := range parts {
		id, err := host.ParseModuleID(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid module id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
