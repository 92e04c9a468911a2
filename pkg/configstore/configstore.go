// Package configstore holds the key/value configurations features declare.
package configstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/fsutil"
)

// KeyProperty tags configurations created for a feature with their
// pid-factory key so factory configurations can be found again.
const KeyProperty = "featurectl.configKey"

const fileExt = ".yaml"

// Configuration is a single configuration held by a Store.
type Configuration struct {
	PID        string            `yaml:"pid"`
	FactoryPID string            `yaml:"factory-pid,omitempty"`
	Properties map[string]string `yaml:"properties"`
}

// Store is the configuration store collaborator.
type Store interface {
	// Find returns the configuration for pid, or the factory configuration
	// tagged with the pid-factoryPid key. It returns nil when none exists.
	Find(pid, factoryPid string) (*Configuration, error)
	// Create returns a new, empty configuration. With a factoryPid, pid names
	// the factory and the instance gets a generated PID.
	Create(pid, factoryPid string) (*Configuration, error)
	// Update replaces the properties of cfg.
	Update(cfg *Configuration, props map[string]string) error
	Properties(cfg *Configuration) (map[string]string, error)
}

// ParsePID splits a declared PID of the form pid-factory.
func ParsePID(declared string) (pid, factoryPid string) {
	if n := strings.Index(declared, "-"); n > 0 {
		return declared[:n], declared[n+1:]
	}
	return declared, ""
}

// Key is the value stored under KeyProperty.
func Key(pid, factoryPid string) string {
	if factoryPid == "" {
		return pid
	}
	return pid + "-" + factoryPid
}

// FileStore keeps one YAML file per configuration in a directory.
type FileStore struct {
	dir string

	mu      sync.RWMutex
	configs map[string]*Configuration
}

// NewFileStore opens the store in dir, creating the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := fsutil.EnsureDir(dir); err != nil {
		return nil, errors.Wrapf(err, "failed to create config store directory %s", dir)
	}
	s := &FileStore{dir: dir, configs: make(map[string]*Configuration)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.Wrapf(err, "failed to read config store directory %s", s.dir)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return errors.Wrapf(err, "failed to read configuration %s", e.Name())
		}
		var cfg Configuration
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return errors.Wrapf(errors.ErrConfigParse, "configuration %s: %v", e.Name(), err)
		}
		if cfg.PID == "" {
			cfg.PID = strings.TrimSuffix(e.Name(), fileExt)
		}
		if cfg.Properties == nil {
			cfg.Properties = map[string]string{}
		}
		s.configs[cfg.PID] = &cfg
	}
	return nil
}

// Find implements Store.
func (s *FileStore) Find(pid, factoryPid string) (*Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if factoryPid == "" {
		if cfg, ok := s.configs[pid]; ok {
			return cfg, nil
		}
		return nil, nil
	}
	key := Key(pid, factoryPid)
	for _, p := range s.sortedPIDsLocked() {
		if cfg := s.configs[p]; cfg.Properties[KeyProperty] == key {
			return cfg, nil
		}
	}
	return nil, nil
}

// Create implements Store.
func (s *FileStore) Create(pid, factoryPid string) (*Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if factoryPid == "" {
		if cfg, ok := s.configs[pid]; ok {
			return cfg, nil
		}
		cfg := &Configuration{PID: pid, Properties: map[string]string{}}
		s.configs[pid] = cfg
		return cfg, nil
	}
	cfg := &Configuration{
		PID:        pid + "." + uuid.NewString(),
		FactoryPID: pid,
		Properties: map[string]string{},
	}
	s.configs[cfg.PID] = cfg
	return cfg, nil
}

// Update implements Store and writes the configuration file.
func (s *FileStore) Update(cfg *Configuration, props map[string]string) error {
	if cfg == nil {
		return fmt.Errorf("nil configuration: %w", errors.ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.configs[cfg.PID]
	if !ok {
		return fmt.Errorf("configuration %s: %w", cfg.PID, errors.ErrNotFound)
	}
	next := make(map[string]string, len(props))
	for k, v := range props {
		next[k] = v
	}
	data, err := yaml.Marshal(&Configuration{PID: stored.PID, FactoryPID: stored.FactoryPID, Properties: next})
	if err != nil {
		return errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	if err := fsutil.WriteFileAtomic(s.path(stored.PID), bytes.NewReader(data), fsutil.FileModeDefault); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "configuration %s: %v", stored.PID, err)
	}
	stored.Properties = next
	if cfg != stored {
		cfg.Properties = copyProps(next)
	}
	return nil
}

// Properties implements Store.
func (s *FileStore) Properties(cfg *Configuration) (map[string]string, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil configuration: %w", errors.ErrNotFound)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.configs[cfg.PID]
	if !ok {
		return nil, fmt.Errorf("configuration %s: %w", cfg.PID, errors.ErrNotFound)
	}
	return copyProps(stored.Properties), nil
}

// List returns a copy of every configuration ordered by PID.
func (s *FileStore) List() []Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Configuration, 0, len(s.configs))
	for _, pid := range s.sortedPIDsLocked() {
		cfg := s.configs[pid]
		out = append(out, Configuration{PID: cfg.PID, FactoryPID: cfg.FactoryPID, Properties: copyProps(cfg.Properties)})
	}
	return out
}

func (s *FileStore) path(pid string) string {
	return filepath.Join(s.dir, pid+fileExt)
}

func (s *FileStore) sortedPIDsLocked() []string {
	pids := make([]string, 0, len(s.configs))
	for pid := range s.configs {
		pids = append(pids, pid)
	}
	sort.Strings(pids)
	return pids
}

func copyProps(m map[string]string) map[string]string {
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
