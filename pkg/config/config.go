// Package config provides configuration management for featurectl.
// It handles loading, validating and saving the YAML configuration file that
// names the state, cache and hook directories, the repositories and boot
// features installed on first start, and the installer settings.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/fsutil"
)

// Config represents the application configuration.
type Config struct {
	// Repositories are registered on first start, before any ledger exists.
	Repositories []string `yaml:"repositories"`

	// Auth holds credentials for remote locations, keyed by host name.
	Auth map[string]*AuthConfig `yaml:"auth,omitempty"`

	// General settings
	Settings Settings `yaml:"settings"`
}

// Settings represents general application settings.
type Settings struct {
	// Directories
	StateDir          string `yaml:"state_dir,omitempty"`
	CacheDir          string `yaml:"cache_dir,omitempty"`
	HooksDir          string `yaml:"hooks_dir,omitempty"`
	ConfigStoreDir    string `yaml:"config_store_dir,omitempty"`
	ConfigFileBaseDir string `yaml:"config_file_base_dir,omitempty"`

	// Network settings
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// Installer settings
	BootFeatures      string        `yaml:"boot_features,omitempty"`
	BootAsync         bool          `yaml:"boot_async"`
	RespectStartLevel bool          `yaml:"respect_start_level"`
	ResolverTimeout   time.Duration `yaml:"resolver_timeout"`
	OverrideSource    string        `yaml:"override_source,omitempty"`
	Blacklist         []string      `yaml:"blacklist,omitempty"`
	ManifestCacheSize int           `yaml:"manifest_cache_size"`

	// Output settings
	LogLevel  string `yaml:"log_level"`  // panic, fatal, error, warn, info, debug, trace
	LogFormat string `yaml:"log_format"` // text, json
}

// Default configuration values.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultResolverTimeout bounds the wait for a required named resolver.
	DefaultResolverTimeout = 5 * time.Minute

	// DefaultManifestCacheSize bounds the override manifest cache.
	DefaultManifestCacheSize = 1024

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dataDir, err := fsutil.GetDataDir()
	if err != nil {
		// Fallback to current directory if we can't determine the data dir
		dataDir = "."
	}
	stateDir, err := fsutil.GetStateDir()
	if err != nil {
		stateDir = filepath.Join(dataDir, "state")
	}
	cacheDir, err := fsutil.GetDownloadCacheDir()
	if err != nil {
		cacheDir = filepath.Join(os.TempDir(), fsutil.AppName)
	}

	return &Config{
		Repositories: []string{},
		Settings: Settings{
			StateDir:          stateDir,
			CacheDir:          cacheDir,
			HooksDir:          filepath.Join(dataDir, "hooks"),
			ConfigStoreDir:    filepath.Join(dataDir, "configs"),
			ConfigFileBaseDir: filepath.Join(dataDir, "etc"),
			HTTPTimeout:       DefaultHTTPTimeout,
			ResolverTimeout:   DefaultResolverTimeout,
			ManifestCacheSize: DefaultManifestCacheSize,
			LogLevel:          "info",
			LogFormat:         string(logger.FormatText),
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the
// default configuration.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig saves configuration to a file.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	if err := fsutil.EnsureFileDir(absPath); err != nil {
		return errors.Wrap(errors.ErrConfigDirectory, err.Error())
	}

	var b strings.Builder
	encoder := yaml.NewEncoder(&b)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		return errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	_ = encoder.Close()

	if err := fsutil.WriteFileAtomic(absPath, strings.NewReader(b.String()), fsutil.FileModeDefault); err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConfigMarshal, err.Error())
	}
	return data, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	if err := validateRepositories(c.Repositories); err != nil {
		return err
	}
	if err := validateAuth(c.Auth); err != nil {
		return err
	}
	return validateSettings(c.Settings)
}

func validateRepositories(repos []string) error {
	seen := make(map[string]bool)
	for i, uri := range repos {
		if strings.TrimSpace(uri) == "" {
			return fmt.Errorf("repository %d: uri cannot be empty: %w", i, errors.ErrConfigValidation)
		}
		if seen[uri] {
			return fmt.Errorf("repository '%s': duplicate repository: %w", uri, errors.ErrConfigValidation)
		}
		seen[uri] = true
	}
	return nil
}

func validateSettings(s Settings) error {
	if s.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout cannot be negative: %w", errors.ErrConfigValidation)
	}
	if s.ResolverTimeout < 0 {
		return fmt.Errorf("resolver_timeout cannot be negative: %w", errors.ErrConfigValidation)
	}
	if s.ManifestCacheSize < 1 {
		return fmt.Errorf("manifest_cache_size must be at least 1: %w", errors.ErrConfigValidation)
	}
	validFormats := map[string]bool{string(logger.FormatText): true, string(logger.FormatJSON): true}
	if !validFormats[s.LogFormat] {
		return fmt.Errorf("invalid log_format '%s', must be one of: text, json: %w", s.LogFormat, errors.ErrConfigValidation)
	}
	if !logger.ValidLevel(s.LogLevel) {
		return fmt.Errorf("log_level '%s': %w", s.LogLevel, errors.ErrInvalidLogLevel)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := fsutil.GetConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// AddRepository adds a repository uri. Returns an error if it is already
// configured.
func (c *Config) AddRepository(uri string) error {
	for _, existing := range c.Repositories {
		if existing == uri {
			return fmt.Errorf("repository '%s': %w", uri, errors.ErrAlreadyExists)
		}
	}
	c.Repositories = append(c.Repositories, uri)
	return nil
}

// RemoveRepository removes a repository uri.
func (c *Config) RemoveRepository(uri string) bool {
	for i, existing := range c.Repositories {
		if existing == uri {
			c.Repositories = append(c.Repositories[:i], c.Repositories[i+1:]...)
			return true
		}
	}
	return false
}

// GetStateDir returns the directory holding the ledger and the host snapshot.
func (c *Config) GetStateDir() string {
	return c.Settings.StateDir
}

// GetCacheDir returns the download cache directory.
func (c *Config) GetCacheDir() string {
	return c.Settings.CacheDir
}

// GetHostSnapshotPath returns the path of the module host snapshot.
func (c *Config) GetHostSnapshotPath() string {
	return filepath.Join(c.GetStateDir(), "host.json")
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Repositories == nil {
		c.Repositories = []string{}
	}
	if c.Settings.StateDir == "" {
		c.Settings.StateDir = defaults.Settings.StateDir
	}
	if c.Settings.CacheDir == "" {
		c.Settings.CacheDir = defaults.Settings.CacheDir
	}
	if c.Settings.HooksDir == "" {
		c.Settings.HooksDir = defaults.Settings.HooksDir
	}
	if c.Settings.ConfigStoreDir == "" {
		c.Settings.ConfigStoreDir = defaults.Settings.ConfigStoreDir
	}
	if c.Settings.ConfigFileBaseDir == "" {
		c.Settings.ConfigFileBaseDir = defaults.Settings.ConfigFileBaseDir
	}
	if c.Settings.HTTPTimeout == 0 {
		c.Settings.HTTPTimeout = defaults.Settings.HTTPTimeout
	}
	if c.Settings.ResolverTimeout == 0 {
		c.Settings.ResolverTimeout = defaults.Settings.ResolverTimeout
	}
	if c.Settings.ManifestCacheSize == 0 {
		c.Settings.ManifestCacheSize = defaults.Settings.ManifestCacheSize
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
	if c.Settings.LogFormat == "" {
		c.Settings.LogFormat = defaults.Settings.LogFormat
	}
}
