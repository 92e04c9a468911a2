package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/config"
	"github.com/glorpus-work/featurectl/pkg/configstore"
	"github.com/glorpus-work/featurectl/pkg/download"
	"github.com/glorpus-work/featurectl/pkg/events"
	"github.com/glorpus-work/featurectl/pkg/features"
	"github.com/glorpus-work/featurectl/pkg/hooks"
	"github.com/glorpus-work/featurectl/pkg/host/memhost"
	"github.com/glorpus-work/featurectl/pkg/override"
	"github.com/glorpus-work/featurectl/pkg/repository"
	"github.com/glorpus-work/featurectl/pkg/resolver"
	"github.com/glorpus-work/featurectl/pkg/state"
)

// These variables will be set by the main package
var (
	ConfigPath   *string
	Verbose      *bool
	OutputFormat *string
)

// loadConfig loads the configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Settings.LogLevel
	if Verbose != nil && *Verbose {
		level = "debug"
	}
	logger.InitLogger(level, logger.OutputFormat(cfg.Settings.LogFormat))
	return cfg, nil
}

func getConfigPath() string {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath
	}

	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		// an empty path fails later with a descriptive error
		logger.Warn("Failed to get default config path, using empty path", logger.Fields{"error": err})
		return ""
	}
	return defaultPath
}

func outputFormat() string {
	if OutputFormat == nil || *OutputFormat == "" {
		return OutputTable
	}
	return strings.ToLower(*OutputFormat)
}

// environment is a started features service together with the components
// it drives.
type environment struct {
	cfg        *config.Config
	downloader *download.ManagerImpl
	host       *memhost.Host
	registry   *repository.Registry
	dispatcher *events.Dispatcher
	hooks      *hooks.DefaultHookManager
	listener   *hooks.Listener
	service    *features.Service
	boot       *features.BootJob
}

// openEnvironment builds the features service from cfg and starts it. The
// ledger is restored before it returns; a first start also registers the
// configured repositories and installs the boot features.
func openEnvironment(ctx context.Context, cfg *config.Config) (*environment, error) {
	env := &environment{cfg: cfg}

	env.downloader = download.NewManager(cfg.Settings.HTTPTimeout, UserAgent, cfg.GetCacheDir()).
		WithAuth(cfg.ToAuthMap())

	h, err := memhost.Open(cfg.GetHostSnapshotPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open module host: %w", err)
	}
	env.host = h

	env.dispatcher = events.NewDispatcher()
	env.registry = repository.NewRegistry(repository.NewYAMLLoader(env.downloader, cfg.Settings.Blacklist), env.dispatcher)

	overrides, err := override.NewResolver(env.downloader, cfg.Settings.ManifestCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create override resolver: %w", err)
	}

	configs, err := configstore.NewFileStore(cfg.Settings.ConfigStoreDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open configuration store: %w", err)
	}

	svc, err := features.New(features.Collaborators{
		Host:       env.host,
		Registry:   env.registry,
		Downloader: env.downloader,
		Dispatcher: env.dispatcher,
		Overrides:  overrides,
		Resolvers:  resolver.NewRegistry(),
		Configs:    configs,
		State:      state.NewStore(cfg.GetStateDir()),
		Hooks:      features.Hooks{OnEvent: printEvent},
	}, settingsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create features service: %w", err)
	}
	env.service = svc

	env.hooks = hooks.NewHookManager()
	if err := hooks.LoadHooksFromDir(env.hooks, cfg.Settings.HooksDir); err != nil {
		logger.Warn("Failed to load hooks", logger.Fields{"dir": cfg.Settings.HooksDir, "error": err.Error()})
	}
	env.listener = hooks.NewListener(env.hooks)
	svc.RegisterListener(env.listener)

	boot, err := svc.Start(ctx)
	if err != nil {
		svc.Stop()
		return nil, fmt.Errorf("failed to start features service: %w", err)
	}
	env.boot = boot
	return env, nil
}

// Close waits for a pending boot installation and stops the service. Hooks
// are detached first so the shutdown's repository removals run no scripts.
func (e *environment) Close(ctx context.Context) {
	if e.boot != nil {
		if err := e.boot.Wait(ctx); err != nil {
			logger.Warn("Boot features installation failed", logger.Fields{"error": err.Error()})
		}
	}
	e.service.UnregisterListener(e.listener)
	e.service.Stop()
}

func settingsFromConfig(cfg *config.Config) features.Settings {
	return features.Settings{
		RespectStartLevel: cfg.Settings.RespectStartLevel,
		ResolverTimeout:   cfg.Settings.ResolverTimeout,
		OverrideSource:    cfg.Settings.OverrideSource,
		Repositories:      cfg.Repositories,
		BootFeatures:      cfg.Settings.BootFeatures,
		BootAsync:         cfg.Settings.BootAsync,
		ConfigFileBaseDir: cfg.Settings.ConfigFileBaseDir,
	}
}

// withEnvironment loads the configuration, opens the environment and runs fn.
func withEnvironment(ctx context.Context, fn func(ctx context.Context, env *environment) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	env, err := openEnvironment(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close(ctx)
	return fn(ctx, env)
}

func printEvent(e features.Event) {
	fields := logger.Fields{"phase": e.Phase}
	if e.ID != "" {
		fields["id"] = e.ID
	}
	if e.Phase == "error" {
		logger.Error(e.Msg, fields)
		return
	}
	logger.Info(e.Msg, fields)
}

// splitFeatureArg splits name or name/version. The version is empty when
// absent so that the highest version is selected.
func splitFeatureArg(arg string) (name, ver string, err error) {
	name, ver, _ = strings.Cut(strings.TrimSpace(arg), "/")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("invalid feature %q", arg)
	}
	return name, strings.TrimSpace(ver), nil
}

// writeStructured renders v as json or yaml. It reports false for the table
// format so the caller renders its own table.
func writeStructured(w io.Writer, v any) (bool, error) {
	switch outputFormat() {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(config.YAMLIndent)
		defer func() { _ = enc.Close() }()
		return true, enc.Encode(v)
	case OutputTable:
		return false, nil
	default:
		return false, fmt.Errorf("unsupported output format %q", outputFormat())
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
