package hooks

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/featurectl/pkg/errors"
)

// HookFileExtensions lists the supported hooks file extensions.
var HookFileExtensions = map[string]bool{
	".tengo": true,
}

// LoadHooksFromDir loads <hooks-type>.tengo files from dir into manager.
// A missing directory loads nothing.
func LoadHooksFromDir(manager HookManager, dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(errors.ErrHookLoad, "failed to read hooks directory %s: %v", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		if _, ok := HookFileExtensions[ext]; !ok {
			continue
		}

		hookType := HookType(strings.TrimSuffix(entry.Name(), ext))
		if !IsKnown(hookType) {
			continue
		}

		hookPath := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(hookPath)
		if err != nil {
			return errors.Wrapf(errors.ErrHookLoad, "error reading hooks file %s: %v", hookPath, err)
		}

		if err := manager.AddHook(Hook{
			Type:    hookType,
			Content: string(content),
			Path:    hookPath,
		}); err != nil {
			return errors.Wrapf(err, "error adding hooks %s", hookType)
		}
	}

	return nil
}

// HookTemplate generates a template for a hooks script.
func HookTemplate(hookType HookType) string {
	switch hookType {
	case FeatureInstalled:
		return `// Feature-installed hooks
// This script runs after a feature was installed
// Available variables:
// - featureName: string - name of the feature
// - featureVersion: string - version of the feature
// - replay: bool - true when the event is replayed to a new listener

// Example: Print the installed feature
/*
fmt := import("fmt")
if !replay {
    fmt.println("installed " + featureName + "/" + featureVersion)
}
*/`

	case FeatureUninstalled:
		return `// Feature-uninstalled hooks
// This script runs after a feature was uninstalled
// Available variables: same as feature-installed hooks

// Example: Fail loudly for a protected feature
/*
if featureName == "core" {
    err := "core was uninstalled"
}
*/`

	case RepositoryAdded:
		return `// Repository-added hooks
// This script runs after a features repository was added
// Available variables:
// - repositoryURI: string - location of the repository
// - replay: bool - true when the event is replayed to a new listener`

	case RepositoryRemoved:
		return `// Repository-removed hooks
// This script runs after a features repository was removed
// Available variables: same as repository-added hooks`

	default:
		return "// Unknown hooks type: " + string(hookType)
	}
}
