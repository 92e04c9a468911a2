package hooks

// HookType represents the type of hooks.
type HookType string

// Supported hooks types, one per lifecycle event.
const (
	FeatureInstalled   HookType = "feature-installed"
	FeatureUninstalled HookType = "feature-uninstalled"
	RepositoryAdded    HookType = "repository-added"
	RepositoryRemoved  HookType = "repository-removed"
)

// Types lists every supported hooks type.
var Types = []HookType{FeatureInstalled, FeatureUninstalled, RepositoryAdded, RepositoryRemoved}

// Hook represents a hooks script with its type and content. Path records
// where the script was read from, if anywhere.
type Hook struct {
	Type    HookType
	Content string
	Path    string
}

// IsKnown reports whether t is one of Types.
func IsKnown(t HookType) bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// HookContext contains information passed to hooks.
type HookContext struct {
	FeatureName    string
	FeatureVersion string
	RepositoryURI  string
	Replay         bool
	Vars           map[string]interface{}
}

// HookManager defines the interface for managing hooks.
type HookManager interface {
	// Execute runs the specified hooks type with the given context
	Execute(hookType HookType, ctx HookContext) error

	// AddHook adds a new hooks
	AddHook(hook Hook) error

	// RemoveHook removes a hooks of the specified type
	RemoveHook(hookType HookType) error

	// HasHook checks if a hooks of the specified type exists
	HasHook(hookType HookType) bool
}
