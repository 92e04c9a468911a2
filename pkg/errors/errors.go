// Package errors defines the error kinds shared across featurectl and small
// helpers for wrapping them with context.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Common error types.
var (
	// Lookup errors.
	ErrNotFound          = fmt.Errorf("not found")
	ErrAmbiguousVersion  = fmt.Errorf("multiple versions installed")
	ErrAlreadyExists     = fmt.Errorf("already exists")
	ErrDependencyCycle   = fmt.Errorf("dependency cycle detected")
	ErrInvalidVersion    = fmt.Errorf("invalid version")
	ErrInvalidRepository = fmt.Errorf("invalid features repository")

	// Installation guards.
	ErrAlreadyInstalled = fmt.Errorf("already installed")
	ErrNotInstalled     = fmt.Errorf("not installed")

	// Module host errors.
	ErrModuleFormat  = fmt.Errorf("invalid module format")
	ErrHostOperation = fmt.Errorf("module host operation failed")

	// State errors.
	ErrPersistence = fmt.Errorf("failed to persist state")
	ErrInvalidPath = fmt.Errorf("invalid path")

	// Download errors.
	ErrDownloadFailed    = fmt.Errorf("download failed")
	ErrFileHashMismatch  = fmt.Errorf("file hash mismatch")
	ErrUnsupportedScheme = fmt.Errorf("unsupported location scheme")

	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigDirectory   = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate  = fmt.Errorf("failed to create config file")
	ErrConfigFileRename  = fmt.Errorf("failed to rename temporary config file")
	ErrConfigMarshal     = fmt.Errorf("failed to marshal config to YAML")
	ErrInvalidLogLevel   = fmt.Errorf("invalid log level")

	// Hook errors.
	ErrHookExecution = fmt.Errorf("error executing hook")
	ErrHookScript    = fmt.Errorf("hook script error")
	ErrHookLoad      = fmt.Errorf("failed to load hook")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// FeatureNotFound reports a feature that is not available in any repository.
func FeatureNotFound(name, version string) error {
	return fmt.Errorf("no feature named '%s' with version '%s' available: %w", name, version, ErrNotFound)
}

// FeatureNotInstalled reports an uninstall request for a feature that is not installed.
func FeatureNotInstalled(name, version string) error {
	if version == "" {
		return fmt.Errorf("feature named '%s' is not installed: %w", name, ErrNotInstalled)
	}
	return fmt.Errorf("feature named '%s' with version '%s' is not installed: %w", name, version, ErrNotInstalled)
}
