package hooks

import (
	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/events"
)

// Listener runs hook scripts for lifecycle events. Script failures are
// logged and never reach the emitter.
type Listener struct {
	manager HookManager
}

var _ events.Listener = (*Listener)(nil)

// NewListener returns a listener executing the hooks of manager.
func NewListener(manager HookManager) *Listener {
	return &Listener{manager: manager}
}

// FeatureEvent implements events.Listener.
func (l *Listener) FeatureEvent(e events.FeatureEvent) {
	var hookType HookType
	switch e.Kind {
	case events.FeatureInstalled:
		hookType = FeatureInstalled
	case events.FeatureUninstalled:
		hookType = FeatureUninstalled
	default:
		logger.Debug(ErrUnsupportedHookEvent(e.Kind.String()).Error())
		return
	}
	if e.Feature == nil {
		return
	}
	l.run(hookType, HookContext{
		FeatureName:    e.Feature.Name,
		FeatureVersion: e.Feature.Version,
		Replay:         e.Replay,
	})
}

// RepositoryEvent implements events.Listener.
func (l *Listener) RepositoryEvent(e events.RepositoryEvent) {
	var hookType HookType
	switch e.Kind {
	case events.RepositoryAdded:
		hookType = RepositoryAdded
	case events.RepositoryRemoved:
		hookType = RepositoryRemoved
	default:
		logger.Debug(ErrUnsupportedHookEvent(e.Kind.String()).Error())
		return
	}
	if e.Repository == nil {
		return
	}
	l.run(hookType, HookContext{
		RepositoryURI: e.Repository.URI,
		Replay:        e.Replay,
	})
}

func (l *Listener) run(hookType HookType, ctx HookContext) {
	if err := l.manager.Execute(hookType, ctx); err != nil {
		logger.Warn("Hook failed", logger.Fields{
			"hook":       string(hookType),
			"feature":    ctx.FeatureName,
			"version":    ctx.FeatureVersion,
			"repository": ctx.RepositoryURI,
			"error":      err.Error(),
		})
	}
}
