package hooks

import "sync"

// DefaultHookManager keeps at most one script per event type and runs it
// through a TengoExecutor.
type DefaultHookManager struct {
	executor *TengoExecutor

	mu      sync.RWMutex
	sources map[HookType]string
}

// NewHookManager creates a manager without scripts.
func NewHookManager() *DefaultHookManager {
	return &DefaultHookManager{
		executor: NewTengoExecutor(),
		sources:  make(map[HookType]string),
	}
}

// Execute runs the script registered for hookType. Events without a script
// are ignored.
func (m *DefaultHookManager) Execute(hookType HookType, ctx HookContext) error {
	if !m.HasHook(hookType) {
		return nil
	}
	return m.executor.Execute(hookType, ctx)
}

// AddHook registers a script, replacing any previous script of that type.
func (m *DefaultHookManager) AddHook(hook Hook) error {
	if hook.Type == "" {
		return ErrHookTypeEmpty
	}
	if !IsKnown(hook.Type) {
		return ErrUnsupportedHookEvent(string(hook.Type))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executor.AddScript(hook.Type, hook.Content)
	m.sources[hook.Type] = hook.Path
	return nil
}

// RemoveHook drops the script of hookType.
func (m *DefaultHookManager) RemoveHook(hookType HookType) error {
	if hookType == "" {
		return ErrHookTypeEmpty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executor.RemoveScript(hookType)
	delete(m.sources, hookType)
	return nil
}

// HasHook reports whether a script is registered for hookType.
func (m *DefaultHookManager) HasHook(hookType HookType) bool {
	return m.executor.HasScript(hookType)
}

// Source returns the file a script was loaded from. It is empty for scripts
// added from memory.
func (m *DefaultHookManager) Source(hookType HookType) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	path, ok := m.sources[hookType]
	return path, ok
}

// Registered lists the event types with a script, in Types order.
func (m *DefaultHookManager) Registered() []HookType {
	var out []HookType
	for _, t := range Types {
		if m.HasHook(t) {
			out = append(out, t)
		}
	}
	return out
}
