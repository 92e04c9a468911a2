package features

import (
	"strings"
	"time"
)

// Option modifies a single install or uninstall call.
type Option uint

const (
	// NoCleanIfFailure keeps modules installed by a failed batch and force
	// starts them instead of rolling back.
	NoCleanIfFailure Option = 1 << iota
	// PrintModulesToRefresh reports the modules that need a refresh.
	PrintModulesToRefresh
	// NoAutoRefresh skips refreshing modules after a batch.
	NoAutoRefresh
	// ContinueBatchOnFailure logs a failing feature and continues with the
	// remaining ones.
	ContinueBatchOnFailure
	// Verbose reports progress through the service's OnEvent hook.
	Verbose
	// NoAutoStart leaves newly installed modules stopped.
	NoAutoStart
	// Boot marks the batch installing the boot features. Its refresh is
	// fired after modules were started and awaited by the boot job.
	Boot
)

// Has reports whether every option of o is set.
func (opts Option) Has(o Option) bool {
	return opts&o == o
}

func (opts Option) String() string {
	names := []struct {
		o    Option
		name string
	}{
		{NoCleanIfFailure, "NoCleanIfFailure"},
		{PrintModulesToRefresh, "PrintModulesToRefresh"},
		{NoAutoRefresh, "NoAutoRefresh"},
		{ContinueBatchOnFailure, "ContinueBatchOnFailure"},
		{Verbose, "Verbose"},
		{NoAutoStart, "NoAutoStart"},
		{Boot, "Boot"},
	}
	var set []string
	for _, n := range names {
		if opts.Has(n.o) {
			set = append(set, n.name)
		}
	}
	return strings.Join(set, "|")
}

// DefaultResolverTimeout bounds the wait for a required named resolver.
const DefaultResolverTimeout = 5 * time.Minute

// Settings control a Service.
type Settings struct {
	// RespectStartLevel starts modules in ascending start level order.
	RespectStartLevel bool
	// ResolverTimeout bounds the wait for a required named resolver.
	ResolverTimeout time.Duration
	// OverrideSource is the location of the override list. Empty disables
	// overrides.
	OverrideSource string
	// Repositories are added on first start, when no ledger exists yet.
	Repositories []string
	// BootFeatures lists the features installed on first start, as
	// comma separated name or name;version=x entries.
	BootFeatures string
	// BootAsync installs the boot features in the background.
	BootAsync bool
	// ConfigFileBaseDir is the directory config files are copied into.
	ConfigFileBaseDir string
}

// Event represents a simple progress notification.
type Event struct {
	Phase string // installing|uninstalling|refreshing|starting|done|error
	ID    string // feature or module id
	Msg   string
}

// Hooks carries callbacks for progress events.
type Hooks struct {
	OnEvent func(Event)
}

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}
