// Package events fans feature and repository lifecycle events out to listeners.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/model"
)

// Kind is the type of a lifecycle event.
type Kind int

const (
	FeatureInstalled Kind = iota
	FeatureUninstalled
	RepositoryAdded
	RepositoryRemoved
)

func (k Kind) String() string {
	switch k {
	case FeatureInstalled:
		return "FeatureInstalled"
	case FeatureUninstalled:
		return "FeatureUninstalled"
	case RepositoryAdded:
		return "RepositoryAdded"
	case RepositoryRemoved:
		return "RepositoryRemoved"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// FeatureEvent reports a feature being installed or uninstalled. Replay is set
// for events delivered at registration time.
type FeatureEvent struct {
	Feature *model.Feature
	Kind    Kind
	Replay  bool
}

// RepositoryEvent reports a repository being added or removed.
type RepositoryEvent struct {
	Repository *model.Repository
	Kind       Kind
	Replay     bool
}

// Listener receives lifecycle events. Listeners are compared by identity, so
// register pointers.
type Listener interface {
	FeatureEvent(FeatureEvent)
	RepositoryEvent(RepositoryEvent)
}

// ListenerFuncs adapts plain functions to Listener. Nil functions are skipped.
type ListenerFuncs struct {
	OnFeature    func(FeatureEvent)
	OnRepository func(RepositoryEvent)
}

// FeatureEvent implements Listener.
func (l *ListenerFuncs) FeatureEvent(e FeatureEvent) {
	if l.OnFeature != nil {
		l.OnFeature(e)
	}
}

// RepositoryEvent implements Listener.
func (l *ListenerFuncs) RepositoryEvent(e RepositoryEvent) {
	if l.OnRepository != nil {
		l.OnRepository(e)
	}
}

// ReplayFunc supplies the current repositories and installed features for the
// initial replay of a newly registered listener.
type ReplayFunc func() ([]*model.Repository, []*model.Feature)

// Dispatcher delivers events to registered listeners. Delivery iterates over
// an immutable snapshot of the listener list.
type Dispatcher struct {
	mu        sync.Mutex
	listeners atomic.Pointer[[]Listener]
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{}
	d.listeners.Store(&[]Listener{})
	return d
}

// Register adds l and immediately replays RepositoryAdded for every current
// repository followed by FeatureInstalled for every installed feature, all
// flagged as replays.
func (d *Dispatcher) Register(l Listener, replay ReplayFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := *d.listeners.Load()
	next := make([]Listener, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, l)
	d.listeners.Store(&next)

	if replay == nil {
		return
	}
	repos, features := replay()
	for _, r := range repos {
		deliverRepository(l, RepositoryEvent{Repository: r, Kind: RepositoryAdded, Replay: true})
	}
	for _, f := range features {
		deliverFeature(l, FeatureEvent{Feature: f, Kind: FeatureInstalled, Replay: true})
	}
}

// Unregister removes l. Unknown listeners are ignored.
func (d *Dispatcher) Unregister(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := *d.listeners.Load()
	next := make([]Listener, 0, len(current))
	for _, existing := range current {
		if existing != l {
			next = append(next, existing)
		}
	}
	d.listeners.Store(&next)
}

// Len returns the number of registered listeners.
func (d *Dispatcher) Len() int {
	return len(*d.listeners.Load())
}

// FireFeature delivers a feature event to every listener.
func (d *Dispatcher) FireFeature(f *model.Feature, kind Kind) {
	e := FeatureEvent{Feature: f, Kind: kind}
	for _, l := range *d.listeners.Load() {
		deliverFeature(l, e)
	}
}

// ReplayFeature delivers FeatureInstalled for f flagged as a replay. It is used
// for features restored from a persisted ledger.
func (d *Dispatcher) ReplayFeature(f *model.Feature) {
	e := FeatureEvent{Feature: f, Kind: FeatureInstalled, Replay: true}
	for _, l := range *d.listeners.Load() {
		deliverFeature(l, e)
	}
}

// FireRepository delivers a repository event to every listener.
func (d *Dispatcher) FireRepository(r *model.Repository, kind Kind) {
	e := RepositoryEvent{Repository: r, Kind: kind}
	for _, l := range *d.listeners.Load() {
		deliverRepository(l, e)
	}
}

// ReplayRepository delivers RepositoryAdded for r flagged as a replay.
func (d *Dispatcher) ReplayRepository(r *model.Repository) {
	e := RepositoryEvent{Repository: r, Kind: RepositoryAdded, Replay: true}
	for _, l := range *d.listeners.Load() {
		deliverRepository(l, e)
	}
}

func deliverFeature(l Listener, e FeatureEvent) {
	defer recoverListener(e.Kind)
	l.FeatureEvent(e)
}

func deliverRepository(l Listener, e RepositoryEvent) {
	defer recoverListener(e.Kind)
	l.RepositoryEvent(e)
}

func recoverListener(kind Kind) {
	if r := recover(); r != nil {
		logger.Warn("Listener failed", logger.Fields{"event": kind.String(), "panic": fmt.Sprint(r)})
	}
}
