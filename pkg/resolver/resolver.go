// Package resolver keeps the named module resolvers that features can
// delegate their module list to.
package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/model"
)

// Resolver computes the modules to install for a feature.
type Resolver interface {
	Resolve(ctx context.Context, feature *model.Feature) ([]model.BundleInfo, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, feature *model.Feature) ([]model.BundleInfo, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, feature *model.Feature) ([]model.BundleInfo, error) {
	return f(ctx, feature)
}

// Default returns the modules the feature declares itself.
var Default Resolver = ResolverFunc(func(_ context.Context, feature *model.Feature) ([]model.BundleInfo, error) {
	return append([]model.BundleInfo(nil), feature.Bundles...), nil
})

// Registry maps names to resolvers. Waiters are woken on registration.
type Registry struct {
	mu        sync.Mutex
	resolvers map[string]Resolver
	changed   chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{resolvers: map[string]Resolver{}, changed: make(chan struct{})}
}

// Register adds or replaces the resolver called name.
func (r *Registry) Register(name string, resolver Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[name] = resolver
	close(r.changed)
	r.changed = make(chan struct{})
}

// Unregister removes the resolver called name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resolvers, name)
}

// Lookup returns the resolver called name.
func (r *Registry) Lookup(name string) (Resolver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resolvers[name]
	return res, ok
}

// WaitFor returns the resolver called name, waiting up to timeout for it to
// be registered. It fails with ErrNotFound on timeout and with the context
// error when ctx is done first.
func (r *Registry) WaitFor(ctx context.Context, name string, timeout time.Duration) (Resolver, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		r.mu.Lock()
		res, ok := r.resolvers[name]
		changed := r.changed
		r.mu.Unlock()
		if ok {
			return res, nil
		}
		select {
		case <-changed:
		case <-timer.C:
			return nil, fmt.Errorf("resolver %s not available after %s: %w", name, timeout, errors.ErrNotFound)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
