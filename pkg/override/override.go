// Package override replaces module locations with newer compatible builds
// listed in an override source.
//
// The override source holds one clause per line, for example
//
//	# security fixes
//	file:/patches/http-1.0.3.jar
//	file:/patches/log-2.1.0.jar;range="[2.0,2.1)"
//
// A module is replaced when an override with the same symbolic name has a
// higher version and the module's version lies in the clause's range. Without
// an explicit range only micro updates qualify: [major.minor.0, override).
package override

import (
	"bufio"
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/download"
	"github.com/glorpus-work/featurectl/pkg/manifest"
	"github.com/glorpus-work/featurectl/pkg/model"
	"github.com/glorpus-work/featurectl/pkg/version"
)

// RangeAttribute is the clause attribute carrying an explicit version range.
const RangeAttribute = "range"

// DefaultCacheSize bounds the number of cached module identities.
const DefaultCacheSize = 1024

// Resolver applies overrides. Module identities are cached by location.
type Resolver struct {
	downloader download.Manager
	cache      *lru.Cache[string, manifest.Identity]
}

// NewResolver creates a resolver caching up to cacheSize identities.
func NewResolver(downloader download.Manager, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, manifest.Identity](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{downloader: downloader, cache: cache}, nil
}

// LoadClauses reads the override source. Blank lines and lines starting with
// '#' are ignored. A source that cannot be read yields no clauses.
func (r *Resolver) LoadClauses(ctx context.Context, source string) []manifest.Clause {
	if source == "" {
		return nil
	}
	rc, err := r.downloader.Open(ctx, source)
	if err != nil {
		logger.Debug("Unable to load overrides list", logger.Fields{"source": source, "error": err.Error()})
		return nil
	}
	defer func() { _ = rc.Close() }()

	var clauses []manifest.Clause
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		parsed, err := manifest.ParseHeader(line)
		if err != nil {
			logger.Debug("Ignoring malformed override", logger.Fields{"line": line, "error": err.Error()})
			continue
		}
		clauses = append(clauses, parsed...)
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("Unable to read overrides list", logger.Fields{"source": source, "error": err.Error()})
		return nil
	}
	return clauses
}

// Override loads the clauses from source and applies them to infos.
func (r *Resolver) Override(ctx context.Context, infos []model.BundleInfo, source string) []model.BundleInfo {
	clauses := r.LoadClauses(ctx, source)
	if len(clauses) == 0 {
		return infos
	}
	return r.Apply(ctx, infos, clauses)
}

// Apply returns infos with overridden locations. Later clauses may override
// the result of earlier ones. A module whose identity cannot be read is kept.
func (r *Resolver) Apply(ctx context.Context, infos []model.BundleInfo, clauses []manifest.Clause) []model.BundleInfo {
	if len(clauses) == 0 {
		return infos
	}
	r.prefetch(ctx, clauses)

	type candidate struct {
		location string
		id       manifest.Identity
		rng      *version.Range
	}
	var candidates []candidate
	for _, c := range clauses {
		id, ok := r.Identity(ctx, c.Name)
		if !ok {
			continue
		}
		cand := candidate{location: c.Name, id: id}
		if raw := c.Attribute(RangeAttribute); raw != "" {
			rng, err := version.ParseRange(raw)
			if err != nil {
				logger.Debug("Ignoring override with invalid range", logger.Fields{"override": c.Name, "range": raw})
				continue
			}
			cand.rng = &rng
		}
		candidates = append(candidates, cand)
	}

	out := make([]model.BundleInfo, 0, len(infos))
	for _, info := range infos {
		id, ok := r.Identity(ctx, info.Location)
		if !ok {
			out = append(out, info)
			continue
		}
		current, location := id.Version, info.Location
		for _, cand := range candidates {
			if cand.id.SymbolicName != id.SymbolicName {
				continue
			}
			rng, ok := defaultRange(cand.id.Version, cand.rng)
			if !ok {
				continue
			}
			if rng.Contains(current) && current.Less(cand.id.Version) {
				current, location = cand.id.Version, cand.location
			}
		}
		if location != info.Location {
			logger.Debug("Overriding module", logger.Fields{"from": info.Location, "to": location})
			info.Location = location
		}
		out = append(out, info)
	}
	return out
}

// defaultRange returns the explicit range, or [major.minor.0, v). There is no
// default range when v is itself major.minor.0.
func defaultRange(v version.Version, explicit *version.Range) (version.Range, bool) {
	if explicit != nil {
		return *explicit, true
	}
	floor := version.New(v.Major(), v.Minor(), 0, "")
	if floor.Equal(v) {
		return version.Range{}, false
	}
	return version.NewRange(true, floor, v, false), true
}

// Identity returns the symbolic name and version of the module at location.
func (r *Resolver) Identity(ctx context.Context, location string) (manifest.Identity, bool) {
	if id, ok := r.cache.Get(location); ok {
		return id, true
	}
	path, err := r.downloader.Localize(ctx, location)
	if err != nil {
		logger.Debug("Unable to fetch module for override check", logger.Fields{"location": location, "error": err.Error()})
		return manifest.Identity{}, false
	}
	id, err := manifest.ReadIdentity(ctx, path)
	if err != nil {
		logger.Debug("Unable to read module manifest", logger.Fields{"location": location, "error": err.Error()})
		return manifest.Identity{}, false
	}
	r.cache.Add(location, id)
	return id, true
}

// prefetch downloads the override modules that are not cached yet in one go.
func (r *Resolver) prefetch(ctx context.Context, clauses []manifest.Clause) {
	var missing []string
	for _, c := range clauses {
		if !r.cache.Contains(c.Name) {
			missing = append(missing, c.Name)
		}
	}
	if len(missing) < 2 {
		return
	}
	if _, err := r.downloader.LocalizeAll(ctx, missing); err != nil {
		logger.Debug("Unable to prefetch overrides", logger.Fields{"error": err.Error()})
	}
}

// Invalidate drops the cached identity of location.
func (r *Resolver) Invalidate(location string) {
	r.cache.Remove(location)
}

// Purge drops every cached identity.
func (r *Resolver) Purge() {
	r.cache.Purge()
}

// Len returns the number of cached identities.
func (r *Resolver) Len() int {
	return r.cache.Len()
}
