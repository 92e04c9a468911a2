// Package refresh computes which installed modules need rewiring after new
// modules were added to a host.
package refresh

import (
	"sort"

	"github.com/glorpus-work/featurectl/pkg/host"
	"github.com/glorpus-work/featurectl/pkg/manifest"
)

// Wiring is the part of a host the analysis reads.
type Wiring interface {
	Describe(id host.ModuleID) (host.Descriptor, bool)
	IsWired(id host.ModuleID, imp manifest.Import) bool
}

// Set is a set of module ids.
type Set map[host.ModuleID]struct{}

// NewSet returns a set holding ids.
func NewSet(ids ...host.ModuleID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id and reports whether it was missing.
func (s Set) Add(id host.ModuleID) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Contains reports whether id is in the set.
func (s Set) Contains(id host.ModuleID) bool {
	_, ok := s[id]
	return ok
}

// Clone returns a copy of the set.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Minus returns the ids of s not present in o.
func (s Set) Minus(o Set) Set {
	d := make(Set)
	for id := range s {
		if !o.Contains(id) {
			d[id] = struct{}{}
		}
	}
	return d
}

// Sorted returns the ids in ascending order.
func (s Set) Sorted() []host.ModuleID {
	ids := make([]host.ModuleID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Analyze grows seed with every module of all that has to be refreshed so
// that it can pick up the modules in the set. A module joins when one of its
// unwired optional imports is satisfied by an export of a set member, or when
// it is the host of a fragment in the set. The passes repeat until neither adds
// anything. seed is not modified.
func Analyze(w Wiring, all []host.ModuleID, seed Set) Set {
	result := seed.Clone()
	descs := make(map[host.ModuleID]host.Descriptor, len(all))
	for _, id := range all {
		if d, ok := w.Describe(id); ok {
			descs[id] = d
		}
	}
	for {
		grew := optionalPass(w, all, descs, result)
		if fragmentPass(all, descs, result) {
			grew = true
		}
		if !grew {
			return result
		}
	}
}

func optionalPass(w Wiring, all []host.ModuleID, descs map[host.ModuleID]host.Descriptor, set Set) bool {
	grew := false
	for _, id := range all {
		if set.Contains(id) {
			continue
		}
		d, ok := descs[id]
		if !ok {
			continue
		}
		if unwiredOptionalSatisfied(w, d, descs, set) {
			set.Add(id)
			grew = true
		}
	}
	return grew
}

func unwiredOptionalSatisfied(w Wiring, d host.Descriptor, descs map[host.ModuleID]host.Descriptor, set Set) bool {
	for _, imp := range d.Imports {
		if !imp.Optional || w.IsWired(d.ID, imp) {
			continue
		}
		for id := range set {
			provider, ok := descs[id]
			if !ok {
				continue
			}
			for _, exp := range provider.Exports {
				if exp.Satisfies(imp) {
					return true
				}
			}
		}
	}
	return false
}

func fragmentPass(all []host.ModuleID, descs map[host.ModuleID]host.Descriptor, set Set) bool {
	grew := false
	for _, fragID := range set.Sorted() {
		frag, ok := descs[fragID]
		if !ok || !frag.IsFragment() {
			continue
		}
		for _, id := range all {
			if set.Contains(id) {
				continue
			}
			d, ok := descs[id]
			if !ok || d.IsFragment() {
				continue
			}
			if frag.FragmentHost.Matches(d.Identity()) {
				set.Add(id)
				grew = true
			}
		}
	}
	return grew
}
