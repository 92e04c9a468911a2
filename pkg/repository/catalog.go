package repository

import (
	"sort"

	"github.com/glorpus-work/featurectl/pkg/model"
	"github.com/glorpus-work/featurectl/pkg/version"
)

// Catalog maps feature name to version to feature across all repositories.
// Catalogs are immutable once built.
type Catalog map[string]map[string]*model.Feature

func buildCatalog(repos []*model.Repository) Catalog {
	c := Catalog{}
	for _, repo := range repos {
		for _, f := range repo.Features {
			versions := c[f.Name]
			if versions == nil {
				versions = map[string]*model.Feature{}
				c[f.Name] = versions
			}
			versions[f.ID().Version] = f
		}
	}
	return c
}

// Get returns the feature with exactly this name and version.
func (c Catalog) Get(name, ver string) *model.Feature {
	return c[name][ver]
}

// Versions returns the versions available for name, lowest first.
func (c Catalog) Versions(name string) []string {
	versions := make([]string, 0, len(c[name]))
	for v := range c[name] {
		versions = append(versions, v)
	}
	sortVersions(versions)
	return versions
}

// All returns every feature ordered by name then version.
func (c Catalog) All() []*model.Feature {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []*model.Feature
	for _, name := range names {
		for _, v := range c.Versions(name) {
			out = append(out, c[name][v])
		}
	}
	return out
}

func sortVersions(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		a, errA := version.ParseLoose(versions[i])
		b, errB := version.ParseLoose(versions[j])
		if errA != nil || errB != nil {
			return versions[i] < versions[j]
		}
		return a.Less(b)
	})
}
