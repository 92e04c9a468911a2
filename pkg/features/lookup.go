package features

import (
	"strings"

	"github.com/glorpus-work/featurectl/pkg/model"
	"github.com/glorpus-work/featurectl/pkg/repository"
	"github.com/glorpus-work/featurectl/pkg/version"
)

func isDefaultVersion(v string) bool {
	return v == "" || v == model.DefaultVersion
}

// lookup selects a feature by name and version as GetFeature documents.
func lookup(catalog repository.Catalog, name, ver string) *model.Feature {
	ver = strings.TrimSpace(ver)
	versions := catalog[name]
	if len(versions) == 0 {
		return nil
	}
	if f, ok := versions[ver]; ok {
		return f
	}
	candidates := make([]string, 0, len(versions))
	for v := range versions {
		candidates = append(candidates, v)
	}

	r := version.Any
	if !isDefaultVersion(ver) {
		parsed, err := version.ParseRange(ver)
		if err != nil {
			return nil
		}
		r = parsed
	}
	// the default version itself never wins a fuzzy match
	above := version.Range{Floor: version.Empty}
	best, ok := highestIn(candidates, r, above)
	if !ok {
		return nil
	}
	return versions[best]
}

// dependencyRange is the range a declared dependency version selects.
func dependencyRange(dep model.Dependency) (version.Range, error) {
	if isDefaultVersion(dep.Version) {
		return version.Any, nil
	}
	return version.ParseRange(dep.Version)
}

func highestIn(candidates []string, ranges ...version.Range) (string, bool) {
	var filtered []string
	for _, c := range candidates {
		v, err := version.ParseLoose(c)
		if err != nil {
			continue
		}
		in := true
		for _, r := range ranges {
			if !r.Contains(v) {
				in = false
				break
			}
		}
		if in {
			filtered = append(filtered, c)
		}
	}
	return version.Highest(filtered, version.Any)
}
