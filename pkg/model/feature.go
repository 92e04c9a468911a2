// Package model provides the data structures describing features, the modules
// they bundle and the repositories that publish them.
package model

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultVersion is the version of a feature declared without one. When used
// in a lookup it means "no particular version requested".
const DefaultVersion = "0.0.0"

// FeatureID identifies a feature within a resolved view.
type FeatureID struct {
	Name    string
	Version string
}

// String renders the id as name/version, the form accepted by ParseFeatureID.
func (id FeatureID) String() string {
	return id.Name + "/" + id.Version
}

// ParseFeatureID parses name/version. A missing version yields DefaultVersion.
func ParseFeatureID(s string) (FeatureID, error) {
	s = strings.TrimSpace(s)
	name, ver, found := strings.Cut(s, "/")
	name = strings.TrimSpace(name)
	if name == "" {
		return FeatureID{}, fmt.Errorf("invalid feature id %q", s)
	}
	ver = strings.TrimSpace(ver)
	if !found || ver == "" {
		ver = DefaultVersion
	}
	return FeatureID{Name: name, Version: ver}, nil
}

// Feature is a named, versioned bundle of modules, configuration and
// conditional content.
type Feature struct {
	Name         string           `yaml:"name"`
	Version      string           `yaml:"version,omitempty"`
	Description  string           `yaml:"description,omitempty"`
	Resolver     string           `yaml:"resolver,omitempty"`
	Install      string           `yaml:"install,omitempty"`
	Bundles      []BundleInfo     `yaml:"bundles,omitempty"`
	Dependencies []Dependency     `yaml:"dependencies,omitempty"`
	Conditionals []Conditional    `yaml:"conditionals,omitempty"`
	Configs      []ConfigInfo     `yaml:"configs,omitempty"`
	ConfigFiles  []ConfigFileInfo `yaml:"config-files,omitempty"`
}

// ID returns the feature identity.
func (f *Feature) ID() FeatureID {
	v := f.Version
	if v == "" {
		v = DefaultVersion
	}
	return FeatureID{Name: f.Name, Version: v}
}

func (f *Feature) String() string {
	return f.ID().String()
}

// BundleInfo references one installable module.
type BundleInfo struct {
	Location   string `yaml:"location"`
	StartLevel int    `yaml:"start-level,omitempty"`
	Start      bool   `yaml:"start"`
	Dependency bool   `yaml:"dependency,omitempty"`
}

// UnmarshalYAML accepts either a bare location or a mapping. Start defaults
// to true.
func (b *BundleInfo) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*b = BundleInfo{Location: strings.TrimSpace(value.Value), Start: true}
		return nil
	}
	var raw struct {
		Location   string `yaml:"location"`
		StartLevel int    `yaml:"start-level"`
		Start      *bool  `yaml:"start"`
		Dependency bool   `yaml:"dependency"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*b = BundleInfo{
		Location:   strings.TrimSpace(raw.Location),
		StartLevel: raw.StartLevel,
		Start:      raw.Start == nil || *raw.Start,
		Dependency: raw.Dependency,
	}
	return nil
}

// Dependency names another feature by name and version or version range.
type Dependency struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version,omitempty"`
}

// UnmarshalYAML accepts either "name/version" or a mapping.
func (d *Dependency) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		id, err := ParseFeatureID(value.Value)
		if err != nil {
			return err
		}
		*d = Dependency{Name: id.Name, Version: id.Version}
		return nil
	}
	type plain Dependency
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*d = Dependency(p)
	return nil
}

// VersionOrDefault returns the requested version, DefaultVersion when unset.
func (d Dependency) VersionOrDefault() string {
	if strings.TrimSpace(d.Version) == "" {
		return DefaultVersion
	}
	return strings.TrimSpace(d.Version)
}

func (d Dependency) String() string {
	return d.Name + "/" + d.VersionOrDefault()
}

// ConfigInfo is a configuration to create or merge when a feature installs.
// A PID of the form "pid-factory" addresses a factory configuration.
type ConfigInfo struct {
	PID        string            `yaml:"pid"`
	Properties map[string]string `yaml:"properties,omitempty"`
	Append     bool              `yaml:"append,omitempty"`
}

// ConfigFileInfo is a file copied to FinalName when a feature installs.
type ConfigFileInfo struct {
	Location  string `yaml:"location"`
	FinalName string `yaml:"final-name"`
	Override  bool   `yaml:"override,omitempty"`
}
