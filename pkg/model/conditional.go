package model

import "strings"

// Conditional is feature content that only applies once every feature of
// Condition is installed or being installed.
type Conditional struct {
	Condition    []Dependency     `yaml:"condition"`
	Bundles      []BundleInfo     `yaml:"bundles,omitempty"`
	Dependencies []Dependency     `yaml:"dependencies,omitempty"`
	Configs      []ConfigInfo     `yaml:"configs,omitempty"`
	ConfigFiles  []ConfigFileInfo `yaml:"config-files,omitempty"`
}

// ConditionID is the stable suffix naming the materialised conditional.
func (c Conditional) ConditionID() string {
	names := make([]string, 0, len(c.Condition))
	for _, d := range c.Condition {
		names = append(names, d.Name)
	}
	return strings.Join(names, "_")
}

// AsFeature materialises the conditional as a synthetic feature keyed by its
// parent's name and version.
func (c Conditional) AsFeature(parentName, parentVersion string) *Feature {
	if parentVersion == "" {
		parentVersion = DefaultVersion
	}
	return &Feature{
		Name:         parentName + "-condition-" + c.ConditionID(),
		Version:      parentVersion,
		Bundles:      c.Bundles,
		Dependencies: c.Dependencies,
		Configs:      c.Configs,
		ConfigFiles:  c.ConfigFiles,
	}
}
