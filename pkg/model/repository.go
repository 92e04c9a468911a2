package model

// Repository is a source of feature definitions, identified by its URI.
type Repository struct {
	URI          string     `yaml:"-"`
	Name         string     `yaml:"name"`
	Features     []*Feature `yaml:"features"`
	Repositories []string   `yaml:"repositories,omitempty"`
}

// Feature returns the feature with the given identity, or nil.
func (r *Repository) Feature(id FeatureID) *Feature {
	for _, f := range r.Features {
		if f.ID() == id {
			return f
		}
	}
	return nil
}
