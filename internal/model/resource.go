package model

// Resource is a single declared infrastructure unit. The ID is stable across
// revisions and immutable once a resource has been created.
type Resource struct {
	ID         string         `json:"id" yaml:"id"`
	Kind       string         `json:"kind" yaml:"kind"` // e.g. "network", "storage", "compute"
	Provider   string         `json:"provider" yaml:"provider"`
	DependsOn  []string       `json:"dependsOn,omitempty" yaml:"dependsOn"`
	Attributes map[string]any `json:"attributes" yaml:"attributes"`
}

// DesiredState is the complete target configuration for one environment,
// submitted fresh for every reconciliation run. Resource declaration order is
// significant: it is the tie-breaker when two resources have no dependency
// ordering between them.
type DesiredState struct {
	Environment string      `json:"environment" yaml:"environment"`
	Resources   []*Resource `json:"resources" yaml:"resources"`
}

// ByID returns the resource with the given id, or nil.
func (d *DesiredState) ByID(id string) *Resource {
	for _, res := range d.Resources {
		if res.ID == id {
			return res
		}
	}
	return nil
}
