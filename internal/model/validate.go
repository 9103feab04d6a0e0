package model

import "fmt"

// ValidationCode identifies why a desired state batch was rejected.
type ValidationCode string

const (
	ValidationEmptyID           ValidationCode = "EmptyID"
	ValidationDuplicateID       ValidationCode = "DuplicateID"
	ValidationUnknownKind       ValidationCode = "UnknownKind"
	ValidationUnknownDependency ValidationCode = "UnknownDependency"
	ValidationCyclicDependency  ValidationCode = "CyclicDependency"
	ValidationMissingProvider   ValidationCode = "MissingProvider"
)

// ValidationError reports bad input, caught before any side effect.
type ValidationError struct {
	Code       ValidationCode
	ResourceID string
	Detail     string
}

func (e *ValidationError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("invalid desired state: %s (resource %q): %s", e.Code, e.ResourceID, e.Detail)
	}
	return fmt.Sprintf("invalid desired state: %s: %s", e.Code, e.Detail)
}

// Validate checks a desired state batch: non-empty unique ids, known kinds,
// declared providers, and an acyclic dependsOn graph. Cycle detection runs at
// batch level over the whole declaration set. An empty kinds list disables
// the kind check, for embedders that do not constrain kinds.
func Validate(desired *DesiredState, kinds []string) error {
	known := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		known[k] = true
	}

	byID := make(map[string]*Resource, len(desired.Resources))
	for _, res := range desired.Resources {
		if res.ID == "" {
			return &ValidationError{Code: ValidationEmptyID, Detail: "resource id must not be empty"}
		}
		if _, dup := byID[res.ID]; dup {
			return &ValidationError{Code: ValidationDuplicateID, ResourceID: res.ID, Detail: "resource id declared twice"}
		}
		if len(known) > 0 && !known[res.Kind] {
			return &ValidationError{Code: ValidationUnknownKind, ResourceID: res.ID, Detail: fmt.Sprintf("kind %q is not registered", res.Kind)}
		}
		if res.Provider == "" {
			return &ValidationError{Code: ValidationMissingProvider, ResourceID: res.ID, Detail: "resource has no provider"}
		}
		byID[res.ID] = res
	}

	for _, res := range desired.Resources {
		for _, dep := range res.DependsOn {
			if _, ok := byID[dep]; !ok {
				return &ValidationError{Code: ValidationUnknownDependency, ResourceID: res.ID, Detail: fmt.Sprintf("depends on undeclared resource %q", dep)}
			}
		}
	}

	if cyc := findCycle(desired.Resources); cyc != "" {
		return &ValidationError{Code: ValidationCyclicDependency, ResourceID: cyc, Detail: "dependsOn graph contains a cycle"}
	}
	return nil
}

// findCycle runs Kahn's algorithm over the dependsOn edges and returns the id
// of one resource on a cycle, or "" if the graph is acyclic.
func findCycle(resources []*Resource) string {
	inDegree := make(map[string]int, len(resources))
	dependents := make(map[string][]string)
	for _, res := range resources {
		inDegree[res.ID] = len(res.DependsOn)
		for _, dep := range res.DependsOn {
			dependents[dep] = append(dependents[dep], res.ID)
		}
	}

	var queue []string
	for _, res := range resources {
		if inDegree[res.ID] == 0 {
			queue = append(queue, res.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if visited == len(resources) {
		return ""
	}
	for _, res := range resources {
		if inDegree[res.ID] > 0 {
			return res.ID
		}
	}
	return ""
}
