package model

import "time"

// ActionKind identifies a planned operation on a single resource.
type ActionKind string

const (
	ActionCreate ActionKind = "CREATE"
	ActionUpdate ActionKind = "UPDATE"
	ActionDelete ActionKind = "DELETE"
	ActionNoOp   ActionKind = "NOOP"
)

// ChangeAction is a single planned operation. It is immutable once produced
// by the diff engine and consumed exactly once by the executor.
type ChangeAction struct {
	ResourceID   string     `json:"resourceId"`
	Action       ActionKind `json:"action"`
	ResourceKind string     `json:"kind"`
	Provider     string     `json:"provider"`

	Before map[string]any `json:"beforeAttributes,omitempty"`
	After  map[string]any `json:"afterAttributes,omitempty"`

	// ChangedKeys is the minimal diff payload for updates; After always
	// carries the full attribute set for adapters that need it.
	ChangedKeys []string `json:"changedKeys,omitempty"`

	// DependencyOrder is the position of this action in the plan.
	DependencyOrder int `json:"dependencyOrder"`

	// ExpectedVersion is the store version observed at plan time. It is the
	// compare-and-swap guard against concurrent reconciliation runs.
	// VersionNone for creates.
	ExpectedVersion int64 `json:"expectedVersion"`

	// PriorHandle carries the provider handle recorded before this run, so
	// updates keep it and rollbacks can restore it.
	PriorHandle  string   `json:"priorHandle,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// PlanSummary counts planned operations by kind.
type PlanSummary struct {
	Create int `json:"create"`
	Update int `json:"update"`
	Delete int `json:"delete"`
	NoOp   int `json:"noop"`
}

// ChangePlan is an ordered sequence of change actions respecting the
// dependency graph: creates and updates in dependency order, deletes in
// reverse dependency order. No resource id appears twice.
type ChangePlan struct {
	Environment string          `json:"environment"`
	CreatedAt   time.Time       `json:"createdAt"`
	Actions     []*ChangeAction `json:"actions"`
	Summary     PlanSummary     `json:"summary"`
}

// HasChanges reports whether the plan contains any non-noop action.
func (p *ChangePlan) HasChanges() bool {
	return p != nil && len(p.Actions) > 0
}
