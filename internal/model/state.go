package model

import "time"

// VersionNone is the expected version used in a compare-and-swap for a
// resource that must not yet exist in the store.
const VersionNone int64 = -1

// RecordedState is the durable record of the last successfully applied state
// of one resource. It is owned by the state store and written only by the
// plan executor after a successful apply.
type RecordedState struct {
	ResourceID     string         `json:"resourceId"`
	Kind           string         `json:"kind"`
	Provider       string         `json:"provider"`
	LastApplied    map[string]any `json:"lastAppliedAttributes"`
	ProviderHandle string         `json:"providerResourceHandle"`
	Version        int64          `json:"version"`
	AppliedAt      time.Time      `json:"appliedAt"`
	Dependencies   []string       `json:"dependencies,omitempty"`
}

// Clone returns a deep copy, so store implementations can hand out records
// without aliasing their internal maps.
func (r *RecordedState) Clone() *RecordedState {
	if r == nil {
		return nil
	}
	dup := *r
	dup.LastApplied = CloneAttributes(r.LastApplied)
	dup.Dependencies = append([]string(nil), r.Dependencies...)
	return &dup
}
