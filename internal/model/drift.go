package model

import "time"

// Severity classifies how serious an attribute deviation is.
type Severity string

const (
	SeverityMinor Severity = "Minor" // cosmetic, e.g. a tag
	SeverityMajor Severity = "Major" // structural, e.g. a network CIDR
)

// DriftReport records a divergence between the recorded state of a resource
// and what the backend actually holds. It is emitted by the drift detector
// and never mutates the state store.
type DriftReport struct {
	ResourceID   string         `json:"resourceId"`
	ResourceKind string         `json:"kind"`
	Expected     map[string]any `json:"expectedAttributes"`
	Actual       map[string]any `json:"actualAttributes,omitempty"`
	// Missing is set when the resource no longer exists in the backend at
	// all.
	Missing     bool      `json:"missing,omitempty"`
	DriftedKeys []string  `json:"driftedKeys,omitempty"`
	Severity    Severity  `json:"severity"`
	DetectedAt  time.Time `json:"detectedAt"`
}
