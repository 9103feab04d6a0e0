package model

import "time"

// ActionStatus is the per-action execution state machine:
// Pending -> InProgress -> {Succeeded | Failed | RolledBack | RollbackFailed}.
type ActionStatus string

const (
	StatusPending        ActionStatus = "Pending"
	StatusInProgress     ActionStatus = "InProgress"
	StatusSucceeded      ActionStatus = "Succeeded"
	StatusFailed         ActionStatus = "Failed"
	StatusRolledBack     ActionStatus = "RolledBack"
	StatusRollbackFailed ActionStatus = "RollbackFailed"
)

// Failure causes surfaced on a failed action.
const (
	CauseProviderError          = "ProviderError"
	CauseConcurrentModification = "ConcurrentModification"
)

// ActionResult is the outcome of one change action.
type ActionResult struct {
	ResourceID string       `json:"resourceId"`
	Action     ActionKind   `json:"action"`
	Status     ActionStatus `json:"status"`
	Attempts   int          `json:"attempts"`
	Cause      string       `json:"cause,omitempty"`
	Error      string       `json:"error,omitempty"`
	// RollbackError holds the underlying error when a best-effort rollback
	// of this action failed; it is recorded for operator attention and
	// never re-thrown.
	RollbackError string        `json:"rollbackError,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// ExecutionReport aggregates per-action outcomes for one plan application.
type ExecutionReport struct {
	Results        []*ActionResult `json:"results"`
	StartedAt      time.Time       `json:"startedAt"`
	Duration       time.Duration   `json:"duration"`
	FullySucceeded bool            `json:"fullySucceeded"`
	Cancelled      bool            `json:"cancelled,omitempty"`
}

// Result returns the result entry for a resource id, or nil.
func (r *ExecutionReport) Result(resourceID string) *ActionResult {
	for _, res := range r.Results {
		if res.ResourceID == resourceID {
			return res
		}
	}
	return nil
}

// ReconciliationResult is the operator-facing outcome of one run. It is
// serialized as JSON for CLI and CI consumption; expected failure categories
// are carried inside it rather than raised.
type ReconciliationResult struct {
	RunID       string           `json:"runId"`
	Environment string           `json:"environment"`
	DryRun      bool             `json:"dryRun"`
	Plan        *ChangePlan      `json:"plan,omitempty"`
	Execution   *ExecutionReport `json:"executionReport,omitempty"`
	Drift       []*DriftReport   `json:"driftReports,omitempty"`
	// InvalidInput holds the validation or plan error message when the run
	// aborted before any side effect.
	InvalidInput string `json:"invalidInput,omitempty"`
}

// Exit codes for CLI and CI consumers.
const (
	ExitOK         = 0
	ExitPlanDiffer = 1
	ExitApplyFail  = 2
	ExitInvalid    = 3
)

// ExitCode maps the result onto the process exit code contract:
// 0 fully succeeded, 1 dry-run with pending changes, 2 apply failed,
// 3 validation error.
func (r *ReconciliationResult) ExitCode() int {
	switch {
	case r.InvalidInput != "":
		return ExitInvalid
	case r.Execution != nil && !r.Execution.FullySucceeded:
		return ExitApplyFail
	case r.DryRun && r.Plan.HasChanges():
		return ExitPlanDiffer
	default:
		return ExitOK
	}
}
