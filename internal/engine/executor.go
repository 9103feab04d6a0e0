package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidemark-io/tidemark/internal/logging"
	"github.com/tidemark-io/tidemark/internal/metrics"
	"github.com/tidemark-io/tidemark/internal/model"
	"github.com/tidemark-io/tidemark/internal/provider"
	"github.com/tidemark-io/tidemark/internal/state"
)

// Executor applies a change plan through provider adapters and persists the
// outcome. Actions run strictly in plan order; dependency ordering was
// already resolved by the diff engine. On the first failure the remaining
// actions are halted and the actions that already succeeded in this run are
// rolled back in reverse order, best effort.
type Executor struct {
	registry *provider.Registry
	store    state.Store

	// Retry and CallTimeout may be adjusted before Apply.
	Retry       *RetryPolicy
	CallTimeout time.Duration

	log zerolog.Logger
}

func NewExecutor(registry *provider.Registry, store state.Store) *Executor {
	return &Executor{
		registry:    registry,
		store:       store,
		Retry:       DefaultRetryPolicy(),
		CallTimeout: DefaultCallTimeout,
		log:         logging.Component("executor"),
	}
}

// Apply executes the plan. Expected failures land in the report, never in a
// returned error. After a cancellation signal no new actions are dispatched
// and already-succeeded actions stay applied; cancellation is an operator
// decision, not a failure.
func (x *Executor) Apply(ctx context.Context, plan *model.ChangePlan) *model.ExecutionReport {
	report := &model.ExecutionReport{StartedAt: time.Now().UTC()}
	for _, action := range plan.Actions {
		report.Results = append(report.Results, &model.ActionResult{
			ResourceID: action.ResourceID,
			Action:     action.Action,
			Status:     model.StatusPending,
		})
	}

	var succeeded []int
	failed := false
	for i, action := range plan.Actions {
		if ctx.Err() != nil {
			report.Cancelled = true
			x.log.Warn().Str("resource_id", action.ResourceID).Msg("run cancelled, halting dispatch")
			break
		}

		res := report.Results[i]
		res.Status = model.StatusInProgress
		start := time.Now()
		x.log.Debug().
			Str("resource_id", action.ResourceID).
			Str("action", string(action.Action)).
			Msg("executing action")

		err := x.execute(ctx, action, res)
		res.Duration = time.Since(start)
		if err == nil {
			res.Status = model.StatusSucceeded
			succeeded = append(succeeded, i)
			continue
		}

		// An operator abort is not a failure: the interrupted action stays
		// undone, already-succeeded actions stay applied, no rollback.
		if ctx.Err() != nil {
			res.Status = model.StatusPending
			report.Cancelled = true
			x.log.Warn().
				Str("resource_id", action.ResourceID).
				Str("action", string(action.Action)).
				Msg("run cancelled during action, halting dispatch")
			break
		}

		res.Status = model.StatusFailed
		res.Error = err.Error()
		if res.Cause == "" {
			res.Cause = model.CauseProviderError
		}
		x.log.Error().
			Err(err).
			Str("resource_id", action.ResourceID).
			Str("action", string(action.Action)).
			Str("cause", res.Cause).
			Msg("action failed, halting plan and rolling back")
		x.rollback(ctx, plan, report, succeeded)
		failed = true
		break
	}

	report.Duration = time.Since(report.StartedAt)
	report.FullySucceeded = !failed && !report.Cancelled
	for _, res := range report.Results {
		if res.Status != model.StatusPending {
			metrics.ActionsTotal.WithLabelValues(string(res.Action), string(res.Status)).Inc()
		}
	}
	return report
}

func (x *Executor) execute(ctx context.Context, action *model.ChangeAction, res *model.ActionResult) error {
	adapter, err := x.registry.Get(action.Provider)
	if err != nil {
		return err
	}

	onRetry := func(attempt int, err error) {
		metrics.RetriesTotal.Inc()
		x.log.Warn().
			Err(err).
			Str("resource_id", action.ResourceID).
			Int("attempt", attempt).
			Msg("transient provider error, retrying")
	}

	switch action.Action {
	case model.ActionCreate:
		var handle string
		err := RetryWithBackoff(ctx, x.Retry, func() error {
			res.Attempts++
			cctx, cancel := context.WithTimeout(ctx, x.CallTimeout)
			defer cancel()
			h, err := adapter.Create(cctx, resourceFromAction(action))
			if err == nil {
				handle = h
			}
			return err
		}, provider.IsTransient, onRetry)
		if err != nil {
			return err
		}
		return x.persist(ctx, action, res, recordFromAction(action, handle))

	case model.ActionUpdate:
		err := RetryWithBackoff(ctx, x.Retry, func() error {
			res.Attempts++
			cctx, cancel := context.WithTimeout(ctx, x.CallTimeout)
			defer cancel()
			return adapter.Update(cctx, action.ResourceID, action.Before, action.After)
		}, provider.IsTransient, onRetry)
		if err != nil {
			return err
		}
		return x.persist(ctx, action, res, recordFromAction(action, action.PriorHandle))

	case model.ActionDelete:
		err := RetryWithBackoff(ctx, x.Retry, func() error {
			res.Attempts++
			cctx, cancel := context.WithTimeout(ctx, x.CallTimeout)
			defer cancel()
			return adapter.Delete(cctx, action.ResourceID)
		}, provider.IsTransient, onRetry)
		if err != nil && !provider.IsNotFound(err) {
			return err
		}
		// NotFound during delete means already gone; still drop the record.
		return x.store.Delete(ctx, action.ResourceID)
	}
	return nil
}

// persist records a successful create/update via compare-and-swap against
// the version observed at plan time. A conflict means another run touched
// the resource since planning.
func (x *Executor) persist(ctx context.Context, action *model.ChangeAction, res *model.ActionResult, rec *model.RecordedState) error {
	if err := x.store.CompareAndSwap(ctx, action.ExpectedVersion, rec); err != nil {
		if state.IsConflict(err) {
			res.Cause = model.CauseConcurrentModification
		}
		return err
	}
	return nil
}

// rollback re-applies before-attributes of this run's succeeded actions in
// reverse order. Failures are recorded for operator attention and never
// re-thrown; a failed rollback is not rolled back again.
func (x *Executor) rollback(ctx context.Context, plan *model.ChangePlan, report *model.ExecutionReport, succeeded []int) {
	for j := len(succeeded) - 1; j >= 0; j-- {
		i := succeeded[j]
		action := plan.Actions[i]
		res := report.Results[i]

		if err := x.rollbackAction(ctx, action); err != nil {
			res.Status = model.StatusRollbackFailed
			res.RollbackError = err.Error()
			x.log.Error().
				Err(err).
				Str("resource_id", action.ResourceID).
				Str("action", string(action.Action)).
				Msg("rollback failed, manual remediation required")
			continue
		}
		res.Status = model.StatusRolledBack
		x.log.Info().
			Str("resource_id", action.ResourceID).
			Str("action", string(action.Action)).
			Msg("action rolled back")
	}
}

func (x *Executor) rollbackAction(ctx context.Context, action *model.ChangeAction) error {
	adapter, err := x.registry.Get(action.Provider)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, x.CallTimeout)
	defer cancel()

	switch action.Action {
	case model.ActionCreate:
		if err := adapter.Delete(cctx, action.ResourceID); err != nil && !provider.IsNotFound(err) {
			return err
		}
		return x.store.Delete(ctx, action.ResourceID)

	case model.ActionUpdate:
		if err := adapter.Update(cctx, action.ResourceID, action.After, action.Before); err != nil {
			return err
		}
		rec := recordFromAction(action, action.PriorHandle)
		rec.LastApplied = model.CloneAttributes(action.Before)
		return x.store.Put(ctx, rec)

	case model.ActionDelete:
		res := resourceFromAction(action)
		res.Attributes = model.CloneAttributes(action.Before)
		handle, err := adapter.Create(cctx, res)
		if err != nil {
			return err
		}
		rec := recordFromAction(action, handle)
		rec.LastApplied = model.CloneAttributes(action.Before)
		return x.store.Put(ctx, rec)
	}
	return nil
}

func resourceFromAction(action *model.ChangeAction) *model.Resource {
	return &model.Resource{
		ID:         action.ResourceID,
		Kind:       action.ResourceKind,
		Provider:   action.Provider,
		DependsOn:  append([]string(nil), action.Dependencies...),
		Attributes: model.CloneAttributes(action.After),
	}
}

func recordFromAction(action *model.ChangeAction, handle string) *model.RecordedState {
	return &model.RecordedState{
		ResourceID:     action.ResourceID,
		Kind:           action.ResourceKind,
		Provider:       action.Provider,
		LastApplied:    model.CloneAttributes(action.After),
		ProviderHandle: handle,
		AppliedAt:      time.Now().UTC(),
		Dependencies:   append([]string(nil), action.Dependencies...),
	}
}
