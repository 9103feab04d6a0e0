package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tidemark-io/tidemark/internal/model"
	"github.com/tidemark-io/tidemark/internal/state"
)

// ComputePlan compares desired state against the recorded state and produces
// an ordered change plan: creates and updates in dependency order, then
// prunes (resources recorded but no longer desired) in reverse dependency
// order. For a fixed desired state and store snapshot the output is
// deterministic.
func ComputePlan(ctx context.Context, desired *model.DesiredState, store state.Store) (*model.ChangePlan, error) {
	recorded := make(map[string]*model.RecordedState)
	var recordedOrder []*model.RecordedState
	err := store.List(ctx, func(rec *model.RecordedState) error {
		recorded[rec.ResourceID] = rec
		recordedOrder = append(recordedOrder, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recorded state: %w", err)
	}

	graph, err := BuildGraph(desired.Resources)
	if err != nil {
		return nil, err
	}

	plan := &model.ChangePlan{
		Environment: desired.Environment,
		CreatedAt:   time.Now().UTC(),
	}

	byID := make(map[string]*model.Resource, len(desired.Resources))
	for _, res := range desired.Resources {
		byID[res.ID] = res
	}

	for _, id := range graph.CreationOrder() {
		res := byID[id]
		rec := recorded[id]

		if rec == nil {
			plan.Actions = append(plan.Actions, &model.ChangeAction{
				ResourceID:      id,
				Action:          model.ActionCreate,
				ResourceKind:    res.Kind,
				Provider:        res.Provider,
				After:           model.CloneAttributes(res.Attributes),
				ExpectedVersion: model.VersionNone,
				Dependencies:    append([]string(nil), res.DependsOn...),
			})
			plan.Summary.Create++
			continue
		}

		changed := model.ChangedKeys(rec.LastApplied, res.Attributes)
		if len(changed) == 0 {
			plan.Summary.NoOp++
			continue
		}
		plan.Actions = append(plan.Actions, &model.ChangeAction{
			ResourceID:      id,
			Action:          model.ActionUpdate,
			ResourceKind:    res.Kind,
			Provider:        res.Provider,
			Before:          model.CloneAttributes(rec.LastApplied),
			After:           model.CloneAttributes(res.Attributes),
			ChangedKeys:     changed,
			ExpectedVersion: rec.Version,
			PriorHandle:     rec.ProviderHandle,
			Dependencies:    append([]string(nil), res.DependsOn...),
		})
		plan.Summary.Update++
	}

	// Prune: everything recorded but no longer desired is deleted,
	// dependents before their dependencies.
	var pruned []*model.RecordedState
	for _, rec := range recordedOrder {
		if _, stillDesired := byID[rec.ResourceID]; !stillDesired {
			pruned = append(pruned, rec)
		}
	}
	if len(pruned) > 0 {
		pruneGraph, err := BuildGraphFromRecorded(pruned)
		if err != nil {
			return nil, err
		}
		prunedByID := make(map[string]*model.RecordedState, len(pruned))
		for _, rec := range pruned {
			prunedByID[rec.ResourceID] = rec
		}
		for _, id := range pruneGraph.DestructionOrder() {
			rec := prunedByID[id]
			plan.Actions = append(plan.Actions, &model.ChangeAction{
				ResourceID:      id,
				Action:          model.ActionDelete,
				ResourceKind:    rec.Kind,
				Provider:        rec.Provider,
				Before:          model.CloneAttributes(rec.LastApplied),
				ExpectedVersion: rec.Version,
				PriorHandle:     rec.ProviderHandle,
				Dependencies:    append([]string(nil), rec.Dependencies...),
			})
			plan.Summary.Delete++
		}
	}

	for i, action := range plan.Actions {
		action.DependencyOrder = i
	}
	return plan, nil
}
