package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-io/tidemark/internal/model"
	"github.com/tidemark-io/tidemark/internal/provider"
	"github.com/tidemark-io/tidemark/internal/state"
	"github.com/tidemark-io/tidemark/providers/fake"
)

type execEnv struct {
	store    *state.MemoryStore
	backend  *fake.Provider
	executor *Executor
}

func newExecEnv(t *testing.T) *execEnv {
	t.Helper()
	registry := provider.NewRegistry()
	backend := fake.New()
	require.NoError(t, registry.Register("fake", backend))

	store := state.NewMemoryStore()
	x := NewExecutor(registry, store)
	x.Retry = &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return &execEnv{store: store, backend: backend, executor: x}
}

func (e *execEnv) plan(t *testing.T, desired *model.DesiredState) *model.ChangePlan {
	t.Helper()
	plan, err := ComputePlan(context.Background(), desired, e.store)
	require.NoError(t, err)
	return plan
}

func TestExecutor_AppliesCreatesAndRecordsState(t *testing.T) {
	env := newExecEnv(t)
	ctx := context.Background()

	report := env.executor.Apply(ctx, env.plan(t, desiredNetwork()))

	assert.True(t, report.FullySucceeded)
	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		assert.Equal(t, model.StatusSucceeded, res.Status)
		assert.Equal(t, 1, res.Attempts)
	}

	rec, err := env.store.Get(ctx, "net1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(0), rec.Version)
	assert.Contains(t, rec.ProviderHandle, "fake-")

	sub, err := env.store.Get(ctx, "sub1")
	require.NoError(t, err)
	assert.Equal(t, []string{"net1"}, sub.Dependencies)

	remote := env.backend.Remote("net1")
	assert.Equal(t, "10.0.0.0/16", remote["cidr"])
}

func TestExecutor_RetriesTransientFailures(t *testing.T) {
	env := newExecEnv(t)
	ctx := context.Background()
	env.backend.FailNext("create", "net1",
		provider.Errorf(provider.Transient, "create", "net1", "throttled"), 2)

	report := env.executor.Apply(ctx, env.plan(t, desiredNetwork()))

	assert.True(t, report.FullySucceeded)
	res := report.Result("net1")
	assert.Equal(t, model.StatusSucceeded, res.Status)
	assert.Equal(t, 3, res.Attempts)
}

func TestExecutor_PermanentFailureHaltsAndRollsBack(t *testing.T) {
	env := newExecEnv(t)
	ctx := context.Background()

	desired := &model.DesiredState{
		Environment: "prod",
		Resources: []*model.Resource{
			{ID: "net1", Kind: "network", Provider: "fake", Attributes: map[string]any{"cidr": "10.0.0.0/16"}},
			{ID: "sub1", Kind: "subnet", Provider: "fake", DependsOn: []string{"net1"}, Attributes: map[string]any{"cidr": "10.0.1.0/24"}},
			{ID: "vm1", Kind: "compute", Provider: "fake", DependsOn: []string{"sub1"}, Attributes: map[string]any{"size": "m"}},
		},
	}
	env.backend.FailNext("create", "sub1",
		provider.Errorf(provider.Permanent, "create", "sub1", "quota exceeded"), 1)

	report := env.executor.Apply(ctx, env.plan(t, desired))

	assert.False(t, report.FullySucceeded)
	assert.Equal(t, model.StatusRolledBack, report.Result("net1").Status)
	failed := report.Result("sub1")
	assert.Equal(t, model.StatusFailed, failed.Status)
	assert.Equal(t, model.CauseProviderError, failed.Cause)
	assert.Equal(t, 1, failed.Attempts)
	assert.Equal(t, model.StatusPending, report.Result("vm1").Status)

	// The rolled-back create is gone from backend and store.
	assert.Nil(t, env.backend.Remote("net1"))
	rec, err := env.store.Get(ctx, "net1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestExecutor_UpdateRollbackRestoresBefore(t *testing.T) {
	env := newExecEnv(t)
	ctx := context.Background()

	// First run creates both resources.
	report := env.executor.Apply(ctx, env.plan(t, desiredNetwork()))
	require.True(t, report.FullySucceeded)

	// Second run updates net1, then fails creating vm1.
	desired := desiredNetwork()
	desired.Resources[1].Attributes["mtu"] = float64(9000)
	desired.Resources = append(desired.Resources, &model.Resource{
		ID: "vm1", Kind: "compute", Provider: "fake", Attributes: map[string]any{"size": "m"},
	})
	env.backend.FailNext("create", "vm1",
		provider.Errorf(provider.Permanent, "create", "vm1", "denied"), 1)

	report = env.executor.Apply(ctx, env.plan(t, desired))

	assert.False(t, report.FullySucceeded)
	assert.Equal(t, model.StatusRolledBack, report.Result("net1").Status)

	rec, err := env.store.Get(ctx, "net1")
	require.NoError(t, err)
	assert.Equal(t, float64(1500), rec.LastApplied["mtu"])
	assert.Equal(t, float64(1500), env.backend.Remote("net1")["mtu"])
}

func TestExecutor_RollbackFailureIsRecorded(t *testing.T) {
	env := newExecEnv(t)
	ctx := context.Background()

	desired := &model.DesiredState{
		Environment: "prod",
		Resources: []*model.Resource{
			{ID: "net1", Kind: "network", Provider: "fake", Attributes: map[string]any{"cidr": "10.0.0.0/16"}},
			{ID: "sub1", Kind: "subnet", Provider: "fake", DependsOn: []string{"net1"}, Attributes: map[string]any{"cidr": "10.0.1.0/24"}},
		},
	}
	env.backend.FailNext("create", "sub1",
		provider.Errorf(provider.Permanent, "create", "sub1", "denied"), 1)
	env.backend.FailNext("delete", "net1",
		provider.Errorf(provider.Permanent, "delete", "net1", "stuck"), 1)

	report := env.executor.Apply(ctx, env.plan(t, desired))

	res := report.Result("net1")
	assert.Equal(t, model.StatusRollbackFailed, res.Status)
	assert.NotEmpty(t, res.RollbackError)
}

func TestExecutor_ConcurrentModificationConflict(t *testing.T) {
	env := newExecEnv(t)
	ctx := context.Background()

	plan := env.plan(t, desiredNetwork())

	// Another run wins the race after planning.
	require.NoError(t, env.store.Put(ctx, &model.RecordedState{
		ResourceID: "net1", Kind: "network", Provider: "fake",
		LastApplied: map[string]any{"cidr": "10.9.0.0/16"},
	}))

	report := env.executor.Apply(ctx, plan)

	assert.False(t, report.FullySucceeded)
	res := report.Result("net1")
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, model.CauseConcurrentModification, res.Cause)
}

func TestExecutor_DeleteTreatsNotFoundAsGone(t *testing.T) {
	env := newExecEnv(t)
	ctx := context.Background()

	// Recorded, but never created in the backend.
	require.NoError(t, env.store.Put(ctx, &model.RecordedState{
		ResourceID: "net1", Kind: "network", Provider: "fake",
		LastApplied: map[string]any{"cidr": "10.0.0.0/16"},
	}))

	plan := env.plan(t, &model.DesiredState{Environment: "prod"})
	require.Len(t, plan.Actions, 1)
	require.Equal(t, model.ActionDelete, plan.Actions[0].Action)

	report := env.executor.Apply(ctx, plan)

	assert.True(t, report.FullySucceeded)
	assert.Equal(t, model.StatusSucceeded, report.Result("net1").Status)
	rec, err := env.store.Get(ctx, "net1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestExecutor_CancellationStopsDispatch(t *testing.T) {
	env := newExecEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := env.executor.Apply(ctx, env.plan(t, desiredNetwork()))

	assert.True(t, report.Cancelled)
	assert.False(t, report.FullySucceeded)
	for _, res := range report.Results {
		assert.Equal(t, model.StatusPending, res.Status)
	}
	// Nothing was dispatched and nothing rolled back.
	assert.Empty(t, env.backend.Calls())
}

// cancellingAdapter aborts the run from inside a Create on the target
// resource, then fails Transient so the executor lands in its retry sleep
// with the context already cancelled.
type cancellingAdapter struct {
	provider.Adapter
	cancel context.CancelFunc
	target string
}

func (a *cancellingAdapter) Create(ctx context.Context, res *model.Resource) (string, error) {
	if res.ID == a.target {
		a.cancel()
		return "", provider.Errorf(provider.Transient, "create", res.ID, "throttled")
	}
	return a.Adapter.Create(ctx, res)
}

func TestExecutor_CancelDuringRetryKeepsAppliedWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := provider.NewRegistry()
	backend := fake.New()
	require.NoError(t, registry.Register("fake", &cancellingAdapter{
		Adapter: backend,
		cancel:  cancel,
		target:  "sub1",
	}))

	store := state.NewMemoryStore()
	x := NewExecutor(registry, store)
	x.Retry = &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	plan, err := ComputePlan(ctx, desiredNetwork(), store)
	require.NoError(t, err)
	require.Equal(t, []string{"net1", "sub1"}, actionIDs(plan))

	report := x.Apply(ctx, plan)

	assert.True(t, report.Cancelled)
	assert.False(t, report.FullySucceeded)

	// The completed action stays applied; nothing is rolled back.
	assert.Equal(t, model.StatusSucceeded, report.Result("net1").Status)
	assert.Empty(t, report.Result("net1").RollbackError)
	assert.NotNil(t, backend.Remote("net1"))
	rec, err := store.Get(context.Background(), "net1")
	require.NoError(t, err)
	require.NotNil(t, rec)

	// The interrupted action is left undone, not failed.
	sub := report.Result("sub1")
	assert.Equal(t, model.StatusPending, sub.Status)
	assert.Empty(t, sub.Cause)
	for _, call := range backend.Calls() {
		assert.NotEqual(t, "delete", call.Op)
	}
}

func TestExecutor_DeleteRollbackRecreates(t *testing.T) {
	env := newExecEnv(t)
	ctx := context.Background()

	report := env.executor.Apply(ctx, env.plan(t, &model.DesiredState{
		Environment: "prod",
		Resources: []*model.Resource{
			{ID: "sub1", Kind: "subnet", Provider: "fake", Attributes: map[string]any{"cidr": "10.0.1.0/24"}},
			{ID: "vm1", Kind: "compute", Provider: "fake", DependsOn: []string{"sub1"}, Attributes: map[string]any{"size": "m"}},
		},
	}))
	require.True(t, report.FullySucceeded)

	// Empty desired state prunes vm1 then sub1. The second delete fails, so
	// the already-deleted vm1 is recreated.
	env.backend.FailNext("delete", "sub1",
		provider.Errorf(provider.Permanent, "delete", "sub1", "stuck"), 1)

	report = env.executor.Apply(ctx, env.plan(t, &model.DesiredState{Environment: "prod"}))

	assert.False(t, report.FullySucceeded)
	assert.Equal(t, model.StatusRolledBack, report.Result("vm1").Status)
	assert.Equal(t, model.StatusFailed, report.Result("sub1").Status)

	assert.NotNil(t, env.backend.Remote("vm1"))
	rec, err := env.store.Get(ctx, "vm1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "m", rec.LastApplied["size"])
}
