package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tidemark-io/tidemark/internal/logging"
	"github.com/tidemark-io/tidemark/internal/metrics"
	"github.com/tidemark-io/tidemark/internal/model"
	"github.com/tidemark-io/tidemark/internal/provider"
	"github.com/tidemark-io/tidemark/internal/state"
)

// Orchestrator sequences a reconciliation run: validate, plan, optionally
// stop (dry run), apply, record. Expected failure categories are returned
// inside the ReconciliationResult; only unexpected internal errors (e.g. an
// unreadable state store) propagate as errors.
type Orchestrator struct {
	store    state.Store
	registry *provider.Registry
	executor *Executor
	detector *Detector
	kinds    []string
	log      zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithKnownKinds sets the resource kinds accepted by validation. Empty means
// unconstrained.
func WithKnownKinds(kinds []string) Option {
	return func(o *Orchestrator) { o.kinds = kinds }
}

// WithRetryPolicy overrides the executor's retry policy.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(o *Orchestrator) { o.executor.Retry = p }
}

// WithCallTimeout bounds every provider adapter call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.executor.CallTimeout = d
		o.detector.CallTimeout = d
	}
}

// WithClassifier sets the drift severity classification table.
func WithClassifier(c *Classifier) Option {
	return func(o *Orchestrator) { o.detector.classifier = c }
}

// WithDriftWorkers bounds concurrent drift reads.
func WithDriftWorkers(n int) Option {
	return func(o *Orchestrator) { o.detector.Workers = n }
}

func New(store state.Store, registry *provider.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		registry: registry,
		executor: NewExecutor(registry, store),
		detector: NewDetector(store, registry, nil),
		log:      logging.Component("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Reconcile runs one validate -> plan -> apply cycle for a desired state.
// With dryRun the executor is never called; the result carries the plan only.
func (o *Orchestrator) Reconcile(ctx context.Context, desired *model.DesiredState, dryRun bool) (*model.ReconciliationResult, error) {
	start := time.Now()
	defer func() {
		metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	result := &model.ReconciliationResult{
		RunID:       uuid.NewString(),
		Environment: desired.Environment,
		DryRun:      dryRun,
	}
	log := o.log.With().Str("run_id", result.RunID).Str("environment", desired.Environment).Logger()

	if err := model.Validate(desired, o.kinds); err != nil {
		log.Warn().Err(err).Msg("desired state rejected")
		result.InvalidInput = err.Error()
		return result, nil
	}

	plan, err := ComputePlan(ctx, desired, o.store)
	if err != nil {
		var pe *PlanError
		if errors.As(err, &pe) {
			log.Warn().Err(err).Msg("plan rejected")
			result.InvalidInput = err.Error()
			return result, nil
		}
		return nil, err
	}
	result.Plan = plan
	log.Info().
		Int("create", plan.Summary.Create).
		Int("update", plan.Summary.Update).
		Int("delete", plan.Summary.Delete).
		Int("noop", plan.Summary.NoOp).
		Bool("dry_run", dryRun).
		Msg("plan computed")

	if dryRun || !plan.HasChanges() {
		return result, nil
	}

	result.Execution = o.executor.Apply(ctx, plan)
	log.Info().
		Bool("fully_succeeded", result.Execution.FullySucceeded).
		Dur("duration", result.Execution.Duration).
		Msg("apply finished")
	return result, nil
}

// ReconcileBatch reconciles independent environments concurrently on a
// bounded worker pool. Results come back in input order. Runs touching
// overlapping resource sets are safe: the store's optimistic version check
// resolves the race, one run winning and the other failing with
// ConcurrentModification.
func (o *Orchestrator) ReconcileBatch(ctx context.Context, batch []*model.DesiredState, dryRun bool, parallelism int) ([]*model.ReconciliationResult, error) {
	if parallelism <= 0 {
		parallelism = 4
	}
	sem := make(chan struct{}, parallelism)

	results := make([]*model.ReconciliationResult, len(batch))
	errs := make([]error, len(batch))
	var wg sync.WaitGroup

	for i, desired := range batch {
		wg.Add(1)
		go func(i int, desired *model.DesiredState) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i], errs[i] = o.Reconcile(ctx, desired, dryRun)
		}(i, desired)
	}
	wg.Wait()

	return results, errors.Join(errs...)
}

// DetectDrift runs one drift detection pass over all recorded resources.
func (o *Orchestrator) DetectDrift(ctx context.Context) ([]*model.DriftReport, error) {
	return o.detector.Detect(ctx)
}
