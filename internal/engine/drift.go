package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidemark-io/tidemark/internal/logging"
	"github.com/tidemark-io/tidemark/internal/metrics"
	"github.com/tidemark-io/tidemark/internal/model"
	"github.com/tidemark-io/tidemark/internal/provider"
	"github.com/tidemark-io/tidemark/internal/state"
)

const defaultDriftWorkers = 8

// Classifier maps a drifted attribute to a severity using a per-kind
// classification table. Attributes missing from the table get the default
// severity; Major is the safe default for unclassified structural drift.
type Classifier struct {
	table   map[string]map[string]model.Severity
	missing model.Severity
}

// NewClassifier builds a classifier from a kind -> attribute -> severity
// table.
func NewClassifier(table map[string]map[string]model.Severity, def model.Severity) *Classifier {
	if def == "" {
		def = model.SeverityMajor
	}
	return &Classifier{table: table, missing: def}
}

// Classify returns the severity of drift on one attribute of one kind.
func (c *Classifier) Classify(kind, attribute string) model.Severity {
	if attrs, ok := c.table[kind]; ok {
		if sev, ok := attrs[attribute]; ok {
			return sev
		}
	}
	return c.missing
}

// Detector re-reads real state through provider adapters and reports
// deviation from the recorded state. It is a single callable triggered by an
// external scheduler, emits reports only, and never mutates the store.
type Detector struct {
	store      state.Store
	registry   *provider.Registry
	classifier *Classifier

	// Workers bounds concurrent adapter reads; CallTimeout bounds each.
	Workers     int
	CallTimeout time.Duration

	log zerolog.Logger
}

func NewDetector(store state.Store, registry *provider.Registry, classifier *Classifier) *Detector {
	if classifier == nil {
		classifier = NewClassifier(nil, model.SeverityMajor)
	}
	return &Detector{
		store:       store,
		registry:    registry,
		classifier:  classifier,
		Workers:     defaultDriftWorkers,
		CallTimeout: DefaultCallTimeout,
		log:         logging.Component("drift"),
	}
}

// Detect runs one pass over every recorded resource. Reads fan out to a
// bounded worker pool; unreadable resources are logged and skipped rather
// than failing the whole pass. Reports come back sorted by resource id.
func (d *Detector) Detect(ctx context.Context) ([]*model.DriftReport, error) {
	var records []*model.RecordedState
	err := d.store.List(ctx, func(rec *model.RecordedState) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	workers := d.Workers
	if workers <= 0 {
		workers = defaultDriftWorkers
	}
	sem := make(chan struct{}, workers)

	var mu sync.Mutex
	var reports []*model.DriftReport
	var wg sync.WaitGroup

	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(rec *model.RecordedState) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			report := d.check(ctx, rec)
			if report == nil {
				return
			}
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
		}(rec)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].ResourceID < reports[j].ResourceID
	})
	for _, report := range reports {
		metrics.DriftReportsTotal.WithLabelValues(string(report.Severity)).Inc()
	}
	return reports, nil
}

func (d *Detector) check(ctx context.Context, rec *model.RecordedState) *model.DriftReport {
	adapter, err := d.registry.Get(rec.Provider)
	if err != nil {
		d.log.Warn().Err(err).Str("resource_id", rec.ResourceID).Msg("skipping drift check")
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, d.CallTimeout)
	defer cancel()
	actual, exists, err := adapter.Read(cctx, rec.ResourceID)
	if provider.IsNotFound(err) {
		exists = false
		err = nil
	}
	if err != nil {
		d.log.Warn().Err(err).Str("resource_id", rec.ResourceID).Msg("drift read failed, skipping")
		return nil
	}

	if !exists {
		return &model.DriftReport{
			ResourceID:   rec.ResourceID,
			ResourceKind: rec.Kind,
			Expected:     model.CloneAttributes(rec.LastApplied),
			Missing:      true,
			Severity:     model.SeverityMajor,
			DetectedAt:   time.Now().UTC(),
		}
	}

	drifted := model.ChangedKeys(rec.LastApplied, actual)
	if len(drifted) == 0 {
		return nil
	}

	severity := model.SeverityMinor
	for _, key := range drifted {
		if d.classifier.Classify(rec.Kind, key) == model.SeverityMajor {
			severity = model.SeverityMajor
			break
		}
	}
	return &model.DriftReport{
		ResourceID:   rec.ResourceID,
		ResourceKind: rec.Kind,
		Expected:     model.CloneAttributes(rec.LastApplied),
		Actual:       model.CloneAttributes(actual),
		DriftedKeys:  drifted,
		Severity:     severity,
		DetectedAt:   time.Now().UTC(),
	}
}
