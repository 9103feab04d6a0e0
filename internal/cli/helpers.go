package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tidemark-io/tidemark/internal/config"
	"github.com/tidemark-io/tidemark/internal/engine"
	"github.com/tidemark-io/tidemark/internal/model"
	"github.com/tidemark-io/tidemark/internal/provider"
	"github.com/tidemark-io/tidemark/internal/state"
	"github.com/tidemark-io/tidemark/providers/fake"
)

// loadDesiredState parses one desired-state YAML document. Parsing lives at
// the CLI boundary; the engine receives typed resources only.
func loadDesiredState(path string) (*model.DesiredState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read desired state %s: %w", path, err)
	}
	var desired model.DesiredState
	if err := yaml.Unmarshal(raw, &desired); err != nil {
		return nil, fmt.Errorf("failed to parse desired state %s: %w", path, err)
	}
	if desired.Environment == "" {
		base := filepath.Base(path)
		desired.Environment = base[:len(base)-len(filepath.Ext(base))]
	}
	for _, res := range desired.Resources {
		res.Attributes, _ = model.NormalizeAttributes(res.Attributes).(map[string]any)
	}
	return &desired, nil
}

func loadDesiredStates(paths []string) ([]*model.DesiredState, error) {
	batch := make([]*model.DesiredState, 0, len(paths))
	for _, path := range paths {
		desired, err := loadDesiredState(path)
		if err != nil {
			return nil, err
		}
		batch = append(batch, desired)
	}
	return batch, nil
}

// openStore builds the configured state backend.
func openStore(ctx context.Context, cfg *config.Configuration) (state.Store, error) {
	switch cfg.Store.Type {
	case "memory":
		return state.NewMemoryStore(), nil
	case "sqlite", "":
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		return state.OpenSQLite(ctx, cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}
}

// newRegistry registers the built-in adapters. The engine ships no cloud
// adapters; real backends register here in downstream builds.
func newRegistry() (*provider.Registry, error) {
	registry := provider.NewRegistry()
	if err := registry.Register("fake", fake.New()); err != nil {
		return nil, err
	}
	return registry, nil
}

func newOrchestrator(cfg *config.Configuration, store state.Store, registry *provider.Registry) (*engine.Orchestrator, error) {
	table, def, err := cfg.Drift.SeverityTable()
	if err != nil {
		return nil, err
	}
	return engine.New(store, registry,
		engine.WithKnownKinds(cfg.Kinds),
		engine.WithRetryPolicy(&engine.RetryPolicy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay,
			MaxDelay:   cfg.Retry.MaxDelay,
		}),
		engine.WithCallTimeout(cfg.CallTimeout),
		engine.WithClassifier(engine.NewClassifier(table, def)),
		engine.WithDriftWorkers(cfg.DriftWorkers),
	), nil
}

// renderPlan prints the change list with +/~/- symbols and per-attribute
// diffs.
func renderPlan(plan *model.ChangePlan) {
	if !plan.HasChanges() {
		fmt.Println("No changes. Infrastructure matches the desired state.")
		return
	}

	fmt.Printf("Tidemark will perform the following actions in %q:\n", plan.Environment)
	for _, action := range plan.Actions {
		symbol, color := "~", "\033[33m"
		switch action.Action {
		case model.ActionCreate:
			symbol, color = "+", "\033[32m"
		case model.ActionDelete:
			symbol, color = "-", "\033[31m"
		}

		fmt.Printf("\n%s  %s %s %q (provider %s)\033[0m\n", color, symbol, action.ResourceKind, action.ResourceID, action.Provider)
		switch action.Action {
		case model.ActionCreate:
			for _, k := range sortedKeys(action.After) {
				fmt.Printf("\033[32m      + %s = %v\033[0m\n", k, formatValue(action.After[k]))
			}
		case model.ActionDelete:
			for _, k := range sortedKeys(action.Before) {
				fmt.Printf("\033[31m      - %s = %v\033[0m\n", k, formatValue(action.Before[k]))
			}
		case model.ActionUpdate:
			for _, k := range action.ChangedKeys {
				before, inBefore := action.Before[k]
				after, inAfter := action.After[k]
				switch {
				case !inBefore:
					fmt.Printf("\033[32m      + %s = %v\033[0m\n", k, formatValue(after))
				case !inAfter:
					fmt.Printf("\033[31m      - %s = %v\033[0m\n", k, formatValue(before))
				default:
					fmt.Printf("\033[33m      ~ %s = %v -> %v\033[0m\n", k, formatValue(before), formatValue(after))
				}
			}
		}
	}

	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create: %d\n", plan.Summary.Create)
	fmt.Printf("  Update: %d\n", plan.Summary.Update)
	fmt.Printf("  Delete: %d\n", plan.Summary.Delete)
	fmt.Printf("  NoOp:   %d\n", plan.Summary.NoOp)
}

// renderReport prints per-action outcomes after an apply.
func renderReport(report *model.ExecutionReport) {
	for _, res := range report.Results {
		line := fmt.Sprintf("  %-8s %-22s %s", res.Action, res.ResourceID, res.Status)
		if res.Error != "" {
			line += " (" + res.Error + ")"
		}
		if res.RollbackError != "" {
			line += " [rollback failed: " + res.RollbackError + "]"
		}
		fmt.Println(line)
	}
	if report.Cancelled {
		fmt.Println("\nRun cancelled; no further actions were dispatched.")
	}
}

func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeJSON marshals v to the given path, or stdout when path is "-" or
// empty.
func writeJSON(path string, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	out = append(out, '\n')
	if path == "" || path == "-" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(path, out, 0644)
}

func invalidInputError(path, detail string) error {
	return fmt.Errorf("%s: %s", path, detail)
}

// maxExitCode folds per-run exit codes; the strongest failure wins.
func maxExitCode(results []*model.ReconciliationResult) int {
	code := model.ExitOK
	for _, result := range results {
		if c := result.ExitCode(); c > code {
			code = c
		}
	}
	return code
}
