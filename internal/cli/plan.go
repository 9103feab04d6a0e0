package cli

import (
	"github.com/spf13/cobra"

	"github.com/tidemark-io/tidemark/internal/model"
)

var planOut string

var planCmd = &cobra.Command{
	Use:   "plan <desired-state.yml>...",
	Short: "Show what a reconcile would change, without applying anything",
	Long: `Plan computes the change plan for each desired-state document against the
recorded state and renders it. No provider adapter is ever invoked.

Exit codes: 0 no changes, 1 pending changes, 3 invalid input.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		batch, err := loadDesiredStates(args)
		if err != nil {
			return &exitError{code: model.ExitInvalid, err: err}
		}

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		registry, err := newRegistry()
		if err != nil {
			return err
		}
		orch, err := newOrchestrator(cfg, store, registry)
		if err != nil {
			return err
		}

		results, err := orch.ReconcileBatch(ctx, batch, true, cfg.Parallelism)
		if err != nil {
			return err
		}

		for i, result := range results {
			if result.InvalidInput != "" {
				return &exitError{code: result.ExitCode(), err: invalidInputError(args[i], result.InvalidInput)}
			}
			renderPlan(result.Plan)
		}
		if planOut != "" {
			if err := writeJSON(planOut, results); err != nil {
				return err
			}
		}
		return exitWithCode(maxExitCode(results))
	},
}

func init() {
	planCmd.Flags().StringVar(&planOut, "out", "", "Write plan results as JSON to a file (- for stdout)")
}
