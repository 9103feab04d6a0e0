package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tidemark-io/tidemark/internal/model"
)

var (
	applyAutoApprove bool
	applyOut         string
)

var applyCmd = &cobra.Command{
	Use:   "apply <desired-state.yml>...",
	Short: "Reconcile desired state against the backends",
	Long: `Apply validates each desired-state document, computes the change plan,
shows it, and applies it. A failed action halts the run and rolls back the
actions already applied in this run, in reverse order.

Exit codes: 0 fully succeeded, 2 apply failed, 3 invalid input.`,
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

		// Plan first so the operator confirms what will actually run.
		previews, err := orch.ReconcileBatch(ctx, batch, true, cfg.Parallelism)
		if err != nil {
			return err
		}
		hasChanges := false
		for i, preview := range previews {
			if preview.InvalidInput != "" {
				return &exitError{code: preview.ExitCode(), err: invalidInputError(args[i], preview.InvalidInput)}
			}
			renderPlan(preview.Plan)
			if preview.Plan.HasChanges() {
				hasChanges = true
			}
		}
		if !hasChanges {
			return nil
		}

		if !applyAutoApprove {
			ok, err := confirm("\nDo you want to perform these actions?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Apply cancelled.")
				return nil
			}
		}

		results, err := orch.ReconcileBatch(ctx, batch, false, cfg.Parallelism)
		if err != nil {
			return err
		}
		for _, result := range results {
			if result.Execution != nil {
				fmt.Printf("\nEnvironment %q:\n", result.Environment)
				renderReport(result.Execution)
			}
		}
		if applyOut != "" {
			if err := writeJSON(applyOut, results); err != nil {
				return err
			}
		}
		return exitWithCode(maxExitCode(results))
	},
}

func confirm(prompt string) (bool, error) {
	fmt.Printf("%s\n  Only 'yes' will be accepted: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.TrimSpace(answer) == "yes", nil
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of the plan")
	applyCmd.Flags().StringVar(&applyOut, "out", "", "Write run results as JSON to a file (- for stdout)")
}
