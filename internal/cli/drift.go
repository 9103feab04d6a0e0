package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tidemark-io/tidemark/internal/model"
)

var driftOut string

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Compare recorded state against the real backends",
	Long: `Drift re-reads every recorded resource through its provider adapter and
reports deviation from the last-applied attributes. It never mutates
anything; run plan/apply to converge.

Exit codes: 0 no drift, 1 drift detected.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

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

		reports, err := orch.DetectDrift(ctx)
		if err != nil {
			return err
		}

		if driftOut != "" {
			if err := writeJSON(driftOut, reports); err != nil {
				return err
			}
		}
		if len(reports) == 0 {
			fmt.Println("No drift detected.")
			return nil
		}

		for _, report := range reports {
			if report.Missing {
				fmt.Printf("✗ %s (%s) [%s]: missing from backend\n", report.ResourceID, report.ResourceKind, report.Severity)
				continue
			}
			fmt.Printf("✗ %s (%s) [%s]: drifted attributes: %s\n",
				report.ResourceID, report.ResourceKind, report.Severity, strings.Join(report.DriftedKeys, ", "))
			for _, key := range report.DriftedKeys {
				fmt.Printf("      ~ %s = %v -> %v\n", key, formatValue(report.Expected[key]), formatValue(report.Actual[key]))
			}
		}
		fmt.Printf("\n%d resources drifted.\n", len(reports))
		return exitWithCode(model.ExitPlanDiffer)
	},
}

func init() {
	driftCmd.Flags().StringVar(&driftOut, "out", "", "Write drift reports as JSON to a file (- for stdout)")
}
