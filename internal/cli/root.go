package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidemark-io/tidemark/internal/config"
	"github.com/tidemark-io/tidemark/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Configuration
)

var rootCmd = &cobra.Command{
	Use:   "tidemark",
	Short: "Declarative multi-backend infrastructure reconciliation",
	Long: `Tidemark reconciles declarative infrastructure resources across pluggable
backends. It tracks last-applied state, detects drift, and computes and
applies minimal change plans with rollback support.

Core workflow:
  • tidemark validate  — check a desired-state document
  • tidemark plan      — show what a reconcile would change
  • tidemark apply     — apply the change plan
  • tidemark drift     — compare recorded state against the real backends`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logging.Init(cfg.LogLevel, cfg.LogConsole)
		return nil
	},
}

// exitError carries a specific process exit code out of a command. A nil
// wrapped error means the code is the whole message (e.g. "plan has
// changes"), nothing to print.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func exitWithCode(code int) error {
	if code == 0 {
		return nil
	}
	return &exitError{code: code}
}

// Execute runs the root command and returns the process exit code:
// 0 fully succeeded, 1 dry-run with pending changes, 2 apply failed,
// 3 validation error.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
			}
			return ee.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to tidemark.yml (default: ./tidemark.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override configured log level")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(versionCmd)
}
