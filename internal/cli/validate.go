package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidemark-io/tidemark/internal/model"
)

var validateCmd = &cobra.Command{
	Use:   "validate <desired-state.yml>...",
	Short: "Validate desired-state documents without touching any backend",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, err := loadDesiredStates(args)
		if err != nil {
			return &exitError{code: model.ExitInvalid, err: err}
		}

		failed := false
		for i, desired := range batch {
			if err := model.Validate(desired, cfg.Kinds); err != nil {
				failed = true
				fmt.Printf("✗ %s: %v\n", args[i], err)
				continue
			}
			fmt.Printf("✓ %s: %d resources, environment %q\n", args[i], len(desired.Resources), desired.Environment)
		}
		if failed {
			return exitWithCode(model.ExitInvalid)
		}
		return nil
	},
}
