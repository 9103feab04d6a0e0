package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tidemark-io/tidemark/internal/model"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect the recorded resource state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all recorded resources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		count := 0
		err = store.List(ctx, func(rec *model.RecordedState) error {
			count++
			fmt.Printf("%-28s %-14s %-10s v%d  %s\n",
				rec.ResourceID, rec.Kind, rec.Provider, rec.Version,
				rec.AppliedAt.Format("2006-01-02 15:04:05"))
			return nil
		})
		if err != nil {
			return err
		}
		if count == 0 {
			fmt.Println("State is empty.")
		}
		return nil
	},
}

var stateShowCmd = &cobra.Command{
	Use:   "show <resource-id>",
	Short: "Show the recorded state of one resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("resource %q is not recorded", args[0])
		}

		fmt.Printf("Resource:  %s\n", rec.ResourceID)
		fmt.Printf("Kind:      %s\n", rec.Kind)
		fmt.Printf("Provider:  %s\n", rec.Provider)
		fmt.Printf("Handle:    %s\n", rec.ProviderHandle)
		fmt.Printf("Version:   %d\n", rec.Version)
		fmt.Printf("Applied:   %s\n", rec.AppliedAt.Format("2006-01-02 15:04:05 MST"))
		if len(rec.Dependencies) > 0 {
			fmt.Printf("Depends:   %s\n", strings.Join(rec.Dependencies, ", "))
		}
		fmt.Println("Attributes:")
		for _, key := range sortedKeys(rec.LastApplied) {
			fmt.Printf("  %s = %v\n", key, formatValue(rec.LastApplied[key]))
		}
		return nil
	},
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
}
