package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	var generation string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed workloads",
		Long:  `List the workloads recorded as installed for a generation. Read-only.`,
		Example: `  # Show what the 9.0.100 band has installed
  packforge list --generation 9.0.100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := generationFlag(generation)
			if err != nil {
				return err
			}

			coord, cleanup, err := buildCoordinator(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			ids, err := coord.ListInstalledWorkloads(cmd.Context(), gen)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printResult(ids, "")
			}
			if len(ids) == 0 {
				fmt.Printf("no workloads installed for %s\n", gen)
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&generation, "generation", "g", "", "target SDK generation (feature band)")
	_ = cmd.MarkFlagRequired("generation")

	return cmd
}
