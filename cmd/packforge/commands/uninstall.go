package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUninstallCommand() *cobra.Command {
	var generation string

	cmd := &cobra.Command{
		Use:   "uninstall <workload>...",
		Short: "Uninstall workloads from a generation",
		Long: `Remove workloads from a generation's installation record.

Manifests are not updated. Packs no longer reachable from any recorded
workload in any generation are removed by the garbage collection that runs
as part of the transaction; packs still shared stay in place.`,
		Example: `  # Remove the maui workload from the 9.0.100 band
  packforge uninstall maui --generation 9.0.100`,
		Args: cobra.MinimumNArgs(1),
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

			res, err := coord.UninstallWorkloads(cmd.Context(), gen, workloadIDs(args))
			if err != nil {
				return err
			}

			return printResult(res, fmt.Sprintf("uninstalled %d workload(s): %d pack(s) removed (tx %s)",
				len(res.Workloads), len(res.PacksRemoved), res.TxID))
		},
	}

	cmd.Flags().StringVarP(&generation, "generation", "g", "", "target SDK generation (feature band)")
	_ = cmd.MarkFlagRequired("generation")

	return cmd
}
