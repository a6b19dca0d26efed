package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/packforge/packforge/pkg/engine"
)

func newUpdateCommand() *cobra.Command {
	var (
		generation      string
		fromPrevious    bool
		offlineCacheDir string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update installed workloads to the newest manifests",
		Long: `Advance a generation's manifests to the newest published versions and
reconcile the installed packs against the recorded workloads.

With --from-previous-sdk the newest other generation's installation record
seeds the target generation first, carrying installed workloads across a
feature-band upgrade.`,
		Example: `  # Update the 9.0.100 band in place
  packforge update --generation 9.0.100

  # Carry workloads from the previous band into 10.0.100
  packforge update -g 10.0.100 --from-previous-sdk`,
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

			res, err := coord.UpdateWorkloads(cmd.Context(), gen, engine.UpdateOptions{
				FromPreviousGeneration: fromPrevious,
				OfflineCacheDir:        offlineCacheDir,
			})
			if err != nil {
				return err
			}

			return printResult(res, fmt.Sprintf("updated %d workload(s): %d manifest(s), %d pack(s) added, %d removed (tx %s)",
				len(res.Workloads), len(res.ManifestsUpdated), len(res.PacksInstalled), len(res.PacksRemoved), res.TxID))
		},
	}

	cmd.Flags().StringVarP(&generation, "generation", "g", "", "target SDK generation (feature band)")
	cmd.Flags().BoolVar(&fromPrevious, "from-previous-sdk", false, "seed the record from the newest other generation")
	cmd.Flags().StringVar(&offlineCacheDir, "offline-cache", "", "install only from this pre-seeded package directory")
	_ = cmd.MarkFlagRequired("generation")

	return cmd
}
