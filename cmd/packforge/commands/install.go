package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/packforge/packforge/pkg/engine"
)

func newInstallCommand() *cobra.Command {
	var (
		generation         string
		skipManifestUpdate bool
		offlineCacheDir    string
	)

	cmd := &cobra.Command{
		Use:   "install <workload>...",
		Short: "Install workloads into a generation",
		Long: `Install one or more workloads into an SDK generation.

This command:
  - Updates the generation's manifests from the feed (unless --skip-manifest-update)
  - Expands the requested workloads plus everything already recorded
  - Fetches and installs the missing packs
  - Writes the installation record and garbage-collects unreferenced packs

A failure before the record is written rolls every step back.`,
		Example: `  # Install the web workload into the 9.0.100 band
  packforge install web --generation 9.0.100

  # Air-gapped install from a pre-seeded cache
  packforge install web maui -g 9.0.100 --offline-cache /mnt/usb/packs`,
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

			res, err := coord.InstallWorkloads(cmd.Context(), gen, workloadIDs(args), engine.InstallOptions{
				SkipManifestUpdate: skipManifestUpdate,
				OfflineCacheDir:    offlineCacheDir,
			})
			if err != nil {
				return err
			}

			return printResult(res, fmt.Sprintf("installed %d workload(s): %d pack(s) added, %d removed (tx %s)",
				len(res.Workloads), len(res.PacksInstalled), len(res.PacksRemoved), res.TxID))
		},
	}

	cmd.Flags().StringVarP(&generation, "generation", "g", "", "target SDK generation (feature band)")
	cmd.Flags().BoolVar(&skipManifestUpdate, "skip-manifest-update", false, "install against cached manifests")
	cmd.Flags().StringVar(&offlineCacheDir, "offline-cache", "", "install only from this pre-seeded package directory")
	_ = cmd.MarkFlagRequired("generation")

	return cmd
}
