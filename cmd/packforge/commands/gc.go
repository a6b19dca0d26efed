package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/packforge/packforge/pkg/engine"
	"github.com/packforge/packforge/pkg/manifest"
)

func newGCCommand() *cobra.Command {
	var liveGenerations []string

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Garbage-collect unreferenced packs and manifests",
		Long: `Recompute every generation's pack reference set from its current
manifests and recorded workloads, then remove packs and manifest versions
no generation references.

With --live-generations, records of any generation not listed are dropped
before the sweep (the listed SDKs are the ones still on the machine).
Without it every recorded generation is treated as live.`,
		Example: `  # Sweep unreferenced packs
  packforge gc

  # Drop records of uninstalled SDK bands, then sweep
  packforge gc --live-generations 9.0.100,10.0.100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, cleanup, err := buildCoordinator(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			live := make([]manifest.Generation, 0, len(liveGenerations))
			for _, g := range liveGenerations {
				live = append(live, manifest.Generation(g))
			}

			res, err := coord.CollectGarbage(cmd.Context(), engine.GCOptions{LiveGenerations: live})
			if err != nil {
				return err
			}

			summary := fmt.Sprintf("removed %d pack(s), %d manifest(s); dropped %d generation(s)",
				len(res.RemovedPacks), len(res.RemovedManifests), len(res.DroppedGenerations))
			if len(res.Failed) > 0 {
				summary += fmt.Sprintf("; %d removal(s) failed and will be retried", len(res.Failed))
			}
			return printResult(res, summary)
		},
	}

	cmd.Flags().StringSliceVar(&liveGenerations, "live-generations", nil, "generations still present on the machine")

	return cmd
}
