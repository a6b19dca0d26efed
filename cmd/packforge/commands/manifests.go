package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newManifestsCommand() *cobra.Command {
	var generation string

	cmd := &cobra.Command{
		Use:   "manifests",
		Short: "Show the workloads and packs a generation's manifests declare",
		Long: `Display the merged manifest set a generation currently resolves
against: every available workload and every declared pack. Read-only.`,
		Example: `  # What could be installed into the 9.0.100 band
  packforge manifests --generation 9.0.100`,
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

			set, err := coord.ManifestSet(cmd.Context(), gen)
			if err != nil {
				return err
			}

			workloads := set.Workloads()
			packs := set.Packs()

			if jsonOutput {
				return printResult(map[string]interface{}{
					"generation": gen,
					"workloads":  workloads,
					"packs":      packs,
				}, "")
			}

			fmt.Printf("generation %s\n\nworkloads:\n", gen)
			for _, w := range workloads {
				line := "  " + string(w.ID)
				if w.Abstract {
					line += " (abstract)"
				}
				if len(w.Extends) > 0 {
					parts := make([]string, 0, len(w.Extends))
					for _, e := range w.Extends {
						parts = append(parts, string(e))
					}
					line += " extends " + strings.Join(parts, ", ")
				}
				fmt.Println(line)
			}

			fmt.Println("\npacks:")
			for _, p := range packs {
				fmt.Printf("  %s@%s (%s)\n", p.ID, p.Version, p.Kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&generation, "generation", "g", "", "target SDK generation (feature band)")
	_ = cmd.MarkFlagRequired("generation")

	return cmd
}
