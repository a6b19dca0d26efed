package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "packforge",
		Short: "PackForge - Workload Installation Engine",
		Long: `PackForge installs optional SDK workloads as sets of versioned packs.

Workload definitions live in versioned manifests per SDK feature band
(generation). Installing a workload expands its definition into concrete
packs, places them through the installer backend, and records the intent.
Packs are shared across generations and garbage-collected once no
generation references them.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInstallCommand())
	rootCmd.AddCommand(newUninstallCommand())
	rootCmd.AddCommand(newUpdateCommand())
	rootCmd.AddCommand(newGCCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newManifestsCommand())

	return rootCmd
}
