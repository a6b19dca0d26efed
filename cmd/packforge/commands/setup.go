package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/packforge/packforge/pkg/backends"
	"github.com/packforge/packforge/pkg/engine"
	"github.com/packforge/packforge/pkg/fetch"
	"github.com/packforge/packforge/pkg/manifest"
	"github.com/packforge/packforge/pkg/records"
	"github.com/packforge/packforge/pkg/telemetry"
)

// buildCoordinator wires the engine from configuration: backend detection,
// record store, feed clients, logger and metrics. The returned cleanup
// function closes the record store.
func buildCoordinator(ctx context.Context) (*engine.Coordinator, func(), error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	metrics := telemetry.NewMetrics(cfg.Metrics)

	backend, err := backends.Detect(cfg.Root)
	if err != nil {
		return nil, nil, err
	}

	store, err := records.NewStore(records.Config{Path: cfg.Database})
	if err != nil {
		return nil, nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	cleanup := func() { _ = store.Close() }

	fetcher, err := fetch.NewHTTPFetcher(cfg.Feed, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	source, err := fetch.NewHTTPManifestSource(cfg.Feed, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	coord, err := engine.NewCoordinator(engine.Config{
		Root:        cfg.Root,
		Platform:    manifest.Platform(cfg.Platform),
		ManifestIDs: cfg.ManifestIDs,
		Backend:     backend,
		Records:     store,
		Fetcher:     fetcher,
		Source:      source,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return coord, cleanup, nil
}

// printResult renders a coordinator result as JSON or a short summary.
func printResult(v interface{}, summary string) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Println(summary)
	return nil
}

// workloadIDs converts positional args to workload IDs.
func workloadIDs(args []string) []manifest.WorkloadID {
	ids := make([]manifest.WorkloadID, 0, len(args))
	for _, a := range args {
		ids = append(ids, manifest.WorkloadID(a))
	}
	return ids
}
