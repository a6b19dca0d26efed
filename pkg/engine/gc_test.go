package engine_test

import (
	"context"
	"testing"

	"github.com/packforge/packforge/pkg/engine"
	"github.com/packforge/packforge/pkg/manifest"
)

func TestCollectIsIdempotent(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	if _, err := env.coord.InstallWorkloads(ctx, "9.0.100", []manifest.WorkloadID{"web"}, engine.InstallOptions{}); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	// The install already ran one collection; two further runs with no state
	// change must remove nothing.
	for i := 0; i < 2; i++ {
		res, err := env.coord.CollectGarbage(ctx, engine.GCOptions{})
		if err != nil {
			t.Fatalf("gc run %d failed: %v", i, err)
		}
		if len(res.RemovedPacks) != 0 || len(res.RemovedManifests) != 0 || len(res.DroppedGenerations) != 0 {
			t.Errorf("gc run %d removed state: %+v", i, res)
		}
	}

	if packs := installedPacks(t, env.backend); len(packs) != 2 {
		t.Errorf("expected packs intact, got %v", packs)
	}
}

func TestCollectDropsDeadGenerations(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	if _, err := env.coord.InstallWorkloads(ctx, "9.0.100", []manifest.WorkloadID{"web", "maui"}, engine.InstallOptions{}); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if _, err := env.coord.InstallWorkloads(ctx, "10.0.100", []manifest.WorkloadID{"web"}, engine.InstallOptions{}); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	res, err := env.coord.CollectGarbage(ctx, engine.GCOptions{
		LiveGenerations: []manifest.Generation{"10.0.100"},
	})
	if err != nil {
		t.Fatalf("gc failed: %v", err)
	}
	if len(res.DroppedGenerations) != 1 || res.DroppedGenerations[0] != "9.0.100" {
		t.Errorf("expected 9.0.100 dropped, got %v", res.DroppedGenerations)
	}
	// The maui pack was only referenced by the dead generation.
	if len(res.RemovedPacks) != 1 || res.RemovedPacks[0].String() != "maui-sdk.portable@1.0.0" {
		t.Errorf("expected maui pack removed, got %v", res.RemovedPacks)
	}

	packs := installedPacks(t, env.backend)
	if !packs["web-sdk@1.0.0"] || !packs["base-runtime@2.0.0"] {
		t.Errorf("expected live generation's packs to survive, got %v", packs)
	}
	if ids := recordedWorkloads(t, env.store, "9.0.100"); len(ids) != 0 {
		t.Errorf("expected dead generation's record dropped, got %v", ids)
	}
	if ids := recordedWorkloads(t, env.store, "10.0.100"); len(ids) != 1 {
		t.Errorf("expected live generation's record intact, got %v", ids)
	}
}

func TestCollectSurfacesUnresolvableRecord(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	if _, err := env.coord.InstallWorkloads(ctx, "9.0.100", []manifest.WorkloadID{"web"}, engine.InstallOptions{}); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	// A record entry no manifest declares is an invariant violation; the
	// collector must surface it rather than repair it.
	if err := env.store.AddWorkload(ctx, "9.0.100", "ghost"); err != nil {
		t.Fatalf("failed to corrupt record: %v", err)
	}

	_, err := env.coord.CollectGarbage(ctx, engine.GCOptions{})
	if !engine.IsInconsistent(err) {
		t.Fatalf("expected inconsistent-state error, got %v", err)
	}

	// Nothing was swept on the failed run.
	if packs := installedPacks(t, env.backend); len(packs) != 2 {
		t.Errorf("expected packs untouched, got %v", packs)
	}
}

func TestCollectReconcilesStaleMarkers(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	if _, err := env.coord.InstallWorkloads(ctx, "9.0.100", []manifest.WorkloadID{"web"}, engine.InstallOptions{}); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	// A marker left behind by an interrupted run points at a pack the record
	// no longer requires; the collector recomputes and sweeps it.
	stale := manifest.ConcretePackage{ID: "maui-sdk.portable", Version: "1.0.0"}
	if err := env.store.AddPackMarker(ctx, "9.0.100", stale); err != nil {
		t.Fatalf("failed to plant marker: %v", err)
	}

	res, err := env.coord.CollectGarbage(ctx, engine.GCOptions{})
	if err != nil {
		t.Fatalf("gc failed: %v", err)
	}
	if len(res.RemovedPacks) != 0 {
		// The stale marker had no payload behind it, so nothing is removed,
		// but the marker itself must be gone.
		t.Errorf("expected no payload removals, got %v", res.RemovedPacks)
	}

	gens, err := env.store.PackMarkers(ctx, stale)
	if err != nil {
		t.Fatalf("failed to read markers: %v", err)
	}
	if len(gens) != 0 {
		t.Errorf("expected stale marker reconciled away, got %v", gens)
	}
}

func TestCollectWithEmptyState(t *testing.T) {
	env := setupEnv(t)

	res, err := env.coord.CollectGarbage(context.Background(), engine.GCOptions{})
	if err != nil {
		t.Fatalf("gc failed: %v", err)
	}
	if len(res.RemovedPacks) != 0 || len(res.DroppedGenerations) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}
