package records

import (
	"context"
	"testing"

	"github.com/packforge/packforge/pkg/manifest"
)

// setupTestStore creates an in-memory record store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestWorkloadRecordLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	gen := manifest.Generation("9.0.100")

	if err := store.AddWorkload(ctx, gen, "web"); err != nil {
		t.Fatalf("failed to add workload: %v", err)
	}
	if err := store.AddWorkload(ctx, gen, "maui"); err != nil {
		t.Fatalf("failed to add workload: %v", err)
	}

	// Re-adding must be a no-op, not an error.
	if err := store.AddWorkload(ctx, gen, "web"); err != nil {
		t.Fatalf("idempotent add failed: %v", err)
	}

	ids, err := store.InstalledWorkloads(ctx, gen)
	if err != nil {
		t.Fatalf("failed to list workloads: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 workloads, got %d", len(ids))
	}

	if err := store.RemoveWorkload(ctx, gen, "web"); err != nil {
		t.Fatalf("failed to remove workload: %v", err)
	}
	// Removing an absent record must be a no-op.
	if err := store.RemoveWorkload(ctx, gen, "web"); err != nil {
		t.Fatalf("idempotent remove failed: %v", err)
	}

	ids, err = store.InstalledWorkloads(ctx, gen)
	if err != nil {
		t.Fatalf("failed to list workloads: %v", err)
	}
	if len(ids) != 1 || ids[0] != "maui" {
		t.Errorf("expected [maui], got %v", ids)
	}
}

func TestPackMarkerSets(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	pkg := manifest.ConcretePackage{ID: "runtime", Version: "1.0.0"}

	if err := store.AddPackMarker(ctx, "9.0.100", pkg); err != nil {
		t.Fatalf("failed to add marker: %v", err)
	}
	if err := store.AddPackMarker(ctx, "10.0.100", pkg); err != nil {
		t.Fatalf("failed to add marker: %v", err)
	}
	if err := store.AddPackMarker(ctx, "9.0.100", pkg); err != nil {
		t.Fatalf("idempotent marker add failed: %v", err)
	}

	gens, err := store.PackMarkers(ctx, pkg)
	if err != nil {
		t.Fatalf("failed to list markers: %v", err)
	}
	if len(gens) != 2 {
		t.Fatalf("expected markers in 2 generations, got %d", len(gens))
	}

	if err := store.RemovePackMarker(ctx, "9.0.100", pkg); err != nil {
		t.Fatalf("failed to remove marker: %v", err)
	}
	gens, err = store.PackMarkers(ctx, pkg)
	if err != nil {
		t.Fatalf("failed to list markers: %v", err)
	}
	if len(gens) != 1 || gens[0] != "10.0.100" {
		t.Errorf("expected [10.0.100], got %v", gens)
	}

	// Markers of different versions of the same pack are independent.
	other := manifest.ConcretePackage{ID: "runtime", Version: "2.0.0"}
	gens, err = store.PackMarkers(ctx, other)
	if err != nil {
		t.Fatalf("failed to list markers: %v", err)
	}
	if len(gens) != 0 {
		t.Errorf("expected no markers for %s, got %v", other, gens)
	}
}

func TestGenerationsAndDrop(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	pkg := manifest.ConcretePackage{ID: "p", Version: "1"}

	if err := store.AddWorkload(ctx, "9.0.100", "web"); err != nil {
		t.Fatalf("failed to add workload: %v", err)
	}
	if err := store.AddPackMarker(ctx, "10.0.100", pkg); err != nil {
		t.Fatalf("failed to add marker: %v", err)
	}

	gens, err := store.Generations(ctx)
	if err != nil {
		t.Fatalf("failed to list generations: %v", err)
	}
	if len(gens) != 2 {
		t.Fatalf("expected 2 generations, got %v", gens)
	}

	if err := store.DropGeneration(ctx, "10.0.100"); err != nil {
		t.Fatalf("failed to drop generation: %v", err)
	}

	gens, err = store.Generations(ctx)
	if err != nil {
		t.Fatalf("failed to list generations: %v", err)
	}
	if len(gens) != 1 || gens[0] != "9.0.100" {
		t.Errorf("expected [9.0.100], got %v", gens)
	}

	marks, err := store.GenerationPackMarkers(ctx, "10.0.100")
	if err != nil {
		t.Fatalf("failed to list markers: %v", err)
	}
	if len(marks) != 0 {
		t.Errorf("expected dropped generation to hold no markers, got %v", marks)
	}
}
