package backends

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/packforge/packforge/pkg/engine"
	"github.com/packforge/packforge/pkg/manifest"
)

// setupTestBackend creates a file backend over a temp install root plus a
// payload directory to install from.
func setupTestBackend(t *testing.T) (*FileBackend, string) {
	t.Helper()

	backend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}

	payload := t.TempDir()
	if err := os.WriteFile(filepath.Join(payload, "lib.bin"), []byte("payload"), 0o644); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(payload, "native"), 0o755); err != nil {
		t.Fatalf("failed to create payload subdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(payload, "native", "host.so"), []byte("so"), 0o644); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	return backend, payload
}

func installPack(t *testing.T, b *FileBackend, gen manifest.Generation, pkg manifest.ConcretePackage, payload string) {
	t.Helper()

	ctx := context.Background()
	action, err := b.InstallPack(ctx, gen, pkg, payload)
	if err != nil {
		t.Fatalf("failed to install pack: %v", err)
	}
	if action.Kind() != engine.UnitPack {
		t.Fatalf("expected pack action, got %s", action.Kind())
	}
	if err := action.Commit(ctx); err != nil {
		t.Fatalf("failed to commit pack: %v", err)
	}
}

func TestInstallPackCommit(t *testing.T) {
	backend, payload := setupTestBackend(t)
	ctx := context.Background()
	pkg := manifest.ConcretePackage{ID: "runtime", Version: "1.0.0"}

	installPack(t, backend, "9.0.100", pkg, payload)

	content, err := os.ReadFile(filepath.Join(backend.packDir(pkg), payloadDir, "lib.bin"))
	if err != nil {
		t.Fatalf("payload not placed: %v", err)
	}
	if string(content) != "payload" {
		t.Errorf("payload corrupted: %q", content)
	}
	if _, err := os.Stat(filepath.Join(backend.packDir(pkg), payloadDir, "native", "host.so")); err != nil {
		t.Errorf("nested payload not placed: %v", err)
	}

	packs, err := backend.ListPacks(ctx, "9.0.100")
	if err != nil {
		t.Fatalf("failed to list packs: %v", err)
	}
	if len(packs) != 1 || packs[0] != pkg {
		t.Errorf("expected [%s], got %v", pkg, packs)
	}
}

func TestInstallPackRollbackLeavesNoTrace(t *testing.T) {
	backend, payload := setupTestBackend(t)
	ctx := context.Background()
	pkg := manifest.ConcretePackage{ID: "runtime", Version: "1.0.0"}

	action, err := backend.InstallPack(ctx, "9.0.100", pkg, payload)
	if err != nil {
		t.Fatalf("failed to install pack: %v", err)
	}
	if err := action.Rollback(ctx); err != nil {
		t.Fatalf("failed to roll back: %v", err)
	}

	all, err := backend.AllPacks(ctx)
	if err != nil {
		t.Fatalf("failed to list packs: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected no packs after rollback, got %v", all)
	}

	entries, err := os.ReadDir(filepath.Join(backend.root, stagingDir))
	if err != nil {
		t.Fatalf("failed to read staging: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("staging not cleaned after rollback: %d entries", len(entries))
	}

	// An action must reach exactly one terminal state.
	if err := action.Commit(ctx); err == nil {
		t.Error("expected commit after rollback to fail")
	}
}

func TestInstallPackAlreadyPresent(t *testing.T) {
	backend, payload := setupTestBackend(t)
	ctx := context.Background()
	pkg := manifest.ConcretePackage{ID: "runtime", Version: "1.0.0"}

	installPack(t, backend, "9.0.100", pkg, payload)
	// Second generation reuses the payload; commit only adds its marker.
	installPack(t, backend, "10.0.100", pkg, payload)

	gens, err := backend.PackGenerations(ctx, pkg)
	if err != nil {
		t.Fatalf("failed to list generations: %v", err)
	}
	if len(gens) != 2 {
		t.Errorf("expected 2 usage markers, got %v", gens)
	}

	all, err := backend.AllPacks(ctx)
	if err != nil {
		t.Fatalf("failed to list packs: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected a single shared payload, got %v", all)
	}
}

func TestUninstallPackKeepsPayload(t *testing.T) {
	backend, payload := setupTestBackend(t)
	ctx := context.Background()
	pkg := manifest.ConcretePackage{ID: "runtime", Version: "1.0.0"}

	installPack(t, backend, "9.0.100", pkg, payload)

	if err := backend.UninstallPack(ctx, "9.0.100", pkg); err != nil {
		t.Fatalf("failed to uninstall: %v", err)
	}
	// Repeating is a no-op.
	if err := backend.UninstallPack(ctx, "9.0.100", pkg); err != nil {
		t.Fatalf("idempotent uninstall failed: %v", err)
	}

	packs, err := backend.ListPacks(ctx, "9.0.100")
	if err != nil {
		t.Fatalf("failed to list packs: %v", err)
	}
	if len(packs) != 0 {
		t.Errorf("expected no marked packs, got %v", packs)
	}

	// Payload removal is the garbage collector's job.
	all, err := backend.AllPacks(ctx)
	if err != nil {
		t.Fatalf("failed to list packs: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected payload to survive uninstall, got %v", all)
	}

	if err := backend.RemovePack(ctx, pkg); err != nil {
		t.Fatalf("failed to remove pack: %v", err)
	}
	all, err = backend.AllPacks(ctx)
	if err != nil {
		t.Fatalf("failed to list packs: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected no packs after removal, got %v", all)
	}
}

func TestManifestLifecycle(t *testing.T) {
	backend, _ := setupTestBackend(t)
	ctx := context.Background()

	install := func(gen manifest.Generation, version int64, body string) {
		t.Helper()
		action, err := backend.InstallManifest(ctx, gen, "core", version, []byte(body))
		if err != nil {
			t.Fatalf("failed to install manifest: %v", err)
		}
		if action.Kind() != engine.UnitManifest {
			t.Fatalf("expected manifest action, got %s", action.Kind())
		}
		if err := action.Commit(ctx); err != nil {
			t.Fatalf("failed to commit manifest: %v", err)
		}
	}

	install("9.0.100", 1, "v1")
	install("9.0.100", 2, "v2")

	current, err := backend.CurrentManifests(ctx, "9.0.100")
	if err != nil {
		t.Fatalf("failed to list current manifests: %v", err)
	}
	if len(current) != 1 || current[0].Version != 2 {
		t.Fatalf("expected current version 2, got %v", current)
	}
	content, err := os.ReadFile(current[0].Path)
	if err != nil {
		t.Fatalf("failed to read manifest payload: %v", err)
	}
	if string(content) != "v2" {
		t.Errorf("expected payload v2, got %q", content)
	}

	// Both physical versions remain until the garbage collector sweeps.
	all, err := backend.AllManifests(ctx)
	if err != nil {
		t.Fatalf("failed to list manifests: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 manifest versions, got %v", all)
	}

	// Uninstall of a stale version is a no-op; the marker points at v2.
	if err := backend.UninstallManifest(ctx, "9.0.100", "core", 1); err != nil {
		t.Fatalf("failed to uninstall manifest: %v", err)
	}
	current, err = backend.CurrentManifests(ctx, "9.0.100")
	if err != nil {
		t.Fatalf("failed to list current manifests: %v", err)
	}
	if len(current) != 1 || current[0].Version != 2 {
		t.Fatalf("expected marker untouched, got %v", current)
	}

	if err := backend.UninstallManifest(ctx, "9.0.100", "core", 2); err != nil {
		t.Fatalf("failed to uninstall manifest: %v", err)
	}
	current, err = backend.CurrentManifests(ctx, "9.0.100")
	if err != nil {
		t.Fatalf("failed to list current manifests: %v", err)
	}
	if len(current) != 0 {
		t.Errorf("expected no current manifests, got %v", current)
	}

	if err := backend.RemoveManifest(ctx, "core", 1); err != nil {
		t.Fatalf("failed to remove manifest: %v", err)
	}
	all, err = backend.AllManifests(ctx)
	if err != nil {
		t.Fatalf("failed to list manifests: %v", err)
	}
	if len(all) != 1 || all[0].Version != 2 {
		t.Errorf("expected only version 2 to remain, got %v", all)
	}
}

func TestDropGeneration(t *testing.T) {
	backend, payload := setupTestBackend(t)
	ctx := context.Background()
	pkg := manifest.ConcretePackage{ID: "runtime", Version: "1.0.0"}

	installPack(t, backend, "9.0.100", pkg, payload)
	installPack(t, backend, "10.0.100", pkg, payload)

	action, err := backend.InstallManifest(ctx, "9.0.100", "core", 1, []byte("v1"))
	if err != nil {
		t.Fatalf("failed to install manifest: %v", err)
	}
	if err := action.Commit(ctx); err != nil {
		t.Fatalf("failed to commit manifest: %v", err)
	}

	if err := backend.DropGeneration(ctx, "9.0.100"); err != nil {
		t.Fatalf("failed to drop generation: %v", err)
	}

	gens, err := backend.PackGenerations(ctx, pkg)
	if err != nil {
		t.Fatalf("failed to list generations: %v", err)
	}
	if len(gens) != 1 || gens[0] != "10.0.100" {
		t.Errorf("expected [10.0.100], got %v", gens)
	}

	current, err := backend.CurrentManifests(ctx, "9.0.100")
	if err != nil {
		t.Fatalf("failed to list current manifests: %v", err)
	}
	if len(current) != 0 {
		t.Errorf("expected no current manifests, got %v", current)
	}

	// Payloads survive; sweeping is separate.
	all, err := backend.AllPacks(ctx)
	if err != nil {
		t.Fatalf("failed to list packs: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected payload to survive drop, got %v", all)
	}
}

func TestDetect(t *testing.T) {
	root := filepath.Join(t.TempDir(), "install")

	b, err := Detect(root)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if b.Name() != "file" {
		t.Errorf("expected file backend, got %s", b.Name())
	}
	if _, err := os.Stat(filepath.Join(root, packsDir)); err != nil {
		t.Errorf("install root not prepared: %v", err)
	}
}
