package backends

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/packforge/packforge/pkg/engine"
	"github.com/packforge/packforge/pkg/manifest"
)

const (
	packsDir     = "packs"
	manifestsDir = "manifests"
	stagingDir   = ".staging"
	refsDir      = "refs"
	payloadDir   = "payload"
	manifestFile = "manifest.yaml"
)

// FileBackend places pack and manifest payloads as plain directory trees
// under an install root. Payloads are keyed by (id, version) and shared
// across generations; per-generation usage is tracked with one marker file
// per unit under a refs directory, so each add/remove is a single
// addressable filesystem operation.
//
// Layout:
//
//	<root>/packs/<id>/<version>/payload/...
//	<root>/packs/<id>/<version>/refs/<generation>
//	<root>/manifests/<id>/<version>/manifest.yaml
//	<root>/manifests/<id>/refs/<generation>   (content: current version)
//
// Uninstall removes usage markers only; physical payload removal is deferred
// to the garbage collector. Install actions stage into a private directory
// and commit with an atomic rename, so a pack payload is never observable
// half-written.
type FileBackend struct {
	root string
}

// NewFileBackend creates a file backend rooted at the given directory.
func NewFileBackend(root string) (*FileBackend, error) {
	if root == "" {
		return nil, fmt.Errorf("install root is required")
	}
	for _, dir := range []string{packsDir, manifestsDir, stagingDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}
	return &FileBackend{root: root}, nil
}

// Name identifies the installer technology.
func (b *FileBackend) Name() string {
	return "file"
}

func (b *FileBackend) packDir(pkg manifest.ConcretePackage) string {
	return filepath.Join(b.root, packsDir, pkg.ID, pkg.Version)
}

func (b *FileBackend) manifestVersionDir(id string, version int64) string {
	return filepath.Join(b.root, manifestsDir, id, strconv.FormatInt(version, 10))
}

// fileAction is a staged backend operation awaiting Commit or Rollback.
type fileAction struct {
	kind     engine.UnitKind
	commit   func() error
	rollback func() error
	done     bool
}

// Kind reports the unit kind this action addresses.
func (a *fileAction) Kind() engine.UnitKind {
	return a.kind
}

// Commit finalizes the staged operation.
func (a *fileAction) Commit(_ context.Context) error {
	if a.done {
		return fmt.Errorf("action already finished")
	}
	a.done = true
	return a.commit()
}

// Rollback discards the staged operation.
func (a *fileAction) Rollback(_ context.Context) error {
	if a.done {
		return fmt.Errorf("action already finished")
	}
	a.done = true
	return a.rollback()
}

// InstallPack stages the pack payload. Commit atomically renames the payload
// into place (skipped when the pack is already present) and writes the
// generation's usage marker. Rollback removes only the staging directory.
func (b *FileBackend) InstallPack(_ context.Context, gen manifest.Generation, pkg manifest.ConcretePackage, payload string) (engine.Action, error) {
	target := filepath.Join(b.packDir(pkg), payloadDir)

	present := false
	if _, err := os.Stat(target); err == nil {
		present = true
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to probe pack payload: %w", err)
	}

	var staged string
	if !present {
		staged = filepath.Join(b.root, stagingDir, uuid.NewString())
		if err := copyTree(payload, staged); err != nil {
			_ = os.RemoveAll(staged)
			return nil, fmt.Errorf("failed to stage pack payload: %w", err)
		}
	}

	marker := filepath.Join(b.packDir(pkg), refsDir, string(gen))

	return &fileAction{
		kind: engine.UnitPack,
		commit: func() error {
			if !present {
				if err := os.MkdirAll(b.packDir(pkg), 0o755); err != nil {
					return fmt.Errorf("failed to create pack directory: %w", err)
				}
				if err := os.Rename(staged, target); err != nil {
					return fmt.Errorf("failed to commit pack payload: %w", err)
				}
			}
			return writeMarker(marker, nil)
		},
		rollback: func() error {
			if staged == "" {
				return nil
			}
			return os.RemoveAll(staged)
		},
	}, nil
}

// UninstallPack removes the generation's usage marker. The payload stays in
// place until the garbage collector removes it.
func (b *FileBackend) UninstallPack(_ context.Context, gen manifest.Generation, pkg manifest.ConcretePackage) error {
	marker := filepath.Join(b.packDir(pkg), refsDir, string(gen))
	if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove usage marker: %w", err)
	}
	return nil
}

// ListPacks returns the packs carrying a usage marker for the generation.
func (b *FileBackend) ListPacks(ctx context.Context, gen manifest.Generation) ([]manifest.ConcretePackage, error) {
	all, err := b.AllPacks(ctx)
	if err != nil {
		return nil, err
	}

	out := []manifest.ConcretePackage{}
	for _, pkg := range all {
		marker := filepath.Join(b.packDir(pkg), refsDir, string(gen))
		if _, err := os.Stat(marker); err == nil {
			out = append(out, pkg)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to probe usage marker: %w", err)
		}
	}
	return out, nil
}

// AllPacks returns every physically present pack payload.
func (b *FileBackend) AllPacks(_ context.Context) ([]manifest.ConcretePackage, error) {
	out := []manifest.ConcretePackage{}

	idEntries, err := os.ReadDir(filepath.Join(b.root, packsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to read packs directory: %w", err)
	}
	for _, idEntry := range idEntries {
		if !idEntry.IsDir() {
			continue
		}
		versionEntries, err := os.ReadDir(filepath.Join(b.root, packsDir, idEntry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read pack versions: %w", err)
		}
		for _, vEntry := range versionEntries {
			if !vEntry.IsDir() {
				continue
			}
			pkg := manifest.ConcretePackage{ID: idEntry.Name(), Version: vEntry.Name()}
			if _, err := os.Stat(filepath.Join(b.packDir(pkg), payloadDir)); err == nil {
				out = append(out, pkg)
			}
		}
	}
	return out, nil
}

// PackGenerations returns the generations holding usage markers for the pack.
func (b *FileBackend) PackGenerations(_ context.Context, pkg manifest.ConcretePackage) ([]manifest.Generation, error) {
	entries, err := os.ReadDir(filepath.Join(b.packDir(pkg), refsDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read usage markers: %w", err)
	}

	gens := make([]manifest.Generation, 0, len(entries))
	for _, e := range entries {
		gens = append(gens, manifest.Generation(e.Name()))
	}
	return gens, nil
}

// RemovePack physically removes the pack payload and its markers.
func (b *FileBackend) RemovePack(_ context.Context, pkg manifest.ConcretePackage) error {
	if err := os.RemoveAll(b.packDir(pkg)); err != nil {
		return fmt.Errorf("failed to remove pack: %w", err)
	}
	// Drop the id directory once its last version is gone.
	idDir := filepath.Join(b.root, packsDir, pkg.ID)
	if entries, err := os.ReadDir(idDir); err == nil && len(entries) == 0 {
		_ = os.Remove(idDir)
	}
	return nil
}

// InstallManifest stages the manifest document. Commit places the payload
// (a no-op when the version already exists; versions are immutable) and
// repoints the generation's current-version marker at it.
func (b *FileBackend) InstallManifest(_ context.Context, gen manifest.Generation, id string, version int64, payload []byte) (engine.Action, error) {
	staged := filepath.Join(b.root, stagingDir, uuid.NewString())
	if err := os.MkdirAll(staged, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staged, manifestFile), payload, 0o644); err != nil {
		_ = os.RemoveAll(staged)
		return nil, fmt.Errorf("failed to stage manifest: %w", err)
	}

	versionDir := b.manifestVersionDir(id, version)
	marker := filepath.Join(b.root, manifestsDir, id, refsDir, string(gen))

	return &fileAction{
		kind: engine.UnitManifest,
		commit: func() error {
			if _, err := os.Stat(versionDir); os.IsNotExist(err) {
				if err := os.MkdirAll(filepath.Dir(versionDir), 0o755); err != nil {
					return fmt.Errorf("failed to create manifest directory: %w", err)
				}
				if err := os.Rename(staged, versionDir); err != nil {
					return fmt.Errorf("failed to commit manifest payload: %w", err)
				}
			} else {
				_ = os.RemoveAll(staged)
			}
			return writeMarker(marker, []byte(strconv.FormatInt(version, 10)))
		},
		rollback: func() error {
			return os.RemoveAll(staged)
		},
	}, nil
}

// UninstallManifest removes the generation's current-version marker if it
// points at the given version.
func (b *FileBackend) UninstallManifest(_ context.Context, gen manifest.Generation, id string, version int64) error {
	marker := filepath.Join(b.root, manifestsDir, id, refsDir, string(gen))
	content, err := os.ReadFile(marker)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read manifest marker: %w", err)
	}
	if strings.TrimSpace(string(content)) != strconv.FormatInt(version, 10) {
		return nil
	}
	if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove manifest marker: %w", err)
	}
	return nil
}

// CurrentManifests returns the manifest versions currently selected for the
// generation.
func (b *FileBackend) CurrentManifests(_ context.Context, gen manifest.Generation) ([]engine.InstalledManifest, error) {
	out := []engine.InstalledManifest{}

	idEntries, err := os.ReadDir(filepath.Join(b.root, manifestsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifests directory: %w", err)
	}
	for _, idEntry := range idEntries {
		if !idEntry.IsDir() {
			continue
		}
		id := idEntry.Name()
		marker := filepath.Join(b.root, manifestsDir, id, refsDir, string(gen))
		content, err := os.ReadFile(marker)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest marker: %w", err)
		}
		version, err := strconv.ParseInt(strings.TrimSpace(string(content)), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt manifest marker for %s: %w", id, err)
		}
		out = append(out, engine.InstalledManifest{
			ID:      id,
			Version: version,
			Path:    filepath.Join(b.manifestVersionDir(id, version), manifestFile),
		})
	}
	return out, nil
}

// AllManifests returns every physically present manifest payload version.
func (b *FileBackend) AllManifests(_ context.Context) ([]engine.ManifestVersion, error) {
	out := []engine.ManifestVersion{}

	idEntries, err := os.ReadDir(filepath.Join(b.root, manifestsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifests directory: %w", err)
	}
	for _, idEntry := range idEntries {
		if !idEntry.IsDir() {
			continue
		}
		versionEntries, err := os.ReadDir(filepath.Join(b.root, manifestsDir, idEntry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest versions: %w", err)
		}
		for _, vEntry := range versionEntries {
			if !vEntry.IsDir() || vEntry.Name() == refsDir {
				continue
			}
			version, err := strconv.ParseInt(vEntry.Name(), 10, 64)
			if err != nil {
				continue
			}
			out = append(out, engine.ManifestVersion{ID: idEntry.Name(), Version: version})
		}
	}
	return out, nil
}

// RemoveManifest physically removes a manifest payload version.
func (b *FileBackend) RemoveManifest(_ context.Context, id string, version int64) error {
	if err := os.RemoveAll(b.manifestVersionDir(id, version)); err != nil {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	return nil
}

// DropGeneration removes every marker the generation holds. Payloads are
// untouched; the garbage collector sweeps them afterwards.
func (b *FileBackend) DropGeneration(ctx context.Context, gen manifest.Generation) error {
	packs, err := b.AllPacks(ctx)
	if err != nil {
		return err
	}
	for _, pkg := range packs {
		if err := b.UninstallPack(ctx, gen, pkg); err != nil {
			return err
		}
	}

	idEntries, err := os.ReadDir(filepath.Join(b.root, manifestsDir))
	if err != nil {
		return fmt.Errorf("failed to read manifests directory: %w", err)
	}
	for _, idEntry := range idEntries {
		if !idEntry.IsDir() {
			continue
		}
		marker := filepath.Join(b.root, manifestsDir, idEntry.Name(), refsDir, string(gen))
		if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove manifest marker: %w", err)
		}
	}
	return nil
}

// writeMarker creates a marker file atomically via a temp file and rename.
func writeMarker(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to place marker: %w", err)
	}
	return nil
}

// copyTree copies a file or directory tree from src to dst.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return err
		}
		return copyFile(src, filepath.Join(dst, filepath.Base(src)), info.Mode())
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if err := copyFile(srcPath, dstPath, info.Mode()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
