package engine

import (
	"context"

	"github.com/packforge/packforge/pkg/manifest"
)

// UnitKind tags what kind of installable unit a backend action addresses.
// The coordinator branches on it once, at the top of the transaction loop.
type UnitKind string

const (
	// UnitPack is a pack payload action.
	UnitPack UnitKind = "pack"

	// UnitManifest is a manifest payload action.
	UnitManifest UnitKind = "manifest"
)

// Action is a single backend operation that has been applied but not yet
// committed. Commit makes the effect durable; Rollback undoes exactly the
// effects of the call that produced the action. An action must reach exactly
// one terminal state.
type Action interface {
	// Kind reports the unit kind this action addresses.
	Kind() UnitKind

	// Commit transitions the action from Applied to Committed.
	Commit(ctx context.Context) error

	// Rollback transitions the action from Applied to RolledBack.
	Rollback(ctx context.Context) error
}

// InstalledManifest describes a manifest version currently selected for a
// generation by the backend.
type InstalledManifest struct {
	// ID is the manifest identifier.
	ID string

	// Version is the installed manifest version.
	Version int64

	// Path is the local path of the manifest document.
	Path string
}

// ManifestVersion addresses one physical manifest payload.
type ManifestVersion struct {
	// ID is the manifest identifier.
	ID string

	// Version is the manifest version.
	Version int64
}

// Backend performs placement and removal of pack and manifest payloads using
// one concrete installer technology. Payloads are keyed by (id, version)
// only, shared copy-on-write across generations; per-generation usage is
// tracked with markers. Implementations document whether Uninstall removes
// payloads physically or defers removal to the garbage collector.
type Backend interface {
	// Name identifies the installer technology.
	Name() string

	// InstallPack places the pack payload and, on Commit, records a usage
	// marker for the generation. Installing an already-present pack is a
	// no-op that still yields a committable action.
	InstallPack(ctx context.Context, gen manifest.Generation, pkg manifest.ConcretePackage, payload string) (Action, error)

	// UninstallPack removes the generation's usage marker for the pack.
	UninstallPack(ctx context.Context, gen manifest.Generation, pkg manifest.ConcretePackage) error

	// ListPacks returns the packs carrying a usage marker for the generation.
	ListPacks(ctx context.Context, gen manifest.Generation) ([]manifest.ConcretePackage, error)

	// AllPacks returns every physically present pack payload.
	AllPacks(ctx context.Context) ([]manifest.ConcretePackage, error)

	// PackGenerations returns the generations holding usage markers for the
	// pack.
	PackGenerations(ctx context.Context, pkg manifest.ConcretePackage) ([]manifest.Generation, error)

	// RemovePack physically removes the pack payload. Callers gate this on
	// the reference-count computation; the backend does not re-check.
	RemovePack(ctx context.Context, pkg manifest.ConcretePackage) error

	// InstallManifest places the manifest payload (document plus companion
	// files) and, on Commit, repoints the generation's current-version
	// marker at it.
	InstallManifest(ctx context.Context, gen manifest.Generation, id string, version int64, payload []byte) (Action, error)

	// UninstallManifest removes the generation's current-version marker for
	// the manifest if it points at the given version.
	UninstallManifest(ctx context.Context, gen manifest.Generation, id string, version int64) error

	// CurrentManifests returns the manifest versions currently selected for
	// the generation.
	CurrentManifests(ctx context.Context, gen manifest.Generation) ([]InstalledManifest, error)

	// AllManifests returns every physically present manifest payload.
	AllManifests(ctx context.Context) ([]ManifestVersion, error)

	// RemoveManifest physically removes a manifest payload version.
	RemoveManifest(ctx context.Context, id string, version int64) error

	// DropGeneration removes every marker the generation holds, for packs
	// and manifests alike. Payloads are untouched.
	DropGeneration(ctx context.Context, gen manifest.Generation) error
}

// Fetcher is the package-fetch collaborator: it returns a local path for a
// package artifact, optionally consulting an offline cache directory first.
type Fetcher interface {
	Fetch(ctx context.Context, pkg manifest.ConcretePackage, offlineCacheDir string) (string, error)
}

// ManifestSource is the manifest publication collaborator.
type ManifestSource interface {
	// GetLatest returns the newest published version and document content
	// for the manifest within the generation.
	GetLatest(ctx context.Context, id string, gen manifest.Generation) (int64, []byte, error)
}

// RecordStore is the durable installation-record ledger: per-generation
// workload install intents and per-pack usage-marker sets. All mutations are
// single-element and idempotent.
type RecordStore interface {
	// AddWorkload records the install intent for a workload.
	AddWorkload(ctx context.Context, gen manifest.Generation, id manifest.WorkloadID) error

	// RemoveWorkload removes the install intent for a workload.
	RemoveWorkload(ctx context.Context, gen manifest.Generation, id manifest.WorkloadID) error

	// InstalledWorkloads returns the generation's recorded workloads.
	InstalledWorkloads(ctx context.Context, gen manifest.Generation) ([]manifest.WorkloadID, error)

	// Generations returns every generation with any record.
	Generations(ctx context.Context) ([]manifest.Generation, error)

	// AddPackMarker records that the generation requires the pack.
	AddPackMarker(ctx context.Context, gen manifest.Generation, pkg manifest.ConcretePackage) error

	// RemovePackMarker removes the generation's marker for the pack.
	RemovePackMarker(ctx context.Context, gen manifest.Generation, pkg manifest.ConcretePackage) error

	// PackMarkers returns the generations whose marker sets contain the pack.
	PackMarkers(ctx context.Context, pkg manifest.ConcretePackage) ([]manifest.Generation, error)

	// GenerationPackMarkers returns the generation's full marker set.
	GenerationPackMarkers(ctx context.Context, gen manifest.Generation) ([]manifest.ConcretePackage, error)

	// DropGeneration removes every record the generation holds.
	DropGeneration(ctx context.Context, gen manifest.Generation) error
}
