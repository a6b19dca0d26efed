package manifest

// Generation identifies a cohort of installations (an SDK feature band, e.g.
// "9.0.100") that resolves against its own manifest versions and is
// reference-counted independently from other generations.
type Generation string

// Platform is a runtime-identifier style host platform key (e.g. "linux-x64").
type Platform string

// PlatformAny is the wildcard alias key matching every host platform.
const PlatformAny Platform = "any"

// WorkloadID names a user-facing workload within a generation.
type WorkloadID string

// PackID names a pack within a generation.
type PackID string

// PackKind classifies what a pack payload contains.
type PackKind string

const (
	// KindRuntimeAsset is a runtime payload consumed by built applications.
	KindRuntimeAsset PackKind = "runtime-asset"

	// KindBuildTool is a tool invoked during builds.
	KindBuildTool PackKind = "build-tool"

	// KindLibrary is a reference library pack.
	KindLibrary PackKind = "library"

	// KindTemplate is a project/item template pack.
	KindTemplate PackKind = "template"

	// KindStandaloneTool is a self-contained executable tool.
	KindStandaloneTool PackKind = "standalone-tool"
)

// valid reports whether k is one of the closed set of pack kinds.
func (k PackKind) valid() bool {
	switch k {
	case KindRuntimeAsset, KindBuildTool, KindLibrary, KindTemplate, KindStandaloneTool:
		return true
	}
	return false
}

// PackRef is a reference to a pack as declared by a workload: the logical ID
// plus the version pinned by the declaring manifest.
type PackRef struct {
	// ID is the logical pack identifier.
	ID PackID `json:"id" yaml:"id"`

	// Version is the pack version pinned by the manifest.
	Version string `json:"version" yaml:"version"`
}

// ConcretePackage is the fully resolved unit the backend and the fetcher
// address: a concrete package identifier and version, after alias resolution.
type ConcretePackage struct {
	// ID is the concrete package identifier.
	ID string `json:"id" yaml:"id"`

	// Version is the package version.
	Version string `json:"version" yaml:"version"`
}

// String returns the canonical "id@version" form used in logs and markers.
func (p ConcretePackage) String() string {
	return p.ID + "@" + p.Version
}

// WorkloadDef declares a workload: the packs it requires and the workloads it
// extends. Declared by exactly one manifest within a generation.
type WorkloadDef struct {
	// ID is the workload identifier, unique within a generation.
	ID WorkloadID `json:"id" yaml:"id" validate:"required"`

	// Abstract marks a workload that exists only to be extended and is not
	// directly installable.
	Abstract bool `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Description is optional display text.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Packs lists the pack IDs this workload requires directly.
	Packs []PackID `json:"packs,omitempty" yaml:"packs,omitempty"`

	// Extends lists workloads whose packs are included transitively.
	Extends []WorkloadID `json:"extends,omitempty" yaml:"extends,omitempty"`

	// Platforms restricts the workload's pack contributions to the listed
	// host platforms. Empty means all platforms.
	Platforms []Platform `json:"platforms,omitempty" yaml:"platforms,omitempty"`
}

// supportsPlatform reports whether the workload contributes packs on the
// given host platform.
func (w *WorkloadDef) supportsPlatform(platform Platform) bool {
	if len(w.Platforms) == 0 {
		return true
	}
	for _, p := range w.Platforms {
		if p == platform {
			return true
		}
	}
	return false
}

// PackDef declares a pack: the unit of installation addressed by
// (ID, Version). AliasTo lets one logical ID resolve to different concrete
// package identifiers per host platform.
type PackDef struct {
	// ID is the logical pack identifier, unique within a generation.
	ID PackID `json:"id" yaml:"id" validate:"required"`

	// Kind classifies the pack payload.
	Kind PackKind `json:"kind" yaml:"kind" validate:"required,oneof=runtime-asset build-tool library template standalone-tool"`

	// Version is the pack version pinned by the declaring manifest.
	Version string `json:"version" yaml:"version" validate:"required"`

	// AliasTo maps a host platform (or "any") to the concrete package
	// identifier to fetch and install on that platform.
	AliasTo map[Platform]string `json:"alias-to,omitempty" yaml:"alias-to,omitempty"`
}

// Ref returns the PackRef addressing this definition.
func (p *PackDef) Ref() PackRef {
	return PackRef{ID: p.ID, Version: p.Version}
}

// Manifest is one versioned document declaring workloads and packs for a
// generation. Immutable once assigned a version; superseded, never mutated.
type Manifest struct {
	// ID is the manifest identifier (e.g. "packforge.core").
	ID string `json:"id" yaml:"id" validate:"required"`

	// Version is the monotonic manifest version within (ID, generation).
	Version int64 `json:"version" yaml:"version" validate:"gte=1"`

	// Workloads are the workload declarations.
	Workloads []WorkloadDef `json:"workloads,omitempty" yaml:"workloads,omitempty"`

	// Packs are the pack declarations.
	Packs []PackDef `json:"packs,omitempty" yaml:"packs,omitempty"`
}
