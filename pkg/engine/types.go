package engine

import (
	"time"

	"github.com/packforge/packforge/pkg/manifest"
)

// TxState is the coordinator's transaction state machine. Transitions run
// strictly forward; RollingBack is reachable from any state after TxStart and
// unwinds completed steps in reverse order.
type TxState string

const (
	// TxStart is the initial state after the install-root lock is held.
	TxStart TxState = "start"

	// TxManifestsUpdated means all manifest updates for the operation have
	// committed; packs resolve against the new manifests from here on.
	TxManifestsUpdated TxState = "manifests-updated"

	// TxPacksReconciled means every pack install/uninstall for the operation
	// has individually reached Committed.
	TxPacksReconciled TxState = "packs-reconciled"

	// TxRecordWritten means the installation record has been updated. The
	// transaction can no longer be cancelled or rolled back past this point.
	TxRecordWritten TxState = "record-written"

	// TxGCRun means the post-operation garbage collection has completed.
	TxGCRun TxState = "gc-run"

	// TxDone is the successful terminal state.
	TxDone TxState = "done"

	// TxRollingBack means compensating actions are being applied.
	TxRollingBack TxState = "rolling-back"
)

// InstallOptions controls an InstallWorkloads operation.
type InstallOptions struct {
	// SkipManifestUpdate installs against the currently cached manifests
	// without consulting the manifest source.
	SkipManifestUpdate bool

	// OfflineCacheDir, when set, restricts package fetches to the given
	// pre-seeded directory; a cache miss is a hard fetch failure.
	OfflineCacheDir string
}

// UpdateOptions controls an UpdateWorkloads operation.
type UpdateOptions struct {
	// FromPreviousGeneration seeds the target generation's installation
	// record from the newest other generation before reconciling.
	FromPreviousGeneration bool

	// OfflineCacheDir, when set, restricts package fetches to the given
	// pre-seeded directory.
	OfflineCacheDir string
}

// GCOptions controls a CollectGarbage operation.
type GCOptions struct {
	// LiveGenerations is the set of generations still present on the
	// machine. Records of any other generation are dropped entirely. Empty
	// means every recorded generation is treated as live.
	LiveGenerations []manifest.Generation
}

// TxResult is the structured outcome of a coordinator operation.
type TxResult struct {
	// TxID is the transaction identifier.
	TxID string `json:"tx_id"`

	// State is the terminal transaction state.
	State TxState `json:"state"`

	// Generation is the feature band the operation targeted.
	Generation manifest.Generation `json:"generation"`

	// Workloads are the workload IDs the operation applied to.
	Workloads []manifest.WorkloadID `json:"workloads,omitempty"`

	// PacksInstalled are the packs newly installed by the operation.
	PacksInstalled []manifest.ConcretePackage `json:"packs_installed,omitempty"`

	// PacksRemoved are the packs removed by the post-operation GC.
	PacksRemoved []manifest.ConcretePackage `json:"packs_removed,omitempty"`

	// ManifestsUpdated are the manifest versions installed by the operation.
	ManifestsUpdated []ManifestVersion `json:"manifests_updated,omitempty"`

	// StartedAt is when the transaction started.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total transaction duration.
	Duration time.Duration `json:"duration"`
}

// GCResult reports what a garbage collection run removed.
type GCResult struct {
	// RemovedPacks are the pack payloads physically removed.
	RemovedPacks []manifest.ConcretePackage `json:"removed_packs,omitempty"`

	// RemovedManifests are the manifest payloads physically removed.
	RemovedManifests []ManifestVersion `json:"removed_manifests,omitempty"`

	// DroppedGenerations are the generations whose records were dropped.
	DroppedGenerations []manifest.Generation `json:"dropped_generations,omitempty"`

	// Failed lists packs whose removal failed. Failures are non-fatal and
	// retried on the next run.
	Failed []GCFailure `json:"failed,omitempty"`
}

// GCFailure pairs a pack with the error that prevented its removal.
type GCFailure struct {
	// Pack is the pack that could not be removed.
	Pack manifest.ConcretePackage `json:"pack"`

	// Reason is the removal error text.
	Reason string `json:"reason"`
}
