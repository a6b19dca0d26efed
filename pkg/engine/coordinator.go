package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/packforge/packforge/pkg/manifest"
	"github.com/packforge/packforge/pkg/telemetry"
)

// Config assembles a Coordinator's collaborators. All fields are required
// unless noted.
type Config struct {
	// Root is the local installation root the exclusive lock is scoped to.
	Root string

	// Platform is the host platform workloads resolve against.
	Platform manifest.Platform

	// ManifestIDs are the manifest documents this machine tracks.
	ManifestIDs []string

	// Backend performs payload placement and removal.
	Backend Backend

	// Records is the installation record store.
	Records RecordStore

	// Fetcher is the package-fetch collaborator.
	Fetcher Fetcher

	// Source is the manifest publication collaborator. Optional when every
	// operation runs with SkipManifestUpdate.
	Source ManifestSource

	// Logger is the engine logger. Defaults to a no-op logger.
	Logger *telemetry.Logger

	// Metrics is the engine metrics collector. Defaults to disabled.
	Metrics *telemetry.Metrics
}

// Coordinator sequences multi-step installation operations so each is atomic
// from the user's point of view: manifest updates commit before any pack
// action, all pack actions commit before the installation record is written,
// and garbage collection runs last. Failures before the record write unwind
// completed steps in reverse order through compensating actions.
type Coordinator struct {
	root        string
	platform    manifest.Platform
	manifestIDs []string
	backend     Backend
	records     RecordStore
	fetcher     Fetcher
	source      ManifestSource
	collector   *Collector
	log         *telemetry.Logger
	metrics     *telemetry.Metrics
}

// NewCoordinator creates a coordinator from the given configuration.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("install root is required")
	}
	if cfg.Platform == "" {
		return nil, fmt.Errorf("host platform is required")
	}
	if cfg.Backend == nil || cfg.Records == nil || cfg.Fetcher == nil {
		return nil, fmt.Errorf("backend, record store, and fetcher are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.Nop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}

	return &Coordinator{
		root:        cfg.Root,
		platform:    cfg.Platform,
		manifestIDs: cfg.ManifestIDs,
		backend:     cfg.Backend,
		records:     cfg.Records,
		fetcher:     cfg.Fetcher,
		source:      cfg.Source,
		collector:   NewCollector(cfg.Backend, cfg.Records, cfg.Platform, cfg.Logger, cfg.Metrics),
		log:         cfg.Logger.Component("coordinator"),
		metrics:     cfg.Metrics,
	}, nil
}

// tx tracks one transaction: its state and the compensating actions for the
// steps committed so far.
type tx struct {
	id    string
	state TxState
	log   *telemetry.Logger
	undo  []func(context.Context) error
}

func (c *Coordinator) begin(gen manifest.Generation) *tx {
	id := uuid.NewString()
	return &tx{
		id:    id,
		state: TxStart,
		log:   c.log.WithTx(id).WithGeneration(string(gen)),
	}
}

// push records a compensating action for a committed step.
func (t *tx) push(undo func(context.Context) error) {
	t.undo = append(t.undo, undo)
}

// cancellable reports whether the transaction may still be cancelled. After
// the record write the operation must run to Done.
func (t *tx) cancellable() bool {
	switch t.state {
	case TxRecordWritten, TxGCRun, TxDone:
		return false
	}
	return true
}

// checkCancelled maps context cancellation to a typed engine error at the
// transaction's suspension points.
func (t *tx) checkCancelled(ctx context.Context) error {
	if !t.cancellable() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		e := NewTransientError("operation cancelled", err)
		e.Code = ErrCodeCancelled
		return e
	}
	return nil
}

// fail unwinds the transaction and returns the causing error. Compensating
// actions run in reverse order; a failing compensation is logged and the
// unwind continues, since remaining steps are independent.
func (c *Coordinator) fail(ctx context.Context, t *tx, err error) error {
	if !t.cancellable() {
		// The record is already durable; surface the error without undoing.
		t.log.WithError(err).Error("post-record step failed, state left as written")
		return err
	}

	t.state = TxRollingBack
	t.log.WithError(err).Warnf("rolling back %d committed steps", len(t.undo))
	c.metrics.Rollback()

	for i := len(t.undo) - 1; i >= 0; i-- {
		if undoErr := t.undo[i](context.WithoutCancel(ctx)); undoErr != nil {
			t.log.WithError(undoErr).Error("compensating action failed")
		}
	}
	return err
}

// InstallWorkloads installs the given workloads into the generation: updates
// manifests (unless skipped), installs the pack delta, records the install
// intent, and garbage-collects.
func (c *Coordinator) InstallWorkloads(ctx context.Context, gen manifest.Generation, ids []manifest.WorkloadID, opts InstallOptions) (*TxResult, error) {
	if len(ids) == 0 {
		return nil, NewInvalidError("no workloads requested", nil)
	}

	lock, err := AcquireLock(c.root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	t := c.begin(gen)
	res := c.newResult(t, gen, ids)
	c.metrics.TxStarted("install")
	defer func() { c.metrics.TxCompleted("install", string(t.state), time.Since(res.StartedAt)) }()
	defer func() { res.State = t.state }()

	if !opts.SkipManifestUpdate {
		if err := c.updateManifests(ctx, t, gen, res); err != nil {
			return res, c.fail(ctx, t, err)
		}
	}
	t.state = TxManifestsUpdated

	set, err := loadManifestSet(ctx, c.backend, gen)
	if err != nil {
		return res, c.fail(ctx, t, NewInvalidError("no usable manifests for generation", err).WithGeneration(gen))
	}

	for _, id := range ids {
		ok, err := manifest.Installable(set, id, c.platform)
		if err != nil {
			return res, c.fail(ctx, t, classifyResolution(err))
		}
		if !ok {
			// Declared abstract, or implicitly abstract for this host because
			// the platform filter leaves it with no packs.
			e := NewInvalidError("workload is not installable on this platform", nil).WithWorkload(id)
			return res, c.fail(ctx, t, e)
		}
	}

	recorded, err := c.records.InstalledWorkloads(ctx, gen)
	if err != nil {
		return res, c.fail(ctx, t, fmt.Errorf("failed to read installation record: %w", err))
	}
	target := unionWorkloads(recorded, ids)

	required, err := manifest.ExpandResolved(set, target, c.platform)
	if err != nil {
		return res, c.fail(ctx, t, classifyResolution(err))
	}

	if err := c.installPacks(ctx, t, gen, required, opts.OfflineCacheDir, res); err != nil {
		return res, c.fail(ctx, t, err)
	}
	t.state = TxPacksReconciled

	if err := t.checkCancelled(ctx); err != nil {
		return res, c.fail(ctx, t, err)
	}
	if err := c.writeRecord(ctx, t, gen, ids, recorded); err != nil {
		return res, c.fail(ctx, t, err)
	}
	t.state = TxRecordWritten

	if err := c.runGC(ctx, t, res); err != nil {
		return res, err
	}

	t.state = TxDone
	return c.finish(t, res), nil
}

// UninstallWorkloads removes the install intent for the given workloads and
// garbage-collects packs no longer required. Packs still reachable from other
// recorded workloads, including through extends edges, survive because
// reference counts are recomputed from the current manifests.
func (c *Coordinator) UninstallWorkloads(ctx context.Context, gen manifest.Generation, ids []manifest.WorkloadID) (*TxResult, error) {
	if len(ids) == 0 {
		return nil, NewInvalidError("no workloads requested", nil)
	}

	lock, err := AcquireLock(c.root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	t := c.begin(gen)
	res := c.newResult(t, gen, ids)
	c.metrics.TxStarted("uninstall")
	defer func() { c.metrics.TxCompleted("uninstall", string(t.state), time.Since(res.StartedAt)) }()
	defer func() { res.State = t.state }()

	// Uninstall never updates manifests; packs are re-expanded against the
	// manifests as currently installed.
	t.state = TxManifestsUpdated

	recorded, err := c.records.InstalledWorkloads(ctx, gen)
	if err != nil {
		return res, c.fail(ctx, t, fmt.Errorf("failed to read installation record: %w", err))
	}
	recordedSet := make(map[manifest.WorkloadID]struct{}, len(recorded))
	for _, id := range recorded {
		recordedSet[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := recordedSet[id]; !ok {
			e := NewInvalidError("workload is not installed", nil).WithWorkload(id).WithGeneration(gen)
			e.Code = ErrCodeNotFound
			return res, c.fail(ctx, t, e)
		}
	}

	// No backend pack actions: marker and payload removal is the garbage
	// collector's job once the record changes.
	t.state = TxPacksReconciled

	if err := t.checkCancelled(ctx); err != nil {
		return res, c.fail(ctx, t, err)
	}
	for _, id := range ids {
		if err := c.records.RemoveWorkload(ctx, gen, id); err != nil {
			return res, c.fail(ctx, t, fmt.Errorf("failed to remove workload record: %w", err))
		}
		t.push(func(ctx context.Context) error {
			return c.records.AddWorkload(ctx, gen, id)
		})
	}
	t.state = TxRecordWritten

	if err := c.runGC(ctx, t, res); err != nil {
		return res, err
	}

	t.state = TxDone
	return c.finish(t, res), nil
}

// UpdateWorkloads refreshes manifests and reconciles the generation's
// recorded workloads against them. With FromPreviousGeneration the record of
// the newest other generation seeds the target generation first.
func (c *Coordinator) UpdateWorkloads(ctx context.Context, gen manifest.Generation, opts UpdateOptions) (*TxResult, error) {
	lock, err := AcquireLock(c.root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	t := c.begin(gen)
	res := c.newResult(t, gen, nil)
	c.metrics.TxStarted("update")
	defer func() { c.metrics.TxCompleted("update", string(t.state), time.Since(res.StartedAt)) }()
	defer func() { res.State = t.state }()

	recorded, err := c.records.InstalledWorkloads(ctx, gen)
	if err != nil {
		return res, c.fail(ctx, t, fmt.Errorf("failed to read installation record: %w", err))
	}

	seed := recorded
	if opts.FromPreviousGeneration {
		prev, err := c.previousGeneration(ctx, gen)
		if err != nil {
			return res, c.fail(ctx, t, err)
		}
		prevWorkloads, err := c.records.InstalledWorkloads(ctx, prev)
		if err != nil {
			return res, c.fail(ctx, t, fmt.Errorf("failed to read record of generation %s: %w", prev, err))
		}
		seed = unionWorkloads(recorded, prevWorkloads)
		t.log.Infof("seeding %d workloads from generation %s", len(prevWorkloads), prev)
	}
	res.Workloads = seed

	if err := c.updateManifests(ctx, t, gen, res); err != nil {
		return res, c.fail(ctx, t, err)
	}
	t.state = TxManifestsUpdated

	if len(seed) > 0 {
		set, err := loadManifestSet(ctx, c.backend, gen)
		if err != nil {
			return res, c.fail(ctx, t, NewInvalidError("no usable manifests for generation", err).WithGeneration(gen))
		}
		required, err := manifest.ExpandResolved(set, seed, c.platform)
		if err != nil {
			return res, c.fail(ctx, t, classifyResolution(err))
		}
		if err := c.installPacks(ctx, t, gen, required, opts.OfflineCacheDir, res); err != nil {
			return res, c.fail(ctx, t, err)
		}
	}
	t.state = TxPacksReconciled

	if err := t.checkCancelled(ctx); err != nil {
		return res, c.fail(ctx, t, err)
	}
	if err := c.writeRecord(ctx, t, gen, seed, recorded); err != nil {
		return res, c.fail(ctx, t, err)
	}
	t.state = TxRecordWritten

	if err := c.runGC(ctx, t, res); err != nil {
		return res, err
	}

	t.state = TxDone
	return c.finish(t, res), nil
}

// CollectGarbage runs a standalone garbage collection under the install lock.
func (c *Coordinator) CollectGarbage(ctx context.Context, opts GCOptions) (*GCResult, error) {
	lock, err := AcquireLock(c.root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	return c.collector.Collect(ctx, opts)
}

// ListInstalledWorkloads returns the generation's recorded workloads. This is
// a read-only query: it takes no lock and tolerates observing a state
// mid-transaction.
func (c *Coordinator) ListInstalledWorkloads(ctx context.Context, gen manifest.Generation) ([]manifest.WorkloadID, error) {
	return c.records.InstalledWorkloads(ctx, gen)
}

// ManifestSet loads the generation's current manifests for display queries.
func (c *Coordinator) ManifestSet(ctx context.Context, gen manifest.Generation) (*manifest.Set, error) {
	return loadManifestSet(ctx, c.backend, gen)
}

// updateManifests fetches the latest version of every tracked manifest and
// installs the ones newer than the currently installed version. Equal or
// older published versions are a no-op (monotonic-version rule).
func (c *Coordinator) updateManifests(ctx context.Context, t *tx, gen manifest.Generation, res *TxResult) error {
	if c.source == nil {
		return NewInvalidError("no manifest source configured; use SkipManifestUpdate", nil)
	}

	current := make(map[string]InstalledManifest)
	installed, err := c.backend.CurrentManifests(ctx, gen)
	if err != nil {
		return NewBackendError("failed to list current manifests", err).WithGeneration(gen)
	}
	for _, im := range installed {
		current[im.ID] = im
	}

	ids := append([]string(nil), c.manifestIDs...)
	sort.Strings(ids)

	for _, id := range ids {
		if err := t.checkCancelled(ctx); err != nil {
			return err
		}

		version, content, err := c.source.GetLatest(ctx, id, gen)
		if err != nil {
			e := NewTransientError("failed to fetch manifest", err).WithGeneration(gen)
			e.Code = ErrCodeFetchFailed
			return e
		}

		prev, hadPrev := current[id]
		if hadPrev && version <= prev.Version {
			t.log.Debugf("manifest %s already at version %d (published %d)", id, prev.Version, version)
			continue
		}

		// Keep the previous document so the compensating action can repoint
		// the generation at it.
		var prevContent []byte
		if hadPrev {
			prevContent, err = os.ReadFile(prev.Path)
			if err != nil {
				return fmt.Errorf("failed to read previous manifest payload: %w", err)
			}
		}

		action, err := c.backend.InstallManifest(ctx, gen, id, version, content)
		if err != nil {
			return NewBackendError("failed to stage manifest", err).WithGeneration(gen)
		}
		if err := action.Commit(ctx); err != nil {
			return NewBackendError("failed to commit manifest", err).WithGeneration(gen)
		}

		t.push(func(ctx context.Context) error {
			if err := c.backend.UninstallManifest(ctx, gen, id, version); err != nil {
				return err
			}
			if !hadPrev {
				return nil
			}
			restore, err := c.backend.InstallManifest(ctx, gen, id, prev.Version, prevContent)
			if err != nil {
				return err
			}
			return restore.Commit(ctx)
		})

		t.log.Infof("manifest %s updated to version %d", id, version)
		res.ManifestsUpdated = append(res.ManifestsUpdated, ManifestVersion{ID: id, Version: version})
	}

	return nil
}

// installPacks installs every required pack the generation does not already
// reference. Each install is fetched, applied, and individually committed;
// the compensating action removes the usage marker and, for payloads this
// transaction placed, the payload itself.
func (c *Coordinator) installPacks(ctx context.Context, t *tx, gen manifest.Generation, required map[manifest.ConcretePackage]struct{}, offlineCache string, res *TxResult) error {
	present, err := c.backend.AllPacks(ctx)
	if err != nil {
		return NewBackendError("failed to list installed packs", err)
	}
	presentSet := make(map[manifest.ConcretePackage]struct{}, len(present))
	for _, pkg := range present {
		presentSet[pkg] = struct{}{}
	}

	referenced, err := c.backend.ListPacks(ctx, gen)
	if err != nil {
		return NewBackendError("failed to list generation packs", err).WithGeneration(gen)
	}
	referencedSet := make(map[manifest.ConcretePackage]struct{}, len(referenced))
	for _, pkg := range referenced {
		referencedSet[pkg] = struct{}{}
	}

	for _, pkg := range sortedPackages(required) {
		if _, ok := referencedSet[pkg]; ok {
			continue
		}
		if err := t.checkCancelled(ctx); err != nil {
			return err
		}

		fetchStart := time.Now()
		payload, err := c.fetcher.Fetch(ctx, pkg, offlineCache)
		if err != nil {
			e := NewTransientError("failed to fetch package", err).WithPack(pkg)
			e.Code = ErrCodeFetchFailed
			return e
		}
		c.metrics.FetchObserved(time.Since(fetchStart))

		action, err := c.backend.InstallPack(ctx, gen, pkg, payload)
		if err != nil {
			return NewBackendError("failed to stage pack", err).WithPack(pkg).WithGeneration(gen)
		}
		if err := action.Commit(ctx); err != nil {
			return NewBackendError("failed to commit pack", err).WithPack(pkg).WithGeneration(gen)
		}

		_, preexisting := presentSet[pkg]
		t.push(func(ctx context.Context) error {
			if err := c.backend.UninstallPack(ctx, gen, pkg); err != nil {
				return err
			}
			if preexisting {
				return nil
			}
			return c.backend.RemovePack(ctx, pkg)
		})

		t.log.WithPack(pkg.String()).Info("pack installed")
		c.metrics.PackInstalled()
		res.PacksInstalled = append(res.PacksInstalled, pkg)
	}

	return nil
}

// writeRecord adds the install intents the record does not already hold.
func (c *Coordinator) writeRecord(ctx context.Context, t *tx, gen manifest.Generation, ids []manifest.WorkloadID, recorded []manifest.WorkloadID) error {
	existing := make(map[manifest.WorkloadID]struct{}, len(recorded))
	for _, id := range recorded {
		existing[id] = struct{}{}
	}

	for _, id := range ids {
		if _, ok := existing[id]; ok {
			continue
		}
		if err := c.records.AddWorkload(ctx, gen, id); err != nil {
			return fmt.Errorf("failed to write installation record: %w", err)
		}
		t.push(func(ctx context.Context) error {
			return c.records.RemoveWorkload(ctx, gen, id)
		})
	}
	return nil
}

// runGC performs the post-operation collection. The record is already
// durable, so a hard GC error is surfaced without rollback; per-pack removal
// failures are non-fatal and land in the result.
func (c *Coordinator) runGC(ctx context.Context, t *tx, res *TxResult) error {
	gc, err := c.collector.Collect(context.WithoutCancel(ctx), GCOptions{})
	if err != nil {
		return c.fail(ctx, t, err)
	}
	t.state = TxGCRun
	res.PacksRemoved = gc.RemovedPacks
	return nil
}

// previousGeneration picks the newest recorded generation other than gen.
// Feature-band keys of one product line sort lexically by recency.
func (c *Coordinator) previousGeneration(ctx context.Context, gen manifest.Generation) (manifest.Generation, error) {
	gens, err := c.records.Generations(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list generations: %w", err)
	}

	var prev manifest.Generation
	for _, g := range gens {
		if g == gen {
			continue
		}
		if g > prev {
			prev = g
		}
	}
	if prev == "" {
		return "", NewInvalidError("no previous generation with installation records", nil).WithGeneration(gen)
	}
	return prev, nil
}

func (c *Coordinator) newResult(t *tx, gen manifest.Generation, ids []manifest.WorkloadID) *TxResult {
	return &TxResult{
		TxID:       t.id,
		State:      t.state,
		Generation: gen,
		Workloads:  ids,
		StartedAt:  time.Now(),
	}
}

func (c *Coordinator) finish(t *tx, res *TxResult) *TxResult {
	res.State = t.state
	res.Duration = time.Since(res.StartedAt)
	t.log.Infof("transaction done in %s", res.Duration)
	return res
}

// unionWorkloads merges two workload lists preserving first-seen order.
func unionWorkloads(a, b []manifest.WorkloadID) []manifest.WorkloadID {
	seen := make(map[manifest.WorkloadID]struct{}, len(a)+len(b))
	out := make([]manifest.WorkloadID, 0, len(a)+len(b))
	for _, list := range [][]manifest.WorkloadID{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// sortedPackages returns the set as a deterministically ordered slice.
func sortedPackages(set map[manifest.ConcretePackage]struct{}) []manifest.ConcretePackage {
	out := make([]manifest.ConcretePackage, 0, len(set))
	for pkg := range set {
		out = append(out, pkg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
