package engine

import (
	"context"
	"fmt"

	"github.com/packforge/packforge/pkg/manifest"
	"github.com/packforge/packforge/pkg/telemetry"
)

// Collector is the garbage collector: it recomputes each live generation's
// required pack set from that generation's installation record and current
// manifests, reconciles the persisted marker sets, and removes payloads no
// generation references. It is the only writer of pack reference markers in
// the record store and never mutates installation records or manifests of
// live generations.
//
// Collection is idempotent and re-entrant: a second run with no intervening
// state change removes nothing.
type Collector struct {
	backend  Backend
	records  RecordStore
	platform manifest.Platform
	log      *telemetry.Logger
	metrics  *telemetry.Metrics
}

// NewCollector creates a garbage collector.
func NewCollector(backend Backend, records RecordStore, platform manifest.Platform, log *telemetry.Logger, metrics *telemetry.Metrics) *Collector {
	return &Collector{
		backend:  backend,
		records:  records,
		platform: platform,
		log:      log.Component("gc"),
		metrics:  metrics,
	}
}

// Collect runs one garbage collection pass.
//
// Phases:
//  1. Drop all records of generations not in the live set.
//  2. Recompute each remaining generation's required pack set against its
//     current manifests and reconcile the marker sets.
//  3. Remove every pack payload with no marker in any generation. Individual
//     removal failures are reported and retried on the next run.
//  4. Remove manifest payloads not current for any remaining generation.
func (c *Collector) Collect(ctx context.Context, opts GCOptions) (*GCResult, error) {
	result := &GCResult{}

	recorded, err := c.records.Generations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}

	live := liveSet(recorded, opts.LiveGenerations)

	for _, gen := range recorded {
		if _, ok := live[gen]; ok {
			continue
		}
		c.log.WithGeneration(string(gen)).Info("dropping records of dead generation")
		if err := c.records.DropGeneration(ctx, gen); err != nil {
			return nil, fmt.Errorf("failed to drop records of generation %s: %w", gen, err)
		}
		if err := c.backend.DropGeneration(ctx, gen); err != nil {
			return nil, NewBackendError("failed to drop generation markers", err).WithGeneration(gen)
		}
		result.DroppedGenerations = append(result.DroppedGenerations, gen)
	}

	for gen := range live {
		if err := c.reconcileGeneration(ctx, gen); err != nil {
			c.metrics.GCRun("failed")
			return nil, err
		}
	}

	if err := c.sweepPacks(ctx, result); err != nil {
		c.metrics.GCRun("failed")
		return nil, err
	}
	if err := c.sweepManifests(ctx, live, result); err != nil {
		c.metrics.GCRun("failed")
		return nil, err
	}

	c.metrics.GCRun("ok")
	c.metrics.PacksRemoved(len(result.RemovedPacks))
	c.metrics.GCFailures(len(result.Failed))
	return result, nil
}

// reconcileGeneration recomputes the generation's required pack set and makes
// the persisted marker set (record store and backend alike) match it.
// Additions and removals are per-element and idempotent.
func (c *Collector) reconcileGeneration(ctx context.Context, gen manifest.Generation) error {
	workloads, err := c.records.InstalledWorkloads(ctx, gen)
	if err != nil {
		return fmt.Errorf("failed to read installation record: %w", err)
	}

	set, err := loadManifestSet(ctx, c.backend, gen)
	if err != nil {
		return NewInconsistentError("generation has records but no readable manifests", err).WithGeneration(gen)
	}

	required, err := manifest.ExpandResolved(set, workloads, c.platform)
	if err != nil {
		// A record referencing a workload or pack absent from the current
		// manifests is an invariant violation; surface it rather than
		// repairing silently.
		return NewInconsistentError("installation record does not resolve against current manifests", classifyResolution(err)).WithGeneration(gen)
	}

	marked, err := c.records.GenerationPackMarkers(ctx, gen)
	if err != nil {
		return fmt.Errorf("failed to read pack markers: %w", err)
	}
	markedSet := make(map[manifest.ConcretePackage]struct{}, len(marked))
	for _, pkg := range marked {
		markedSet[pkg] = struct{}{}
	}

	for pkg := range required {
		if _, ok := markedSet[pkg]; ok {
			continue
		}
		if err := c.records.AddPackMarker(ctx, gen, pkg); err != nil {
			return fmt.Errorf("failed to add pack marker %s: %w", pkg, err)
		}
	}

	for _, pkg := range marked {
		if _, ok := required[pkg]; ok {
			continue
		}
		if err := c.records.RemovePackMarker(ctx, gen, pkg); err != nil {
			return fmt.Errorf("failed to remove pack marker %s: %w", pkg, err)
		}
		if err := c.backend.UninstallPack(ctx, gen, pkg); err != nil {
			return NewBackendError("failed to remove usage marker", err).WithGeneration(gen).WithPack(pkg)
		}
	}

	return nil
}

// sweepPacks removes every installed pack payload no generation references.
// Failures on individual packs are non-fatal.
func (c *Collector) sweepPacks(ctx context.Context, result *GCResult) error {
	installed, err := c.backend.AllPacks(ctx)
	if err != nil {
		return NewBackendError("failed to list installed packs", err)
	}

	for _, pkg := range installed {
		gens, err := c.records.PackMarkers(ctx, pkg)
		if err != nil {
			return fmt.Errorf("failed to read markers for %s: %w", pkg, err)
		}
		if len(gens) > 0 {
			continue
		}
		if err := c.backend.RemovePack(ctx, pkg); err != nil {
			c.log.WithPack(pkg.String()).WithError(err).Warn("pack removal failed, will retry on next run")
			result.Failed = append(result.Failed, GCFailure{Pack: pkg, Reason: err.Error()})
			continue
		}
		c.log.WithPack(pkg.String()).Info("removed unreferenced pack")
		result.RemovedPacks = append(result.RemovedPacks, pkg)
	}

	return nil
}

// sweepManifests removes manifest payload versions not current for any live
// generation.
func (c *Collector) sweepManifests(ctx context.Context, live map[manifest.Generation]struct{}, result *GCResult) error {
	all, err := c.backend.AllManifests(ctx)
	if err != nil {
		return NewBackendError("failed to list manifest payloads", err)
	}

	current := make(map[ManifestVersion]struct{})
	for gen := range live {
		installed, err := c.backend.CurrentManifests(ctx, gen)
		if err != nil {
			return NewBackendError("failed to list current manifests", err).WithGeneration(gen)
		}
		for _, im := range installed {
			current[ManifestVersion{ID: im.ID, Version: im.Version}] = struct{}{}
		}
	}

	for _, mv := range all {
		if _, ok := current[mv]; ok {
			continue
		}
		if err := c.backend.RemoveManifest(ctx, mv.ID, mv.Version); err != nil {
			c.log.WithError(err).Warnf("manifest %s@%d removal failed, will retry on next run", mv.ID, mv.Version)
			continue
		}
		result.RemovedManifests = append(result.RemovedManifests, mv)
	}

	return nil
}

// liveSet intersects the recorded generations with the caller-supplied live
// set. An empty live set means every recorded generation stays.
func liveSet(recorded, requested []manifest.Generation) map[manifest.Generation]struct{} {
	out := make(map[manifest.Generation]struct{}, len(recorded))
	if len(requested) == 0 {
		for _, gen := range recorded {
			out[gen] = struct{}{}
		}
		return out
	}

	req := make(map[manifest.Generation]struct{}, len(requested))
	for _, gen := range requested {
		req[gen] = struct{}{}
	}
	for _, gen := range recorded {
		if _, ok := req[gen]; ok {
			out[gen] = struct{}{}
		}
	}
	return out
}

// loadManifestSet reads the generation's currently installed manifests from
// the backend and builds the resolution view over them.
func loadManifestSet(ctx context.Context, backend Backend, gen manifest.Generation) (*manifest.Set, error) {
	installed, err := backend.CurrentManifests(ctx, gen)
	if err != nil {
		return nil, fmt.Errorf("failed to list current manifests: %w", err)
	}
	if len(installed) == 0 {
		return nil, fmt.Errorf("no manifests installed for generation %s", gen)
	}

	manifests := make([]*manifest.Manifest, 0, len(installed))
	for _, im := range installed {
		m, err := manifest.ParseFile(im.Path)
		if err != nil {
			return nil, err
		}
		if m.Version != im.Version {
			return nil, fmt.Errorf("manifest %s payload declares version %d but marker says %d", im.ID, m.Version, im.Version)
		}
		manifests = append(manifests, m)
	}

	return manifest.NewSet(gen, manifests)
}
