// Package manifest defines the workload manifest data model and the pure
// resolution algorithms over it: workload-to-pack expansion and
// platform-conditional alias resolution.
//
// A manifest is a versioned, immutable YAML document declaring workloads and
// packs for one generation (SDK feature band). Multiple manifests combine
// into a Set, which enforces that each workload and pack ID is declared at
// most once per generation. Expansion collapses the extends DAG into a flat,
// deduplicated pack set; it never performs I/O beyond the already-fetched
// manifest files it was built from.
package manifest
