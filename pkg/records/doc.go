// Package records persists installation records: which workloads each
// generation intends installed, and which packs each generation's resolved
// set currently requires. The workload intents are the source of truth for
// "what should be installed"; the pack marker sets are derived data the
// garbage collector recomputes and owns.
package records
