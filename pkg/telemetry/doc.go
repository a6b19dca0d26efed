// Package telemetry provides structured logging and Prometheus metrics for
// the installation engine. The Logger wraps zerolog with field helpers for
// the identifiers that recur across the engine (transaction, generation,
// workload, pack); Metrics keeps a private registry so embedding programs
// control exposure.
package telemetry
