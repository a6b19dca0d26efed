// Package backends provides engine.Backend implementations. The file backend
// is the reference implementation: plain directory trees with per-generation
// marker files and a stage-then-rename commit protocol. Detect probes an
// install root and picks the backend that can serve it.
package backends
