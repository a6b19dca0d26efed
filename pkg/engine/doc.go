// Package engine is the installation core: the classified error taxonomy,
// the collaborator interfaces (Backend, Fetcher, ManifestSource, RecordStore),
// the transaction coordinator that sequences manifest updates, pack placement,
// record writes and garbage collection under the exclusive install-root lock,
// and the mark/sweep collector that reclaims packs and manifests no
// generation references.
package engine
