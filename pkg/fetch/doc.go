// Package fetch retrieves package artifacts and manifest documents from an
// HTTP feed. Artifacts land in a local cache that is consulted before the
// network; an offline cache directory, when given, replaces the network
// entirely and a miss is a hard error.
package fetch
