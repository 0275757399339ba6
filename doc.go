// Package cleaner prunes unreferenced content from a registry's local
// filesystem store. The goal is to reclaim space held by old tags and by the
// manifests and layer links that only those tags kept alive.
//
// # Tags
//
// A tag is a mutable pointer to one manifest revision. The retention policy
// keeps the most recently modified tags of a repository, plus any tag matching
// an exclude pattern, and condemns the rest.
//
// # Revisions and layers
//
// Manifest revisions and layer links are scoped to a repository. The blobs
// behind them live in a store-wide pool and are shared between repositories.
// A revision is removed once no tag in its repository points to it. A layer
// link is removed once no tag reaches the layer through a surviving manifest:
// tags of the same repository when deleting a single tag, tags of every
// repository when sweeping untagged content.
//
// The blob pool itself is never touched. Reclaiming unlinked blobs is left to
// the registry's own garbage-collect command.
//
// # Operation
//
// The store is assumed to be quiescent. Run the cleaner only while the
// registry is stopped or in read-only mode: a push racing with the
// reachability scan can cause data still in use to be deleted.
package cleaner
