// Package uploads tracks published uploads and reclaims expired ones.
//
// A [Registry] maps upload ids to their on-disk root directory and located
// entry document. [Locate] finds the entry document inside an extracted
// tree. A [Sweeper] periodically removes uploads (and orphaned directories)
// older than the retention window, and [Rebuild] reconciles the registry with
// the upload root at startup.
package uploads
