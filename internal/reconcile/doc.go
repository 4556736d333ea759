// Package reconcile keeps dashboard artifacts and the manifest in step with
// the raw files of a cruise.
//
// An incremental run processes an explicit list of new and updated raw files
// for one collection system. A rebuild enumerates every collection system
// and regenerates the manifest from empty. Both share the per-file pipeline:
// detect, parse, analyze, then write the artifact and upsert or retire the
// manifest entry. Analysis may run on several files at once; applying
// results to disk and the manifest happens one file at a time, in order.
//
// Runs move from running to completed, cancelled, or failed. Per-file
// problems are reported as parts and never fail a run. Losing the manifest
// (busy, corrupt, unwritable) or failing to write an artifact does.
package reconcile
