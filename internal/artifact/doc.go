// Package artifact defines the per-file dashboard document (visualization
// series, stats, quality tests), its wire format, and the helpers that write,
// read, locate, and prune artifact files.
//
// Artifacts are always written wholesale through an atomic rename; they are
// never patched in place.
package artifact
