// Package preflight provides readiness checks for the warehouse paths and
// parser configuration that ddash depends on.
//
// These checks run in two contexts:
//   - The watcher calls RunAll once at startup and refuses to start when a
//     check fails.
//   - The CLI "ddash preflight" command prints every result together with a
//     manifest snapshot from ProbeManifest.
//
// Checks only read from disk; the dashboard check creates nothing.
package preflight
