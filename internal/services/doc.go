// Package services defines shared utilities consumed by the reconciliation
// engine, the parsers, and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, collection systems, raw paths, and
//     task names for logging.
//   - Structured error markers plus the Wrap helper so callers classify
//     failures with errors.Is (per-file versus run-fatal).
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the pipeline.
package services
