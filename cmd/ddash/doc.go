// Package main hosts the ddash CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into
// reconciliation runs, run ledger queries, manifest inspection, single-file
// parser checks, and configuration scaffolding. It centralizes configuration
// resolution, logger setup, signal handling and ledger bookkeeping so
// subcommands can focus on output instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
