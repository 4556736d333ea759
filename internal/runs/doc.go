// Package runs records dashboard reconciliation runs in a SQLite ledger.
//
// Each run row carries its task, collection system, terminal status,
// latest progress report and a stop flag. The CLI sets the flag with
// RequestStop; a running engine polls it through Run.Cancelled and stops
// between files.
package runs
