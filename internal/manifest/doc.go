// Package manifest persists the dashboard index: one entry per raw file
// naming the artifact generated from it.
//
// The in-memory Store keeps entries in insertion order with a raw path index
// so upserts and removals are constant time. Nothing touches disk until
// Save, which replaces the document atomically. A sibling lock file
// serializes writers across processes.
package manifest
