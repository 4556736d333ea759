// Package watch turns filesystem activity in collection system directories
// into incremental dashboard runs.
//
// Events are debounced per file, so a raw file that is still being appended
// to by a logger is only processed once it has been quiet for the configured
// interval. Settled files are grouped by collection system and classified as
// new or updated against the manifest just before each run.
package watch
