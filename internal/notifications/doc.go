// Package notifications pushes dashboard failures to ntfy.
//
// Two events are published: a raw data file that was recognized but could
// not be parsed, and a run that ended in the failed state. NewService
// returns a no-op implementation when no topic is configured, so callers
// never need to check.
package notifications
