// Package parsers turns raw instrument log bytes into channel tables.
//
// Each supported format implements Parser with a cheap, side-effect-free
// Detect and a full Parse. The Registry holds the closed set of formats built
// at startup and resolves a detected format identifier to its parser. Both
// calls are pure functions of the content: re-running them on identical bytes
// yields identical results.
//
// Built-in formats:
//   - hpr: NMEA heading/pitch/roll with an SCS date/time prefix
//   - gga: NMEA GPS fix with an SCS date/time prefix
package parsers
