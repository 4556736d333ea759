// Package textutil normalizes identifiers and labels shared between config,
// the parser registry, and the CLI.
//
// Collection-system and format identifiers are compared case-insensitively
// after whitespace removal so "Ship HPR", "shiphpr", and "SHIPHPR" resolve to
// the same registration.
package textutil
