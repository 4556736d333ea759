// Package config loads, normalizes, and validates ddash configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DDASH_CRUISE_ID. The Config type centralizes the warehouse layout, the
// registered collection systems with their parsers, and the quality
// thresholds, so the reconciliation engine and CLI discover everything in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, folded identifiers, and clear validation errors.
package config
