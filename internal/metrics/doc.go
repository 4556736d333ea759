// Package metrics exposes Prometheus instruments for dashboard runs on a
// private registry.
package metrics
