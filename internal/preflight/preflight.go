package preflight

import (
	"context"

	"ddash/internal/config"
	"ddash/internal/parsers"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all preflight checks for the given config against registry.
func RunAll(ctx context.Context, cfg *config.Config, registry *parsers.Registry) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Warehouse and cruise directories (always checked)
	results = append(results, CheckDirectoryAccess("Warehouse directory", cfg.Warehouse.BaseDir))
	results = append(results, CheckDirectoryAccess("Cruise directory", cfg.CruiseDir()))

	results = append(results, CheckDashboardCreatable(cfg.DashboardPath()))

	for _, cs := range cfg.EnabledCollectionSystems() {
		if ctx.Err() != nil {
			break
		}
		results = append(results, CheckParser(cs, registry))
	}

	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
