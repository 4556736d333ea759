package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ddash/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check warehouse paths and parser configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			engine, err := ctx.newEngine()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, engine.Registry())
			probe := preflight.ProbeManifest(cfg)

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, map[string]any{
					"checks":   results,
					"manifest": map[string]any{"path": probe.Path, "exists": probe.Exists, "entries": probe.Entries, "locked": probe.Locked},
				}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(results)+1)
				for _, r := range results {
					status := "Pass"
					if !r.Passed {
						status = "Fail"
					}
					rows = append(rows, []string{r.Name, colorVerdict(status, colorize), r.Detail})
				}
				manifestStatus := "Pass"
				if probe.Err != nil {
					manifestStatus = "Fail"
				}
				rows = append(rows, []string{"Manifest", colorVerdict(manifestStatus, colorize), probe.Detail()})
				fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			}

			if preflight.Failed(results) || probe.Err != nil {
				return errors.New("preflight checks failed")
			}
			return nil
		},
	}
}
