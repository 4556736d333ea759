package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ddash/internal/manifest"
)

func newManifestCommand(ctx *commandContext) *cobra.Command {
	var cruise string

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "List dashboard manifest entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg = cfg.WithCruise(cruise)
			store := manifest.New(cfg.ManifestPath(), manifest.Options{Logger: ctx.log()})
			if err := store.Load(); err != nil {
				return err
			}
			entries := store.Entries()
			if ctx.jsonOutput() {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "Manifest %s has no entries\n", cfg.ManifestPath())
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.Type, e.RawData, e.DDJSON})
			}
			fmt.Fprintln(out, renderTable([]string{"Type", "Raw data", "Dashboard data"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&cruise, "cruise", "", "Cruise id (defaults to warehouse.cruise_id)")
	return cmd
}

func newDetectCommand(ctx *commandContext) *cobra.Command {
	var system string

	cmd := &cobra.Command{
		Use:   "detect FILE",
		Short: "Print the format id a raw file is recognized as",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			formats, err := systemFormats(ctx, system)
			if err != nil {
				return err
			}
			engine, err := ctx.newEngine()
			if err != nil {
				return err
			}
			format, ok := engine.Registry().Detect(data, formats...)
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"file": args[0], "format": format, "recognized": ok})
			}
			if !ok {
				return fmt.Errorf("%s: no registered format recognizes the file", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), format)
			return nil
		},
	}

	cmd.Flags().StringVarP(&system, "system", "s", "", "Limit detection to the parser of this collection system")
	return cmd
}

func newParseCommand(ctx *commandContext) *cobra.Command {
	var format, system string

	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Parse one raw file and print its dashboard artifact JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			formats, err := systemFormats(ctx, system)
			if err != nil {
				return err
			}
			engine, err := ctx.newEngine()
			if err != nil {
				return err
			}
			_, doc, err := engine.Inspect(cmd.Context(), data, strings.TrimSpace(format), formats...)
			if err != nil {
				return err
			}
			return writeJSON(cmd, doc)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Parse as this format instead of detecting it")
	cmd.Flags().StringVarP(&system, "system", "s", "", "Limit detection to the parser of this collection system")
	return cmd
}

func systemFormats(ctx *commandContext, system string) ([]string, error) {
	if strings.TrimSpace(system) == "" {
		return nil, nil
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	cs, ok := cfg.CollectionSystem(system)
	if !ok {
		return nil, fmt.Errorf("collection system %q is not configured", system)
	}
	if cs.Parser == "" {
		return nil, fmt.Errorf("collection system %q has no parser", cs.ID)
	}
	return []string{cs.Parser}, nil
}

