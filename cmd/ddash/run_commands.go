package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ddash/internal/logging"
	"ddash/internal/reconcile"
	"ddash/internal/runs"
	"ddash/internal/services"
)

type runFunc func(ctx context.Context, e *reconcile.Engine, opts []reconcile.RunOption) (*reconcile.Result, error)

func newUpdateCommand(ctx *commandContext) *cobra.Command {
	var system, cruise, requestPath string
	var newFiles, updatedFiles []string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Process new and updated raw files of one collection system",
		Long: "Process new and updated raw files of one collection system.\n\n" +
			"Files are cruise-relative paths. Pass --request to read a JSON request\n" +
			"({\"collectionSystemId\":..., \"files\":{\"new\":[...],\"updated\":[...]}}), or - for stdin.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(cmd.InOrStdin(), requestPath, system, cruise, newFiles, updatedFiles)
			if err != nil {
				return err
			}
			return executeRun(cmd, ctx, reconcile.TaskUpdate, req.CollectionSystemID, req.CruiseID,
				func(runCtx context.Context, e *reconcile.Engine, opts []reconcile.RunOption) (*reconcile.Result, error) {
					return e.Incremental(runCtx, req, opts...)
				})
		},
	}

	cmd.Flags().StringVarP(&system, "system", "s", "", "Collection system id or name")
	cmd.Flags().StringVar(&cruise, "cruise", "", "Cruise id (defaults to warehouse.cruise_id)")
	cmd.Flags().StringSliceVar(&newFiles, "new", nil, "New raw files, relative to the cruise directory")
	cmd.Flags().StringSliceVar(&updatedFiles, "updated", nil, "Updated raw files, relative to the cruise directory")
	cmd.Flags().StringVar(&requestPath, "request", "", "Read the request JSON from a file (- for stdin)")
	return cmd
}

func newRebuildCommand(ctx *commandContext) *cobra.Command {
	var cruise string
	var prune bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Regenerate every dashboard artifact and the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := reconcile.RebuildOptions{CruiseID: cruise, Prune: prune}
			return executeRun(cmd, ctx, reconcile.TaskRebuild, "", cruise,
				func(runCtx context.Context, e *reconcile.Engine, runOpts []reconcile.RunOption) (*reconcile.Result, error) {
					return e.Rebuild(runCtx, opts, runOpts...)
				})
		},
	}

	cmd.Flags().StringVar(&cruise, "cruise", "", "Cruise id (defaults to warehouse.cruise_id)")
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete artifacts the rebuilt manifest does not reference")
	return cmd
}

func newTaskCommand(ctx *commandContext) *cobra.Command {
	var payloadPath string

	cmd := &cobra.Command{
		Use:   "task NAME",
		Short: "Run a task by identifier with a JSON payload",
		Long:  "Run a task by identifier with a JSON payload.\n\nTasks: " + strings.Join(reconcile.TaskNames(), ", "),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if _, ok := reconcile.Tasks[name]; !ok {
				return services.Wrap(services.ErrUnknownTask, "cli", "task",
					fmt.Sprintf("%q (known: %s)", name, strings.Join(reconcile.TaskNames(), ", ")), nil)
			}
			var payload []byte
			if payloadPath != "" {
				data, err := readInput(cmd.InOrStdin(), payloadPath)
				if err != nil {
					return err
				}
				payload = data
			}

			system, cruise := "", ""
			if name == reconcile.TaskUpdate {
				if req, err := reconcile.DecodeRequest(payload); err == nil {
					system, cruise = req.CollectionSystemID, req.CruiseID
				}
			}
			return executeRun(cmd, ctx, name, system, cruise,
				func(runCtx context.Context, e *reconcile.Engine, opts []reconcile.RunOption) (*reconcile.Result, error) {
					return e.Dispatch(runCtx, name, payload, opts...)
				})
		},
	}

	cmd.Flags().StringVarP(&payloadPath, "payload", "p", "", "Read the task payload from a file (- for stdin)")
	return cmd
}

func buildRequest(stdin io.Reader, requestPath, system, cruise string, newFiles, updatedFiles []string) (reconcile.Request, error) {
	if requestPath != "" {
		if system != "" || len(newFiles) > 0 || len(updatedFiles) > 0 {
			return reconcile.Request{}, errors.New("--request cannot be combined with --system, --new or --updated")
		}
		data, err := readInput(stdin, requestPath)
		if err != nil {
			return reconcile.Request{}, err
		}
		req, err := reconcile.DecodeRequest(data)
		if err != nil {
			return reconcile.Request{}, err
		}
		if cruise != "" {
			req.CruiseID = cruise
		}
		return req, nil
	}
	if strings.TrimSpace(system) == "" {
		return reconcile.Request{}, errors.New("--system is required (or pass --request)")
	}
	return reconcile.Request{
		CollectionSystemID: strings.TrimSpace(system),
		CruiseID:           strings.TrimSpace(cruise),
		Files:              reconcile.FileList{New: newFiles, Updated: updatedFiles},
	}, nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// executeRun runs fn under signal handling and records it in the ledger.
// SIGINT and SIGTERM cancel the run; SIGQUIT asks it to stop after the
// current file.
func executeRun(cmd *cobra.Command, ctx *commandContext, task, system, cruiseID string, fn runFunc) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	engine, err := ctx.newEngine()
	if err != nil {
		return err
	}
	ledger, err := ctx.openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := ctx.log()
	stop := &reconcile.StopFlag{}
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGQUIT)
	defer signal.Stop(quit)
	go func() {
		select {
		case <-quit:
			logger.Info("stop requested, finishing current file", logging.String(logging.FieldTask, task))
			stop.Stop()
		case <-signalCtx.Done():
		}
	}()

	if cruiseID == "" {
		cruiseID = cfg.Warehouse.CruiseID
	}
	res, runErr := runWithLedger(signalCtx, ledger, logger, task, system, cruiseID, stop,
		func(runCtx context.Context, opts []reconcile.RunOption) (*reconcile.Result, error) {
			return fn(runCtx, engine, opts)
		})
	if res != nil {
		if err := printResult(cmd, ctx, res); err != nil {
			return err
		}
	}
	if runErr == nil && signalCtx.Err() != nil {
		return context.Canceled
	}
	return runErr
}

// runWithLedger brackets a run with ledger Start and Finish. The ledger row
// supplies progress persistence and stop requests from `ddash stop`.
func runWithLedger(ctx context.Context, ledger *runs.Store, logger *slog.Logger, task, system, cruiseID string, stop reconcile.Canceller,
	fn func(context.Context, []reconcile.RunOption) (*reconcile.Result, error)) (*reconcile.Result, error) {
	run, err := ledger.Start(ctx, task, system, cruiseID)
	if err != nil {
		return nil, err
	}
	run.WithLogger(logger)

	res, runErr := fn(ctx, []reconcile.RunOption{
		reconcile.WithRunID(run.ID),
		reconcile.WithProgress(run),
		reconcile.WithCanceller(reconcile.AnyCanceller(stop, run)),
	})
	if err := run.Finish(context.WithoutCancel(ctx), outcomeFor(res, runErr)); err != nil {
		logging.WarnWithContext(logger, "run outcome not recorded", "run_finish_failed",
			logging.String(logging.FieldRunID, run.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "ddash runs shows this run as running"),
		)
	}
	if res != nil && res.RunID == "" {
		res.RunID = run.ID
	}
	return res, runErr
}

func outcomeFor(res *reconcile.Result, err error) runs.Outcome {
	out := runs.Outcome{Status: runs.StatusFailed}
	if res != nil {
		switch res.State {
		case reconcile.StateCompleted:
			out.Status = runs.StatusCompleted
		case reconcile.StateCancelled:
			out.Status = runs.StatusCancelled
		}
		if parts, mErr := json.Marshal(res.Parts); mErr == nil {
			out.Parts = parts
		}
		out.New = len(res.Files.New)
		out.Updated = len(res.Files.Updated)
		out.Removed = len(res.Files.Removed)
		out.Error = res.Error
	}
	if err != nil {
		out.Status = runs.StatusFailed
		if out.Error == "" {
			out.Error = err.Error()
		}
	}
	return out
}

func printResult(cmd *cobra.Command, ctx *commandContext, res *reconcile.Result) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, res)
	}
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintf(out, "Run %s (%s): %s\n", res.RunID, res.Task, colorVerdict(string(res.State), colorize))
	if len(res.Parts) > 0 {
		rows := make([][]string, 0, len(res.Parts))
		for _, p := range res.Parts {
			rows = append(rows, []string{p.PartName, colorVerdict(string(p.Result), colorize)})
		}
		fmt.Fprintln(out, renderTable([]string{"Step", "Result"}, rows, nil))
	}
	fmt.Fprintf(out, "New: %d  Updated: %d  Removed: %d\n", len(res.Files.New), len(res.Files.Updated), len(res.Files.Removed))
	if res.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", res.Error)
	}
	return nil
}
