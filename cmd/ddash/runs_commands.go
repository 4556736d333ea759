package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ddash/internal/logging"
	"ddash/internal/runs"
)

// staleRunAge marks running ledger rows without progress for this long as
// interrupted; no run goes that long between files.
const staleRunAge = 24 * time.Hour

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop [RUN_ID]",
		Short: "Ask a running run (or all runs) to stop after the current file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := ctx.openLedger()
			if err != nil {
				return err
			}
			defer ledger.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				id := strings.TrimSpace(args[0])
				ok, err := ledger.RequestStop(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("run %s is not running", id)
				}
				fmt.Fprintf(out, "Stop requested for run %s\n", id)
				return nil
			}

			n, err := ledger.RequestStopAll(cmd.Context())
			if err != nil {
				return err
			}
			switch n {
			case 0:
				fmt.Fprintln(out, "No running runs")
			case 1:
				fmt.Fprintln(out, "Stop requested for 1 run")
			default:
				fmt.Fprintf(out, "Stop requested for %d runs\n", n)
			}
			return nil
		},
	}
}

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var statuses []string
	var clear bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := ctx.openLedger()
			if err != nil {
				return err
			}
			defer ledger.Close()

			out := cmd.OutOrStdout()
			if clear {
				n, err := ledger.ClearFinished(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared %d finished runs\n", n)
				return nil
			}

			if _, err := ledger.MarkInterrupted(cmd.Context(), time.Now().Add(-staleRunAge)); err != nil {
				ctx.log().Debug("mark interrupted runs", logging.Error(err))
			}

			filter := make([]runs.Status, 0, len(statuses))
			for _, s := range statuses {
				filter = append(filter, runs.Status(strings.ToLower(strings.TrimSpace(s))))
			}
			records, err := ledger.List(cmd.Context(), limit, filter...)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, runViews(records))
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderRuns(records, shouldColorize(out)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show (0 for all)")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show runs with these statuses")
	cmd.Flags().BoolVar(&clear, "clear", false, "Delete finished runs from the ledger")
	return cmd
}

type runView struct {
	ID               string     `json:"id"`
	Task             string     `json:"task"`
	CollectionSystem string     `json:"collectionSystem,omitempty"`
	CruiseID         string     `json:"cruiseID,omitempty"`
	Status           string     `json:"status"`
	Progress         int        `json:"progressPercent"`
	Message          string     `json:"progressMessage,omitempty"`
	StopRequested    bool       `json:"stopRequested"`
	New              int        `json:"new"`
	Updated          int        `json:"updated"`
	Removed          int        `json:"removed"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	FinishedAt       *time.Time `json:"finishedAt,omitempty"`
}

func runViews(records []*runs.Record) []runView {
	views := make([]runView, 0, len(records))
	for _, r := range records {
		views = append(views, runView{
			ID:               r.ID,
			Task:             r.Task,
			CollectionSystem: r.CollectionSystem,
			CruiseID:         r.CruiseID,
			Status:           string(r.Status),
			Progress:         r.ProgressPercent,
			Message:          r.ProgressMessage,
			StopRequested:    r.StopRequested,
			New:              r.NewCount,
			Updated:          r.UpdatedCount,
			Removed:          r.RemovedCount,
			Error:            r.ErrorMessage,
			StartedAt:        r.StartedAt,
			FinishedAt:       r.FinishedAt,
		})
	}
	return views
}

func renderRuns(records []*runs.Record, colorize bool) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		finished := "-"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Local().Format("2006-01-02 15:04:05")
		}
		system := r.CollectionSystem
		if system == "" {
			system = "-"
		}
		rows = append(rows, []string{
			r.ID,
			r.Task,
			system,
			colorVerdict(string(r.Status), colorize),
			strconv.Itoa(r.ProgressPercent) + "%",
			fmt.Sprintf("%d/%d/%d", r.NewCount, r.UpdatedCount, r.RemovedCount),
			yesNo(r.StopRequested),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			finished,
		})
	}
	return renderTable(
		[]string{"ID", "Task", "System", "Status", "Progress", "New/Upd/Rem", "Stop", "Started", "Finished"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}
