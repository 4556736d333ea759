package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ddash/internal/logging"
	"ddash/internal/metrics"
	"ddash/internal/preflight"
	"ddash/internal/reconcile"
	"ddash/internal/runs"
	"ddash/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var metricsBind string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch collection system directories and update the dashboard as files settle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.log()

			recorder := metrics.New()
			engine, err := ctx.newEngine(reconcile.WithMetrics(recorder))
			if err != nil {
				return err
			}
			if results := preflight.RunAll(cmd.Context(), cfg, engine.Registry()); preflight.Failed(results) {
				for _, r := range results {
					if !r.Passed {
						fmt.Fprintf(cmd.ErrOrStderr(), "preflight: %s: %s\n", r.Name, r.Detail)
					}
				}
				return errors.New("preflight checks failed; run `ddash preflight` for details")
			}

			ledger, err := ctx.openLedger()
			if err != nil {
				return err
			}
			defer ledger.Close()

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			stop := &reconcile.StopFlag{}
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGQUIT)
			defer signal.Stop(quit)
			go func() {
				select {
				case <-quit:
					logger.Info("stop requested, finishing current file and exiting")
					stop.Stop()
					cancel()
				case <-signalCtx.Done():
				}
			}()

			bind := strings.TrimSpace(metricsBind)
			if bind == "" {
				bind = cfg.Watch.MetricsBind
			}
			if bind != "" {
				go func() {
					if err := recorder.Serve(signalCtx, bind, logger); err != nil {
						logging.WarnWithContext(logger, "metrics endpoint stopped", "metrics_serve_failed",
							logging.String("addr", bind),
							logging.Error(err),
						)
					}
				}()
			}

			runner := &ledgerRunner{
				engine:   engine,
				ledger:   ledger,
				logger:   logger,
				stop:     stop,
				cruiseID: cfg.Warehouse.CruiseID,
			}
			w, err := watch.New(cfg, runner, watch.WithLogger(logger))
			if err != nil {
				return err
			}
			if err := w.Run(signalCtx); err != nil {
				return err
			}
			logger.Info("watcher stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsBind, "metrics-bind", "", "Serve Prometheus metrics on this address (overrides watch.metrics_bind)")
	return cmd
}

// ledgerRunner records watch-triggered runs in the ledger.
type ledgerRunner struct {
	engine   *reconcile.Engine
	ledger   *runs.Store
	logger   *slog.Logger
	stop     reconcile.Canceller
	cruiseID string
}

func (r *ledgerRunner) Incremental(ctx context.Context, req reconcile.Request, opts ...reconcile.RunOption) (*reconcile.Result, error) {
	cruiseID := req.CruiseID
	if cruiseID == "" {
		cruiseID = r.cruiseID
	}
	return runWithLedger(ctx, r.ledger, r.logger, reconcile.TaskUpdate, req.CollectionSystemID, cruiseID, r.stop,
		func(runCtx context.Context, ledgerOpts []reconcile.RunOption) (*reconcile.Result, error) {
			return r.engine.Incremental(runCtx, req, append(ledgerOpts, opts...)...)
		})
}
