package runs

import (
	"context"
	"log/slog"

	"ddash/internal/logging"
)

// Run binds an active ledger row to the reconciliation engine: it reports
// progress into the row and observes stop requests recorded against it.
type Run struct {
	store  *Store
	ID     string
	logger *slog.Logger
}

// WithLogger attaches a logger used when ledger writes fail.
func (r *Run) WithLogger(logger *slog.Logger) *Run {
	r.logger = logger
	return r
}

// Report persists a progress update. Ledger failures are logged and
// otherwise ignored; progress is advisory.
func (r *Run) Report(ctx context.Context, percent int, message string) {
	if err := r.store.UpdateProgress(ctx, r.ID, percent, message); err != nil && r.logger != nil {
		logging.WarnWithContext(r.logger, "run progress not recorded", "run_progress_failed",
			logging.String(logging.FieldRunID, r.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "ddash runs shows stale progress"),
		)
	}
}

// Cancelled reports whether a stop was requested for this run.
func (r *Run) Cancelled(ctx context.Context) bool {
	stop, err := r.store.StopRequested(ctx, r.ID)
	if err != nil {
		if r.logger != nil {
			r.logger.Debug("stop flag poll failed", logging.String(logging.FieldRunID, r.ID), logging.Error(err))
		}
		return false
	}
	return stop
}

// Finish records the terminal outcome.
func (r *Run) Finish(ctx context.Context, outcome Outcome) error {
	return r.store.Finish(ctx, r.ID, outcome)
}
