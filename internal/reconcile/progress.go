package reconcile

import (
	"context"
	"log/slog"

	"ddash/internal/logging"
)

// Progress receives run progress as a percentage and a short message.
type Progress interface {
	Report(ctx context.Context, percent int, message string)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(ctx context.Context, percent int, message string)

// Report implements Progress.
func (f ProgressFunc) Report(ctx context.Context, percent int, message string) {
	if f != nil {
		f(ctx, percent, message)
	}
}

// reporter forwards progress and logs a sampled subset of it.
type reporter struct {
	next    Progress
	logger  *slog.Logger
	sampler *logging.ProgressSampler
	last    int
}

func newReporter(next Progress, logger *slog.Logger) *reporter {
	return &reporter{next: next, logger: logger, sampler: logging.NewProgressSampler(10), last: -1}
}

func (r *reporter) report(ctx context.Context, percent int, message string) {
	if percent < r.last {
		percent = r.last
	}
	r.last = percent
	if r.next != nil {
		r.next.Report(ctx, percent, message)
	}
	if r.sampler.ShouldLog(percent, message) {
		r.logger.Info("dashboard progress",
			logging.Int("percent", percent),
			logging.String("message", message),
			logging.String(logging.FieldEventType, "run_progress"),
		)
	}
}
