package logging

import (
	"context"
	"log/slog"

	"ddash/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized key for run ledger identifiers.
	FieldRunID = "run_id"
	// FieldCollectionSystem is the standardized key for collection system identifiers.
	FieldCollectionSystem = "collection_system"
	// FieldRawPath is the standardized key for cruise-relative raw file paths.
	FieldRawPath = "raw_path"
	// FieldTask is the standardized key for dispatched task identifiers.
	FieldTask = "task"
	// FieldEventType classifies a log line for filtering (e.g. "artifact_written").
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldErrorKind carries services.Kind for the logged error.
	FieldErrorKind = "error_kind"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if task, ok := services.TaskFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTask, task))
	}
	if cs, ok := services.CollectionSystemFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCollectionSystem, cs))
	}
	if raw, ok := services.RawPathFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRawPath, raw))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
