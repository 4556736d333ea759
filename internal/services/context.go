package services

import "context"

type contextKey string

const (
	runIDKey            contextKey = "run_id"
	collectionSystemKey contextKey = "collection_system"
	rawPathKey          contextKey = "raw_path"
	taskKey             contextKey = "task"
)

// WithRunID annotates context with the run ledger identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithCollectionSystem annotates context with the collection system being processed.
func WithCollectionSystem(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, collectionSystemKey, id)
}

// CollectionSystemFromContext returns the collection system if present.
func CollectionSystemFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(collectionSystemKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRawPath annotates context with the cruise-relative raw file path.
func WithRawPath(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, rawPathKey, path)
}

// RawPathFromContext returns the raw file path if present.
func RawPathFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(rawPathKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTask annotates context with the dispatched task identifier.
func WithTask(ctx context.Context, task string) context.Context {
	if task == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKey, task)
}

// TaskFromContext returns the task identifier if present.
func TaskFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(taskKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
