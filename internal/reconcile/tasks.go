package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ddash/internal/services"
)

// Task identifiers accepted by Dispatch.
const (
	TaskUpdate  = "updateDataDashboard"
	TaskRebuild = "rebuildDataDashboard"
)

// Handler runs one task from its JSON payload.
type Handler func(ctx context.Context, e *Engine, payload []byte, opts ...RunOption) (*Result, error)

// Tasks maps task identifiers to handlers.
var Tasks = mustTasks(map[string]Handler{
	TaskUpdate: func(ctx context.Context, e *Engine, payload []byte, opts ...RunOption) (*Result, error) {
		req, err := DecodeRequest(payload)
		if err != nil {
			return nil, err
		}
		return e.Incremental(ctx, req, opts...)
	},
	TaskRebuild: func(ctx context.Context, e *Engine, payload []byte, opts ...RunOption) (*Result, error) {
		rebuild, err := DecodeRebuildOptions(payload)
		if err != nil {
			return nil, err
		}
		return e.Rebuild(ctx, rebuild, opts...)
	},
})

func mustTasks(tasks map[string]Handler) map[string]Handler {
	for name, h := range tasks {
		if strings.TrimSpace(name) == "" || h == nil {
			panic(fmt.Sprintf("invalid task registration %q", name))
		}
	}
	return tasks
}

// TaskNames lists the registered task identifiers.
func TaskNames() []string {
	names := make([]string, 0, len(Tasks))
	for name := range Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the task registered under name.
func (e *Engine) Dispatch(ctx context.Context, name string, payload []byte, opts ...RunOption) (*Result, error) {
	h, ok := Tasks[strings.TrimSpace(name)]
	if !ok {
		return nil, services.Wrap(services.ErrUnknownTask, "reconcile", "dispatch",
			fmt.Sprintf("%q (known: %s)", name, strings.Join(TaskNames(), ", ")), nil)
	}
	return h(ctx, e, payload, opts...)
}
