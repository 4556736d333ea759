package reconcile

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"time"
)

// Lister enumerates the raw files of a collection system directory.
type Lister interface {
	// List returns slash-separated paths relative to dir, sorted. A missing
	// directory yields no files.
	List(ctx context.Context, dir string) ([]string, error)
}

// PermissionSetter applies ownership and modes to written output.
type PermissionSetter interface {
	Apply(ctx context.Context, path string, recursive bool) error
}

// Notifier receives failure messages.
type Notifier interface {
	NotifyParseError(ctx context.Context, collectionSystem, rawPath string, err error) error
	NotifyRunFailed(ctx context.Context, task, reason string) error
}

// Metrics receives run instrumentation.
type Metrics interface {
	FileProcessed(collectionSystem, outcome string)
	RunFinished(task, state string, elapsed time.Duration)
	ManifestEntries(n int)
}

// FSLister walks the local filesystem. Directories and symlinks to
// directories are not returned.
type FSLister struct{}

// List implements Lister.
func (FSLister) List(ctx context.Context, dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

type noopPermissions struct{}

func (noopPermissions) Apply(context.Context, string, bool) error { return nil }

type noopNotifier struct{}

func (noopNotifier) NotifyParseError(context.Context, string, string, error) error { return nil }
func (noopNotifier) NotifyRunFailed(context.Context, string, string) error         { return nil }

type noopMetrics struct{}

func (noopMetrics) FileProcessed(string, string)              {}
func (noopMetrics) RunFinished(string, string, time.Duration) {}
func (noopMetrics) ManifestEntries(int)                       {}
