package artifact

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ddash/internal/logging"
)

// PruneResult contains the outcome of an orphaned artifact sweep.
type PruneResult struct {
	Removed []string
	Errors  []PruneError
}

// PruneError pairs a file path with its removal error.
type PruneError struct {
	Path  string
	Error error
}

// PruneOrphaned removes *.json files under dashboardDir that are not listed in
// keep (absolute paths). Paths in skip are never touched; the manifest
// document belongs there. The sweep stops early when ctx is cancelled.
func PruneOrphaned(ctx context.Context, dashboardDir string, keep map[string]struct{}, skip []string, logger *slog.Logger) PruneResult {
	result := PruneResult{}

	dashboardDir = strings.TrimSpace(dashboardDir)
	if dashboardDir == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[filepath.Clean(p)] = struct{}{}
	}

	var orphans []string
	err := filepath.WalkDir(dashboardDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			result.Errors = append(result.Errors, PruneError{Path: path, Error: err})
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		clean := filepath.Clean(path)
		if _, ok := skipped[clean]; ok {
			return nil
		}
		if _, ok := keep[clean]; ok {
			return nil
		}
		orphans = append(orphans, clean)
		return nil
	})
	if err != nil {
		result.Errors = append(result.Errors, PruneError{Path: dashboardDir, Error: err})
		return result
	}

	sort.Strings(orphans)
	for _, path := range orphans {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, PruneError{Path: path, Error: err})
			logger.Warn("failed to remove orphaned artifact",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "artifact_prune_failed"),
				logging.String(logging.FieldErrorHint, "check dashboard directory permissions"),
				logging.String(logging.FieldImpact, "stale artifact remains visible to dashboard readers"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		logger.Info("removed orphaned artifact",
			logging.String("path", path),
			logging.String(logging.FieldEventType, "artifact_pruned"),
		)
	}
	return result
}
