package reconcile

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"ddash/internal/artifact"
	"ddash/internal/logging"
	"ddash/internal/services"
)

// Rebuild regenerates every artifact and the manifest from empty. Files
// that are unrecognized, fail to parse, or yield no rows are left out of
// the new manifest. The manifest is always saved, including after a
// cancellation.
func (e *Engine) Rebuild(ctx context.Context, opts RebuildOptions, runOpts ...RunOption) (*Result, error) {
	cfg := e.cfg.WithCruise(opts.CruiseID)
	ctx, st := e.newRun(ctx, TaskRebuild, cfg, true, runOpts)
	st.reporter.report(ctx, 1, "Starting rebuild")

	lock, err := e.lockManifest(st)
	if err != nil {
		return e.finish(ctx, st, StateFailed, err)
	}
	defer func() { _ = lock.Unlock() }()

	st.manifest = e.newManifest(cfg)
	runLogger := st.logger

	systems := cfg.EnabledCollectionSystems()
	count := len(systems)
	for i, cs := range systems {
		if st.cancelled(ctx) {
			st.stopped = true
			break
		}
		st.cs = cs
		sysCtx := services.WithCollectionSystem(ctx, cs.ID)
		st.logger = logging.WithContext(sysCtx, e.logger)
		message := "Processing " + cs.Name

		if !e.hasParser(cs) {
			st.logger.Debug("collection system has no dashboard parser, moving on",
				logging.String("parser", cs.Parser))
			st.reporter.report(ctx, 10+80*(i+1)/count, message)
			continue
		}

		dir := filepath.Join(cfg.CruiseDir(), filepath.FromSlash(cs.DestDir))
		listed, err := e.lister.List(sysCtx, dir)
		if err != nil {
			if ctx.Err() != nil {
				st.stopped = true
				break
			}
			st.result.fail(message)
			logging.WarnWithContext(st.logger, "collection system files could not be listed", "filelist_failed",
				logging.String("dir", dir),
				logging.Error(err),
				logging.String(logging.FieldImpact, "artifacts for this collection system are missing from the rebuilt manifest"),
			)
			continue
		}

		raws := make([]string, 0, len(listed))
		for _, f := range listed {
			if raw, ok := normalizeRaw(path.Join(filepath.ToSlash(cs.DestDir), f)); ok {
				raws = append(raws, raw)
			}
		}
		st.logger.Debug("files to process", logging.Int("count", len(raws)))

		if err := e.processFiles(sysCtx, st, raws, func(done int) {
			st.reporter.report(ctx, 10+80*(i*len(raws)+done)/(count*len(raws)), message)
		}); err != nil {
			st.logger = runLogger
			return e.finish(ctx, st, StateFailed, err)
		}
		if st.stopped {
			break
		}
		st.result.pass(message)
		st.reporter.report(ctx, 10+80*(i+1)/count, message)
	}
	st.logger = runLogger

	persist := context.WithoutCancel(ctx)
	st.reporter.report(persist, 90, "Updating manifest file")
	if err := e.saveManifest(st, "Updating manifest file"); err != nil {
		return e.finish(persist, st, StateFailed, err)
	}

	if (opts.Prune || cfg.Rebuild.PruneOrphans) && !st.stopped {
		st.reporter.report(persist, 93, "Pruning orphaned DashboardData files")
		e.prune(ctx, st)
	}

	st.reporter.report(persist, 95, "Setting file/directory ownership")
	e.applyPermissions(persist, st, cfg.DashboardPath(), true, "Setting file/directory ownership")

	state := StateCompleted
	if st.stopped {
		state = StateCancelled
	}
	st.reporter.report(persist, 99, "Finalizing")
	st.reporter.report(persist, 100, string(state))
	return e.finish(persist, st, state, nil)
}

// prune deletes artifacts the rebuilt manifest does not reference.
func (e *Engine) prune(ctx context.Context, st *runState) {
	cfg := st.cfg
	entries := st.manifest.Entries()
	keep := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		keep[filepath.Clean(filepath.Join(cfg.Warehouse.BaseDir, filepath.FromSlash(entry.DDJSON)))] = struct{}{}
	}

	res := artifact.PruneOrphaned(ctx, cfg.DashboardPath(), keep, []string{cfg.ManifestPath()}, st.logger)
	cruiseDir := cfg.CruiseDir()
	for _, removed := range res.Removed {
		rel, err := filepath.Rel(cruiseDir, removed)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = removed
		}
		st.result.Files.Removed = append(st.result.Files.Removed, filepath.ToSlash(rel))
	}
	if len(res.Errors) > 0 {
		st.result.fail("Pruning orphaned DashboardData files")
		return
	}
	st.result.pass("Pruning orphaned DashboardData files")
}
