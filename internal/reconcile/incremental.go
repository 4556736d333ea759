package reconcile

import (
	"context"
	"fmt"

	"ddash/internal/config"
	"ddash/internal/logging"
	"ddash/internal/services"
)

// Incremental processes the new and updated raw files of one collection
// system against the persisted manifest.
//
// Files that are missing, unrecognized or parse to zero rows lose their
// manifest entry and artifact. Files that fail to parse keep whatever entry
// they had. The manifest is saved only when an entry changed.
func (e *Engine) Incremental(ctx context.Context, req Request, opts ...RunOption) (*Result, error) {
	cfg := e.cfg.WithCruise(req.CruiseID)
	ctx, st := e.newRun(ctx, TaskUpdate, cfg, false, opts)
	st.reporter.report(ctx, 5, "Resolving collection system")

	cs, ok := cfg.CollectionSystem(req.CollectionSystemID)
	if !ok {
		return e.finish(ctx, st, StateFailed, services.Wrap(services.ErrUnknownCollection, "reconcile", "incremental",
			fmt.Sprintf("collection system %q is not configured", req.CollectionSystemID), nil))
	}
	st.cs = cs
	ctx = services.WithCollectionSystem(ctx, cs.ID)
	st.logger = logging.WithContext(ctx, e.logger)

	if !e.hasParser(cs) {
		st.logger.Info("collection system has no dashboard parser",
			logging.String("parser", cs.Parser),
			logging.String(logging.FieldEventType, "parser_not_configured"))
		return e.finish(ctx, st, StateCompleted, nil)
	}
	st.result.pass("Dashboard Processing File Located")
	st.reporter.report(ctx, 10, "Retrieve Filelist")

	files, invalid := collectFiles(req.Files)
	for _, raw := range invalid {
		st.result.fail("Invalid raw file path: " + raw)
	}
	st.result.pass("Retrieve Filelist")
	if len(files) == 0 {
		st.logger.Info("no new or updated files to process")
		st.reporter.report(ctx, 100, "No new or updated files")
		return e.finish(ctx, st, StateCompleted, nil)
	}

	lock, err := e.lockManifest(st)
	if err != nil {
		return e.finish(ctx, st, StateFailed, err)
	}
	defer func() { _ = lock.Unlock() }()

	st.manifest = e.newManifest(cfg)
	if err := st.manifest.Load(); err != nil {
		st.result.fail("Reading pre-existing Dashboard manifest file")
		return e.finish(ctx, st, StateFailed, err)
	}
	st.result.pass("Reading pre-existing Dashboard manifest file")

	message := "Processing " + cs.Name
	if err := e.processFiles(ctx, st, files, func(done int) {
		st.reporter.report(ctx, 10+70*done/len(files), message)
	}); err != nil {
		return e.finish(ctx, st, StateFailed, err)
	}

	// Work done before a cancellation is still persisted.
	persist := context.WithoutCancel(ctx)
	st.reporter.report(persist, 80, "Updating manifest file")
	if st.mutated {
		if err := e.saveManifest(st, "Writing Dashboard manifest file"); err != nil {
			return e.finish(persist, st, StateFailed, err)
		}
		st.reporter.report(persist, 90, "Setting manifest file ownership")
		e.applyPermissions(persist, st, cfg.ManifestPath(), false, "Setting manifest file ownership")
	}

	state := StateCompleted
	if st.stopped {
		state = StateCancelled
	}
	st.reporter.report(persist, 100, string(state))
	return e.finish(persist, st, state, nil)
}

func (e *Engine) hasParser(cs config.CollectionSystem) bool {
	if cs.Parser == "" {
		return false
	}
	_, ok := e.registry.Lookup(cs.Parser)
	return ok
}

func (e *Engine) applyPermissions(ctx context.Context, st *runState, target string, recursive bool, partName string) {
	if err := e.perms.Apply(ctx, target, recursive); err != nil {
		st.result.fail(partName)
		logging.WarnWithContext(st.logger, "ownership not applied", "permissions_failed",
			logging.String("path", target),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions.owner and that ddash runs with chown rights"),
		)
		return
	}
	st.result.pass(partName)
}

// collectFiles returns new then updated files, normalized and deduplicated,
// plus the inputs that are not valid cruise-relative paths.
func collectFiles(list FileList) (files, invalid []string) {
	seen := make(map[string]struct{}, len(list.New)+len(list.Updated))
	for _, group := range [][]string{list.New, list.Updated} {
		for _, raw := range group {
			clean, ok := normalizeRaw(raw)
			if !ok {
				invalid = append(invalid, raw)
				continue
			}
			if _, dup := seen[clean]; dup {
				continue
			}
			seen[clean] = struct{}{}
			files = append(files, clean)
		}
	}
	return files, invalid
}
