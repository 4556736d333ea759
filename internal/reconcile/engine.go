package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ddash/internal/artifact"
	"ddash/internal/config"
	"ddash/internal/logging"
	"ddash/internal/manifest"
	"ddash/internal/parsers"
	"ddash/internal/quality"
	"ddash/internal/services"
)

// Engine runs reconciliations against one warehouse configuration.
type Engine struct {
	cfg      *config.Config
	registry *parsers.Registry
	logger   *slog.Logger
	lister   Lister
	perms    PermissionSetter
	notifier Notifier
	metrics  Metrics
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLister replaces the filesystem lister used by rebuilds.
func WithLister(l Lister) Option {
	return func(e *Engine) {
		if l != nil {
			e.lister = l
		}
	}
}

// WithPermissions sets the ownership collaborator.
func WithPermissions(p PermissionSetter) Option {
	return func(e *Engine) {
		if p != nil {
			e.perms = p
		}
	}
}

// WithNotifier sets the failure notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// New builds an engine. A nil registry selects the built-in formats with
// bounds overridden from cfg.
func New(cfg *config.Config, registry *parsers.Registry, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "reconcile", "new engine", "config is required", nil)
	}
	if registry == nil {
		registry = DefaultRegistry(cfg)
	}
	e := &Engine{
		cfg:      cfg,
		registry: registry,
		logger:   logging.NewNop(),
		lister:   FSLister{},
		perms:    noopPermissions{},
		notifier: noopNotifier{},
		metrics:  noopMetrics{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "reconcile")
	return e, nil
}

// DefaultRegistry returns the built-in parsers with cfg's bound overrides.
func DefaultRegistry(cfg *config.Config) *parsers.Registry {
	return parsers.Default(parsers.WithBounds(func(format, channel string) (float64, float64, bool) {
		b, ok := cfg.BoundFor(format, channel)
		return b.Min, b.Max, ok
	}))
}

// Registry exposes the parser registry.
func (e *Engine) Registry() *parsers.Registry {
	return e.registry
}

// RunOption attaches per-run collaborators.
type RunOption func(*runHooks)

type runHooks struct {
	progress  Progress
	canceller Canceller
	runID     string
}

// WithProgress reports progress of this run to p.
func WithProgress(p Progress) RunOption {
	return func(h *runHooks) { h.progress = p }
}

// WithCanceller stops the run between files once c reports cancellation.
func WithCanceller(c Canceller) RunOption {
	return func(h *runHooks) { h.canceller = c }
}

// WithRunID tags logs and the result with a run identifier.
func WithRunID(id string) RunOption {
	return func(h *runHooks) { h.runID = id }
}

// runState is the mutable state of one run.
type runState struct {
	task     string
	rebuild  bool
	cfg      *config.Config
	cs       config.CollectionSystem
	manifest *manifest.Store
	result   *Result
	hooks    runHooks
	reporter *reporter
	logger   *slog.Logger
	started  time.Time
	mutated  bool
	stopped  bool
}

func (e *Engine) newRun(ctx context.Context, task string, cfg *config.Config, rebuild bool, opts []RunOption) (context.Context, *runState) {
	var hooks runHooks
	for _, opt := range opts {
		opt(&hooks)
	}
	ctx = services.WithTask(services.WithRunID(ctx, hooks.runID), task)
	logger := logging.WithContext(ctx, e.logger)
	return ctx, &runState{
		task:     task,
		rebuild:  rebuild,
		cfg:      cfg,
		result:   newResult(task, hooks.runID),
		hooks:    hooks,
		reporter: newReporter(hooks.progress, logger),
		logger:   logger,
		started:  e.now(),
	}
}

func (st *runState) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return st.hooks.canceller != nil && st.hooks.canceller.Cancelled(ctx)
}

type fileKind int

const (
	fileMissing fileKind = iota
	fileEmpty
	fileFailed
	fileUnrecognized
	fileParsed
)

// fileOutcome is the result of examining one raw file, before anything is
// written.
type fileOutcome struct {
	raw      string // cruise-relative, slash separated
	kind     fileKind
	format   string
	artifact *artifact.Artifact
	err      error
}

// examine runs detection, parsing and analysis for one raw file. It only
// reads from disk.
func (e *Engine) examine(ctx context.Context, cfg *config.Config, cs config.CollectionSystem, raw string) fileOutcome {
	out := fileOutcome{raw: raw}
	abs := filepath.Join(cfg.CruiseDir(), filepath.FromSlash(raw))

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		out.kind = fileMissing
		return out
	case err != nil:
		out.kind, out.err = fileFailed, fmt.Errorf("stat raw file: %w", err)
		return out
	case info.IsDir():
		out.kind, out.err = fileFailed, fmt.Errorf("%s is a directory", raw)
		return out
	case info.Size() == 0:
		out.kind = fileEmpty
		return out
	case cfg.Workflow.MaxFileBytes > 0 && info.Size() > cfg.Workflow.MaxFileBytes:
		out.kind = fileFailed
		out.err = services.Wrap(services.ErrFileTooLarge, "reconcile", "examine",
			fmt.Sprintf("%d bytes exceeds limit of %d", info.Size(), cfg.Workflow.MaxFileBytes), nil)
		return out
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		out.kind, out.err = fileFailed, fmt.Errorf("read raw file: %w", err)
		return out
	}

	format, ok := e.registry.Detect(data, cs.Parser)
	if !ok {
		out.kind = fileUnrecognized
		return out
	}
	out.format = format

	parseCtx := ctx
	if timeout := cfg.ParseTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		parseCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	table, err := e.registry.Parse(parseCtx, data, format)
	if err != nil {
		out.kind, out.err = fileFailed, err
		return out
	}

	doc, err := quality.Analyze(table, qualitySettings(cfg))
	if errors.Is(err, services.ErrNoData) {
		out.kind, out.err = fileUnrecognized, err
		return out
	}
	if err != nil {
		out.kind, out.err = fileFailed, err
		return out
	}
	out.kind, out.artifact = fileParsed, doc
	return out
}

// examineWindow examines files concurrently, up to the configured worker count.
func (e *Engine) examineWindow(ctx context.Context, st *runState, files []string) []fileOutcome {
	outcomes := make([]fileOutcome, len(files))
	if len(files) == 1 {
		outcomes[0] = e.examine(ctx, st.cfg, st.cs, files[0])
		return outcomes
	}
	var g errgroup.Group
	g.SetLimit(len(files))
	for i, raw := range files {
		g.Go(func() error {
			outcomes[i] = e.examine(ctx, st.cfg, st.cs, raw)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// processFiles examines and applies files in windows of the worker count.
// onApplied is called with the count of files applied so far. A returned
// error is fatal to the run; cancellation sets st.stopped and returns nil.
func (e *Engine) processFiles(ctx context.Context, st *runState, files []string, onApplied func(done int)) error {
	window := st.cfg.Workflow.Workers
	if window < 1 {
		window = 1
	}
	for start := 0; start < len(files); start += window {
		if st.cancelled(ctx) {
			st.stopped = true
			return nil
		}
		end := min(start+window, len(files))
		outcomes := e.examineWindow(ctx, st, files[start:end])
		for i, out := range outcomes {
			if st.cancelled(ctx) {
				st.stopped = true
				return nil
			}
			if err := e.apply(ctx, st, out); err != nil {
				return err
			}
			if onApplied != nil {
				onApplied(start + i + 1)
			}
		}
	}
	return nil
}

// apply commits one outcome to disk and the manifest.
func (e *Engine) apply(ctx context.Context, st *runState, out fileOutcome) error {
	logger := st.logger.With(logging.String(logging.FieldRawPath, out.raw))
	cruiseID := st.cfg.Warehouse.CruiseID

	switch out.kind {
	case fileEmpty:
		logger.Debug("skipping empty raw file")
		e.metrics.FileProcessed(st.cs.ID, "skipped")
		return nil

	case fileMissing, fileUnrecognized:
		removed, err := e.retire(st, out.raw)
		if err != nil {
			return err
		}
		outcome := "unrecognized"
		if out.kind == fileMissing {
			outcome = "missing"
		}
		if removed {
			outcome = "removed"
		}
		logger.Debug("raw file has no dashboard data",
			logging.String("reason", outcome),
			logging.Bool("entry_removed", removed))
		e.metrics.FileProcessed(st.cs.ID, outcome)
		return nil

	case fileFailed:
		st.result.fail("Parsing DashboardData file: " + out.raw)
		logging.WarnWithContext(logger, "raw file could not be processed", "datafile_parse_failed",
			logging.Error(out.err),
			logging.String(logging.FieldErrorKind, services.Kind(out.err)),
			logging.String(logging.FieldErrorHint, "inspect the raw file; any existing artifact is left in place"),
		)
		if err := e.notifier.NotifyParseError(ctx, st.cs.Name, out.raw, out.err); err != nil {
			logger.Debug("parse error notification failed", logging.Error(err))
		}
		e.metrics.FileProcessed(st.cs.ID, "failed")
		return nil
	}

	rel := artifact.RelPath(st.cfg.Warehouse.DashboardDir, out.raw)
	rawData := path.Join(cruiseID, out.raw)
	ddJSON := path.Join(cruiseID, rel)
	if owner, ok := st.manifest.OwnerOf(ddJSON); ok && owner != rawData {
		st.result.fail("Writing DashboardData file: " + out.raw)
		logging.WarnWithContext(logger, "artifact path already owned by another raw file", "artifact_path_conflict",
			logging.String("artifact", rel),
			logging.String("owner", owner),
			logging.String(logging.FieldImpact, "no dashboard data is written for this raw file"),
			logging.String(logging.FieldErrorHint, "rename the raw file so its name before the first dot is unique in its directory"),
		)
		e.metrics.FileProcessed(st.cs.ID, "failed")
		return nil
	}
	abs := filepath.Join(st.cfg.CruiseDir(), filepath.FromSlash(rel))
	if err := artifact.Write(abs, out.artifact, st.cfg.FileMode(), st.cfg.DirMode()); err != nil {
		st.result.fail("Writing DashboardData file: " + out.raw)
		return err
	}
	st.result.pass("Writing DashboardData file: " + out.raw)
	if err := e.perms.Apply(ctx, abs, false); err != nil {
		st.result.fail("Setting DashboardData file ownership: " + out.raw)
		logging.WarnWithContext(logger, "artifact ownership not applied", "artifact_permissions_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "dashboard readers may not be able to open the artifact"),
		)
	} else {
		st.result.pass("Setting DashboardData file ownership: " + out.raw)
	}

	entry := manifest.Entry{
		Type:    out.format,
		DDJSON:  ddJSON,
		RawData: rawData,
	}
	replaced := st.manifest.Upsert(entry)
	st.mutated = true

	outcome := "new"
	switch {
	case st.rebuild:
		st.result.Files.Updated = append(st.result.Files.Updated, rel)
		outcome = "updated"
	case replaced:
		st.result.Files.Updated = append(st.result.Files.Updated, rel)
		outcome = "updated"
	default:
		st.result.Files.New = append(st.result.Files.New, rel)
	}
	logger.Info("wrote dashboard artifact",
		logging.String("artifact", rel),
		logging.String("format", out.format),
		logging.String(logging.FieldEventType, "artifact_written"))
	e.metrics.FileProcessed(st.cs.ID, outcome)
	return nil
}

// retire removes the manifest entry for raw and deletes its artifact.
func (e *Engine) retire(st *runState, raw string) (bool, error) {
	cruiseID := st.cfg.Warehouse.CruiseID
	entry, ok := st.manifest.Remove(path.Join(cruiseID, raw))
	if !ok {
		return false, nil
	}
	st.mutated = true
	// A manifest written by another tool may point two raw files at one
	// artifact; the survivor keeps it.
	if _, shared := st.manifest.OwnerOf(entry.DDJSON); shared {
		return true, nil
	}
	abs := filepath.Join(st.cfg.Warehouse.BaseDir, filepath.FromSlash(entry.DDJSON))
	if _, err := artifact.Delete(abs); err != nil {
		return true, err
	}
	st.result.Files.Removed = append(st.result.Files.Removed, strings.TrimPrefix(entry.DDJSON, cruiseID+"/"))
	return true, nil
}

// finish records the terminal state, emits metrics and notifications, and
// returns the result together with err.
func (e *Engine) finish(ctx context.Context, st *runState, state State, err error) (*Result, error) {
	st.result.State = state
	if err != nil {
		st.result.Error = err.Error()
	}
	elapsed := e.now().Sub(st.started)
	e.metrics.RunFinished(st.task, string(state), elapsed)
	if st.manifest != nil {
		e.metrics.ManifestEntries(st.manifest.Len())
	}

	attrs := []logging.Attr{
		logging.String("state", string(state)),
		logging.Int("new", len(st.result.Files.New)),
		logging.Int("updated", len(st.result.Files.Updated)),
		logging.Int("removed", len(st.result.Files.Removed)),
		logging.Duration("elapsed", elapsed),
	}
	switch state {
	case StateFailed:
		reason := st.result.LastFailure()
		if reason == "" && err != nil {
			reason = err.Error()
		}
		logging.ErrorWithContext(st.logger, "dashboard run failed", "run_failed",
			append(attrs,
				logging.Error(err),
				logging.String(logging.FieldErrorKind, services.Kind(err)),
				logging.String(logging.FieldErrorHint, "fix the reported cause and rerun; the previous manifest is unchanged unless it was saved"),
			)...)
		if notifyErr := e.notifier.NotifyRunFailed(context.WithoutCancel(ctx), st.task, reason); notifyErr != nil {
			st.logger.Debug("run failure notification failed", logging.Error(notifyErr))
		}
	default:
		st.logger.Info("dashboard run finished", logging.Args(attrs...)...)
	}
	return st.result, err
}

// saveManifest persists the manifest, recording partName.
func (e *Engine) saveManifest(st *runState, partName string) error {
	if err := st.manifest.Save(); err != nil {
		st.result.fail(partName)
		return err
	}
	st.result.pass(partName)
	return nil
}

func (e *Engine) lockManifest(st *runState) (*manifest.Lock, error) {
	lock, err := manifest.TryLock(st.cfg.ManifestPath(), st.cfg.DirMode())
	if err != nil {
		st.result.fail("Locking Dashboard manifest file")
		return nil, err
	}
	return lock, nil
}

func (e *Engine) newManifest(cfg *config.Config) *manifest.Store {
	return manifest.New(cfg.ManifestPath(), manifest.Options{
		FileMode: cfg.FileMode(),
		DirMode:  cfg.DirMode(),
		Logger:   e.logger,
	})
}

// normalizeRaw cleans a cruise-relative raw path, rejecting absolute paths
// and paths outside the cruise directory.
func normalizeRaw(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	raw = path.Clean(filepath.ToSlash(raw))
	if raw == "." || path.IsAbs(raw) || raw == ".." || strings.HasPrefix(raw, "../") {
		return "", false
	}
	return raw, true
}
