package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ddash/internal/config"
	"ddash/internal/logging"
	"ddash/internal/manifest"
	"ddash/internal/reconcile"
	"ddash/internal/services"
)

const defaultDebounce = 5 * time.Second

// Runner executes incremental runs. *reconcile.Engine satisfies it.
type Runner interface {
	Incremental(ctx context.Context, req reconcile.Request, opts ...reconcile.RunOption) (*reconcile.Result, error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce overrides the quiet interval required before a file is processed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

type root struct {
	dir string
	cs  config.CollectionSystem
}

type pendingFile struct {
	cs   config.CollectionSystem
	raw  string
	seen time.Time
}

type batch struct {
	cs    config.CollectionSystem
	files []string
}

// Watcher watches the directories of every enabled collection system that
// has a parser.
type Watcher struct {
	cfg      *config.Config
	runner   Runner
	logger   *slog.Logger
	debounce time.Duration
	ready    chan struct{}

	fsw   *fsnotify.Watcher
	roots []root

	mu      sync.Mutex
	pending map[string]pendingFile
}

// New builds a watcher for cfg.
func New(cfg *config.Config, runner Runner, opts ...Option) (*Watcher, error) {
	if cfg == nil || runner == nil {
		return nil, services.Wrap(services.ErrConfiguration, "watch", "new", "config and runner are required", nil)
	}
	w := &Watcher{
		cfg:      cfg,
		runner:   runner,
		logger:   logging.NewNop(),
		debounce: time.Duration(cfg.Watch.DebounceSeconds) * time.Second,
		ready:    make(chan struct{}),
		pending:  make(map[string]pendingFile),
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.NewComponentLogger(w.logger, "watch")
	return w, nil
}

// Ready is closed once the initial directory watches are registered.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is cancelled. Runs that are in flight when ctx ends
// are cancelled with it.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	w.fsw = fsw

	cruiseDir := w.cfg.CruiseDir()
	for _, cs := range w.cfg.EnabledCollectionSystems() {
		if strings.TrimSpace(cs.Parser) == "" {
			continue
		}
		dir := filepath.Join(cruiseDir, filepath.FromSlash(cs.DestDir))
		w.roots = append(w.roots, root{dir: filepath.Clean(dir), cs: cs})
		if err := w.addRecursive(dir); err != nil {
			logging.WarnWithContext(w.logger, "collection system directory not watched", "watch_add_failed",
				logging.String(logging.FieldCollectionSystem, cs.ID),
				logging.String("dir", dir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "create the directory and restart the watcher"),
			)
		}
	}
	if len(w.roots) == 0 {
		return services.Wrap(services.ErrConfiguration, "watch", "run", "no collection system has a parser", nil)
	}
	// Deepest roots first so nested destination directories resolve to
	// their own system.
	sort.Slice(w.roots, func(i, j int) bool { return len(w.roots[i].dir) > len(w.roots[j].dir) })
	close(w.ready)
	w.logger.Info("watching collection systems",
		logging.Int("systems", len(w.roots)),
		logging.Duration("debounce", w.debounce))

	work := make(chan batch, len(w.roots))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for b := range work {
			w.dispatch(ctx, b)
		}
	}()
	defer func() {
		close(work)
		wg.Wait()
	}()

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "filesystem watch error", "watch_error", logging.Error(err))
		case now := <-ticker.C:
			for _, b := range w.settled(now) {
				select {
				case work <- b:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("new directory not watched", logging.String("dir", event.Name), logging.Error(err))
			}
			// Files may land before the watch is in place.
			w.enqueueTree(event.Name)
			return
		}
		w.enqueue(event.Name)
	case event.Has(fsnotify.Write), event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.enqueue(event.Name)
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(p) && p != dir {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

func (w *Watcher) enqueueTree(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			w.enqueue(p)
		}
		return nil
	})
}

// ignored reports dot files, which loggers and rsync use as scratch space,
// and anything below the dashboard output directory.
func (w *Watcher) ignored(abs string) bool {
	if strings.HasPrefix(filepath.Base(abs), ".") {
		return true
	}
	dash := filepath.Clean(w.cfg.DashboardPath())
	return abs == dash || strings.HasPrefix(abs, dash+string(filepath.Separator))
}

func (w *Watcher) enqueue(abs string) {
	abs = filepath.Clean(abs)
	if w.ignored(abs) {
		return
	}
	cs, raw, ok := w.resolve(abs)
	if !ok {
		return
	}
	w.mu.Lock()
	w.pending[abs] = pendingFile{cs: cs, raw: raw, seen: time.Now()}
	w.mu.Unlock()
}

// resolve maps an absolute path to its collection system and
// cruise-relative raw path.
func (w *Watcher) resolve(abs string) (config.CollectionSystem, string, bool) {
	for _, r := range w.roots {
		rel, err := filepath.Rel(r.dir, abs)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return r.cs, path.Join(filepath.ToSlash(r.cs.DestDir), filepath.ToSlash(rel)), true
	}
	return config.CollectionSystem{}, "", false
}

// settled removes and returns files quiet for at least the debounce
// interval, grouped by collection system.
func (w *Watcher) settled(now time.Time) []batch {
	w.mu.Lock()
	byID := make(map[string]*batch)
	var order []string
	for abs, p := range w.pending {
		if now.Sub(p.seen) < w.debounce {
			continue
		}
		delete(w.pending, abs)
		b, ok := byID[p.cs.ID]
		if !ok {
			b = &batch{cs: p.cs}
			byID[p.cs.ID] = b
			order = append(order, p.cs.ID)
		}
		b.files = append(b.files, p.raw)
	}
	w.mu.Unlock()

	sort.Strings(order)
	out := make([]batch, 0, len(order))
	for _, id := range order {
		b := byID[id]
		sort.Strings(b.files)
		out = append(out, *b)
	}
	return out
}

func (w *Watcher) requeue(b batch) {
	cruiseDir := w.cfg.CruiseDir()
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, raw := range b.files {
		abs := filepath.Join(cruiseDir, filepath.FromSlash(raw))
		if _, ok := w.pending[abs]; !ok {
			w.pending[abs] = pendingFile{cs: b.cs, raw: raw, seen: now}
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, b batch) {
	if ctx.Err() != nil {
		return
	}
	logger := w.logger.With(logging.String(logging.FieldCollectionSystem, b.cs.ID))

	files, err := w.classify(b.files)
	if err != nil {
		logging.WarnWithContext(logger, "manifest unreadable, files not classified", "watch_classify_failed",
			logging.Error(err),
			logging.Int("files", len(b.files)),
			logging.String(logging.FieldImpact, "changes wait for the next event or a rebuild"),
		)
		return
	}
	if len(files.New)+len(files.Updated) == 0 {
		logger.Debug("settled files need no run", logging.Int("files", len(b.files)))
		return
	}

	res, err := w.runner.Incremental(ctx, reconcile.Request{CollectionSystemID: b.cs.ID, Files: files})
	switch {
	case errors.Is(err, services.ErrManifestBusy):
		logger.Info("manifest busy, retrying after debounce", logging.Int("files", len(b.files)))
		w.requeue(b)
	case err != nil:
		logging.WarnWithContext(logger, "watch triggered run failed", "watch_run_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
		)
	case res != nil:
		logger.Info("watch triggered run finished",
			logging.String("state", string(res.State)),
			logging.Int("new", len(res.Files.New)),
			logging.Int("updated", len(res.Files.Updated)),
			logging.Int("removed", len(res.Files.Removed)))
	}
}

// classify splits raw files into new and updated against the persisted
// manifest. Files with an entry are updated, including deleted ones so the
// run retires them. Deleted files without an entry are dropped.
func (w *Watcher) classify(raws []string) (reconcile.FileList, error) {
	store := manifest.New(w.cfg.ManifestPath(), manifest.Options{Logger: w.logger})
	if err := store.Load(); err != nil {
		return reconcile.FileList{}, err
	}
	cruiseID := w.cfg.Warehouse.CruiseID
	cruiseDir := w.cfg.CruiseDir()

	var list reconcile.FileList
	for _, raw := range raws {
		if _, ok := store.Lookup(path.Join(cruiseID, raw)); ok {
			list.Updated = append(list.Updated, raw)
			continue
		}
		if _, err := os.Stat(filepath.Join(cruiseDir, filepath.FromSlash(raw))); err == nil {
			list.New = append(list.New, raw)
		}
	}
	return list, nil
}
