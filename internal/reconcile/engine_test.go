package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ddash/internal/artifact"
	"ddash/internal/config"
	"ddash/internal/manifest"
	"ddash/internal/reconcile"
	"ddash/internal/services"
	"ddash/internal/testsupport"
)

const (
	hprRaw      = "SCS/hpr_20160829.raw"
	hprArtifact = "OpenVDM/DashboardData/SCS/hpr_20160829.json"
)

type fakeNotifier struct {
	mu          sync.Mutex
	parseErrors []string
	runFailures []string
}

func (n *fakeNotifier) NotifyParseError(_ context.Context, _ string, raw string, _ error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.parseErrors = append(n.parseErrors, raw)
	return nil
}

func (n *fakeNotifier) NotifyRunFailed(_ context.Context, task, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runFailures = append(n.runFailures, task+": "+reason)
	return nil
}

type fakeMetrics struct {
	mu       sync.Mutex
	files    map[string]int
	runs     []string
	manifest int
}

func (m *fakeMetrics) FileProcessed(cs, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string]int{}
	}
	m.files[cs+"/"+outcome]++
}

func (m *fakeMetrics) RunFinished(task, state string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, task+"/"+state)
}

func (m *fakeMetrics) ManifestEntries(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifest = n
}

func newEngine(t *testing.T, cfg *config.Config, opts ...reconcile.Option) *reconcile.Engine {
	t.Helper()
	e, err := reconcile.New(cfg, nil, opts...)
	if err != nil {
		t.Fatalf("reconcile.New: %v", err)
	}
	return e
}

func loadEntries(t *testing.T, cfg *config.Config) []manifest.Entry {
	t.Helper()
	store := manifest.New(cfg.ManifestPath(), manifest.Options{})
	if err := store.Load(); err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	return store.Entries()
}

func update(files ...string) reconcile.Request {
	return reconcile.Request{CollectionSystemID: "SCS", Files: reconcile.FileList{New: files}}
}

func partResult(res *reconcile.Result, name string) (reconcile.PartResult, bool) {
	for _, p := range res.Parts {
		if p.PartName == name {
			return p.Result, true
		}
	}
	return "", false
}

func TestIncrementalWritesArtifactAndManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg, hprRaw, testsupport.HPRData(44, 6))

	var percents []int
	progress := reconcile.ProgressFunc(func(_ context.Context, percent int, _ string) {
		percents = append(percents, percent)
	})

	res, err := newEngine(t, cfg).Incremental(context.Background(), update(hprRaw), reconcile.WithProgress(progress))
	if err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	if res.State != reconcile.StateCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.State, res.Error)
	}
	if diff := cmp.Diff([]string{hprArtifact}, res.Files.New); diff != "" {
		t.Fatalf("unexpected new files (-want +got):\n%s", diff)
	}
	if got, _ := partResult(res, "Writing DashboardData file: "+hprRaw); got != reconcile.PartPass {
		t.Fatalf("expected write part to pass, parts=%+v", res.Parts)
	}
	if got, _ := partResult(res, "Writing Dashboard manifest file"); got != reconcile.PartPass {
		t.Fatalf("expected manifest part to pass, parts=%+v", res.Parts)
	}

	want := []manifest.Entry{{
		Type:    "hpr",
		DDJSON:  "CR01/" + hprArtifact,
		RawData: "CR01/" + hprRaw,
	}}
	if diff := cmp.Diff(want, loadEntries(t, cfg)); diff != "" {
		t.Fatalf("unexpected manifest (-want +got):\n%s", diff)
	}

	doc, err := artifact.Read(filepath.Join(cfg.CruiseDir(), hprArtifact))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if doc.Stats[0].Name != "Row Validity" {
		t.Fatalf("expected Row Validity first, got %q", doc.Stats[0].Name)
	}
	if total, bad, ok := doc.Stats[0].Pair(); !ok || total != 50 || bad != 6 {
		t.Fatalf("unexpected row validity %v", doc.Stats[0].Data)
	}
	if doc.QualityTests[0].TestName != "Rows" || doc.QualityTests[0].Results != artifact.Fail {
		t.Fatalf("expected Rows test to fail, got %+v", doc.QualityTests[0])
	}
	var headingBounds *artifact.Stat
	for i := range doc.Stats {
		if doc.Stats[i].Name == "Heading Bounds" {
			headingBounds = &doc.Stats[i]
		}
	}
	if headingBounds == nil {
		t.Fatalf("expected Heading Bounds stat, got %+v", doc.Stats)
	}
	if lo, hi, ok := headingBounds.Pair(); !ok || lo != 10 || hi != 53 {
		t.Fatalf("heading bounds = %v, want [10 53] from valid rows only", headingBounds.Data)
	}

	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress went backwards: %v", percents)
		}
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Fatalf("expected progress to end at 100, got %v", percents)
	}
}

func TestIncrementalReportsUpdatedOnSecondRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg, hprRaw, testsupport.HPRData(10, 0))
	e := newEngine(t, cfg)

	if _, err := e.Incremental(context.Background(), update(hprRaw)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	res, err := e.Incremental(context.Background(), reconcile.Request{
		CollectionSystemID: "scs",
		Files:              reconcile.FileList{Updated: []string{hprRaw}},
	})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(res.Files.New) != 0 || len(res.Files.Updated) != 1 {
		t.Fatalf("expected one updated file, got %+v", res.Files)
	}
	if got := len(loadEntries(t, cfg)); got != 1 {
		t.Fatalf("expected one manifest entry, got %d", got)
	}
}

func TestIncrementalRetiresMissingRawFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	raw := testsupport.WriteFile(t, cfg, hprRaw, testsupport.HPRData(10, 0))
	e := newEngine(t, cfg)
	if _, err := e.Incremental(context.Background(), update(hprRaw)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := os.Remove(raw); err != nil {
		t.Fatalf("remove raw: %v", err)
	}

	res, err := e.Incremental(context.Background(), update(hprRaw))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if diff := cmp.Diff([]string{hprArtifact}, res.Files.Removed); diff != "" {
		t.Fatalf("unexpected removed files (-want +got):\n%s", diff)
	}
	if got := loadEntries(t, cfg); len(got) != 0 {
		t.Fatalf("expected empty manifest, got %+v", got)
	}
	if _, err := os.Stat(filepath.Join(cfg.CruiseDir(), hprArtifact)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected artifact to be deleted, stat err=%v", err)
	}
}

func TestIncrementalZeroRowsRetiresEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg, hprRaw, testsupport.HPRData(10, 0))
	e := newEngine(t, cfg)
	if _, err := e.Incremental(context.Background(), update(hprRaw)); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Every line is still an HPR sentence, none of them valid.
	testsupport.WriteFile(t, cfg, hprRaw, testsupport.HPRData(0, 4))
	res, err := e.Incremental(context.Background(), update(hprRaw))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(res.Files.Removed) != 1 || len(res.Files.New)+len(res.Files.Updated) != 0 {
		t.Fatalf("expected the entry to be retired, got %+v", res.Files)
	}
	if got := loadEntries(t, cfg); len(got) != 0 {
		t.Fatalf("expected empty manifest, got %+v", got)
	}
}

func TestIncrementalUnrecognizedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg, "SCS/notes.txt", []byte("deck log\nnothing to see\n"))
	testsupport.WriteFile(t, cfg, "SCS/empty.raw", nil)

	res, err := newEngine(t, cfg).Incremental(context.Background(), update("SCS/notes.txt", "SCS/empty.raw"))
	if err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	if res.State != reconcile.StateCompleted {
		t.Fatalf("expected completed, got %s", res.State)
	}
	if len(res.Files.New)+len(res.Files.Updated)+len(res.Files.Removed) != 0 {
		t.Fatalf("expected no file changes, got %+v", res.Files)
	}
	if _, err := os.Stat(cfg.ManifestPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected untouched manifest to stay unsaved, stat err=%v", err)
	}
}

func TestIncrementalRefusesSharedArtifactPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg, "SCS/gyro.a.raw", testsupport.HPRData(10, 0))
	testsupport.WriteFile(t, cfg, "SCS/gyro.b.raw", testsupport.HPRData(20, 0))
	e := newEngine(t, cfg)
	shared := "OpenVDM/DashboardData/SCS/gyro.json"

	res, err := e.Incremental(context.Background(), update("SCS/gyro.a.raw", "SCS/gyro.b.raw"))
	if err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	if diff := cmp.Diff([]string{shared}, res.Files.New); diff != "" {
		t.Fatalf("unexpected new files (-want +got):\n%s", diff)
	}
	if got, _ := partResult(res, "Writing DashboardData file: SCS/gyro.b.raw"); got != reconcile.PartFail {
		t.Fatalf("expected conflicting write to fail, parts=%+v", res.Parts)
	}
	want := []manifest.Entry{{Type: "hpr", DDJSON: "CR01/" + shared, RawData: "CR01/SCS/gyro.a.raw"}}
	if diff := cmp.Diff(want, loadEntries(t, cfg)); diff != "" {
		t.Fatalf("unexpected manifest (-want +got):\n%s", diff)
	}
	doc, err := artifact.Read(filepath.Join(cfg.CruiseDir(), shared))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if total, _, _ := doc.Stats[0].Pair(); total != 10 {
		t.Fatalf("artifact rewritten by the conflicting file: rows=%v", total)
	}

	testsupport.WriteFile(t, cfg, "SCS/gyro.b.raw", []byte("deck log\nnothing to see\n"))
	if _, err := e.Incremental(context.Background(), update("SCS/gyro.b.raw")); err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.CruiseDir(), shared)); err != nil {
		t.Fatalf("artifact of the surviving entry was deleted: %v", err)
	}
}

func TestRetireKeepsArtifactStillReferenced(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg, "SCS/gyro.a.raw", testsupport.HPRData(10, 0))
	e := newEngine(t, cfg)
	if _, err := e.Incremental(context.Background(), update("SCS/gyro.a.raw")); err != nil {
		t.Fatalf("Incremental: %v", err)
	}

	// Point a second entry at the same artifact, as an older manifest might.
	shared := "CR01/OpenVDM/DashboardData/SCS/gyro.json"
	store := manifest.New(cfg.ManifestPath(), manifest.Options{})
	if err := store.Load(); err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	store.Upsert(manifest.Entry{Type: "hpr", DDJSON: shared, RawData: "CR01/SCS/gyro.b.raw"})
	if err := store.Save(); err != nil {
		t.Fatalf("save manifest: %v", err)
	}

	res, err := e.Incremental(context.Background(), update("SCS/gyro.b.raw"))
	if err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	if len(res.Files.Removed) != 0 {
		t.Fatalf("expected shared artifact to stay out of removed, got %v", res.Files.Removed)
	}
	if _, err := os.Stat(filepath.Join(cfg.Warehouse.BaseDir, shared)); err != nil {
		t.Fatalf("shared artifact deleted: %v", err)
	}
	want := []manifest.Entry{{Type: "hpr", DDJSON: shared, RawData: "CR01/SCS/gyro.a.raw"}}
	if diff := cmp.Diff(want, loadEntries(t, cfg)); diff != "" {
		t.Fatalf("unexpected manifest (-want +got):\n%s", diff)
	}
}

func TestIncrementalParseFailureKeepsEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg, hprRaw, testsupport.HPRData(10, 0))
	notifier := &fakeNotifier{}
	e := newEngine(t, cfg, reconcile.WithNotifier(notifier))
	if _, err := e.Incremental(context.Background(), update(hprRaw)); err != nil {
		t.Fatalf("first run: %v", err)
	}

	testsupport.WriteFile(t, cfg, hprRaw, testsupport.HPRData(500, 0))
	cfg.Workflow.MaxFileBytes = 1024
	res, err := e.Incremental(context.Background(), update(hprRaw))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.State != reconcile.StateCompleted {
		t.Fatalf("expected completed, got %s", res.State)
	}
	if got, _ := partResult(res, "Parsing DashboardData file: "+hprRaw); got != reconcile.PartFail {
		t.Fatalf("expected parse part to fail, parts=%+v", res.Parts)
	}
	if got := loadEntries(t, cfg); len(got) != 1 {
		t.Fatalf("expected existing entry to survive, got %+v", got)
	}
	if _, err := os.Stat(filepath.Join(cfg.CruiseDir(), hprArtifact)); err != nil {
		t.Fatalf("expected artifact to survive: %v", err)
	}
	if diff := cmp.Diff([]string{hprRaw}, notifier.parseErrors); diff != "" {
		t.Fatalf("unexpected parse notifications (-want +got):\n%s", diff)
	}
}

func TestIncrementalUnknownCollectionSystem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	notifier := &fakeNotifier{}
	res, err := newEngine(t, cfg, reconcile.WithNotifier(notifier)).Incremental(context.Background(), reconcile.Request{CollectionSystemID: "nope"})
	if !errors.Is(err, services.ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
	if res == nil || res.State != reconcile.StateFailed {
		t.Fatalf("expected failed result, got %+v", res)
	}
	if len(notifier.runFailures) != 1 {
		t.Fatalf("expected one failure notification, got %v", notifier.runFailures)
	}
}

func TestIncrementalWithoutParserCompletes(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCollectionSystem(config.CollectionSystem{ID: "CTD", Name: "CTD", DestDir: "CTD"}))
	testsupport.WriteFile(t, cfg, "CTD/cast01.hex", []byte("*header\n"))

	res, err := newEngine(t, cfg).Incremental(context.Background(), reconcile.Request{
		CollectionSystemID: "CTD",
		Files:              reconcile.FileList{New: []string{"CTD/cast01.hex"}},
	})
	if err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	if res.State != reconcile.StateCompleted || len(res.Parts) != 0 {
		t.Fatalf("expected a completed run with no work, got %+v", res)
	}
}

func TestIncrementalCorruptManifestFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg, hprRaw, testsupport.HPRData(10, 0))
	testsupport.WriteFile(t, cfg, "OpenVDM/DashboardData/manifest.json", []byte("{not json"))

	res, err := newEngine(t, cfg).Incremental(context.Background(), update(hprRaw))
	if !errors.Is(err, services.ErrManifestCorrupt) {
		t.Fatalf("expected ErrManifestCorrupt, got %v", err)
	}
	if res.State != reconcile.StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if got, _ := partResult(res, "Reading pre-existing Dashboard manifest file"); got != reconcile.PartFail {
		t.Fatalf("expected read part to fail, parts=%+v", res.Parts)
	}
	if _, err := os.Stat(filepath.Join(cfg.CruiseDir(), hprArtifact)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no artifact, stat err=%v", err)
	}
}

func TestIncrementalArtifactWriteFailureSkipsManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg, hprRaw, testsupport.HPRData(10, 0))
	// A regular file where the artifact directory belongs.
	testsupport.WriteFile(t, cfg, "OpenVDM/DashboardData/SCS", []byte("x"))

	res, err := newEngine(t, cfg).Incremental(context.Background(), update(hprRaw))
	if !errors.Is(err, services.ErrArtifactWrite) {
		t.Fatalf("expected ErrArtifactWrite, got %v", err)
	}
	if res.State != reconcile.StateFailed || res.LastFailure() != "Writing DashboardData file: "+hprRaw {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := os.Stat(cfg.ManifestPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected manifest to stay unsaved, stat err=%v", err)
	}
}

func TestIncrementalManifestBusy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg, hprRaw, testsupport.HPRData(10, 0))
	lock, err := manifest.TryLock(cfg.ManifestPath(), 0o755)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	defer lock.Unlock()

	res, err := newEngine(t, cfg).Incremental(context.Background(), update(hprRaw))
	if !errors.Is(err, services.ErrManifestBusy) {
		t.Fatalf("expected ErrManifestBusy, got %v", err)
	}
	if res.State != reconcile.StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
}

func TestIncrementalStopsBetweenFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var files []string
	for i := 0; i < 3; i++ {
		rel := fmt.Sprintf("SCS/hpr_%d.raw", i)
		testsupport.WriteFile(t, cfg, rel, testsupport.HPRData(5, 0))
		files = append(files, rel)
	}

	stop := &reconcile.StopFlag{}
	progress := reconcile.ProgressFunc(func(_ context.Context, percent int, _ string) {
		if percent > 10 {
			stop.Stop()
		}
	})
	res, err := newEngine(t, cfg).Incremental(context.Background(), update(files...),
		reconcile.WithProgress(progress), reconcile.WithCanceller(stop))
	if err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	if res.State != reconcile.StateCancelled {
		t.Fatalf("expected cancelled, got %s", res.State)
	}
	if len(res.Files.New) != 1 {
		t.Fatalf("expected one file before the stop, got %+v", res.Files)
	}
	if got := loadEntries(t, cfg); len(got) != 1 {
		t.Fatalf("expected the completed file to be persisted, got %+v", got)
	}
}

func TestIncrementalStopWithWorkersLeavesUnappliedFilesForNextRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(3))
	var files []string
	for i := 0; i < 5; i++ {
		rel := fmt.Sprintf("SCS/hpr_%d.raw", i)
		testsupport.WriteFile(t, cfg, rel, testsupport.HPRData(5, 0))
		files = append(files, rel)
	}
	e := newEngine(t, cfg)

	stop := &reconcile.StopFlag{}
	progress := reconcile.ProgressFunc(func(_ context.Context, percent int, _ string) {
		if percent > 10 {
			stop.Stop()
		}
	})
	res, err := e.Incremental(context.Background(), update(files...),
		reconcile.WithProgress(progress), reconcile.WithCanceller(stop))
	if err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	if res.State != reconcile.StateCancelled {
		t.Fatalf("expected cancelled, got %s", res.State)
	}
	if diff := cmp.Diff([]string{"OpenVDM/DashboardData/SCS/hpr_0.json"}, res.Files.New); diff != "" {
		t.Fatalf("unexpected applied files (-want +got):\n%s", diff)
	}
	for _, name := range []string{"hpr_1.json", "hpr_2.json"} {
		if _, err := os.Stat(filepath.Join(cfg.DashboardPath(), "SCS", name)); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("examined but unapplied %s was written, stat err=%v", name, err)
		}
	}

	res, err = e.Incremental(context.Background(), update(files[1:]...))
	if err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	if len(res.Files.New) != 4 || len(loadEntries(t, cfg)) != 5 {
		t.Fatalf("expected the rerun to pick up the rest, got %+v", res.Files)
	}
}

func TestIncrementalWorkersPreserveOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(4))
	var files, want []string
	for i := 0; i < 7; i++ {
		rel := fmt.Sprintf("SCS/hpr_%d.raw", 6-i)
		testsupport.WriteFile(t, cfg, rel, testsupport.HPRData(5+i, 0))
		files = append(files, rel)
		want = append(want, fmt.Sprintf("OpenVDM/DashboardData/SCS/hpr_%d.json", 6-i))
	}

	res, err := newEngine(t, cfg).Incremental(context.Background(), update(files...))
	if err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	if diff := cmp.Diff(want, res.Files.New); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	entries := loadEntries(t, cfg)
	for i, entry := range entries {
		if entry.RawData != "CR01/"+files[i] {
			t.Fatalf("entry %d out of order: %+v", i, entry)
		}
	}
}

func TestIncrementalRejectsEscapingPaths(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	res, err := newEngine(t, cfg).Incremental(context.Background(), update("../outside.raw", "/etc/passwd"))
	if err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	if got, _ := partResult(res, "Invalid raw file path: ../outside.raw"); got != reconcile.PartFail {
		t.Fatalf("expected invalid path part, parts=%+v", res.Parts)
	}
	if len(res.Files.New) != 0 {
		t.Fatalf("expected no files, got %+v", res.Files)
	}
}

func rebuildFixture(t *testing.T, cfg *config.Config) {
	t.Helper()
	testsupport.WriteFile(t, cfg, "SCS/hpr_a.raw", testsupport.HPRData(20, 1))
	testsupport.WriteFile(t, cfg, "SCS/sub/hpr_b.raw", testsupport.HPRData(30, 0))
	testsupport.WriteFile(t, cfg, "SCS/readme.txt", []byte("not data\n"))
	testsupport.WriteFile(t, cfg, "GPS/gga_a.raw", testsupport.GGAData(15))
}

func readAll(t *testing.T, paths ...string) map[string]string {
	t.Helper()
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		out[p] = string(data)
	}
	return out
}

func TestRebuildIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rebuildFixture(t, cfg)
	e := newEngine(t, cfg)

	first, err := e.Rebuild(context.Background(), reconcile.RebuildOptions{})
	if err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	wantFiles := []string{
		"OpenVDM/DashboardData/SCS/hpr_a.json",
		"OpenVDM/DashboardData/SCS/sub/hpr_b.json",
		"OpenVDM/DashboardData/GPS/gga_a.json",
	}
	if diff := cmp.Diff(wantFiles, first.Files.Updated); diff != "" {
		t.Fatalf("unexpected rebuilt files (-want +got):\n%s", diff)
	}
	for _, name := range []string{"Processing SCS", "Processing GPS", "Updating manifest file", "Setting file/directory ownership"} {
		if got, _ := partResult(first, name); got != reconcile.PartPass {
			t.Fatalf("expected %q to pass, parts=%+v", name, first.Parts)
		}
	}

	paths := []string{cfg.ManifestPath()}
	for _, f := range wantFiles {
		paths = append(paths, filepath.Join(cfg.CruiseDir(), f))
	}
	before := readAll(t, paths...)

	if _, err := e.Rebuild(context.Background(), reconcile.RebuildOptions{}); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	if diff := cmp.Diff(before, readAll(t, paths...)); diff != "" {
		t.Fatalf("rebuild is not idempotent (-first +second):\n%s", diff)
	}
}

func TestRebuildDropsStaleEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	raw := testsupport.WriteFile(t, cfg, hprRaw, testsupport.HPRData(10, 0))
	testsupport.WriteFile(t, cfg, "SCS/hpr_keep.raw", testsupport.HPRData(10, 0))
	e := newEngine(t, cfg)
	if _, err := e.Incremental(context.Background(), update(hprRaw, "SCS/hpr_keep.raw")); err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	if err := os.Remove(raw); err != nil {
		t.Fatalf("remove raw: %v", err)
	}

	res, err := e.Rebuild(context.Background(), reconcile.RebuildOptions{Prune: true})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	entries := loadEntries(t, cfg)
	if len(entries) != 1 || entries[0].RawData != "CR01/SCS/hpr_keep.raw" {
		t.Fatalf("unexpected manifest %+v", entries)
	}
	if diff := cmp.Diff([]string{hprArtifact}, res.Files.Removed); diff != "" {
		t.Fatalf("unexpected pruned files (-want +got):\n%s", diff)
	}
	if got, _ := partResult(res, "Pruning orphaned DashboardData files"); got != reconcile.PartPass {
		t.Fatalf("expected prune part to pass, parts=%+v", res.Parts)
	}
	if _, err := os.Stat(cfg.ManifestPath()); err != nil {
		t.Fatalf("manifest must survive pruning: %v", err)
	}
}

func TestRebuildWithoutPruneKeepsOrphans(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	orphan := testsupport.WriteFile(t, cfg, "OpenVDM/DashboardData/SCS/old.json", []byte("{}"))

	res, err := newEngine(t, cfg).Rebuild(context.Background(), reconcile.RebuildOptions{})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(res.Files.Removed) != 0 {
		t.Fatalf("expected no removals, got %v", res.Files.Removed)
	}
	if _, err := os.Stat(orphan); err != nil {
		t.Fatalf("orphan should be kept: %v", err)
	}
	if got := loadEntries(t, cfg); len(got) != 0 {
		t.Fatalf("expected empty manifest, got %+v", got)
	}
}

func TestRebuildCancelledStillSavesManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rebuildFixture(t, cfg)
	stop := &reconcile.StopFlag{}
	stop.Stop()

	res, err := newEngine(t, cfg).Rebuild(context.Background(), reconcile.RebuildOptions{}, reconcile.WithCanceller(stop))
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if res.State != reconcile.StateCancelled {
		t.Fatalf("expected cancelled, got %s", res.State)
	}
	if got := loadEntries(t, cfg); len(got) != 0 {
		t.Fatalf("expected empty manifest, got %+v", got)
	}
	if _, err := os.Stat(cfg.ManifestPath()); err != nil {
		t.Fatalf("expected manifest to be written: %v", err)
	}
}

func TestRunsRecordMetrics(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg, hprRaw, testsupport.HPRData(10, 0))
	testsupport.WriteFile(t, cfg, "SCS/notes.txt", []byte("hello\n"))
	m := &fakeMetrics{}
	e := newEngine(t, cfg, reconcile.WithMetrics(m))

	if _, err := e.Incremental(context.Background(), update(hprRaw, "SCS/notes.txt")); err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	if diff := cmp.Diff(map[string]int{"SCS/new": 1, "SCS/unrecognized": 1}, m.files); diff != "" {
		t.Fatalf("unexpected file outcomes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"updateDataDashboard/completed"}, m.runs); diff != "" {
		t.Fatalf("unexpected runs (-want +got):\n%s", diff)
	}
	if m.manifest != 1 {
		t.Fatalf("expected manifest gauge 1, got %d", m.manifest)
	}
}

type recordingPerms struct {
	mu    sync.Mutex
	paths []string
}

func (p *recordingPerms) Apply(_ context.Context, path string, recursive bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, fmt.Sprintf("%s recursive=%t", path, recursive))
	return nil
}

func TestIncrementalAppliesOwnership(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg, hprRaw, testsupport.HPRData(10, 0))
	perms := &recordingPerms{}

	if _, err := newEngine(t, cfg, reconcile.WithPermissions(perms)).Incremental(context.Background(), update(hprRaw)); err != nil {
		t.Fatalf("Incremental: %v", err)
	}
	want := []string{
		filepath.Join(cfg.CruiseDir(), hprArtifact) + " recursive=false",
		cfg.ManifestPath() + " recursive=false",
	}
	if diff := cmp.Diff(want, perms.paths); diff != "" {
		t.Fatalf("unexpected ownership calls (-want +got):\n%s", diff)
	}
}

func TestInspectDetectsAndAnalyzes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	e := newEngine(t, cfg)

	format, doc, err := e.Inspect(context.Background(), testsupport.GGAData(5), "")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if format != "gga" || len(doc.VisualizerData) != 4 {
		t.Fatalf("unexpected inspection %s %+v", format, doc)
	}

	if _, _, err := e.Inspect(context.Background(), testsupport.GGAData(5), "", "hpr"); !errors.Is(err, services.ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	if _, _, err := e.Inspect(context.Background(), testsupport.HPRData(0, 3), "hpr"); !errors.Is(err, services.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}
