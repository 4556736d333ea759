package artifact_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ddash/internal/artifact"
	"ddash/internal/services"
)

func TestPointJSON(t *testing.T) {
	ts := time.Date(2016, 8, 29, 12, 1, 0, 0, time.UTC)
	valid, err := json.Marshal(artifact.Point{Time: ts, Value: 12.345, Valid: true})
	if err != nil {
		t.Fatal(err)
	}
	if string(valid) != "[1472472060000,12.345]" {
		t.Fatalf("unexpected encoding %s", valid)
	}
	empty, err := json.Marshal(artifact.Point{Time: ts})
	if err != nil {
		t.Fatal(err)
	}
	if string(empty) != "[1472472060000,null]" {
		t.Fatalf("unexpected empty bucket encoding %s", empty)
	}

	var decoded artifact.Point
	if err := json.Unmarshal(empty, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Valid || !decoded.Time.Equal(ts) {
		t.Fatalf("unexpected decoded point %+v", decoded)
	}
	if err := json.Unmarshal([]byte("[1]"), &decoded); err == nil {
		t.Fatal("expected malformed point error")
	}
}

func TestArtifactWireShape(t *testing.T) {
	a := artifact.New()
	a.Stats = append(a.Stats,
		artifact.Stat{Name: "Row Validity", Kind: artifact.KindRowValidity, Data: []any{50, 6}},
		artifact.Stat{Name: "Heading Bounds", Unit: "deg", Kind: artifact.KindBounds, Data: []any{1.5, 359.25}},
	)
	a.QualityTests = append(a.QualityTests, artifact.QualityTest{TestName: "Rows", Results: artifact.Fail})

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, fragment := range []string{
		`"visualizerData":[]`,
		`{"statName":"Row Validity","statType":"rowValidity","statData":[50,6]}`,
		`"statUnit":"deg"`,
		`{"testName":"Rows","results":"Failed"}`,
	} {
		if !strings.Contains(got, fragment) {
			t.Fatalf("expected %s in %s", fragment, got)
		}
	}
}

func TestStatPair(t *testing.T) {
	s := artifact.Stat{Data: []any{40, 5.0}}
	a, b, ok := s.Pair()
	if !ok || a != 40 || b != 5 {
		t.Fatalf("unexpected pair %v %v %v", a, b, ok)
	}
	if _, _, ok := (artifact.Stat{Data: []any{"x", 1}}).Pair(); ok {
		t.Fatal("expected non-numeric pair to fail")
	}
	if _, _, ok := (artifact.Stat{Data: []any{1}}).Pair(); ok {
		t.Fatal("expected short pair to fail")
	}
}

func TestRelPath(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"SCS/gyro_20160829-120000.Raw", "OpenVDM/DashboardData/SCS/gyro_20160829-120000.json"},
		{"SCS/sub.dir/file.tar.gz", "OpenVDM/DashboardData/SCS/sub.dir/file.json"},
		{"noext", "OpenVDM/DashboardData/noext.json"},
		{"./SCS//a.log", "OpenVDM/DashboardData/SCS/a.json"},
	}
	for _, tc := range tests {
		if got := artifact.RelPath("OpenVDM/DashboardData", tc.raw); got != tc.want {
			t.Fatalf("RelPath(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestWriteReadDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dash", "SCS", "a.json")
	a := artifact.New()
	a.VisualizerData = append(a.VisualizerData, artifact.Series{Label: "Heading", Unit: "deg", Data: []artifact.Point{{Time: time.UnixMilli(60000).UTC(), Value: 1, Valid: true}}})
	if err := artifact.Write(path, a, 0o644, 0o755); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := artifact.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.VisualizerData) != 1 || got.VisualizerData[0].Data[0].Value != 1 {
		t.Fatalf("unexpected round trip %+v", got)
	}
	removed, err := artifact.Delete(path)
	if err != nil || !removed {
		t.Fatalf("Delete = %v, %v", removed, err)
	}
	removed, err = artifact.Delete(path)
	if err != nil || removed {
		t.Fatalf("second Delete = %v, %v", removed, err)
	}
}

func TestWriteFailureIsArtifactWriteError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := artifact.Write(filepath.Join(blocker, "a.json"), artifact.New(), 0o644, 0o755)
	if !errors.Is(err, services.ErrArtifactWrite) {
		t.Fatalf("expected artifact write error, got %v", err)
	}
}

func TestPruneOrphaned(t *testing.T) {
	dash := t.TempDir()
	keep := filepath.Join(dash, "SCS", "keep.json")
	orphan := filepath.Join(dash, "SCS", "old.json")
	manifest := filepath.Join(dash, "manifest.json")
	other := filepath.Join(dash, "notes.txt")
	for _, p := range []string{keep, orphan, manifest, other} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	res := artifact.PruneOrphaned(context.Background(), dash, map[string]struct{}{keep: {}}, []string{manifest}, nil)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if len(res.Removed) != 1 || res.Removed[0] != orphan {
		t.Fatalf("expected only orphan removed, got %v", res.Removed)
	}
	for _, p := range []string{keep, manifest, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to remain: %v", p, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = artifact.PruneOrphaned(ctx, dash, nil, nil, nil)
	if len(res.Removed) != 0 || len(res.Errors) == 0 {
		t.Fatalf("expected cancelled sweep to remove nothing, got %+v", res)
	}

	if res := artifact.PruneOrphaned(context.Background(), filepath.Join(dash, "missing"), nil, nil, nil); len(res.Errors) != 0 || len(res.Removed) != 0 {
		t.Fatalf("expected missing dir to be a no-op, got %+v", res)
	}
}
