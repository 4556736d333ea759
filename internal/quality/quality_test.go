package quality_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ddash/internal/artifact"
	"ddash/internal/channel"
	"ddash/internal/quality"
	"ddash/internal/services"
)

var base = time.Date(2016, 8, 29, 12, 0, 0, 0, time.UTC)

func hprTable() *channel.Table {
	return channel.NewTable("hpr", []channel.Spec{
		{Name: "heading", Label: "Heading", Unit: "deg", Min: 0, Max: 360, Primary: true},
		{Name: "pitch", Label: "Pitch", Unit: "deg, bow up +", Min: -45, Max: 45},
		{Name: "roll", Label: "Roll", Unit: "deg, starboard +", Min: -45, Max: 45},
	})
}

func TestVerdictThresholds(t *testing.T) {
	tests := []struct {
		errors, total int
		want          artifact.Result
	}{
		{5, 40, artifact.Fail},
		{2, 40, artifact.Warning},
		{0, 40, artifact.Pass},
		{4, 40, artifact.Warning},
		{0, 0, artifact.Pass},
		{1, 0, artifact.Fail},
	}
	for _, tc := range tests {
		if got := quality.Verdict(tc.errors, tc.total); got != tc.want {
			t.Fatalf("Verdict(%d, %d) = %s, want %s", tc.errors, tc.total, got, tc.want)
		}
	}
	if got := quality.VerdictWithRatio(2, 40, 0.01); got != artifact.Fail {
		t.Fatalf("expected custom ratio to fail, got %s", got)
	}
}

func TestResampleRightClosedBuckets(t *testing.T) {
	table := hprTable()
	for _, s := range []struct {
		offset time.Duration
		value  float64
	}{
		{10 * time.Second, 10},
		{40 * time.Second, 20},
		{65 * time.Second, 40},
	} {
		if err := table.Append(base.Add(s.offset), s.value, 0, 0); err != nil {
			t.Fatal(err)
		}
	}

	series := quality.Resample(table, time.Minute)
	heading := series[0]
	want := []artifact.Point{
		{Time: base.Add(time.Minute), Value: 15, Valid: true},
		{Time: base.Add(2 * time.Minute), Value: 40, Valid: true},
	}
	if diff := cmp.Diff(want, heading.Data); diff != "" {
		t.Fatalf("unexpected heading series (-want +got):\n%s", diff)
	}
	if heading.Label != "Heading" || heading.Unit != "deg" {
		t.Fatalf("unexpected series metadata %q %q", heading.Label, heading.Unit)
	}
}

func TestResampleBoundaryAndGaps(t *testing.T) {
	table := hprTable()
	_ = table.Append(base.Add(time.Minute), 1, 0, 0) // exactly on the edge
	_ = table.Append(base.Add(3*time.Minute+time.Second), 2.00049, 0, 0)

	points := quality.Resample(table, time.Minute)[0].Data
	if len(points) != 4 {
		t.Fatalf("expected 4 buckets (12:01..12:04), got %d", len(points))
	}
	if !points[0].Time.Equal(base.Add(time.Minute)) || !points[0].Valid || points[0].Value != 1 {
		t.Fatalf("expected boundary sample in bucket ending 12:01, got %+v", points[0])
	}
	if points[1].Valid || points[2].Valid {
		t.Fatalf("expected empty middle buckets, got %+v %+v", points[1], points[2])
	}
	if points[3].Value != 2 {
		t.Fatalf("expected value rounded to 3 decimals, got %v", points[3].Value)
	}
}

func TestResampleCorruptYearSpan(t *testing.T) {
	table := hprTable()
	_ = table.Append(time.Date(1, 1, 1, 0, 0, 30, 0, time.UTC), 1, 0, 0)
	_ = table.Append(base, 2, 0, 0)
	_ = table.Append(time.Date(9999, 12, 31, 23, 59, 30, 0, time.UTC), 3, 0, 0)

	points := quality.Resample(table, time.Minute)[0].Data
	want := []time.Time{
		time.Date(1, 1, 1, 0, 1, 0, 0, time.UTC),
		base,
		time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	var got []time.Time
	for _, p := range points {
		if !p.Valid {
			t.Fatalf("expected only populated buckets for a sparse span, got %+v", p)
		}
		got = append(got, p.Time)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected bucket labels (-want +got):\n%s", diff)
	}
	if points[2].Value != 3 {
		t.Fatalf("expected last bucket value 3, got %v", points[2].Value)
	}
}

func TestAnalyzeZeroRowsSignalsNoData(t *testing.T) {
	table := hprTable()
	table.Reject()
	a, err := quality.Analyze(table, quality.DefaultSettings())
	if !errors.Is(err, services.ErrNoData) {
		t.Fatalf("expected no data error, got %v", err)
	}
	if a != nil {
		t.Fatal("expected no artifact for zero rows")
	}
}

func TestAnalyzeStatsAndTests(t *testing.T) {
	table := hprTable()
	// 44 good rows one second apart, one 30 second gap, one pitch out of range.
	ts := base
	for i := 0; i < 44; i++ {
		pitch := 1.0
		if i == 10 {
			pitch = 60
		}
		if i == 20 {
			ts = ts.Add(30 * time.Second)
		}
		if err := table.Append(ts, float64(100+i), pitch, -2.5); err != nil {
			t.Fatal(err)
		}
		ts = ts.Add(time.Second)
	}
	for i := 0; i < 6; i++ {
		table.Reject()
	}

	a, err := quality.Analyze(table, quality.DefaultSettings())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	names := make([]string, len(a.Stats))
	stats := make(map[string]artifact.Stat, len(a.Stats))
	for i, s := range a.Stats {
		names[i] = s.Name
		stats[s.Name] = s
	}
	wantNames := []string{
		"Row Validity", "Heading Bounds", "Pitch Bounds", "Pitch Validity",
		"Roll Bounds", "Roll Validity", "Temporal Bounds", "Delta-T Bounds", "Temporal Validity",
	}
	if diff := cmp.Diff(wantNames, names); diff != "" {
		t.Fatalf("unexpected stat order (-want +got):\n%s", diff)
	}

	checks := map[string][]any{
		"Row Validity":      {50, 6},
		"Heading Bounds":    {100.0, 143.0},
		"Pitch Bounds":      {1.0, 60.0},
		"Pitch Validity":    {43, 1},
		"Roll Validity":     {44, 0},
		"Delta-T Bounds":    {1.0, 31.0},
		"Temporal Validity": {42, 1},
	}
	for name, want := range checks {
		if diff := cmp.Diff(want, stats[name].Data); diff != "" {
			t.Fatalf("%s data mismatch (-want +got):\n%s", name, diff)
		}
	}
	if stats["Row Validity"].Unit != "" || stats["Heading Bounds"].Unit != "deg" || stats["Delta-T Bounds"].Unit != "seconds" {
		t.Fatal("unexpected stat units")
	}
	tb := stats["Temporal Bounds"]
	if tb.Kind != artifact.KindTimeBounds || tb.Data[0] != "1472472000" {
		t.Fatalf("unexpected temporal bounds %+v", tb)
	}

	gotTests := map[string]artifact.Result{}
	var order []string
	for _, qt := range a.QualityTests {
		gotTests[qt.TestName] = qt.Results
		order = append(order, qt.TestName)
	}
	if diff := cmp.Diff([]string{"Rows", "DeltaT", "Pitch", "Roll"}, order); diff != "" {
		t.Fatalf("unexpected test order (-want +got):\n%s", diff)
	}
	wantTests := map[string]artifact.Result{
		"Rows":   artifact.Fail,
		"DeltaT": artifact.Warning,
		"Pitch":  artifact.Warning,
		"Roll":   artifact.Pass,
	}
	if diff := cmp.Diff(wantTests, gotTests); diff != "" {
		t.Fatalf("unexpected verdicts (-want +got):\n%s", diff)
	}
	if len(a.VisualizerData) != 3 {
		t.Fatalf("expected one series per channel, got %d", len(a.VisualizerData))
	}
}

func TestAnalyzeSingleRow(t *testing.T) {
	table := hprTable()
	_ = table.Append(base, 90, 0, 0)
	a, err := quality.Analyze(table, quality.Settings{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, s := range a.Stats {
		switch s.Name {
		case "Delta-T Bounds":
			if diff := cmp.Diff([]any{0.0, 0.0}, s.Data); diff != "" {
				t.Fatalf("unexpected delta bounds:\n%s", diff)
			}
		case "Temporal Validity":
			if diff := cmp.Diff([]any{0, 0}, s.Data); diff != "" {
				t.Fatalf("unexpected temporal validity:\n%s", diff)
			}
		}
	}
	for _, qt := range a.QualityTests {
		if qt.Results != artifact.Pass {
			t.Fatalf("expected %s to pass, got %s", qt.TestName, qt.Results)
		}
	}
}
