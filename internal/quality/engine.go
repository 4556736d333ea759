package quality

import (
	"math"
	"strconv"
	"time"

	"ddash/internal/artifact"
	"ddash/internal/channel"
	"ddash/internal/services"
)

// Settings holds the thresholds applied by Analyze.
type Settings struct {
	MaxDeltaT        time.Duration
	ResampleInterval time.Duration
	FailRatio        float64
}

// DefaultSettings returns a 10 second gap limit, one minute buckets, and
// the default failure ratio.
func DefaultSettings() Settings {
	return Settings{
		MaxDeltaT:        10 * time.Second,
		ResampleInterval: time.Minute,
		FailRatio:        DefaultFailRatio,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxDeltaT <= 0 {
		s.MaxDeltaT = d.MaxDeltaT
	}
	if s.ResampleInterval <= 0 {
		s.ResampleInterval = d.ResampleInterval
	}
	if s.FailRatio <= 0 {
		s.FailRatio = d.FailRatio
	}
	return s
}

// Analyze derives the dashboard artifact for table.
//
// Stats appear in this order: Row Validity; per channel "<Label> Bounds"
// followed by "<Label> Validity" for non-primary channels; Temporal Bounds;
// Delta-T Bounds; Temporal Validity. Tests are Rows, DeltaT, then one per
// non-primary channel named by its label.
func Analyze(table *channel.Table, settings Settings) (*artifact.Artifact, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, services.Wrap(services.ErrNoData, "quality", "analyze", "zero rows survived parsing", nil)
	}
	settings = settings.withDefaults()
	out := artifact.New()

	total, rejected := table.Total(), table.Rejected
	out.Stats = append(out.Stats, artifact.Stat{
		Name: "Row Validity",
		Kind: artifact.KindRowValidity,
		Data: []any{total, rejected},
	})
	rowsResult := VerdictWithRatio(rejected, total, settings.FailRatio)

	type channelTest struct {
		name   string
		result artifact.Result
	}
	var channelTests []channelTest
	for i, ch := range table.Channels {
		values := table.Column(i)
		lo, hi := minMax(values)
		out.Stats = append(out.Stats, artifact.Stat{
			Name: ch.Label + " Bounds",
			Unit: ch.Unit,
			Kind: artifact.KindBounds,
			Data: []any{round3(lo), round3(hi)},
		})
		if ch.Primary {
			continue
		}
		in, bad := validity(values, ch)
		out.Stats = append(out.Stats, artifact.Stat{
			Name: ch.Label + " Validity",
			Kind: artifact.KindValueValidity,
			Data: []any{in, bad},
		})
		channelTests = append(channelTests, channelTest{
			name:   ch.Label,
			result: VerdictWithRatio(bad, in+bad, settings.FailRatio),
		})
	}

	first, last := timeBounds(table.Rows)
	out.Stats = append(out.Stats, artifact.Stat{
		Name: "Temporal Bounds",
		Unit: "seconds",
		Kind: artifact.KindTimeBounds,
		Data: []any{strconv.FormatInt(first.Unix(), 10), strconv.FormatInt(last.Unix(), 10)},
	})

	deltas := deltaSeconds(table.Rows)
	dLo, dHi := 0.0, 0.0
	if len(deltas) > 0 {
		dLo, dHi = minMax(deltas)
	}
	out.Stats = append(out.Stats, artifact.Stat{
		Name: "Delta-T Bounds",
		Unit: "seconds",
		Kind: artifact.KindBounds,
		Data: []any{round3(dLo), round3(dHi)},
	})
	limit := settings.MaxDeltaT.Seconds()
	within, exceeding := 0, 0
	for _, d := range deltas {
		if d <= limit {
			within++
		} else {
			exceeding++
		}
	}
	out.Stats = append(out.Stats, artifact.Stat{
		Name: "Temporal Validity",
		Kind: artifact.KindValueValidity,
		Data: []any{within, exceeding},
	})

	out.QualityTests = append(out.QualityTests,
		artifact.QualityTest{TestName: "Rows", Results: rowsResult},
		artifact.QualityTest{TestName: "DeltaT", Results: VerdictWithRatio(exceeding, within+exceeding, settings.FailRatio)},
	)
	for _, ct := range channelTests {
		out.QualityTests = append(out.QualityTests, artifact.QualityTest{TestName: ct.name, Results: ct.result})
	}

	out.VisualizerData = Resample(table, settings.ResampleInterval)
	return out, nil
}

func minMax(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func validity(values []float64, ch channel.Spec) (in, out int) {
	for _, v := range values {
		if ch.InRange(v) {
			in++
		} else {
			out++
		}
	}
	return in, out
}

func timeBounds(rows []channel.Row) (time.Time, time.Time) {
	first, last := rows[0].Time, rows[0].Time
	for _, row := range rows[1:] {
		if row.Time.Before(first) {
			first = row.Time
		}
		if row.Time.After(last) {
			last = row.Time
		}
	}
	return first, last
}

// deltaSeconds returns gaps between consecutive rows in file order.
func deltaSeconds(rows []channel.Row) []float64 {
	if len(rows) < 2 {
		return nil
	}
	out := make([]float64, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		out[i-1] = rows[i].Time.Sub(rows[i-1].Time).Seconds()
	}
	return out
}
