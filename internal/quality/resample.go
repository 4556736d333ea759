package quality

import (
	"maps"
	"math"
	"slices"
	"time"

	"ddash/internal/artifact"
	"ddash/internal/channel"
)

// maxResampleBuckets bounds the dense series emitted for one file. Tables
// spanning more buckets (usually a corrupt timestamp) emit only populated
// buckets.
const maxResampleBuckets = 1 << 20

// Resample aggregates each channel into fixed-width buckets by arithmetic
// mean. Buckets are right-closed and labelled by their right edge: a sample
// exactly on boundary t belongs to the bucket ending at t. Bucket edges are
// aligned to midnight UTC of the earliest sample. Every bucket between the
// first and last label is emitted; buckets without samples carry no value.
func Resample(table *channel.Table, interval time.Duration) []artifact.Series {
	series := make([]artifact.Series, len(table.Channels))
	for i, c := range table.Channels {
		series[i] = artifact.Series{Label: c.Label, Unit: c.Unit, Data: []artifact.Point{}}
	}
	if len(table.Rows) == 0 || interval <= 0 {
		return series
	}

	earliest := table.Rows[0].Time
	for _, row := range table.Rows[1:] {
		if row.Time.Before(earliest) {
			earliest = row.Time
		}
	}
	// Bucket arithmetic runs on Unix milliseconds: time.Duration spans only
	// about 292 years and a corrupt year would overflow it.
	origin := earliest.UTC().Truncate(24 * time.Hour).UnixMilli()
	step := interval.Milliseconds()
	if step < 1 {
		step = 1
	}

	type bucket struct {
		sums  []float64
		count int
	}
	buckets := make(map[int64]*bucket)
	var first, last int64
	for r, row := range table.Rows {
		k := bucketIndex(row.Time.UnixMilli()-origin, step)
		if r == 0 || k < first {
			first = k
		}
		if r == 0 || k > last {
			last = k
		}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{sums: make([]float64, len(table.Channels))}
			buckets[k] = b
		}
		for i, v := range row.Values {
			b.sums[i] += v
		}
		b.count++
	}

	var keys []int64
	if last-first < maxResampleBuckets {
		keys = make([]int64, 0, last-first+1)
		for k := first; k <= last; k++ {
			keys = append(keys, k)
		}
	} else {
		keys = slices.Sorted(maps.Keys(buckets))
	}
	for _, k := range keys {
		b, ok := buckets[k]
		label := time.UnixMilli(origin + k*step).UTC()
		for i := range series {
			point := artifact.Point{Time: label}
			if ok {
				point.Value = round3(b.sums[i] / float64(b.count))
				point.Valid = true
			}
			series[i].Data = append(series[i].Data, point)
		}
	}
	return series
}

// bucketIndex returns ceil(offset/step) for non-negative offsets.
func bucketIndex(offset, step int64) int64 {
	k := offset / step
	if offset%step != 0 {
		k++
	}
	return k
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
