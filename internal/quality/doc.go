// Package quality computes bounds, validity ratios, temporal gap checks,
// verdicts, and resampled visualization series from a channel table.
//
// The computation is generic over any channel layout: parsers declare
// channels with labels, units, and validity intervals, and Analyze derives
// the same stat and test structure for every format. A table with zero
// accepted rows yields services.ErrNoData and no artifact.
package quality
