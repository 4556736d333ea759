package quality

import "ddash/internal/artifact"

// DefaultFailRatio is the error ratio above which a test fails.
const DefaultFailRatio = 0.10

// Verdict applies the default threshold: no errors passes, an error ratio
// above DefaultFailRatio fails, anything between warns.
func Verdict(errorCount, total int) artifact.Result {
	return VerdictWithRatio(errorCount, total, DefaultFailRatio)
}

// VerdictWithRatio is Verdict with an explicit failure ratio. A non-zero
// error count over an empty total fails.
func VerdictWithRatio(errorCount, total int, failRatio float64) artifact.Result {
	if errorCount <= 0 {
		return artifact.Pass
	}
	if total <= 0 || float64(errorCount)/float64(total) > failRatio {
		return artifact.Fail
	}
	return artifact.Warning
}
