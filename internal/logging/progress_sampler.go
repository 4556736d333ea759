package logging

import "strings"

// ProgressSampler throttles run progress logs to one line per percentage
// bucket, while always letting a change of part name through.
type ProgressSampler struct {
	bucketSize int
	lastPart   string
	lastBucket int
}

// NewProgressSampler constructs a sampler with the given bucket width in
// percent (default 10).
func NewProgressSampler(bucketSize int) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress report should be logged. A negative
// percent means unknown and only a part change emits.
func (s *ProgressSampler) ShouldLog(percent int, part string) bool {
	if s == nil {
		return true
	}
	emit := false
	if part = strings.TrimSpace(part); part != "" && part != s.lastPart {
		s.lastPart = part
		emit = true
	}
	if percent >= 0 {
		if percent > 100 {
			percent = 100
		}
		if bucket := percent / s.bucketSize; bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state before a new run.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastPart = ""
	s.lastBucket = -1
}
