package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Result is a quality test verdict as serialized in the artifact.
type Result string

const (
	Pass    Result = "Passed"
	Warning Result = "Warning"
	Fail    Result = "Failed"
)

// StatKind identifies how statData is interpreted.
type StatKind string

const (
	KindRowValidity   StatKind = "rowValidity"
	KindBounds        StatKind = "bounds"
	KindValueValidity StatKind = "valueValidity"
	KindTimeBounds    StatKind = "timeBounds"
)

// Artifact is one raw file's dashboard document.
type Artifact struct {
	VisualizerData []Series      `json:"visualizerData"`
	QualityTests   []QualityTest `json:"qualityTests"`
	Stats          []Stat        `json:"stats"`
}

// New returns an artifact with non-nil collections so it serializes as
// empty arrays rather than null.
func New() *Artifact {
	return &Artifact{
		VisualizerData: []Series{},
		QualityTests:   []QualityTest{},
		Stats:          []Stat{},
	}
}

// Series is the resampled visualization of one channel.
type Series struct {
	Data  []Point `json:"data"`
	Unit  string  `json:"unit"`
	Label string  `json:"label"`
}

// QualityTest is a named verdict.
type QualityTest struct {
	TestName string `json:"testName"`
	Results  Result `json:"results"`
}

// Stat is a named summary value list.
type Stat struct {
	Name string   `json:"statName"`
	Unit string   `json:"statUnit,omitempty"`
	Kind StatKind `json:"statType"`
	Data []any    `json:"statData"`
}

// Pair returns the first two statData values as numbers.
func (s Stat) Pair() (float64, float64, bool) {
	if len(s.Data) < 2 {
		return 0, 0, false
	}
	a, okA := number(s.Data[0])
	b, okB := number(s.Data[1])
	return a, b, okA && okB
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Point is one resampled bucket. A point without Valid serializes its value
// as null, marking a bucket with no samples.
type Point struct {
	Time  time.Time
	Value float64
	Valid bool
}

// MarshalJSON encodes the point as [epochMillis, value|null].
func (p Point) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.WriteString(strconv.FormatInt(p.Time.UnixMilli(), 10))
	buf.WriteByte(',')
	if p.Valid && !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0) {
		buf.WriteString(strconv.FormatFloat(p.Value, 'f', -1, 64))
	} else {
		buf.WriteString("null")
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes [epochMillis, value|null].
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 || raw[0] == nil {
		return fmt.Errorf("artifact point: expected [timestamp, value], got %s", data)
	}
	p.Time = time.UnixMilli(int64(*raw[0])).UTC()
	p.Valid = raw[1] != nil
	p.Value = 0
	if p.Valid {
		p.Value = *raw[1]
	}
	return nil
}
