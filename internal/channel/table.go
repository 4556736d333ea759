// Package channel defines the transient time-series table that parsers
// produce and the quality engine consumes.
package channel

import (
	"fmt"
	"time"
)

// Spec declares one channel of a format.
type Spec struct {
	Name  string
	Label string
	Unit  string
	Min   float64
	Max   float64
	// Primary marks the reference channel. Rows with an out-of-range primary
	// value are rejected during parsing and the channel is never scored.
	Primary bool
}

// InRange reports whether v lies within the inclusive validity interval.
func (s Spec) InRange(v float64) bool {
	return v >= s.Min && v <= s.Max
}

// Row is one accepted sample. Values align with Table.Channels.
type Row struct {
	Time   time.Time
	Values []float64
}

// Table is an ordered sequence of accepted rows plus the count of rows
// rejected while parsing.
type Table struct {
	Format   string
	Channels []Spec
	Rows     []Row
	Rejected int
}

// NewTable returns an empty table for the given channel layout.
func NewTable(format string, channels []Spec) *Table {
	return &Table{Format: format, Channels: append([]Spec(nil), channels...)}
}

// Append adds an accepted row. The number of values must match the channel count.
func (t *Table) Append(ts time.Time, values ...float64) error {
	if len(values) != len(t.Channels) {
		return fmt.Errorf("row has %d values, table declares %d channels", len(values), len(t.Channels))
	}
	t.Rows = append(t.Rows, Row{Time: ts, Values: append([]float64(nil), values...)})
	return nil
}

// Reject counts a row that could not be accepted.
func (t *Table) Reject() {
	t.Rejected++
}

// Total returns accepted plus rejected rows.
func (t *Table) Total() int {
	return len(t.Rows) + t.Rejected
}

// Index returns the channel position for name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Channels {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the values of channel i in row order.
func (t *Table) Column(i int) []float64 {
	out := make([]float64, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row.Values[i]
	}
	return out
}

// Value returns the named channel value of row r.
func (t *Table) Value(r int, name string) (float64, bool) {
	i := t.Index(name)
	if i < 0 || r < 0 || r >= len(t.Rows) {
		return 0, false
	}
	return t.Rows[r].Values[i], true
}
