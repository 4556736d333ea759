package parsers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"ddash/internal/channel"
	"ddash/internal/services"
)

const (
	// scsTimeLayout is the SCS logger prefix. Fractional seconds are accepted
	// on parse without appearing in the layout.
	scsTimeLayout = "01/02/2006 15:04:05"

	detectLineLimit = 32
	ctxCheckEvery   = 1024
)

// errRow marks a row that must be rejected.
var errRow = errors.New("rejected row")

// sentenceParser handles SCS-prefixed NMEA lines:
//
//	MM/DD/YYYY,HH:MM:SS.sss,$xxSEN,field,...
type sentenceParser struct {
	format   string
	channels []channel.Spec
	// sentence is the three-letter NMEA sentence id matched after the talker id.
	sentence string
	// aliases are complete header ids, talker included, also accepted.
	aliases []string
	// fieldCounts lists accepted comma-separated field counts, prefix included.
	fieldCounts []int
	// extract converts the fields after the header into channel values.
	extract func(fields []string) ([]float64, error)
	primary int
}

func newSentenceParser(format, sentence string, channels []channel.Spec, counts []int, extract func([]string) ([]float64, error)) *sentenceParser {
	p := &sentenceParser{
		format:      format,
		channels:    channels,
		sentence:    sentence,
		fieldCounts: counts,
		extract:     extract,
		primary:     -1,
	}
	for i, c := range channels {
		if c.Primary {
			p.primary = i
			break
		}
	}
	return p
}

func (p *sentenceParser) Format() string { return p.format }

func (p *sentenceParser) Channels() []channel.Spec {
	return append([]channel.Spec(nil), p.channels...)
}

func (p *sentenceParser) Detect(data []byte) bool {
	seen := 0
	for line := range lines(data) {
		if seen >= detectLineLimit {
			break
		}
		seen++
		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			continue
		}
		if p.matchesHeader(fields[2]) {
			return true
		}
	}
	return false
}

func (p *sentenceParser) matchesHeader(hdr string) bool {
	hdr = strings.TrimSpace(hdr)
	if len(hdr) != 6 || hdr[0] != '$' {
		return false
	}
	for _, alias := range p.aliases {
		if strings.EqualFold(hdr[1:], alias) {
			return true
		}
	}
	return strings.EqualFold(hdr[3:], p.sentence)
}

func (p *sentenceParser) Parse(ctx context.Context, data []byte) (*channel.Table, error) {
	table := channel.NewTable(p.format, p.channels)
	n := 0
	for line := range lines(data) {
		n++
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, contextFailure(p.format, n, err)
			}
		}
		ts, values, err := p.parseLine(line)
		if err != nil {
			table.Reject()
			continue
		}
		if p.primary >= 0 && !p.channels[p.primary].InRange(values[p.primary]) {
			table.Reject()
			continue
		}
		if err := table.Append(ts, values...); err != nil {
			return nil, services.Wrap(services.ErrParse, "parsers", p.format, fmt.Sprintf("line %d", n), err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, contextFailure(p.format, n, err)
	}
	return table, nil
}

func (p *sentenceParser) parseLine(line string) (time.Time, []float64, error) {
	fields := strings.Split(line, ",")
	if !p.acceptsCount(len(fields)) {
		return time.Time{}, nil, errRow
	}
	if !p.matchesHeader(fields[2]) {
		return time.Time{}, nil, errRow
	}
	ts, err := time.ParseInLocation(scsTimeLayout, strings.TrimSpace(fields[0])+" "+strings.TrimSpace(fields[1]), time.UTC)
	if err != nil {
		return time.Time{}, nil, errRow
	}
	values, err := p.extract(fields[3:])
	if err != nil {
		return time.Time{}, nil, errRow
	}
	return ts, values, nil
}

func (p *sentenceParser) acceptsCount(n int) bool {
	for _, c := range p.fieldCounts {
		if c == n {
			return true
		}
	}
	return false
}

func contextFailure(format string, line int, err error) error {
	msg := fmt.Sprintf("stopped at line %d", line)
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "parsers", format, msg, err)
	}
	return services.Wrap(services.ErrParse, "parsers", format, msg, err)
}

// lines yields non-empty lines with trailing CR/LF removed.
func lines(data []byte) func(yield func(string) bool) {
	return func(yield func(string) bool) {
		for len(data) > 0 {
			var line []byte
			if i := bytes.IndexByte(data, '\n'); i >= 0 {
				line, data = data[:i], data[i+1:]
			} else {
				line, data = data, nil
			}
			line = bytes.TrimRight(line, "\r")
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			if !yield(string(line)) {
				return
			}
		}
	}
}

// stripChecksum removes a trailing "*HH" NMEA checksum.
func stripChecksum(field string) string {
	if i := strings.IndexByte(field, '*'); i >= 0 {
		return field[:i]
	}
	return field
}

// parseFloat rejects NaN and infinities, which strconv accepts.
func parseFloat(field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errRow
	}
	return v, nil
}
