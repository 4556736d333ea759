package parsers

import "ddash/internal/channel"

// FormatHPR is the heading/pitch/roll format identifier.
const FormatHPR = "hpr"

var hprChannels = []channel.Spec{
	{Name: "heading", Label: "Heading", Unit: "deg", Min: 0, Max: 360, Primary: true},
	{Name: "pitch", Label: "Pitch", Unit: "deg, bow up +", Min: -45, Max: 45},
	{Name: "roll", Label: "Roll", Unit: "deg, starboard +", Min: -45, Max: 45},
}

// newHPRParser parses lines such as
//
//	08/29/2016,12:00:00.250,$PSHPR,271.50,-1.25,0.75*3C
//
// The proprietary $PASHR header carries the same fields. An optional
// trailing field after the checksum is tolerated.
func newHPRParser(channels []channel.Spec) Parser {
	p := newSentenceParser(FormatHPR, "HPR", channels, []int{6, 7}, func(fields []string) ([]float64, error) {
		heading, err := parseFloat(fields[0])
		if err != nil {
			return nil, err
		}
		pitch, err := parseFloat(fields[1])
		if err != nil {
			return nil, err
		}
		roll, err := parseFloat(stripChecksum(fields[2]))
		if err != nil {
			return nil, err
		}
		return []float64{heading, pitch, roll}, nil
	})
	p.aliases = []string{"PASHR"}
	return p
}
