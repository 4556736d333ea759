package parsers

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"ddash/internal/channel"
)

// FormatGGA is the GPS fix format identifier.
const FormatGGA = "gga"

var ggaChannels = []channel.Spec{
	{Name: "latitude", Label: "Latitude", Unit: "ddeg", Min: -90, Max: 90, Primary: true},
	{Name: "longitude", Label: "Longitude", Unit: "ddeg", Min: -180, Max: 180},
	{Name: "satellites", Label: "Satellites", Unit: "count", Min: 4, Max: 24},
	{Name: "hdop", Label: "HDOP", Unit: "", Min: 0, Max: 5},
}

var errNoFix = errors.New("no gps fix")

// newGGAParser parses lines such as
//
//	08/29/2016,12:00:00.250,$GPGGA,120000.00,2130.1234,N,15750.5678,W,2,09,0.9,12.3,M,2.1,M,,*4A
func newGGAParser(channels []channel.Spec) Parser {
	return newSentenceParser(FormatGGA, "GGA", channels, []int{17}, func(fields []string) ([]float64, error) {
		// fields: utc, lat, N/S, lon, E/W, quality, sats, hdop, ...
		if q := strings.TrimSpace(fields[5]); q == "" || q == "0" {
			return nil, errNoFix
		}
		lat, err := nmeaCoordinate(fields[1], fields[2], "N", "S")
		if err != nil {
			return nil, err
		}
		lon, err := nmeaCoordinate(fields[3], fields[4], "E", "W")
		if err != nil {
			return nil, err
		}
		sats, err := strconv.Atoi(strings.TrimSpace(fields[6]))
		if err != nil {
			return nil, err
		}
		hdop, err := parseFloat(fields[7])
		if err != nil {
			return nil, err
		}
		return []float64{lat, lon, float64(sats), hdop}, nil
	})
}

// nmeaCoordinate converts (d)ddmm.mmmm plus hemisphere into signed decimal degrees.
func nmeaCoordinate(value, hemisphere, positive, negative string) (float64, error) {
	raw, err := parseFloat(value)
	if err != nil {
		return 0, err
	}
	if raw < 0 {
		return 0, errors.New("negative nmea coordinate")
	}
	degrees := math.Floor(raw / 100)
	minutes := raw - degrees*100
	if minutes >= 60 {
		return 0, errors.New("nmea minutes out of range")
	}
	decimal := degrees + minutes/60
	switch strings.ToUpper(strings.TrimSpace(hemisphere)) {
	case positive:
		return decimal, nil
	case negative:
		return -decimal, nil
	default:
		return 0, errors.New("invalid hemisphere")
	}
}
