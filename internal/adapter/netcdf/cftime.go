package netcdf

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrTimeAxis is returned when the time variable cannot be decoded.
var ErrTimeAxis = errors.New("undecodable time axis")

// DefaultTimeUnits is what WriteGrid stamps on new time variables.
const DefaultTimeUnits = "hours since 1900-01-01 00:00:00"

var unitSeconds = map[string]float64{
	"days":    86400,
	"day":     86400,
	"d":       86400,
	"hours":   3600,
	"hour":    3600,
	"hrs":     3600,
	"h":       3600,
	"minutes": 60,
	"minute":  60,
	"mins":    60,
	"min":     60,
	"seconds": 1,
	"second":  1,
	"secs":    1,
	"s":       1,
}

var supportedCalendars = map[string]bool{
	"":                    true,
	"standard":            true,
	"gregorian":           true,
	"proleptic_gregorian": true,
}

var referenceLayouts = []string{
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15",
	"2006-01-02",
	"2006-1-2 15:04:05",
	"2006-1-2 15:4:5",
	"2006-1-2",
}

// timeUnits is a parsed "<unit> since <reference>" attribute.
type timeUnits struct {
	step float64 // seconds per unit
	ref  time.Time
}

func parseTimeUnits(units, calendar string) (timeUnits, error) {
	if !supportedCalendars[strings.ToLower(strings.TrimSpace(calendar))] {
		return timeUnits{}, fmt.Errorf("%w: unsupported calendar %q", ErrTimeAxis, calendar)
	}
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return timeUnits{}, fmt.Errorf("%w: units %q are not \"<unit> since <reference>\"", ErrTimeAxis, units)
	}
	step, ok := unitSeconds[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return timeUnits{}, fmt.Errorf("%w: unknown time unit %q", ErrTimeAxis, unit)
	}
	refTime, err := parseReference(ref)
	if err != nil {
		return timeUnits{}, err
	}
	return timeUnits{step: step, ref: refTime}, nil
}

func parseReference(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	// "1900-01-01 00:00:00 UTC" and fractional seconds both show up in the wild.
	s = strings.TrimSuffix(s, " UTC")
	if i := strings.IndexByte(s, '.'); i > 0 && !strings.ContainsAny(s[i:], "Z+") {
		s = s[:i]
	}
	for _, layout := range referenceLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparsable reference time %q", ErrTimeAxis, s)
}

// decode converts raw offsets to instants, rounded to the nearest second.
// Offsets are summed in Unix seconds: a time.Duration only spans about 292
// years, less than "days since 0001-01-01" needs.
func (u timeUnits) decode(values []float64) []time.Time {
	out := make([]time.Time, len(values))
	for i, v := range values {
		secs := int64(math.Round(v * u.step))
		out[i] = time.Unix(u.ref.Unix()+secs, 0).UTC()
	}
	return out
}

// encode is the inverse of decode.
func (u timeUnits) encode(times []time.Time) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		secs := float64(t.Unix()-u.ref.Unix()) + float64(t.Nanosecond()-u.ref.Nanosecond())/1e9
		out[i] = secs / u.step
	}
	return out
}
