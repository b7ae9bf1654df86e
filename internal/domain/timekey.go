package domain

import (
	"fmt"
	"time"
)

// TimeKey is an hour-resolution timestamp key formatted YYYY-MM-DDTHH.
type TimeKey string

// timeKeyLayout renders a TimeKey with time.Format.
const timeKeyLayout = "2006-01-02T15"

// NewTimeKey builds a zero-padded key from calendar fields.
func NewTimeKey(year, month, day, hour int) TimeKey {
	return TimeKey(fmt.Sprintf("%04d-%02d-%02dT%02d", year, month, day, hour))
}

// TimeKeyOf truncates t to the hour in UTC and returns its key.
func TimeKeyOf(t time.Time) TimeKey {
	return TimeKey(t.UTC().Format(timeKeyLayout))
}

// Time parses the key back into a UTC instant.
func (k TimeKey) Time() (time.Time, error) {
	t, err := time.ParseInLocation(timeKeyLayout, string(k), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time key %q: %w", string(k), err)
	}
	return t, nil
}
