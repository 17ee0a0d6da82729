package pmh

import (
	"errors"
	"time"

	"github.com/jinzhu/now"
)

// OAI-PMH allows exactly two datestamp granularities.
const (
	DayLayout     = "2006-01-02"
	SecondsLayout = "2006-01-02T15:04:05Z"
)

// ErrBadDatestamp is returned for values in neither accepted layout.
var ErrBadDatestamp = errors.New("bad datestamp")

// ParseFrom parses a from argument. A day granularity value marks the
// beginning of that day, UTC.
func ParseFrom(s string) (time.Time, error) {
	if t, err := time.Parse(SecondsLayout, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(DayLayout, s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, ErrBadDatestamp
}

// ParseUntil parses an until argument. A day granularity value is
// inclusive of the whole day, so it expands to the end of that day.
func ParseUntil(s string) (time.Time, error) {
	if t, err := time.Parse(SecondsLayout, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(DayLayout, s, time.UTC); err == nil {
		return now.With(t).EndOfDay().Truncate(time.Second), nil
	}
	return time.Time{}, ErrBadDatestamp
}

// FormatDatestamp renders a timestamp in the seconds granularity used
// throughout responses.
func FormatDatestamp(t time.Time) string {
	return t.UTC().Format(SecondsLayout)
}
