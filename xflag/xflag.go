// Package xflag adds a date flag type on top of the standard library
// flag package.
package xflag

import (
	"time"

	"github.com/araddon/dateparse"
)

// Date can be used to parse command line args into dates.
type Date struct {
	time.Time
}

// String renders the date at day granularity.
func (d *Date) String() string {
	if d.Time.IsZero() {
		return ""
	}
	return d.Time.Format("2006-01-02")
}

// Set parses a value into a date. Accepts anything dateparse can make
// sense of, e.g. 2024-05-01, 2024-05-01T12:00:00Z, 05/01/2024.
func (d *Date) Set(s string) error {
	t, err := dateparse.ParseStrict(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}
