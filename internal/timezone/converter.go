// Package timezone converts between business-local wall-clock times and UTC
// instants for the single business timezone the shop operates in.
//
// Offsets are sampled at local noon of the target day rather than at the
// instant itself, so every wall-clock time on a given day converts with the
// same offset. Times inside a spring-forward gap therefore resolve to a real
// instant that converts back to the same wall-clock value.
package timezone

import (
	"fmt"
	"time"

	"github.com/wolfman30/barber-booking/internal/apperrors"
)

// Converter maps local dates and clocks to UTC and back.
type Converter struct {
	loc *time.Location
}

// NewConverter loads the IANA zone name.
func NewConverter(name string) (*Converter, error) {
	if name == "" {
		return nil, apperrors.InvalidArgument("timezone.new", "business timezone is required")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperrors.E(apperrors.KindInvalidArgument, "timezone.new", fmt.Sprintf("unknown timezone %q", name), err)
	}
	return &Converter{loc: loc}, nil
}

// NewConverterForLocation wraps an already-loaded location.
func NewConverterForLocation(loc *time.Location) *Converter {
	if loc == nil {
		loc = time.UTC
	}
	return &Converter{loc: loc}
}

func (c *Converter) Location() *time.Location { return c.loc }

// offsetOn is the zone offset in effect at local noon of d.
func (c *Converter) offsetOn(d Date) time.Duration {
	noon := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, c.loc)
	_, secs := noon.Zone()
	return time.Duration(secs) * time.Second
}

// ToUTC converts a local wall-clock time on d to a UTC instant. Clocks past
// 24:00 roll into the following day using d's offset.
//
// The conversion is not injective around transitions. On a spring-forward
// day the first hour (the size of the jump) lands on the same instants as the
// last hour of the previous day, e.g. New York 2026-03-08 00:30 and
// 2026-03-07 23:30 are both 04:30Z. ToLocal resolves such instants to the
// previous day. Callers scheduling near midnight on those days must not
// assume distinct clocks give distinct instants.
func (c *Converter) ToUTC(d Date, clock Clock) time.Time {
	wall := d.midnight().Add(clock.duration())
	return wall.Add(-c.offsetOn(d)).UTC()
}

// ToLocal converts an instant to the local date and clock it was produced
// from by ToUTC. Seconds are truncated.
func (c *Converter) ToLocal(t time.Time) (Date, Clock) {
	t = t.UTC()
	actual := t.In(c.loc)
	_, actualSecs := actual.Zone()
	actualOffset := time.Duration(actualSecs) * time.Second
	guess := dateOf(actual)

	var (
		best      Date
		bestClock Clock
		found     bool
	)
	for _, d := range []Date{guess.AddDays(-1), guess, guess.AddDays(1)} {
		off := c.offsetOn(d)
		wall := t.Add(off)
		if dateOf(wall) != d {
			continue
		}
		clock := NewClock(wall.Hour(), wall.Minute())
		if !found || off == actualOffset {
			best, bestClock, found = d, clock, true
		}
	}
	if !found {
		// Instants skipped by the noon sampling on fall-back days.
		return guess, NewClock(actual.Hour(), actual.Minute())
	}
	return best, bestClock
}

// Today returns the business-local calendar date at now.
func (c *Converter) Today(now time.Time) Date {
	d, _ := c.ToLocal(now)
	return d
}

// DayBounds returns [00:00, 24:00) of d as UTC instants, converted with d's
// offset so the window matches the instants produced for d's slots.
func (c *Converter) DayBounds(d Date) (time.Time, time.Time) {
	return c.ToUTC(d, 0), c.ToUTC(d, minutesPerDay)
}

// Parse resolves raw YYYY-MM-DD and HH:MM strings to a UTC instant.
func (c *Converter) Parse(rawDate, rawClock string) (Date, Clock, time.Time, error) {
	d, err := ParseDate(rawDate)
	if err != nil {
		return Date{}, 0, time.Time{}, err
	}
	clock, err := ParseClock(rawClock)
	if err != nil {
		return Date{}, 0, time.Time{}, err
	}
	return d, clock, c.ToUTC(d, clock), nil
}
