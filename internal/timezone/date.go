package timezone

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/barber-booking/internal/apperrors"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"

	minutesPerDay = 24 * 60
)

// Date is a calendar day in the business timezone, with no time or zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes out-of-range values the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return dateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, apperrors.E(apperrors.KindInvalidArgument, "timezone.parse_date", fmt.Sprintf("malformed date %q", raw), err)
	}
	return dateOf(t), nil
}

func dateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) Weekday() time.Weekday {
	return d.midnight().Weekday()
}

func (d Date) AddDays(n int) Date {
	return dateOf(d.midnight().AddDate(0, 0, n))
}

func (d Date) Before(other Date) bool {
	return d.midnight().Before(other.midnight())
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// Clock is a wall-clock time of day, in minutes after local midnight.
// Values past 24:00 are allowed for interval ends and roll into the next day.
type Clock int

// NewClock builds a Clock from hours and minutes.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses HH:MM in 24-hour form.
func ParseClock(raw string) (Clock, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(raw))
	if err != nil {
		return 0, apperrors.E(apperrors.KindInvalidArgument, "timezone.parse_clock", fmt.Sprintf("malformed time %q", raw), err)
	}
	return NewClock(t.Hour(), t.Minute()), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Add advances the clock by d, truncated to whole minutes.
func (c Clock) Add(d time.Duration) Clock {
	return c + Clock(d/time.Minute)
}

func (c Clock) duration() time.Duration {
	return time.Duration(c) * time.Minute
}
