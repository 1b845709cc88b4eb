// Package timeslot holds the wall-clock and calendar-date arithmetic used by
// the booking engine. All studio ranges are same-day and half-open.
package timeslot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"

	minutesPerDay = 24 * 60
)

var (
	ErrInvalidClock = errors.New("timeslot: invalid time of day")
	ErrInvalidDate  = errors.New("timeslot: invalid date")
	ErrInvalidRange = errors.New("timeslot: start must be before end")
)

// Clock is a wall-clock time of day in minutes since midnight.
// 24:00 is allowed as the end of a range.
type Clock int

// NewClock builds a Clock from hours and minutes.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts "HH:MM" and "HH:MM:SS". Seconds must be zero.
func ParseClock(raw string) (Clock, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec != 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
		}
	}

	c := NewClock(hour, minute)
	if c > minutesPerDay {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	return c, nil
}

// MustClock is ParseClock for constants and tests.
func MustClock(raw string) Clock {
	c, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

// String renders zero-padded "HH:MM" so stored values sort lexicographically.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Range is a half-open [Start, End) interval on a single calendar date.
type Range struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// NewRange validates start < end.
func NewRange(start, end Clock) (Range, error) {
	r := Range{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// ParseRange parses two "HH:MM" strings into a validated Range.
func ParseRange(start, end string) (Range, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Range{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Range{}, err
	}
	return NewRange(s, e)
}

func (r Range) Validate() error {
	if r.Start < 0 || r.End > minutesPerDay || r.Start >= r.End {
		return fmt.Errorf("%w: %s-%s", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

func (r Range) Duration() time.Duration {
	return time.Duration(r.End-r.Start) * time.Minute
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// Overlaps reports whether two same-day half-open ranges intersect.
// Touching boundaries (back-to-back bookings) do not overlap.
func Overlaps(a, b Range) bool {
	return a.Start < b.End && b.Start < a.End
}

// Overlaps is the method form of the package-level predicate.
func (r Range) Overlaps(other Range) bool {
	return Overlaps(r, other)
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return d, nil
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DateRange is an inclusive [From, Until] span of calendar dates.
type DateRange struct {
	From  time.Time `json:"from"`
	Until time.Time `json:"until"`
}

// SingleDay returns the date range covering only d.
func SingleDay(d time.Time) DateRange {
	day := Day(d)
	return DateRange{From: day, Until: day}
}

// NewDateRange normalises both ends to dates and validates From <= Until.
func NewDateRange(from, until time.Time) (DateRange, error) {
	dr := DateRange{From: Day(from), Until: Day(until)}
	if dr.Until.Before(dr.From) {
		return DateRange{}, fmt.Errorf("%w: %s..%s", ErrInvalidRange, FormatDate(from), FormatDate(until))
	}
	return dr, nil
}

// Intersects uses inclusive date intersection, so a reservation for any part
// of a day blocks the whole day.
func (dr DateRange) Intersects(other DateRange) bool {
	return !dr.From.After(other.Until) && !dr.Until.Before(other.From)
}

// Days counts the calendar days covered, inclusive.
func (dr DateRange) Days() int {
	return int(dr.Until.Sub(dr.From).Hours()/24) + 1
}
