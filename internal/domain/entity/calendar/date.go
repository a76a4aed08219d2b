package calendar

import (
	"errors"
	"fmt"
	"time"
)

const (
	// ISOLayout is the canonical textual form used in logs and URLs.
	ISOLayout = "2006-01-02"
	// StoreLayout is the day-first form used by the persisted store.
	StoreLayout = "02.01.2006"
)

var ErrInvertedRange = errors.New("range start is after range end")

// Date is a calendar day without time of day or zone.
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate normalizes overflowing components the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf takes the calendar day of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

// Today returns the current calendar day in loc.
func Today(loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(time.Now().In(loc))
}

// ParseDate parses value with layout and drops any time of day.
func ParseDate(layout, value string) (Date, error) {
	t, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) Year() int          { return d.year }
func (d Date) Month() time.Month  { return d.month }
func (d Date) Day() int           { return d.day }
func (d Date) IsZero() bool       { return d == Date{} }
func (d Date) Equal(o Date) bool  { return d == o }
func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// DaysSince returns the number of days from o to d (negative when d is earlier).
func (d Date) DaysSince(o Date) int {
	return int(d.Time().Sub(o.Time()).Hours() / 24)
}

func (d Date) Compare(o Date) int {
	switch {
	case d.year != o.year:
		return cmpInt(d.year, o.year)
	case d.month != o.month:
		return cmpInt(int(d.month), int(o.month))
	default:
		return cmpInt(d.day, o.day)
	}
}

func (d Date) Format(layout string) string {
	return d.Time().Format(layout)
}

func (d Date) String() string {
	return d.Format(ISOLayout)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Range is an inclusive span of calendar days.
type Range struct {
	Start Date
	End   Date
}

func NewRange(start, end Date) (Range, error) {
	if start.After(end) {
		return Range{}, fmt.Errorf("%w: %s > %s", ErrInvertedRange, start, end)
	}
	return Range{Start: start, End: end}, nil
}

// Days returns the number of calendar days covered, both ends included.
func (r Range) Days() int {
	if r.Start.After(r.End) {
		return 0
	}
	return r.End.DaysSince(r.Start) + 1
}

func (r Range) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Intersect returns the overlap of r and o; ok is false when they are disjoint.
func (r Range) Intersect(o Range) (Range, bool) {
	start := r.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := r.End
	if o.End.Before(end) {
		end = o.End
	}
	if start.After(end) {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start, r.End)
}
