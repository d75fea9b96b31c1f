// Package calendar implements the date arithmetic primitives the rule
// engine and scheduler build on. All operations work on civil dates
// (year/month/day with no time-of-day and no location) so that
// anniversary and window math never drifts across a DST boundary or a
// timezone offset. Format to a string only at the process boundary.
package calendar

import (
	"encoding/json"
	"fmt"
	"time"
)

// Date is a civil calendar date: a year, month and day with no
// time-of-day or location component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// FromTime truncates t to its civil date in t's own location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Parse reads a date in ISO-8601 (YYYY-MM-DD) form.
func Parse(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return FromTime(t), nil
}

// String renders the date in ISO-8601 form.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// MarshalJSON renders d as its ISO-8601 string form rather than the
// {Year,Month,Day} struct layout, matching the wire shape spec.md §6
// uses for every date field.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON parses d from an ISO-8601 (YYYY-MM-DD) JSON string.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// toTime normalizes d against UTC midnight purely for arithmetic;
// time.Date folds out-of-range days forward (day=32 becomes the 1st of
// the next month, Feb 29 in a non-leap year becomes Mar 1).
// AnniversaryIn does not rely on this: it handles Feb 29 itself.
func (d Date) toTime() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool { return d.toTime().Before(o.toTime()) }

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool { return d.toTime().After(o.toTime()) }

// Equal reports whether d and o name the same civil date.
func (d Date) Equal(o Date) bool { return d == o }

// Compare returns -1, 0 or 1 as d is before, equal to, or after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Before(o):
		return -1
	case d.After(o):
		return 1
	default:
		return 0
	}
}

// InRange reports whether d falls within [lo, hi] inclusive.
func (d Date) InRange(lo, hi Date) bool {
	return !d.Before(lo) && !d.After(hi)
}

// IsLeapYear reports whether year is a leap year in the proleptic
// Gregorian calendar.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// AddDays returns d shifted by n days (n may be negative).
func AddDays(d Date, n int) Date {
	return FromTime(d.toTime().AddDate(0, 0, n))
}

// AddYears returns d shifted by n calendar years. A Feb 29 date that
// lands in a non-leap year rolls forward to Mar 1, unlike AnniversaryIn,
// which falls back to Feb 28.
func AddYears(d Date, n int) Date {
	return FromTime(d.toTime().AddDate(n, 0, 0))
}

// DaysBetween returns the signed number of days from a to b (b - a).
func DaysBetween(a, b Date) int {
	const day = 24 * time.Hour
	return int(b.toTime().Sub(a.toTime()) / day)
}

// AnniversaryIn returns the occurrence of anchor's month/day in year.
// A Feb 29 anchor falls back to Feb 28 in a non-leap year; callers that
// need a state's leap-year override apply it themselves (anniversaryIn
// never changes the anniversary itself, only post-window computation
// does, per the rule config).
func AnniversaryIn(year int, anchor Date) Date {
	if anchor.Month == time.February && anchor.Day == 29 && !IsLeapYear(year) {
		return Date{Year: year, Month: time.February, Day: 28}
	}
	return Date{Year: year, Month: anchor.Month, Day: anchor.Day}
}

// NextAnniversaryOnOrAfter returns the anniversary of anchor in the
// current year if it falls on or after from, otherwise the anniversary
// in the following year.
func NextAnniversaryOnOrAfter(anchor, from Date) Date {
	candidate := AnniversaryIn(from.Year, anchor)
	if candidate.Before(from) {
		return AnniversaryIn(from.Year+1, anchor)
	}
	return candidate
}

// MonthStart returns the first day of anchor's month in year.
func MonthStart(year int, anchor Date) Date {
	return Date{Year: year, Month: anchor.Month, Day: 1}
}

// AgeOn returns the floor age in years of someone born on birthDate as
// of onDate. A birthDate after onDate returns a negative age.
func AgeOn(birthDate, onDate Date) int {
	age := onDate.Year - birthDate.Year
	bday := AnniversaryIn(onDate.Year, birthDate)
	if onDate.Before(bday) {
		age--
	}
	return age
}

// IsValid reports whether d names a real calendar date: a Month in
// 1-12 and a Day that exists in that month (Go's time.Date silently
// folds an out-of-range day into the following month, which is exactly
// the condition this rejects).
func IsValid(d Date) bool {
	if d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	t := d.toTime()
	y, m, day := t.Date()
	return y == d.Year && m == d.Month && day == d.Day
}

// YearsTouching returns every calendar year that overlaps [start, end],
// inclusive.
func YearsTouching(start, end Date) []int {
	if end.Before(start) {
		return nil
	}
	years := make([]int, 0, end.Year-start.Year+1)
	for y := start.Year; y <= end.Year; y++ {
		years = append(years, y)
	}
	return years
}
