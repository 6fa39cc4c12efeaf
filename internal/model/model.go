package model

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// DateLayout is the wire form of a Period start date.
const DateLayout = "2006-01-02"

// MaxDays is the longest Period that can be built, roughly ten years.
const MaxDays = 3660

var (
	// ErrNegativeDays is returned when a Period is built with a negative day count.
	ErrNegativeDays = errors.New("period: days must not be negative")
	// ErrTooManyDays is returned when a Period is built with more than MaxDays days.
	ErrTooManyDays = fmt.Errorf("period: days must not exceed %d", MaxDays)
)

// Period is a calendar date plus a number of days. The zero value is not a
// usable period; build one with NewPeriod or ParsePeriod.
type Period struct {
	year  int
	month time.Month
	day   int
	days  int
}

// NewPeriod builds a Period from the calendar date of start (in start's own
// location) and a day count.
func NewPeriod(start time.Time, days int) (Period, error) {
	if days < 0 {
		return Period{}, ErrNegativeDays
	}
	if days > MaxDays {
		return Period{}, ErrTooManyDays
	}
	y, m, d := start.Date()
	return Period{year: y, month: m, day: d, days: days}, nil
}

// ParsePeriod parses a YYYY-MM-DD start date.
func ParsePeriod(date string, days int) (Period, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return Period{}, fmt.Errorf("period: invalid start date %q: %w", date, err)
	}
	return NewPeriod(t, days)
}

// StartDate returns the YYYY-MM-DD form of the first day.
func (p Period) StartDate() string {
	return time.Date(p.year, p.month, p.day, 0, 0, 0, 0, time.UTC).Format(DateLayout)
}

// Days returns the length of the period in days.
func (p Period) Days() int {
	return p.days
}

// Bounds returns the half-open window [start, start+days) with both ends at
// midnight in loc. A nil loc means UTC.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(p.year, p.month, p.day, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, p.days)
}

func (p Period) String() string {
	return fmt.Sprintf("%s+%dd", p.StartDate(), p.days)
}

// Event is the display projection of one calendar entry.
type Event struct {
	Summary   string
	StartTime time.Time
	EndTime   time.Time

	// Location is empty when the source entry has none.
	Location string
	// Link is nil when the source entry has no usable URL.
	Link *url.URL
}
