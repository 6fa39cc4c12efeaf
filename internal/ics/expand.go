package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "saganevents/internal/log"
)

const (
	defaultMaxOccurrencesPerEntry = 5000
)

// ErrInvalidWindow is returned when a window ends before it starts.
var ErrInvalidWindow = errors.New("expand: window end is before start")

// Window controls how entries are projected onto concrete occurrences.
type Window struct {
	// Start / End define the half-open range [Start, End).
	Start time.Time
	End   time.Time

	// MaxOccurrencesPerEntry caps the expansion of a single recurring
	// entry. If zero, defaultMaxOccurrencesPerEntry is used.
	MaxOccurrencesPerEntry int
}

// Expand returns the occurrences of entries that overlap the window. Each
// occurrence is an Entry whose Start/End are those of the instance and
// whose recurrence fields are cleared.
//
// Output follows document order; the instances of one recurring entry are
// chronological. A RECURRENCE-ID override replaces the matching instance of
// its base entry. Overrides that match no expanded instance (no base in the
// document, or an original slot outside the window) are kept on their own
// when they overlap the window.
func Expand(entries []Entry, w Window) ([]Entry, error) {
	if w.End.Before(w.Start) {
		return nil, ErrInvalidWindow
	}
	if w.MaxOccurrencesPerEntry <= 0 {
		w.MaxOccurrencesPerEntry = defaultMaxOccurrencesPerEntry
	}

	ov := overrideIndex{byUID: make(map[string][]int), entries: entries, used: make([]bool, len(entries))}
	for i, e := range entries {
		if e.IsOverride() {
			ov.byUID[e.UID] = append(ov.byUID[e.UID], i)
		}
	}

	perEntry := make([][]Entry, len(entries))
	for i, e := range entries {
		if e.IsOverride() {
			continue
		}
		if e.RawRRule == "" {
			perEntry[i] = expandSingle(e, &ov, w)
			continue
		}
		occ, hitCap := expandRecurring(e, &ov, w)
		if hitCap {
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", e.UID,
				"cap", w.MaxOccurrencesPerEntry,
			)
		}
		perEntry[i] = occ
	}

	for i, e := range entries {
		if !e.IsOverride() || ov.used[i] {
			continue
		}
		if overlaps(e.Start, e.End, w.Start, w.End) {
			perEntry[i] = []Entry{instance(e, e.Start, e.End)}
		}
	}

	out := make([]Entry, 0, len(entries))
	for _, occ := range perEntry {
		out = append(out, occ...)
	}
	return out, nil
}

// overrideIndex groups overrides by UID and remembers which ones replaced
// an expanded instance.
type overrideIndex struct {
	byUID   map[string][]int
	entries []Entry
	used    []bool
}

// take returns the override of uid whose RECURRENCE-ID equals start and
// marks it as consumed.
func (ov *overrideIndex) take(uid string, start time.Time) (Entry, bool) {
	for _, i := range ov.byUID[uid] {
		o := ov.entries[i]
		if o.Recurrence != nil && o.Recurrence.Equal(start) {
			ov.used[i] = true
			return o, true
		}
	}
	return Entry{}, false
}

func expandSingle(e Entry, ov *overrideIndex, w Window) []Entry {
	if o, ok := ov.take(e.UID, e.Start); ok {
		e = o
	}
	if !overlaps(e.Start, e.End, w.Start, w.End) {
		return nil
	}
	return []Entry{instance(e, e.Start, e.End)}
}

func expandRecurring(e Entry, ov *overrideIndex, w Window) ([]Entry, bool) {
	r, err := rrule.StrToRRule(e.RawRRule)
	if err != nil {
		// An unusable rule still leaves the first instance displayable.
		appLog.Error("expand: failed to parse RRULE", err, "uid", e.UID, "rrule", e.RawRRule)
		return expandSingle(e, ov, w), false
	}

	var set rrule.Set
	set.DTStart(e.Start)
	r.DTStart(e.Start)
	set.RRule(r)
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(e.Start.Location()))
	}

	dur := e.End.Sub(e.Start)

	// Instances starting up to one duration before the window can still overlap it.
	from := w.Start.Add(-dur)

	// Instances are generated one at a time so that the cap bounds the work
	// as well as the result.
	next := set.Iterator()
	var out []Entry
	seen := 0
	for {
		s, ok := next()
		if !ok || !s.Before(w.End) {
			return out, false
		}
		if s.Before(from) {
			continue
		}
		if seen == w.MaxOccurrencesPerEntry {
			return out, true
		}
		seen++

		end := s.Add(dur)
		if e.AllDay {
			// Keep all-day instances on date boundaries across DST changes.
			days := int(dur.Hours()/24 + 0.5)
			end = s.AddDate(0, 0, days)
		}
		inst := e
		if o, ok := ov.take(e.UID, s); ok {
			inst = o
			s, end = o.Start, o.End
		}
		if !overlaps(s, end, w.Start, w.End) {
			continue
		}
		out = append(out, instance(inst, s, end))
	}
}

func instance(e Entry, start, end time.Time) Entry {
	e.Start = start
	e.End = end
	e.RawRRule = ""
	e.ExDates = nil
	e.Recurrence = nil
	return e
}

// overlaps tests [aStart, aEnd) against [bStart, bEnd). A zero-length
// a counts when it falls inside b.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aEnd.After(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
