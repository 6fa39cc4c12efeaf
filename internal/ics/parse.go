package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "saganevents/internal/log"
)

// ErrMalformed is returned (wrapped) for any body that is not usable iCalendar data.
var ErrMalformed = errors.New("ics: malformed calendar data")

// Entry is the raw projection of one VEVENT. Expansion and display mapping
// operate on this type.
type Entry struct {
	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	URL         string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, if present
}

// IsOverride reports whether the entry replaces one instance of a recurring entry.
func (e Entry) IsOverride() bool {
	return e.Recurrence != nil
}

// Parser turns a calendar document into entries, in document order.
type Parser interface {
	Parse(body []byte) ([]Entry, error)
}

// LibParser is the Parser backed by github.com/arran4/golang-ical.
type LibParser struct {
	// DefaultLocation applies to floating times (no TZID, no Z suffix).
	// If nil, UTC is used.
	DefaultLocation *time.Location
}

// NewParser returns a LibParser resolving floating times in loc.
func NewParser(loc *time.Location) *LibParser {
	return &LibParser{DefaultLocation: loc}
}

// Parse parses a single ICS payload. Any VEVENT that cannot be projected
// fails the whole document; no partial results are returned.
func (p *LibParser) Parse(body []byte) ([]Entry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	loc := p.DefaultLocation
	if loc == nil {
		loc = time.UTC
	}

	vevents := cal.Events()
	entries := make([]Entry, 0, len(vevents))
	for i, ve := range vevents {
		e, perr := parseVEvent(ve, loc)
		if perr != nil {
			return nil, fmt.Errorf("%w: vevent %d: %w", ErrMalformed, i, perr)
		}
		entries = append(entries, e)
	}

	appLog.Debug("ics parse completed", "event_count", len(entries))
	return entries, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (Entry, error) {
	var out Entry

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		out.URL = strings.TrimSpace(p.Value)
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := parseTimeProp(dtStart, loc)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start
	out.AllDay = allDay

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		end, _, err := parseTimeProp(ve.GetProperty(ical.ComponentPropertyDtEnd), loc)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
	case ve.GetProperty(ical.ComponentProperty("DURATION")) != nil:
		d, err := parseDuration(ve.GetProperty(ical.ComponentProperty("DURATION")).Value)
		if err != nil {
			return out, fmt.Errorf("DURATION: %w", err)
		}
		out.End = start.Add(d)
	case allDay:
		out.End = start.AddDate(0, 0, 1)
	default:
		out.End = start
	}
	if out.End.Before(out.Start) {
		return out, errors.New("DTEND before DTSTART")
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	// EXDATE may appear multiple times, each with a comma-separated list.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		tzid := paramValue(p, "TZID")
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, _, err := parseTimeValue(part, tzid, loc)
			if err != nil {
				return out, fmt.Errorf("EXDATE: %w", err)
			}
			out.ExDates = append(out.ExDates, t)
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		t, _, err := parseTimeProp(p, loc)
		if err != nil {
			return out, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		out.Recurrence = &t
	}

	return out, nil
}

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\;`, ";", `\,`, ",", `\n`, "\n", `\N`, "\n")

// unescapeText undoes RFC 5545 TEXT escaping. Values the library already
// unescaped pass through unchanged unless they contain literal backslashes.
func unescapeText(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	return textUnescaper.Replace(v)
}

func paramValue(p *ical.IANAProperty, name string) string {
	if p.ICalParameters == nil {
		return ""
	}
	if vs, ok := p.ICalParameters[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// parseTimeProp parses a DATE or DATE-TIME property, honoring TZID and VALUE=DATE.
func parseTimeProp(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	t, allDay, err := parseTimeValue(p.Value, paramValue(p, "TZID"), loc)
	if err != nil {
		return t, false, err
	}
	if strings.EqualFold(paramValue(p, "VALUE"), "DATE") {
		allDay = true
	}
	return t, allDay, nil
}

// parseTimeValue parses the three RFC 5545 forms: UTC date-time (Z suffix),
// local date-time (TZID or floating), and date-only.
func parseTimeValue(v, tzid string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	if tzid != "" {
		tz, err := time.LoadLocation(tzid)
		if err != nil {
			appLog.Error("ics: unknown TZID; using default location", err, "tzid", tzid)
		} else {
			loc = tz
		}
	}

	switch {
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	case strings.Contains(v, "T"):
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	}
}

// parseDuration parses an RFC 5545 dur-value such as P1D, PT1H30M or -P2W.
func parseDuration(v string) (time.Duration, error) {
	s := strings.TrimSpace(v)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T':
			if inTime || num != "" {
				return 0, fmt.Errorf("invalid duration %q", v)
			}
			inTime = true
			continue
		}
		if num == "" {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", v, err)
		}
		num = ""
		var unit time.Duration
		switch {
		case r == 'W' && !inTime:
			unit = 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			unit = 24 * time.Hour
		case r == 'H' && inTime:
			unit = time.Hour
		case r == 'M' && inTime:
			unit = time.Minute
		case r == 'S' && inTime:
			unit = time.Second
		default:
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		total += time.Duration(n) * unit
	}
	if num != "" {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	if neg {
		total = -total
	}
	return total, nil
}
