package ics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("failed to load location %s: %v", name, err)
	}
	return loc
}

func TestParse_Recurring(t *testing.T) {
	la := mustLoad(t, "America/Los_Angeles")

	entries, err := NewParser(nil).Parse(readFixture(t, "recurring.ics"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	base := entries[0]
	if base.UID != "office-hours@spring.io" {
		t.Errorf("unexpected UID: %s", base.UID)
	}
	if base.Start.Location().String() != "America/Los_Angeles" {
		t.Errorf("expected TZID location, got %s", base.Start.Location())
	}
	if !base.Start.Equal(time.Date(2020, 5, 5, 9, 0, 0, 0, la)) {
		t.Errorf("unexpected start: %v", base.Start)
	}
	if base.End.Sub(base.Start) != time.Hour {
		t.Errorf("expected DURATION to give a one hour event, got %v", base.End.Sub(base.Start))
	}
	if base.RawRRule != "FREQ=WEEKLY;COUNT=4" {
		t.Errorf("unexpected RRULE: %q", base.RawRRule)
	}
	wantEx := []time.Time{time.Date(2020, 5, 12, 9, 0, 0, 0, la)}
	if diff := cmp.Diff(wantEx, base.ExDates, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("EXDATE mismatch (-want +got):\n%s", diff)
	}
	if base.URL != "https://spring.io/office-hours" {
		t.Errorf("unexpected URL: %q", base.URL)
	}

	override := entries[1]
	if !override.IsOverride() {
		t.Fatal("expected second entry to be an override")
	}
	if !override.Recurrence.Equal(time.Date(2020, 5, 19, 9, 0, 0, 0, la)) {
		t.Errorf("unexpected RECURRENCE-ID: %v", override.Recurrence)
	}

	holiday := entries[2]
	if !holiday.AllDay {
		t.Error("expected VALUE=DATE entry to be all-day")
	}
	if holiday.End.Sub(holiday.Start) != 24*time.Hour {
		t.Errorf("expected all-day entry without DTEND to last one day, got %v", holiday.End.Sub(holiday.Start))
	}

	floating := entries[3]
	if floating.Start.Location() != time.UTC {
		t.Errorf("floating time should use the default location, got %s", floating.Start.Location())
	}
	if floating.Location != "Online; see link" {
		t.Errorf("expected unescaped location, got %q", floating.Location)
	}
}

func TestParse_FloatingTimesUseDefaultLocation(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")

	entries, err := NewParser(berlin).Parse(readFixture(t, "recurring.ics"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := entries[3].Start
	if !got.Equal(time.Date(2020, 6, 1, 19, 0, 0, 0, berlin)) {
		t.Errorf("unexpected floating start: %v", got)
	}
	// TZID values are not affected by the default.
	if entries[0].Start.Location().String() != "America/Los_Angeles" {
		t.Errorf("TZID start should keep its zone, got %s", entries[0].Start.Location())
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"empty", nil},
		{"whitespace", []byte("  \r\n")},
		{"not a calendar", []byte("this is not\nan iCalendar document\n")},
		{"bad DTSTART", readFixture(t, "bad-dtstart.ics")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(nil).Parse(tt.body)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestParse_EmptyCalendar(t *testing.T) {
	entries, err := NewParser(nil).Parse(readFixture(t, "empty-calendar.ics"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"PT1H", time.Hour, false},
		{"PT1H30M", 90 * time.Minute, false},
		{"P1D", 24 * time.Hour, false},
		{"P1DT2H", 26 * time.Hour, false},
		{"P2W", 14 * 24 * time.Hour, false},
		{"+PT15S", 15 * time.Second, false},
		{"-PT5M", -5 * time.Minute, false},
		{"P", 0, true},
		{"PT", 0, true},
		{"P1H", 0, true},
		{"PT1D", 0, true},
		{"1H", 0, true},
		{"PT5", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
