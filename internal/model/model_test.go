package model

import (
	"errors"
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2020-05-01", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.StartDate() != "2020-05-01" {
		t.Errorf("expected start date 2020-05-01, got %s", p.StartDate())
	}
	if p.Days() != 30 {
		t.Errorf("expected 30 days, got %d", p.Days())
	}
	if p.String() != "2020-05-01+30d" {
		t.Errorf("unexpected String(): %s", p.String())
	}
}

func TestParsePeriod_Invalid(t *testing.T) {
	if _, err := ParsePeriod("2020-13-01", 1); err == nil {
		t.Error("expected error for invalid month")
	}
	if _, err := ParsePeriod("2020-05-01", -1); !errors.Is(err, ErrNegativeDays) {
		t.Errorf("expected ErrNegativeDays, got %v", err)
	}
}

func TestNewPeriod_DayLimit(t *testing.T) {
	start := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	if _, err := NewPeriod(start, MaxDays); err != nil {
		t.Errorf("MaxDays should be accepted, got %v", err)
	}
	for _, days := range []int{MaxDays + 1, int(^uint(0) >> 1)} {
		if _, err := NewPeriod(start, days); !errors.Is(err, ErrTooManyDays) {
			t.Errorf("days=%d: expected ErrTooManyDays, got %v", days, err)
		}
	}
}

func TestNewPeriod_UsesCalendarDateOfStart(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 2020-05-01 01:00 in Tokyo is still April 30 in UTC.
	p, err := NewPeriod(time.Date(2020, 5, 1, 1, 0, 0, 0, tokyo), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.StartDate() != "2020-05-01" {
		t.Errorf("expected 2020-05-01, got %s", p.StartDate())
	}
}

func TestPeriod_Bounds(t *testing.T) {
	p, _ := ParsePeriod("2020-03-07", 2)
	la := time.FixedZone("PST", -8*60*60)

	start, end := p.Bounds(la)
	if !start.Equal(time.Date(2020, 3, 7, 0, 0, 0, 0, la)) {
		t.Errorf("unexpected start: %v", start)
	}
	if !end.Equal(time.Date(2020, 3, 9, 0, 0, 0, 0, la)) {
		t.Errorf("unexpected end: %v", end)
	}

	start, end = p.Bounds(nil)
	if start.Location() != time.UTC || end.Sub(start) != 48*time.Hour {
		t.Errorf("nil location should mean UTC, got %v..%v", start, end)
	}
}
