package events

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"saganevents/internal/ics"
	appLog "saganevents/internal/log"
	"saganevents/internal/model"
)

// CalendarURIKey is the configuration key that names the calendar source.
const CalendarURIKey = "sagan.site.events.calendar-uri"

// Filter selects how a Period bounds the returned events.
type Filter string

const (
	// FilterOverlap expands recurrences and keeps occurrences overlapping the period.
	FilterOverlap Filter = "overlap"
	// FilterNone returns every entry of the document as-is.
	FilterNone Filter = "none"
)

// Lookup outcomes reported to the Recorder.
const (
	OutcomeOK          = "ok"
	OutcomeConfig      = "config_error"
	OutcomeUnavailable = "unavailable"
	OutcomeUnparseable = "unparseable"
)

// Source fetches the raw calendar document.
type Source interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Recorder receives one observation per lookup.
type Recorder interface {
	ObserveLookup(outcome string, fetch time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLookup(string, time.Duration) {}

// Settings is the immutable configuration of a Service.
type Settings struct {
	CalendarURI string
	// Location anchors Period bounds. If nil, UTC is used.
	Location *time.Location
	// Filter defaults to FilterOverlap.
	Filter Filter
}

// Service looks up calendar events. It keeps no state between calls and is
// safe for concurrent use.
type Service struct {
	settings Settings
	source   Source
	parser   ics.Parser
	recorder Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder reports lookup outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewService creates a Service. Nil source and parser fall back to an
// ics.Fetcher on http.DefaultClient and an ics.LibParser in settings.Location.
func NewService(settings Settings, source Source, parser ics.Parser, opts ...Option) *Service {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.Filter == "" {
		settings.Filter = FilterOverlap
	}
	if source == nil {
		source = ics.NewFetcher(nil)
	}
	if parser == nil {
		parser = ics.NewParser(settings.Location)
	}
	s := &Service{
		settings: settings,
		source:   source,
		parser:   parser,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindEvents fetches the configured calendar and returns its events for
// period, in document order. Every call re-fetches the document.
func (s *Service) FindEvents(ctx context.Context, period model.Period) ([]model.Event, error) {
	uri := strings.TrimSpace(s.settings.CalendarURI)
	if uri == "" {
		s.recorder.ObserveLookup(OutcomeConfig, 0)
		return nil, &ConfigurationError{Key: CalendarURIKey}
	}
	began := time.Now()
	body, err := s.source.Fetch(ctx, uri)
	took := time.Since(began)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		s.recorder.ObserveLookup(OutcomeUnavailable, took)
		appLog.Error("calendar fetch failed", err, "url", ics.RedactURL(uri))
		return nil, &InvalidCalendarError{Reason: ReasonUnavailable, Err: err}
	}

	entries, err := s.parser.Parse(body)
	if err != nil {
		s.recorder.ObserveLookup(OutcomeUnparseable, took)
		appLog.Error("calendar parse failed", err, "url", ics.RedactURL(uri), "bytes", len(body))
		return nil, &InvalidCalendarError{Reason: ReasonUnparseable, Err: err}
	}

	if s.settings.Filter == FilterOverlap {
		start, end := period.Bounds(s.settings.Location)
		entries, err = ics.Expand(entries, ics.Window{Start: start, End: end})
		if err != nil {
			return nil, err
		}
	}

	out := make([]model.Event, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEvent(e))
	}

	s.recorder.ObserveLookup(OutcomeOK, took)
	appLog.Info("calendar lookup completed", "period", period.String(), "event_count", len(out))
	return out, nil
}

func toEvent(e ics.Entry) model.Event {
	return model.Event{
		Summary:   e.Summary,
		StartTime: e.Start,
		EndTime:   e.End,
		Location:  e.Location,
		Link:      parseLink(e.URL),
	}
}

// parseLink keeps only absolute http(s) URLs.
func parseLink(raw string) *url.URL {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		appLog.Debug("ignoring unusable event URL", "url", raw)
		return nil
	}
	return u
}
