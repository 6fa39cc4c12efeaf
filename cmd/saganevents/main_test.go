package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"saganevents/internal/events"
	"saganevents/internal/model"
	"saganevents/internal/probe"
)

const calendar = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Spring//Events//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:springio-2020@spring.io\r\n" +
	"SUMMARY:Spring IO conference\r\n" +
	"DTSTART;TZID=America/Los_Angeles:20200514T000000\r\n" +
	"DTEND;TZID=America/Los_Angeles:20200515T090000\r\n" +
	"URL:https://springio.net\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func writeConfig(t *testing.T, uri string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "timezone: America/Los_Angeles\nsagan:\n  site:\n    events:\n      calendar-uri: \"" + uri + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestParseFlags(t *testing.T) {
	got := parseFlags([]string{"-config", "/tmp/c.yaml", "-once", "-start", "2020-05-01", "-days", "30"})
	want := flagConfig{configPath: "/tmp/c.yaml", once: true, start: "2020-05-01", days: 30}
	if got != want {
		t.Errorf("parseFlags() = %+v, want %+v", got, want)
	}
}

func TestRunOnce_PrintsEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(calendar))
	}))
	defer srv.Close()

	var out bytes.Buffer
	flags := flagConfig{configPath: writeConfig(t, srv.URL+"/ical"), once: true, start: "2020-05-01", days: 30}
	if err := run(context.Background(), flags, &out); err != nil {
		t.Fatalf("run() returned an error: %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out.String())
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0]["summary"] != "Spring IO conference" || got[0]["start"] != "2020-05-14T00:00:00-07:00" || got[0]["zone"] != "America/Los_Angeles" {
		t.Errorf("unexpected event: %v", got[0])
	}
}

func TestRunOnce_WithoutCalendarURI(t *testing.T) {
	t.Setenv("SAGAN_SITE_EVENTS_CALENDAR_URI", "")
	flags := flagConfig{configPath: writeConfig(t, ""), once: true, start: "2020-01-01", days: 10}

	err := run(context.Background(), flags, &bytes.Buffer{})
	var cfgErr *events.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestRun_RejectsInvalidHTTPTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http:\n  timeout: soon\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	err := run(context.Background(), flagConfig{configPath: path, once: true}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "http.timeout") {
		t.Fatalf("expected http.timeout error, got %v", err)
	}
}

// slowFinder blocks every lookup until its context ends.
type slowFinder struct {
	started chan struct{}
}

func (f *slowFinder) FindEvents(ctx context.Context, _ model.Period) ([]model.Event, error) {
	select {
	case f.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStartProbe_DoesNotWaitForFirstLookup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finder := &slowFinder{started: make(chan struct{}, 1)}
	began := time.Now()
	stop, err := startProbe(ctx, probe.New(finder, nil, 1, time.UTC), "0 0 1 1 *")
	if err != nil {
		t.Fatalf("startProbe() returned an error: %v", err)
	}
	if elapsed := time.Since(began); elapsed > time.Second {
		t.Errorf("startProbe() blocked for %v", elapsed)
	}

	select {
	case <-finder.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first probe did not run")
	}
	cancel()
	stop()
}

func TestStartProbe_WithoutCalendarURI(t *testing.T) {
	service := events.NewService(events.Settings{}, nil, nil)
	stop, err := startProbe(context.Background(), probe.New(service, nil, 1, time.UTC), "@every 1h")
	if err != nil {
		t.Fatalf("startProbe() returned an error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}
}
