package ics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	appLog "saganevents/internal/log"
)

// MediaType is the value sent in the Accept header of every fetch.
const MediaType = "text/calendar"

// StatusError reports a non-2xx response from the calendar source.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ics fetch: unexpected status %s", e.Status)
}

// Fetcher retrieves ICS documents over HTTP. It holds no state besides the
// client, so one Fetcher can serve concurrent callers.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher. A nil client means http.DefaultClient.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client}
}

// Fetch issues a GET for uri and returns the body of a 2xx response.
// Every call goes to the network.
func (f *Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("ics fetch: build request: %w", err)
	}
	req.Header.Set("Accept", MediaType)

	appLog.Debug("ics fetch start", "url", RedactURL(uri))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ics fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ics fetch: read body: %w", err)
	}

	appLog.Debug("ics fetch success", "url", RedactURL(uri), "status", resp.StatusCode, "bytes", len(body))
	return body, nil
}

// RedactURL hides the path and query of a calendar URL for logging; private
// feeds often carry tokens there.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "ics://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + redactedSuffix
}
