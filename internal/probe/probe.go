// Package probe periodically checks that the calendar source is reachable
// and parseable. Results only feed logs and metrics; request handling never
// sees them.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"saganevents/internal/events"
	appLog "saganevents/internal/log"
	"saganevents/internal/model"
)

// Finder is the lookup the probe exercises.
type Finder interface {
	FindEvents(ctx context.Context, period model.Period) ([]model.Event, error)
}

// Observer receives each probe result.
type Observer interface {
	ObserveProbe(events int, err error)
}

// Probe runs one lookup per schedule tick.
type Probe struct {
	finder   Finder
	observer Observer
	days     int
	loc      *time.Location
	timeout  time.Duration
	now      func() time.Time
}

// New creates a Probe looking up days days from today in loc. observer may be nil.
func New(finder Finder, observer Observer, days int, loc *time.Location) *Probe {
	if loc == nil {
		loc = time.UTC
	}
	return &Probe{
		finder:   finder,
		observer: observer,
		days:     days,
		loc:      loc,
		timeout:  time.Minute,
		now:      time.Now,
	}
}

// RunOnce performs a single lookup and reports it.
func (p *Probe) RunOnce(ctx context.Context) error {
	period, err := model.NewPeriod(p.now().In(p.loc), p.days)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	evs, err := p.finder.FindEvents(ctx, period)
	if p.observer != nil {
		p.observer.ObserveProbe(len(evs), err)
	}
	if err != nil {
		appLog.Error("calendar probe failed", err, "period", period.String())
		return err
	}
	appLog.Info("calendar probe ok", "period", period.String(), "event_count", len(evs))
	return nil
}

// Start schedules the probe on schedule (standard 5-field cron syntax) until ctx
// is canceled. The returned stop function waits for a running probe to end.
func (p *Probe) Start(ctx context.Context, schedule string) (stop func(), err error) {
	c := cron.New(cron.WithLocation(p.loc))
	_, err = c.AddFunc(schedule, func() {
		_ = p.RunOnce(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("probe: invalid schedule %q: %w", schedule, err)
	}
	c.Start()
	appLog.Info("calendar probe scheduled", "cron", schedule, "days", p.days)

	return func() {
		<-c.Stop().Done()
	}, nil
}

// IsConfigError reports whether err means the service has no calendar URI,
// in which case probing is pointless.
func IsConfigError(err error) bool {
	var cfgErr *events.ConfigurationError
	return errors.As(err, &cfgErr)
}
