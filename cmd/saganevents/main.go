package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"saganevents/internal/config"
	"saganevents/internal/events"
	"saganevents/internal/ics"
	appLog "saganevents/internal/log"
	"saganevents/internal/metrics"
	"saganevents/internal/model"
	"saganevents/internal/probe"
	"saganevents/internal/web"
)

var version = "0.1.0-dev"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	start      string
	days       int
}

func main() {
	flags := parseFlags(os.Args[1:])

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, flags, os.Stdout); err != nil {
		appLog.Error("saganevents failed", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) flagConfig {
	var cfg flagConfig

	fs := flag.NewFlagSet("saganevents", flag.ExitOnError)
	fs.StringVar(&cfg.configPath, "config", "/etc/saganevents/config.yaml", "Path to config file")
	fs.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	fs.BoolVar(&cfg.once, "once", false, "Look up events once, print them as JSON and exit")
	fs.StringVar(&cfg.start, "start", "", "First day for -once, YYYY-MM-DD (default: today)")
	fs.IntVar(&cfg.days, "days", 0, "Number of days for -once (default: events.default_days)")
	_ = fs.Parse(args)

	return cfg
}

func run(ctx context.Context, flags flagConfig, stdout io.Writer) error {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}

	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Error("invalid log level; using INFO", err, "log_level", conf.LogLevel)
	}
	appLog.SetLevel(level)

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	timeout, err := conf.HTTPTimeout()
	if err != nil {
		return err
	}
	loc := conf.Location()

	appLog.Info("saganevents starting",
		"version", version,
		"listen", conf.Listen,
		"timezone", loc.String(),
		"calendar_uri", ics.RedactURL(conf.Sagan.Site.Events.CalendarURI),
		"filter", conf.Events.Filter,
		"probe_cron", conf.Events.ProbeCron,
		"once", flags.once,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	service := events.NewService(
		events.Settings{
			CalendarURI: conf.Sagan.Site.Events.CalendarURI,
			Location:    loc,
			Filter:      events.Filter(conf.Events.Filter),
		},
		ics.NewFetcher(&http.Client{Timeout: timeout}),
		ics.NewParser(loc),
		events.WithRecorder(m),
	)

	if flags.once {
		return runOnce(ctx, service, flags, conf.Events.DefaultDays, loc, stdout)
	}

	if conf.Events.ProbeCron != "" {
		stop, err := startProbe(ctx, probe.New(service, m, conf.Events.DefaultDays, loc), conf.Events.ProbeCron)
		if err != nil {
			return err
		}
		defer stop()
	}

	srv := web.NewServer(service, web.Options{
		Location:    loc,
		DefaultDays: conf.Events.DefaultDays,
		Metrics:     m,
	})
	if err := web.ListenAndServe(ctx, conf.Listen, srv.Handler()); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	appLog.Info("saganevents exiting")
	return nil
}

// startProbe schedules p and runs a first probe in the background so a slow
// calendar source does not hold up the HTTP server. The schedule is dropped
// once the first probe shows that no calendar URI is configured.
func startProbe(ctx context.Context, p *probe.Probe, schedule string) (stop func(), err error) {
	stopCron, err := p.Start(ctx, schedule)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	stop = func() { once.Do(stopCron) }

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.RunOnce(ctx); probe.IsConfigError(err) {
			appLog.Info("calendar probe disabled until a calendar URI is configured", "key", events.CalendarURIKey)
			stop()
		}
	}()
	return func() {
		stop()
		<-done
	}, nil
}

func runOnce(ctx context.Context, finder web.EventFinder, flags flagConfig, defaultDays int, loc *time.Location, stdout io.Writer) error {
	days := flags.days
	if days == 0 {
		days = defaultDays
	}

	var (
		period model.Period
		err    error
	)
	if flags.start != "" {
		period, err = model.ParsePeriod(flags.start, days)
	} else {
		period, err = model.NewPeriod(time.Now().In(loc), days)
	}
	if err != nil {
		return err
	}

	evs, err := finder.FindEvents(ctx, period)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(web.ToDTOs(evs))
}
