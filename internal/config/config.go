package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"saganevents/internal/model"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// EnvCalendarURI overrides sagan.site.events.calendar-uri when set.
const EnvCalendarURI = "SAGAN_SITE_EVENTS_CALENDAR_URI"

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the events API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone that anchors requested periods and
	// resolves floating times (e.g. "America/Los_Angeles").
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of "debug", "info", "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	Sagan SaganConfig `yaml:"sagan" json:"sagan"`

	Events EventsConfig `yaml:"events" json:"events"`

	HTTP HTTPConfig `yaml:"http" json:"http"`
}

// SaganConfig mirrors the sagan.site.* key hierarchy.
type SaganConfig struct {
	Site SiteConfig `yaml:"site" json:"site"`
}

type SiteConfig struct {
	Events SiteEventsConfig `yaml:"events" json:"events"`
}

type SiteEventsConfig struct {
	// CalendarURI is the iCalendar source. Empty is allowed at load time;
	// lookups fail until it is set.
	CalendarURI string `yaml:"calendar-uri" json:"calendar-uri"`
}

// EventsConfig controls lookup behavior.
type EventsConfig struct {
	// Filter is "overlap" (default) or "none".
	Filter string `yaml:"filter" json:"filter"`

	// DefaultDays is the period length used when a request omits it.
	DefaultDays int `yaml:"default_days" json:"default_days"`

	// ProbeCron is a cron-style schedule string (e.g. "*/15 * * * *") for
	// the availability probe. Empty disables the probe.
	ProbeCron string `yaml:"probe_cron" json:"probe_cron"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	// Timeout is a Go duration string. Empty keeps the transport default
	// (no client-side timeout).
	Timeout string `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "UTC",
		LogLevel: "info",
		Events: EventsConfig{
			Filter:      "overlap",
			DefaultDays: 30,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Events.Filter = strings.ToLower(strings.TrimSpace(c.Events.Filter))
	if c.Events.Filter == "" {
		c.Events.Filter = "overlap"
	}
	if c.Events.DefaultDays <= 0 {
		c.Events.DefaultDays = 30
	}
	c.Sagan.Site.Events.CalendarURI = strings.TrimSpace(c.Sagan.Site.Events.CalendarURI)
}

// Validate reports settings that cannot be used. It does not require a
// calendar URI.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	switch c.Events.Filter {
	case "overlap", "none":
	default:
		errs = append(errs, fmt.Errorf("events.filter %q: must be overlap or none", c.Events.Filter))
	}
	if c.Events.DefaultDays > model.MaxDays {
		errs = append(errs, fmt.Errorf("events.default_days %d: must not exceed %d", c.Events.DefaultDays, model.MaxDays))
	}
	if c.Events.ProbeCron != "" {
		if _, err := cron.ParseStandard(c.Events.ProbeCron); err != nil {
			errs = append(errs, fmt.Errorf("events.probe_cron %q: %w", c.Events.ProbeCron, err))
		}
	}
	if _, err := c.HTTPTimeout(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location returns the configured timezone, or UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HTTPTimeout parses HTTP.Timeout. Zero means no client-side timeout.
func (c *Config) HTTPTimeout() (time.Duration, error) {
	if c.HTTP.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.HTTP.Timeout)
	if err != nil {
		return 0, fmt.Errorf("http.timeout %q: %w", c.HTTP.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("http.timeout %q: must not be negative", c.HTTP.Timeout)
	}
	return d, nil
}

// applyEnv lets deployment environments inject the calendar URI.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvCalendarURI); ok {
		c.Sagan.Site.Events.CalendarURI = strings.TrimSpace(v)
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//   - In both cases the environment override is applied and the result
//     validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			// Even if save fails, return cfg with error so caller can decide.
			cfg.applyEnv()
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Normalize()
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".saganevents-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
