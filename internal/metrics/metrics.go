package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "saganevents"

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	lookups       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	probeEvents   prometheus.Gauge
	probeUp       prometheus.Gauge
	requests      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. reg must also be a
// prometheus.Gatherer (a *prometheus.Registry is) for Handler to serve them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Calendar lookups by outcome.",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching the calendar document.",
			Buckets:   prometheus.DefBuckets,
		}),
		probeEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_events",
			Help:      "Events returned by the last availability probe.",
		}),
		probeUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_up",
			Help:      "1 if the last availability probe succeeded, 0 otherwise.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(m.lookups, m.fetchDuration, m.probeEvents, m.probeUp, m.requests)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// ObserveLookup records one calendar lookup. A zero fetch duration means no
// fetch happened.
func (m *Metrics) ObserveLookup(outcome string, fetch time.Duration) {
	m.lookups.WithLabelValues(outcome).Inc()
	if fetch > 0 {
		m.fetchDuration.Observe(fetch.Seconds())
	}
}

// ObserveProbe records the result of an availability probe.
func (m *Metrics) ObserveProbe(events int, err error) {
	if err != nil {
		m.probeUp.Set(0)
		return
	}
	m.probeUp.Set(1)
	m.probeEvents.Set(float64(events))
}

// Handler serves the registered collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	if !rw.written {
		rw.statusCode = statusCode
		rw.written = true
		rw.ResponseWriter.WriteHeader(statusCode)
	}
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Middleware counts requests by route. routeOf maps a request to a bounded
// route label (e.g. the router's path template).
func (m *Metrics) Middleware(routeOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			m.requests.WithLabelValues(routeOf(r), strconv.Itoa(rw.statusCode)).Inc()
		})
	}
}
