package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"saganevents/internal/events"
	appLog "saganevents/internal/log"
	"saganevents/internal/metrics"
	"saganevents/internal/model"
)

// EventFinder is the lookup the API serves.
type EventFinder interface {
	FindEvents(ctx context.Context, period model.Period) ([]model.Event, error)
}

// Options configures a Server.
type Options struct {
	// Location decides "today" when a request has no start date. If nil, UTC is used.
	Location *time.Location
	// DefaultDays is used when a request has no days parameter.
	DefaultDays int
	// Metrics, if non-nil, instruments the API and serves /metrics.
	Metrics *metrics.Metrics
	// Now is overridable for tests.
	Now func() time.Time
}

// Server provides the HTTP API the website reads events from.
type Server struct {
	finder EventFinder
	opts   Options
	router *mux.Router
}

// NewServer constructs a new Server.
func NewServer(finder EventFinder, opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DefaultDays <= 0 {
		opts.DefaultDays = 30
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		finder: finder,
		opts:   opts,
		router: mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	if s.opts.Metrics != nil {
		s.router.Use(s.opts.Metrics.Middleware(routeTemplate))
		s.router.Handle("/metrics", s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "other"
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events []EventDTO `json:"events"`
	Start  string     `json:"start"`
	Days   int        `json:"days"`
}

// EventDTO is the JSON-friendly view of model.Event. Zone carries the IANA
// name so clients can render the zoned time as the source meant it.
type EventDTO struct {
	Summary  string    `json:"summary"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Zone     string    `json:"zone"`
	Location string    `json:"location,omitempty"`
	Link     string    `json:"link,omitempty"`
}

// ToDTOs converts events into their JSON shape, preserving order.
func ToDTOs(evs []model.Event) []EventDTO {
	out := make([]EventDTO, 0, len(evs))
	for _, e := range evs {
		dto := EventDTO{
			Summary:  e.Summary,
			Start:    e.StartTime,
			End:      e.EndTime,
			Zone:     e.StartTime.Location().String(),
			Location: e.Location,
		}
		if e.Link != nil {
			dto.Link = e.Link.String()
		}
		out = append(out, dto)
	}
	return out
}

// handleEvents returns the events of the configured calendar for a period.
//
// GET /api/events?start=2020-05-01&days=30
//   - start: first day, YYYY-MM-DD (default: today in the configured zone)
//   - days:  period length, at most model.MaxDays (default: Options.DefaultDays)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	days := s.opts.DefaultDays
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > model.MaxDays {
			writeError(w, http.StatusBadRequest, "days must be an integer between 0 and "+strconv.Itoa(model.MaxDays))
			return
		}
		days = n
	}

	var (
		period model.Period
		err    error
	)
	if v := q.Get("start"); v != "" {
		period, err = model.ParsePeriod(v, days)
	} else {
		period, err = model.NewPeriod(s.opts.Now().In(s.opts.Location), days)
	}
	if err != nil {
		msg := "start must be a date in YYYY-MM-DD form"
		if errors.Is(err, model.ErrTooManyDays) || errors.Is(err, model.ErrNegativeDays) {
			msg = err.Error()
		}
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	evs, err := s.finder.FindEvents(r.Context(), period)
	if err != nil {
		var cfgErr *events.ConfigurationError
		var calErr *events.InvalidCalendarError
		switch {
		case errors.As(err, &cfgErr):
			writeError(w, http.StatusInternalServerError, cfgErr.Error())
		case errors.As(err, &calErr):
			writeError(w, http.StatusBadGateway, calErr.Error())
		default:
			appLog.Error("api events: lookup failed", err, "period", period.String())
			writeError(w, http.StatusInternalServerError, "failed to look up events")
		}
		return
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Events: ToDTOs(evs),
		Start:  period.StartDate(),
		Days:   period.Days(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// ListenAndServe serves h on addr until ctx is canceled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
