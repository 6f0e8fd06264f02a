package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"almanac/internal/almanac"
	"almanac/internal/auth"
	"almanac/internal/catalog"
	"almanac/internal/config"
	"almanac/internal/feast"
	appLog "almanac/internal/log"
	"almanac/internal/model"
	"almanac/internal/render"
)

// Years outside this range are rejected; the Gregorian Easter rule starts
// in 1583 and model.Date prints four-digit years.
const (
	minYear = 1583
	maxYear = 9999
)

// Server provides the almanac HTTP API.
type Server struct {
	cfg *config.Config
	cat *catalog.Catalog
	mux *http.ServeMux
	now func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, cat *catalog.Catalog) *Server {
	s := &Server{
		cfg: cfg,
		cat: cat,
		mux: http.NewServeMux(),
		now: time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// StartServer serves the API on cfg.Listen until ctx is canceled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, cat *catalog.Catalog) error {
	s := NewServer(cfg, cat)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen, "auth", cfg.AuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/countries", s.handleCountries)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/tags", s.handleTags)
	s.mux.HandleFunc("GET /api/easter", s.handleEaster)
	s.mux.HandleFunc("GET /api/export.ics", s.handleExport(render.FormatICS))
	s.mux.HandleFunc("GET /api/export.csv", s.handleExport(render.FormatCSV))

	var reload http.Handler = http.HandlerFunc(s.handleReload)
	if s.cfg != nil && s.cfg.AuthEnabled() {
		reload = auth.BasicAuth("almanac", s.cfg.BasicAuth.Username, s.cfg.BasicAuth.PasswordHash, reload)
	} else {
		appLog.Warn("POST /api/reload is not protected; set basic_auth to require credentials")
	}
	s.mux.Handle("POST /api/reload", reload)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleCountries(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cat.Countries())
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Country       string             `json:"country"`
	Year          int                `json:"year"`
	Occurrences   []model.Occurrence `json:"occurrences"`
	AvailableTags []string           `json:"available_tags"`
	Diagnostics   []diagnosticDTO    `json:"diagnostics"`
}

type diagnosticDTO struct {
	TemplateID string `json:"template_id"`
	Error      string `json:"error"`
}

// eventsQuery is the parsed query string shared by the events endpoints.
type eventsQuery struct {
	country  string
	year     int
	criteria almanac.Criteria
}

// parseEventsQuery reads country, year, category, tags and q. It writes
// the error response itself and returns false on bad input.
//
// GET /api/events?country=JM&year=2026&category=cultural&tags=music,carnival&q=marley
func (s *Server) parseEventsQuery(w http.ResponseWriter, r *http.Request) (eventsQuery, bool) {
	q := r.URL.Query()

	country := strings.ToUpper(strings.TrimSpace(q.Get("country")))
	if country == "" && s.cfg != nil {
		country = s.cfg.DefaultCountry
	}

	year, err := parseYear(q.Get("year"), s.now().Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return eventsQuery{}, false
	}

	if _, err := s.cat.Stats(); errors.Is(err, catalog.ErrNotLoaded) {
		writeError(w, http.StatusServiceUnavailable, "templates not loaded")
		return eventsQuery{}, false
	}
	if !s.cat.HasCountry(country) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown country %q", country))
		return eventsQuery{}, false
	}

	var tags []string
	for _, v := range q["tags"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	return eventsQuery{
		country: country,
		year:    year,
		criteria: almanac.Criteria{
			Category: strings.TrimSpace(q.Get("category")),
			Tags:     tags,
			Search:   strings.TrimSpace(q.Get("q")),
		},
	}, true
}

func (s *Server) expand(w http.ResponseWriter, eq eventsQuery) (almanac.Result, bool) {
	res, err := s.cat.Events(eq.country, eq.year)
	if err != nil {
		appLog.Error("api events: expansion unavailable", err, "country", eq.country, "year", eq.year)
		writeError(w, http.StatusServiceUnavailable, "templates not loaded")
		return almanac.Result{}, false
	}
	return res, true
}

// handleEvents returns the filtered occurrences of one country and year.
// available_tags is computed before filtering so a UI can offer every tag.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	eq, ok := s.parseEventsQuery(w, r)
	if !ok {
		return
	}
	res, ok := s.expand(w, eq)
	if !ok {
		return
	}

	diags := make([]diagnosticDTO, 0, len(res.Diagnostics))
	for _, d := range res.Diagnostics {
		diags = append(diags, diagnosticDTO{TemplateID: d.TemplateID, Error: d.Err.Error()})
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Country:       eq.country,
		Year:          eq.year,
		Occurrences:   almanac.FilterOccurrences(res.Occurrences, eq.criteria),
		AvailableTags: almanac.AvailableTags(res.Occurrences),
		Diagnostics:   diags,
	})
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	eq, ok := s.parseEventsQuery(w, r)
	if !ok {
		return
	}
	res, ok := s.expand(w, eq)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, almanac.AvailableTags(res.Occurrences))
}

func (s *Server) handleExport(f render.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eq, ok := s.parseEventsQuery(w, r)
		if !ok {
			return
		}
		res, ok := s.expand(w, eq)
		if !ok {
			return
		}

		occs := almanac.FilterOccurrences(res.Occurrences, eq.criteria)
		name := fmt.Sprintf("%s %d", eq.country, eq.year)

		w.Header().Set("Content-Type", f.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="almanac-%s-%d.%s"`, strings.ToLower(eq.country), eq.year, f))
		w.WriteHeader(http.StatusOK)
		if err := render.Write(w, f, name, occs); err != nil {
			appLog.Error("export write failed", err, "format", string(f))
		}
	}
}

type anchorDTO struct {
	Name   string     `json:"name"`
	Offset int        `json:"offset"`
	Date   model.Date `json:"date"`
}

type easterResponse struct {
	Year         int         `json:"year"`
	Easter       model.Date  `json:"easter"`
	AshWednesday model.Date  `json:"ash_wednesday"`
	Anchors      []anchorDTO `json:"anchors"`
}

func (s *Server) handleEaster(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r.URL.Query().Get("year"), s.now().Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	table := feast.Table(year)
	anchors := make([]anchorDTO, 0, len(table))
	for _, a := range feast.Anchors() {
		off, _ := feast.Offset(a)
		anchors = append(anchors, anchorDTO{Name: string(a), Offset: off, Date: table[a]})
	}

	writeJSON(w, http.StatusOK, easterResponse{
		Year:         year,
		Easter:       feast.Easter(year),
		AshWednesday: feast.AshWednesday(year),
		Anchors:      anchors,
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cat.Reload(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "reload failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseYear(v string, def int) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid year %q", v)
	}
	if n < minYear || n > maxYear {
		return 0, fmt.Errorf("year %d out of range [%d, %d]", n, minYear, maxYear)
	}
	return n, nil
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status,
			"duration", time.Since(start).String())
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
