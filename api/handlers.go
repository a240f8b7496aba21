package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/topstories/backend/internal/analytics"
	"github.com/DeafMist/topstories/backend/internal/config"
	"github.com/DeafMist/topstories/backend/internal/elasticsearch"
	"github.com/DeafMist/topstories/backend/internal/metrics"
	"github.com/DeafMist/topstories/backend/internal/processing"
	"github.com/DeafMist/topstories/backend/internal/topstories"
)

type storyFetcher interface {
	Fetch(ctx context.Context, section string) (json.RawMessage, error)
}

type recordSearcher interface {
	SearchRecords(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
}

type server struct {
	log      *slog.Logger
	cfg      *config.API
	stories  storyFetcher
	search   recordSearcher
	metrics  *metrics.Metrics
	recorder *analytics.Recorder
	debug    bool
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.debug {
		r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  slog.NewLogLogger(s.log.Handler(), slog.LevelDebug),
			NoColor: true,
		}))
	}
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	if s.cfg.Variant == config.VariantGreeting {
		r.Get("/*", s.handleGreeting)
		return r
	}

	if s.search != nil {
		r.Get("/analytics", s.handleAnalytics)
	}

	r.Get("/help", s.handleHelp)

	r.Group(func(r chi.Router) {
		r.Use(s.recorder.Middleware)
		r.Get("/", s.handleSection)
		r.Get("/{section}", s.handleSection)
	})

	return r
}

func (s *server) handleSection(w http.ResponseWriter, r *http.Request) {
	section := chi.URLParam(r, "section")
	if section == "" {
		section = topstories.DefaultSection
	}

	if !processing.IsCurl(r.UserAgent()) {
		http.Redirect(w, r, s.cfg.PagesURL+"/"+section, http.StatusFound)
		return
	}

	results, err := s.stories.Fetch(r.Context(), section)
	if err != nil {
		if errors.Is(err, topstories.ErrInvalidSection) {
			s.log.Info("invalid section requested", slog.String("section", section))
			writeText(w, http.StatusBadRequest, invalidSectionText())
			return
		}
		s.log.Error("fetch top stories",
			slog.String("section", section),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("err", err),
		)
		writeText(w, http.StatusInternalServerError, errorText())
		return
	}

	body := "null"
	if results != nil {
		body = string(results)
	}
	writeText(w, http.StatusOK, body+"\n")
}

func (s *server) handleHelp(w http.ResponseWriter, r *http.Request) {
	if processing.IsCurl(r.UserAgent()) {
		writeText(w, http.StatusOK, helpText())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sections": topstories.Sections()})
}

func (s *server) handleGreeting(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, greetingText())
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "variant": s.cfg.Variant})
}

func (s *server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Section: strings.TrimSpace(q.Get("section")),
		Curl:    parseBool(q.Get("curl")),
		Status:  clampInt(q.Get("status"), 0, 599),
		From:    clampInt(q.Get("from"), 0, 10_000),
		Size:    clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:    strings.TrimSpace(q.Get("sort")),
		Start:   parseTime(q.Get("start")),
		End:     parseTime(q.Get("end")),
	}

	if params.Section != "" && !topstories.IsValidSection(params.Section) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown section " + strconv.Quote(params.Section)})
		return
	}

	result, err := s.search.SearchRecords(ctx, params)
	if err != nil {
		s.log.Error("search analytics",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("err", err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: analyticsErrorMessage})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func parseBool(raw string) *bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
