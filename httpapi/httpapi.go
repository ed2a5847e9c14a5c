// Package httpapi exposes the tracker over HTTP: manual runs, health,
// quality reports, schedule management and price queries.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quellen/pricewatch/health"
	"github.com/quellen/pricewatch/schedule"
	"github.com/quellen/pricewatch/store"
	"github.com/quellen/pricewatch/tracker"
)

// Server wires the HTTP handlers to the tracker's components. Runner is
// optional: with one, POST /runs hands off to the scheduler; without,
// it runs the cycle inline.
type Server struct {
	store   *store.Store
	tracker *tracker.Service
	monitor *health.Monitor
	runner  *schedule.Runner
	logger  *slog.Logger
}

// New creates the API server. A nil logger defaults to slog.Default.
func New(st *store.Store, tr *tracker.Service, mon *health.Monitor, run *schedule.Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: st, tracker: tr, monitor: mon, runner: run, logger: logger}
}

// Router returns a ready-to-serve handler with the standard middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the API endpoints on an existing router.
func (s *Server) RegisterHTTP(r chi.Router) {
	r.Post("/api/v1/runs", s.handleRun)
	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/report", s.handleReport)
	r.Get("/api/v1/schedule", s.handleGetSchedule)
	r.Put("/api/v1/schedule", s.handlePutSchedule)
	r.Get("/api/v1/prices/latest", s.handleLatestPrices)
	r.Get("/api/v1/prices/{product_id}/{retailer_id}", s.handlePriceHistory)
	r.Get("/api/v1/attempts", s.handleAttempts)
}

// handleRun triggers a scrape cycle.
// POST /api/v1/runs
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runner != nil {
		s.runner.TriggerNow()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
		return
	}

	sum, err := s.tracker.RunCycle(r.Context())
	if err != nil {
		s.logger.Error("api: run cycle", "error", err)
		http.Error(w, "cycle failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleHealth reports operational status. Unhealthy answers 503 so
// load balancers and uptime checks fail over without parsing the body.
// GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := s.monitor.Check(r.Context())
	code := http.StatusOK
	if rep.Status == health.Unhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// handleReport returns the data-quality snapshot.
// GET /api/v1/report
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.tracker.Report(r.Context())
	if err != nil {
		s.logger.Error("api: report", "error", err)
		http.Error(w, "report unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GET /api/v1/schedule
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.ScheduleConfig(r.Context())
	if err != nil {
		s.logger.Error("api: read schedule", "error", err)
		http.Error(w, "schedule unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// SchedulePutRequest is the body for PUT /api/v1/schedule.
type SchedulePutRequest struct {
	Enabled  bool   `json:"enabled"`
	RunAt    string `json:"run_at"`
	Timezone string `json:"timezone"`
}

// handlePutSchedule replaces the schedule config. The run time and zone
// are validated by computing a firing from them before saving.
// PUT /api/v1/schedule
func (s *Server) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	var req SchedulePutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RunAt == "" || req.Timezone == "" {
		http.Error(w, "run_at and timezone required", http.StatusBadRequest)
		return
	}
	if _, err := schedule.NextRun(time.Now(), req.RunAt, req.Timezone); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sc := &store.Schedule{Enabled: req.Enabled, RunAt: req.RunAt, Timezone: req.Timezone}
	if err := s.store.SaveScheduleConfig(r.Context(), sc); err != nil {
		s.logger.Error("api: save schedule", "error", err)
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// handleLatestPrices returns the newest observation per mapped pair.
// GET /api/v1/prices/latest
func (s *Server) handleLatestPrices(w http.ResponseWriter, r *http.Request) {
	obs, err := s.store.LatestPrices(r.Context())
	if err != nil {
		s.logger.Error("api: latest prices", "error", err)
		http.Error(w, "prices unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": obs, "count": len(obs)})
}

// handlePriceHistory returns one pair's observations, newest first.
// GET /api/v1/prices/{product_id}/{retailer_id}?hours=168
func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	retailerID := chi.URLParam(r, "retailer_id")
	since := time.Now().Add(-queryHours(r, 168))

	obs, err := s.store.PriceHistory(r.Context(), productID, retailerID, since)
	if err != nil {
		s.logger.Error("api: price history", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": obs, "count": len(obs)})
}

// handleAttempts returns the recent attempt log.
// GET /api/v1/attempts?hours=24&limit=100
func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-queryHours(r, 24))
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	attempts, err := s.store.Attempts(r.Context(), since, limit)
	if err != nil {
		s.logger.Error("api: attempts", "error", err)
		http.Error(w, "attempts unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts, "count": len(attempts)})
}

// queryHours reads an ?hours= window with a default.
func queryHours(r *http.Request, def int) time.Duration {
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return time.Duration(n) * time.Hour
		}
	}
	return time.Duration(def) * time.Hour
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
