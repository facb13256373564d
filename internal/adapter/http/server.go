package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/corona-data-service/internal/casedata"
)

// DatasetSource hands out the currently served dataset.
type DatasetSource interface {
	// Dataset returns the served dataset, or nil before the first load.
	Dataset() *casedata.Dataset
	// CheckReadiness reports whether the service is ready to serve traffic.
	CheckReadiness(ctx context.Context) error
}

// Server exposes the dataset query API plus health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	source     DatasetSource
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the query and operational routes.
func NewServer(addr string, source DatasetSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		source: source,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(source))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/days", s.handleDays)
	mux.HandleFunc("GET /v1/day", s.handleDay)
	mux.HandleFunc("GET /v1/region", s.handleRegion)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(source DatasetSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := source.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// dataset returns the served dataset, writing a 503 when none is loaded.
func (s *Server) dataset(w http.ResponseWriter) *casedata.Dataset {
	ds := s.source.Dataset()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset not loaded yet")
	}
	return ds
}

func (s *Server) handleDays(w http.ResponseWriter, _ *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":            ds.Days(),
		"first_day":       ds.FirstDay(),
		"last_day":        ds.LastDay(),
		"last_report_day": ds.LastReportDay(),
	})
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}

	q := casedata.DayQuery{
		Date:      r.URL.Query().Get("date"),
		GeoColumn: r.URL.Query().Get("by"),
	}
	if q.Date != "" {
		if _, err := time.Parse(casedata.DateLayout, q.Date); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	if v := r.URL.Query().Get("repday"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "repday must be a positive integer")
			return
		}
		q.ReportDay = n
	}
	fill, ok := parseBool(r.URL.Query().Get("fill"))
	if !ok {
		writeError(w, http.StatusBadRequest, "fill must be true or false")
		return
	}
	q.Fill = fill

	rows, err := ds.DayRows(q)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, casedata.ErrNoRows) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows.Maps())
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}

	value := r.URL.Query().Get("value")
	if value == "" {
		writeError(w, http.StatusBadRequest, "value parameter is required")
		return
	}
	fill, ok := parseBool(r.URL.Query().Get("fill"))
	if !ok {
		writeError(w, http.StatusBadRequest, "fill must be true or false")
		return
	}

	rows, err := ds.RegionRows(casedata.RegionQuery{
		Column: r.URL.Query().Get("column"),
		Value:  value,
		Fill:   fill,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows.Maps())
}

// parseBool reads an optional boolean query value. Empty means false.
func parseBool(v string) (value, ok bool) {
	if v == "" {
		return false, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort JSON response
}
