// Package api exposes the guidance session, the route library and the debug
// charts over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/sonus/internal/config"
	"github.com/banshee-data/sonus/internal/db"
	"github.com/banshee-data/sonus/internal/session"
	"github.com/banshee-data/sonus/internal/target"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type Server struct {
	sess *session.Session
	db   *db.DB

	mu     sync.Mutex
	tuning *config.TuningConfig
}

// NewServer serves sess. store may be nil, in which case the route library
// and history endpoints answer 503. tuning is the configuration sess was
// built from; nil means the defaults.
func NewServer(sess *session.Session, store *db.DB, tuning *config.TuningConfig) *Server {
	if tuning == nil {
		tuning = config.DefaultTuningConfig()
	}
	return &Server{
		sess:   sess,
		db:     store,
		tuning: tuning,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes. Admin routes are attached separately by
// the caller.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.showStatus)

	mux.HandleFunc("GET /api/targets", s.listTargets)
	mux.HandleFunc("POST /api/targets", s.spawnTarget)
	mux.HandleFunc("GET /api/targets/{id}", s.showTarget)
	mux.HandleFunc("DELETE /api/targets/{id}", s.removeTarget)
	mux.HandleFunc("POST /api/targets/{id}/active", s.setActive)
	mux.HandleFunc("POST /api/targets/{id}/move", s.moveTarget)
	mux.HandleFunc("POST /api/targets/{id}/route", s.startRoute)
	mux.HandleFunc("DELETE /api/targets/{id}/route", s.stopRoute)
	mux.HandleFunc("GET /api/targets/{id}/trail", s.showTrail)

	mux.HandleFunc("GET /api/routes", s.listRoutes)
	mux.HandleFunc("POST /api/routes", s.saveRoute)
	mux.HandleFunc("GET /api/routes/runs", s.listRouteRuns)
	mux.HandleFunc("GET /api/routes/{id}", s.showRoute)
	mux.HandleFunc("DELETE /api/routes/{id}", s.deleteRoute)
	mux.HandleFunc("GET /api/routes/{id}/plot.png", s.plotRoute)

	mux.HandleFunc("POST /api/cues/start", s.startCues)
	mux.HandleFunc("POST /api/cues/stop", s.stopCues)
	mux.HandleFunc("POST /api/cues/hear-now", s.hearNow)
	mux.HandleFunc("PUT /api/cues/frequency", s.setFrequency)
	mux.HandleFunc("GET /api/cues/recent", s.recentCues)
	mux.HandleFunc("GET /api/cues/counts", s.cueCounts)

	mux.HandleFunc("PUT /api/observer", s.setObserver)
	mux.HandleFunc("GET /api/tuning", s.showTuning)
	mux.HandleFunc("PUT /api/tuning", s.updateTuning)

	mux.HandleFunc("POST /api/mission/load", s.loadMission)
	mux.HandleFunc("POST /api/mission/clear", s.clearMission)
	mux.HandleFunc("GET /api/mission/events", s.missionEvents)

	mux.HandleFunc("GET /debug/charts/cues", s.cueChart)
	mux.HandleFunc("GET /debug/charts/track", s.trackChart)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] failed to encode response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps session, registry and storage errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrRouteRejected):
		status = http.StatusBadRequest
	case errors.Is(err, target.ErrNotFound), errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrNotRunning):
		status = http.StatusServiceUnavailable
	}
	s.writeJSONError(w, status, err.Error())
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid '%s' parameter", name)
	}
	return n, nil
}

// querySince parses the optional RFC 3339 'since' parameter. Absent means the
// zero time.
func querySince(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("since")
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid 'since' parameter")
	}
	return t, nil
}

// requireDB answers 503 when no database is configured.
func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "database not configured")
		return false
	}
	return true
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sess.Snapshot()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newStatusView(snap))
}
