package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/banshee-data/sonus/internal/db"
	"github.com/banshee-data/sonus/internal/report"
	"github.com/banshee-data/sonus/internal/route"
)

func (s *Server) listRoutes(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	routes, err := s.db.ListRoutes()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list routes: %v", err))
		return
	}
	if routes == nil {
		routes = []db.RouteRecord{}
	}
	s.writeJSON(w, http.StatusOK, routes)
}

func (s *Server) saveRoute(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	var rt route.Route
	if err := decodeJSON(w, r, &rt); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rt.Name == "" {
		s.writeJSONError(w, http.StatusBadRequest, "route name is required")
		return
	}
	if err := rt.Validate(); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.db.SaveRoute(rt, s.sess.Clock().Now())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save route: %v", err))
		return
	}
	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) showRoute(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	rec, err := s.db.GetRoute(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteRoute(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	if err := s.db.DeleteRoute(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) plotRoute(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	rec, err := s.db.GetRoute(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := report.PlotRoute(&buf, rec.Route); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to plot route: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) listRouteRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.db.ListRouteRuns(r.URL.Query().Get("target_id"), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list route runs: %v", err))
		return
	}
	if runs == nil {
		runs = []db.RouteRun{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}
