package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/sonus/internal/geo"
	"github.com/banshee-data/sonus/internal/guidance"
	"github.com/banshee-data/sonus/internal/mission"
	"github.com/banshee-data/sonus/internal/route"
	"github.com/banshee-data/sonus/internal/session"
	"github.com/banshee-data/sonus/internal/target"
)

// statusView is the JSON form of a session snapshot. Durations are seconds.
type statusView struct {
	Targets          []target.Target        `json:"targets"`
	ActiveID         string                 `json:"active_id,omitempty"`
	Routes           []route.Status         `json:"routes"`
	CuesRunning      bool                   `json:"cues_running"`
	FrequencySeconds float64                `json:"frequency_seconds"`
	NextPeriodic     *time.Time             `json:"next_periodic,omitempty"`
	Corridor         guidance.CorridorState `json:"corridor"`
	Mission          mission.Status         `json:"mission"`
	Observer         geo.Point              `json:"observer"`
	HeadingDeg       float64                `json:"heading_deg"`
	Frames           uint64                 `json:"frames"`
	At               time.Time              `json:"at"`
}

func newStatusView(snap session.Snapshot) statusView {
	v := statusView{
		Targets:          snap.Targets,
		ActiveID:         snap.ActiveID,
		Routes:           snap.Routes,
		CuesRunning:      snap.CuesRunning,
		FrequencySeconds: snap.Frequency.Seconds(),
		Corridor:         snap.Corridor,
		Mission:          snap.Mission,
		Observer:         snap.Observer,
		HeadingDeg:       snap.HeadingDeg,
		Frames:           snap.Frames,
		At:               snap.At,
	}
	if v.Targets == nil {
		v.Targets = []target.Target{}
	}
	if v.Routes == nil {
		v.Routes = []route.Status{}
	}
	if !snap.NextPeriodic.IsZero() {
		next := snap.NextPeriodic
		v.NextPeriodic = &next
	}
	return v
}

// targetsView lists targets together with the routes driving them.
type targetsView struct {
	Targets  []target.Target `json:"targets"`
	ActiveID string          `json:"active_id,omitempty"`
	Routes   []route.Status  `json:"routes"`
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sess.Snapshot()
	if err != nil {
		s.writeError(w, err)
		return
	}
	v := newStatusView(snap)
	s.writeJSON(w, http.StatusOK, targetsView{Targets: v.Targets, ActiveID: v.ActiveID, Routes: v.Routes})
}

// spawnRequest places a target either at lat/lon or relative to the
// observer by bearing and distance.
type spawnRequest struct {
	Name       string      `json:"name"`
	Kind       target.Kind `json:"kind"`
	Lat        *float64    `json:"lat"`
	Lon        *float64    `json:"lon"`
	BearingDeg *float64    `json:"bearing_deg"`
	DistanceM  *float64    `json:"distance_m"`
}

func validPoint(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("coordinate out of range (%v, %v)", lat, lon)
	}
	return nil
}

func (s *Server) spawnTarget(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		t   target.Target
		err error
	)
	switch {
	case req.Lat != nil && req.Lon != nil:
		if err := validPoint(*req.Lat, *req.Lon); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		t, err = s.sess.SpawnTarget(req.Name, req.Kind, geo.Point{Lat: *req.Lat, Lon: *req.Lon})
	case req.BearingDeg != nil && req.DistanceM != nil:
		if *req.DistanceM < 0 {
			s.writeJSONError(w, http.StatusBadRequest, "distance_m must not be negative")
			return
		}
		t, err = s.sess.SpawnRelative(req.Name, req.Kind, *req.BearingDeg, *req.DistanceM)
	default:
		s.writeJSONError(w, http.StatusBadRequest, "either lat/lon or bearing_deg/distance_m is required")
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) showTarget(w http.ResponseWriter, r *http.Request) {
	t, ok := s.sess.Target(r.PathValue("id"))
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "target not found")
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) removeTarget(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.RemoveTarget(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setActive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sess.SetActive(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"active_id": id})
}

type moveRequest struct {
	Lat     float64  `json:"lat"`
	Lon     float64  `json:"lon"`
	Heading *float32 `json:"heading"`
}

func (s *Server) moveTarget(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validPoint(req.Lat, req.Lon); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	if err := s.sess.MoveTarget(id, geo.Point{Lat: req.Lat, Lon: req.Lon}, req.Heading); err != nil {
		s.writeError(w, err)
		return
	}
	t, _ := s.sess.Target(id)
	s.writeJSON(w, http.StatusOK, t)
}

// startRouteRequest names a stored route or carries one inline.
type startRouteRequest struct {
	RouteName string           `json:"route_name"`
	Mode      route.Mode       `json:"mode"`
	Waypoints []route.Waypoint `json:"waypoints"`
}

func (s *Server) startRoute(w http.ResponseWriter, r *http.Request) {
	var req startRouteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	rt := route.Route{Mode: req.Mode, Waypoints: req.Waypoints}
	if req.RouteName != "" {
		if len(req.Waypoints) > 0 {
			s.writeJSONError(w, http.StatusBadRequest, "route_name and waypoints are mutually exclusive")
			return
		}
		if !s.requireDB(w) {
			return
		}
		rec, err := s.db.GetRouteByName(req.RouteName)
		if err != nil {
			s.writeError(w, err)
			return
		}
		rt = rec.Route
	}

	id := r.PathValue("id")
	runID, err := s.sess.StartRoute(id, rt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"run_id": runID, "target_id": id})
}

func (s *Server) stopRoute(w http.ResponseWriter, r *http.Request) {
	stopped, err := s.sess.StopRoute(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (s *Server) showTrail(w http.ResponseWriter, r *http.Request) {
	pts, err := s.sess.Trail(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if pts == nil {
		pts = []session.TrailPoint{}
	}
	s.writeJSON(w, http.StatusOK, pts)
}
