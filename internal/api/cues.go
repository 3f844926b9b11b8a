package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/sonus/internal/cue"
	"github.com/banshee-data/sonus/internal/db"
	"github.com/banshee-data/sonus/internal/geo"
	"github.com/banshee-data/sonus/internal/mission"
	"github.com/banshee-data/sonus/internal/report"
	"github.com/banshee-data/sonus/internal/timeutil"
)

func (s *Server) startCues(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.StartCues(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cues_running": true})
}

func (s *Server) stopCues(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.StopCues(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cues_running": false})
}

func (s *Server) hearNow(w http.ResponseWriter, r *http.Request) {
	announced, err := s.sess.HearNow()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"announced": announced})
}

type frequencyRequest struct {
	Seconds float64 `json:"seconds"`
}

// setFrequency changes the periodic interval and records the clamped value in
// the tuning document so later tuning patches keep it.
func (s *Server) setFrequency(w http.ResponseWriter, r *http.Request) {
	var req frequencyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Seconds <= 0 {
		s.writeJSONError(w, http.StatusBadRequest, "seconds must be positive")
		return
	}
	s.mu.Lock()
	got, err := s.sess.SetFrequency(timeutil.Seconds(req.Seconds))
	if err == nil {
		secs := got.Seconds()
		s.tuning.FrequencySeconds = &secs
	}
	s.mu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]float64{"frequency_seconds": got.Seconds()})
}

// cues returns up to limit cues at or after since, from the database when
// source=db and from the in-memory log otherwise.
func (s *Server) cues(r *http.Request, limit int, since time.Time) ([]cue.Cue, error) {
	if r.URL.Query().Get("source") != "db" {
		var out []cue.Cue
		for _, c := range s.sess.RecentCues(limit) {
			if !c.At.Before(since) {
				out = append(out, c)
			}
		}
		return out, nil
	}
	if s.db == nil {
		return nil, fmt.Errorf("database not configured")
	}
	var (
		events []db.CueEvent
		err    error
	)
	if since.IsZero() {
		events, err = s.db.RecentCueEvents(limit)
	} else {
		events, err = s.db.CueEventsSince(since, limit)
	}
	if err != nil {
		return nil, err
	}
	out := make([]cue.Cue, len(events))
	for i, ev := range events {
		out[i] = cue.Cue{TargetID: ev.TargetID, Tokens: ev.Tokens, Reason: ev.Reason, At: ev.At}
	}
	return out, nil
}

// cueParams reads the limit and since query parameters.
func cueParams(r *http.Request, defLimit int) (int, time.Time, error) {
	limit, err := queryInt(r, "limit", defLimit)
	if err != nil {
		return 0, time.Time{}, err
	}
	since, err := querySince(r)
	if err != nil {
		return 0, time.Time{}, err
	}
	return limit, since, nil
}

func (s *Server) recentCues(w http.ResponseWriter, r *http.Request) {
	limit, since, err := cueParams(r, 100)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	cues, err := s.cues(r, limit, since)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve cues: %v", err))
		return
	}
	if cues == nil {
		cues = []cue.Cue{}
	}
	s.writeJSON(w, http.StatusOK, cues)
}

// cueCounts reports how many cues were logged per reason, optionally since a
// given time.
func (s *Server) cueCounts(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	since, err := querySince(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	counts, err := s.db.CueCountsByReason(since)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to count cues: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, counts)
}

type observerRequest struct {
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	HeadingDeg *float64 `json:"heading_deg"`
}

func (s *Server) setObserver(w http.ResponseWriter, r *http.Request) {
	var req observerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if (req.Lat == nil) != (req.Lon == nil) {
		s.writeJSONError(w, http.StatusBadRequest, "lat and lon must be set together")
		return
	}
	var loc *geo.Point
	if req.Lat != nil {
		if err := validPoint(*req.Lat, *req.Lon); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		loc = &geo.Point{Lat: *req.Lat, Lon: *req.Lon}
	}
	if err := s.sess.SetObserver(loc, req.HeadingDeg); err != nil {
		s.writeError(w, err)
		return
	}
	pos, heading := s.sess.Observer()
	s.writeJSON(w, http.StatusOK, map[string]any{"observer": pos, "heading_deg": heading})
}

type missionRequest struct {
	Name string `json:"name"`
}

func (s *Server) loadMission(w http.ResponseWriter, r *http.Request) {
	var req missionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		s.writeJSONError(w, http.StatusBadRequest, "mission name is required")
		return
	}
	if err := s.sess.LoadMission(req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"mission": req.Name})
}

func (s *Server) clearMission(w http.ResponseWriter, r *http.Request) {
	epoch, err := s.sess.ClearMission()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"epoch": epoch})
}

func (s *Server) missionEvents(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.db.MissionEvents(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve mission events: %v", err))
		return
	}
	if events == nil {
		events = []mission.Event{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// cueChart renders the cue timeline. Query params:
//   - limit (optional; default 500)
//   - since (optional; RFC 3339)
//   - source=db to read the persisted log instead of the in-memory one
func (s *Server) cueChart(w http.ResponseWriter, r *http.Request) {
	limit, since, err := cueParams(r, 500)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	cues, err := s.cues(r, limit, since)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve cues: %v", err))
		return
	}
	var buf bytes.Buffer
	if err := report.CueTimeline(&buf, cues); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render cue chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// trackChart renders recorded target trails around the observer.
func (s *Server) trackChart(w http.ResponseWriter, r *http.Request) {
	trails, err := s.sess.Trails()
	if err != nil {
		s.writeError(w, err)
		return
	}
	origin, _ := s.sess.Observer()
	var buf bytes.Buffer
	if err := report.TrackChart(&buf, trails, origin); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render tracks chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
