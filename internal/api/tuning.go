package api

import (
	"net/http"

	"github.com/banshee-data/sonus/internal/config"
	"github.com/banshee-data/sonus/internal/guidance"
)

func (s *Server) showTuning(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	tc := config.EmptyTuningConfig()
	tc.Merge(s.tuning)
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, tc)
}

// updateTuning overlays a partial tuning document on the current one and
// applies the result to the cue machine. Intervals and observer fields only
// take effect at the next start.
func (s *Server) updateTuning(w http.ResponseWriter, r *http.Request) {
	var patch config.TuningConfig
	if err := decodeJSON(w, r, &patch); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := config.EmptyTuningConfig()
	next.Merge(s.tuning)
	next.Merge(&patch)
	if err := next.Validate(); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.sess.SetGuidanceConfig(guidance.ConfigFromTuning(next)); err != nil {
		s.writeError(w, err)
		return
	}
	s.tuning = next
	s.writeJSON(w, http.StatusOK, next)
}
