package session

import (
	"sort"
	"time"

	"github.com/banshee-data/sonus/internal/geo"
	"github.com/banshee-data/sonus/internal/target"
)

// TrailPoint is one recorded pose of a target.
type TrailPoint struct {
	At       time.Time `json:"at"`
	Position geo.Point `json:"position"`
	Heading  float32   `json:"heading"`
}

// Trail keeps the most recent poses of each target, bounded per target.
// It is owned by the session goroutine and is not safe for concurrent use.
type Trail struct {
	limit  int
	points map[string][]TrailPoint
}

// NewTrail keeps up to limit points per target. A limit of zero disables
// recording.
func NewTrail(limit int) *Trail {
	if limit < 0 {
		limit = 0
	}
	return &Trail{limit: limit, points: make(map[string][]TrailPoint)}
}

// Record appends t's pose unless it has not changed since the last point.
func (tr *Trail) Record(t target.Target) bool {
	if tr.limit == 0 {
		return false
	}
	pts := tr.points[t.ID]
	if n := len(pts); n > 0 && !t.UpdatedAt.After(pts[n-1].At) {
		return false
	}
	pts = append(pts, TrailPoint{At: t.UpdatedAt, Position: t.Position, Heading: t.Heading})
	if over := len(pts) - tr.limit; over > 0 {
		pts = append(pts[:0], pts[over:]...)
	}
	tr.points[t.ID] = pts
	return true
}

// Points returns a copy of id's trail, oldest first.
func (tr *Trail) Points(id string) []TrailPoint {
	return append([]TrailPoint(nil), tr.points[id]...)
}

// All returns a copy of every trail keyed by target id.
func (tr *Trail) All() map[string][]TrailPoint {
	out := make(map[string][]TrailPoint, len(tr.points))
	for id, pts := range tr.points {
		out[id] = append([]TrailPoint(nil), pts...)
	}
	return out
}

// IDs lists targets with a trail, sorted.
func (tr *Trail) IDs() []string {
	ids := make([]string, 0, len(tr.points))
	for id := range tr.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Forget drops id's trail.
func (tr *Trail) Forget(id string) { delete(tr.points, id) }

// Reset drops every trail.
func (tr *Trail) Reset() { tr.points = make(map[string][]TrailPoint) }
