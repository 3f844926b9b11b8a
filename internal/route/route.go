// Package route animates targets along scripted multi-waypoint routes.
//
// A route is explicit resumable state rather than a goroutine: Router.Tick is
// the only resumption point, and every resumption re-validates the captured
// mission epoch and the target's registration before writing a position.
package route

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/sonus/internal/geo"
)

// Mode selects how legs are sequenced after the first pass.
type Mode int

const (
	Once Mode = iota
	Loop
	PingPong
	PingPongOnce
)

var modeNames = map[Mode]string{
	Once:         "once",
	Loop:         "loop",
	PingPong:     "pingpong",
	PingPongOnce: "pingpong_once",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts the String form, case-insensitive, with "-" or "_".
func ParseMode(s string) (Mode, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	if norm == "" {
		return Once, nil
	}
	if norm == "ping_pong" {
		norm = "pingpong"
	}
	if norm == "ping_pong_once" {
		norm = "pingpong_once"
	}
	for m, name := range modeNames {
		if name == norm {
			return m, nil
		}
	}
	return Once, fmt.Errorf("unknown route mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Repeats reports whether the mode runs until cancelled.
func (m Mode) Repeats() bool { return m == Loop || m == PingPong }

// Waypoint is one stop on a route.
type Waypoint struct {
	geo.Point
	SpeedToNext       float32 `json:"speed_to_next"`       // m/s on the leg leaving this point
	PauseAfterArrival float32 `json:"pause_after_arrival"` // seconds
}

// Route is an ordered waypoint list with a sequencing mode.
type Route struct {
	Name      string     `json:"name,omitempty"`
	Mode      Mode       `json:"mode"`
	Waypoints []Waypoint `json:"waypoints"`
}

// ErrTooFewWaypoints is returned for routes with fewer than two waypoints.
var ErrTooFewWaypoints = errors.New("route needs at least 2 waypoints")

// Validate checks the route can be started.
func (r Route) Validate() error {
	if len(r.Waypoints) < 2 {
		return fmt.Errorf("route %q has %d waypoints: %w", r.Name, len(r.Waypoints), ErrTooFewWaypoints)
	}
	for i, wp := range r.Waypoints {
		if wp.SpeedToNext < 0 {
			return fmt.Errorf("waypoint %d: negative speed %v", i, wp.SpeedToNext)
		}
		if wp.PauseAfterArrival < 0 {
			return fmt.Errorf("waypoint %d: negative pause %v", i, wp.PauseAfterArrival)
		}
		if wp.Lat < -90 || wp.Lat > 90 || wp.Lon < -180 || wp.Lon > 180 {
			return fmt.Errorf("waypoint %d: coordinate out of range (%v, %v)", i, wp.Lat, wp.Lon)
		}
	}
	return nil
}

// LengthMeters sums the haversine length of one pass over the route's legs.
// Repeating modes count a single cycle.
func (r Route) LengthMeters() float64 {
	var total float64
	for _, leg := range Plan(len(r.Waypoints), r.Mode, CycleLegs(len(r.Waypoints), r.Mode)) {
		total += geo.HaversineMeters(r.Waypoints[leg.From].Point, r.Waypoints[leg.To].Point)
	}
	return total
}

// maxRouteFileSize bounds route files read from disk.
const maxRouteFileSize = 1 << 20

// LoadFile reads a JSON route file and validates it.
func LoadFile(path string) (Route, error) {
	if ext := filepath.Ext(path); ext != ".json" {
		return Route{}, fmt.Errorf("route file must be .json, got %q", ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Route{}, fmt.Errorf("stat route file: %w", err)
	}
	if info.Size() > maxRouteFileSize {
		return Route{}, fmt.Errorf("route file too large: %d bytes", info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Route{}, fmt.Errorf("read route file: %w", err)
	}
	var r Route
	if err := json.Unmarshal(data, &r); err != nil {
		return Route{}, fmt.Errorf("parse route file: %w", err)
	}
	if r.Name == "" {
		r.Name = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	if err := r.Validate(); err != nil {
		return Route{}, err
	}
	return r, nil
}
