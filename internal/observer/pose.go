// Package observer tracks the listener's location and facing.
package observer

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/sonus/internal/geo"
)

// Provider is the pose boundary guidance samples once per tick.
type Provider interface {
	// Origin is the geographic anchor of the planar world frame.
	Origin() geo.Point
	// Position is the observer's location in the world frame.
	Position() geo.WorldPosition
	// Forward is the observer's horizontal facing as a unit vector.
	Forward() r2.Vec
}

// Pose is a settable Provider. The world origin is fixed when the pose is
// created so target displacement stays comparable while the observer walks.
type Pose struct {
	mu         sync.RWMutex
	origin     geo.Point
	location   geo.Point
	headingDeg float64
}

// NewPose anchors the world frame at location.
func NewPose(location geo.Point, headingDeg float64) *Pose {
	return &Pose{origin: location, location: location, headingDeg: geo.NormalizeDegrees(headingDeg)}
}

// Origin implements Provider.
func (p *Pose) Origin() geo.Point {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.origin
}

// Location returns the observer's geographic location.
func (p *Pose) Location() geo.Point {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.location
}

// Heading returns the compass heading in [0, 360).
func (p *Pose) Heading() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.headingDeg
}

// Position implements Provider.
func (p *Pose) Position() geo.WorldPosition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return geo.ToWorld(p.location, p.origin)
}

// Forward implements Provider.
func (p *Pose) Forward() r2.Vec {
	return geo.ForwardFromHeading(p.Heading())
}

// SetLocation moves the observer.
func (p *Pose) SetLocation(loc geo.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = loc
}

// SetHeading turns the observer.
func (p *Pose) SetHeading(deg float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.headingDeg = geo.NormalizeDegrees(deg)
}

// Reanchor moves the world origin to the current location.
func (p *Pose) Reanchor() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.origin = p.location
}
