package geo

import "math"

// Octant is one of the eight 45° compass sectors.
type Octant int

const (
	North Octant = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var octantNames = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func (o Octant) String() string {
	if o < North || o > NorthWest {
		return "unknown"
	}
	return octantNames[o]
}

// OctantOf quantizes a compass bearing to the nearest octant.
// Exact half-way bearings (22.5°, 67.5°, ...) round away from zero.
func OctantOf(bearingDeg float64) Octant {
	b := NormalizeDegrees(bearingDeg)
	idx := int(math.Round(b/45.0)) % 8
	return Octant(idx)
}
