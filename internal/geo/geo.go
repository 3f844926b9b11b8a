// Package geo provides the coordinate math used by cue guidance and the
// waypoint router.
//
// Two distance paths exist side by side. ToWorld is a fast equirectangular
// projection into the observer-local planar frame, used for everything the
// observer perceives (relative bearings, cue distances, displacement). The
// haversine path is used for route-leg timing where the planar error would
// accumulate over long legs. Neither is valid near the poles or across large
// spans.
package geo

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// MetersPerDegree is the flat scale factor used by ToWorld.
	MetersPerDegree = 111000.0

	// EarthRadiusMeters is the mean Earth radius used by the geodesic helpers.
	EarthRadiusMeters = 6371000.0

	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// Point is an immutable geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WorldPosition is a position in the observer-local planar frame.
// X grows east, Z grows north, both in meters. Altitude is not modelled.
type WorldPosition struct {
	X float32 `json:"x"`
	Z float32 `json:"z"`
}

// Vec returns the position as a gonum planar vector (X=east, Y=north).
func (w WorldPosition) Vec() r2.Vec {
	return r2.Vec{X: float64(w.X), Y: float64(w.Z)}
}

// ToWorld projects point into the planar frame centred on origin.
func ToWorld(point, origin Point) WorldPosition {
	dx := (point.Lon - origin.Lon) * MetersPerDegree
	dz := (point.Lat - origin.Lat) * MetersPerDegree
	return WorldPosition{X: float32(dx), Z: float32(dz)}
}

// HaversineMeters returns the great-circle distance between a and b.
func HaversineMeters(a, b Point) float64 {
	lat1 := a.Lat * deg2rad
	lat2 := b.Lat * deg2rad
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * deg2rad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Bearing returns the initial forward azimuth from a to b in [0, 360).
// 0 is north, 90 is east.
func Bearing(a, b Point) float64 {
	lat1 := a.Lat * deg2rad
	lat2 := b.Lat * deg2rad
	dLon := (b.Lon - a.Lon) * deg2rad

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeDegrees(math.Atan2(y, x) * rad2deg)
}

// OffsetLocation returns the point reached by travelling distanceMeters from
// origin along the great circle with initial bearing bearingDeg.
func OffsetLocation(origin Point, bearingDeg, distanceMeters float64) Point {
	lat1 := origin.Lat * deg2rad
	lon1 := origin.Lon * deg2rad
	theta := bearingDeg * deg2rad
	delta := distanceMeters / EarthRadiusMeters

	sinLat2 := math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta)
	lat2 := math.Asin(clamp(sinLat2, -1, 1))
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*sinLat2,
	)

	return Point{
		Lat: lat2 * rad2deg,
		Lon: normalizeLongitude(lon2 * rad2deg),
	}
}

// Lerp interpolates linearly between a and b in the (lat, lon) plane.
// t is clamped to [0, 1]. This is a local approximation, not a geodesic.
func Lerp(a, b Point, t float64) Point {
	t = clamp(t, 0, 1)
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lon: a.Lon + (b.Lon-a.Lon)*t,
	}
}

// NormalizeDegrees wraps deg into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// DeltaAngle returns the signed shortest rotation from a to b in (-180, 180].
func DeltaAngle(a, b float64) float64 {
	d := math.Mod(b-a, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

// Yaw returns the compass heading of a planar vector in (-180, 180],
// 0 pointing north (+Z) and 90 pointing east (+X).
func Yaw(v r2.Vec) float64 {
	return math.Atan2(v.X, v.Y) * rad2deg
}

// ForwardFromHeading returns the unit planar vector for a compass heading.
func ForwardFromHeading(headingDeg float64) r2.Vec {
	rad := headingDeg * deg2rad
	return r2.Vec{X: math.Sin(rad), Y: math.Cos(rad)}
}

func normalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon+540, 360) - 180
	if lon == -180 {
		return 180
	}
	return lon
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
