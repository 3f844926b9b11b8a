package cue

import (
	"fmt"
	"math"
	"strings"
)

// Direction is the coarse bearing classification spoken to the user.
type Direction int

const (
	// DirectionNone means no lateral cue is defined for the bearing.
	DirectionNone Direction = iota
	StraightAhead
	BehindYou
	DirectlyBehind
)

func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "none"
	case StraightAhead:
		return "straight_ahead"
	case BehindYou:
		return "behind_you"
	case DirectlyBehind:
		return "directly_behind"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Direction thresholds in degrees, compared against |rel|.
const (
	StraightAheadMaxDeg  = 20.0
	DirectlyBehindMinDeg = 170.0
	BehindYouMinDeg      = 110.0
)

// ClassifyDirection maps a signed observer-relative bearing to a Direction.
// The first matching rule wins; bearings between the ahead and behind cones
// have no cue.
func ClassifyDirection(relDeg float64) Direction {
	abs := math.Abs(relDeg)
	switch {
	case abs <= StraightAheadMaxDeg:
		return StraightAhead
	case abs >= DirectlyBehindMinDeg:
		return DirectlyBehind
	case abs >= BehindYouMinDeg:
		return BehindYou
	default:
		return DirectionNone
	}
}

// Band is a discrete distance announcement.
type Band int

const (
	Band10m Band = iota
	Band20m
	Band30m
	Band40m
	Band50m
	Band60m
	Band70m
	Band80m
	Band90m
	Band100m
	Band125m
	Band150m
	Band175m
	Band200m
	Band250m
	Band300m
	Band350m
	Band400m
	BandOver400m
	BandOver500m
	BandOver1000m

	bandCount
)

// bandLimits holds the inclusive upper bound, in meters, of each bounded band.
var bandLimits = [...]float64{
	Band10m:  10,
	Band20m:  20,
	Band30m:  30,
	Band40m:  40,
	Band50m:  50,
	Band60m:  60,
	Band70m:  70,
	Band80m:  80,
	Band90m:  90,
	Band100m: 100,
	Band125m: 125,
	Band150m: 150,
	Band175m: 175,
	Band200m: 200,
	Band250m: 250,
	Band300m: 300,
	Band350m: 350,
	Band400m: 400,
}

func (b Band) String() string {
	switch {
	case b >= Band10m && b <= Band400m:
		return fmt.Sprintf("%gm", bandLimits[b])
	case b == BandOver400m:
		return ">400m"
	case b == BandOver500m:
		return ">500m"
	case b == BandOver1000m:
		return ">1000m"
	default:
		return fmt.Sprintf("band(%d)", int(b))
	}
}

// Meters returns the distance a band announces. Overflow bands report their
// lower bound.
func (b Band) Meters() float64 {
	switch {
	case b >= Band10m && b <= Band400m:
		return bandLimits[b]
	case b == BandOver400m:
		return 400
	case b == BandOver500m:
		return 500
	case b == BandOver1000m:
		return 1000
	default:
		return 0
	}
}

// ParseBand accepts the String form of a band ("20m", ">500m").
func ParseBand(s string) (Band, bool) {
	s = strings.TrimSpace(s)
	for b := Band10m; b < bandCount; b++ {
		if b.String() == s {
			return b, true
		}
	}
	return 0, false
}

// BandSet records which distance bands have an audio asset assigned.
// Deployments often ship only a sparse subset.
type BandSet uint32

// AllBands returns a set containing every band.
func AllBands() BandSet {
	return BandSet(1<<uint(bandCount)) - 1
}

// NewBandSet builds a set from the given bands.
func NewBandSet(bands ...Band) BandSet {
	var s BandSet
	for _, b := range bands {
		s = s.With(b)
	}
	return s
}

// Has reports whether b is in the set.
func (s BandSet) Has(b Band) bool {
	if b < 0 || b >= bandCount {
		return false
	}
	return s&(1<<uint(b)) != 0
}

// With returns s with b added.
func (s BandSet) With(b Band) BandSet {
	if b < 0 || b >= bandCount {
		return s
	}
	return s | 1<<uint(b)
}

// Bands lists the members in ascending order.
func (s BandSet) Bands() []Band {
	var out []Band
	for b := Band10m; b < bandCount; b++ {
		if s.Has(b) {
			out = append(out, b)
		}
	}
	return out
}

// ClassifyDistance picks the band to announce for distanceMeters given the
// available set.
//
// Distances up to 400 m map to the smallest bounded band that covers them; if
// that band has no asset the result is not ok. Beyond 400 m the overflow bands
// are tried in priority order (>1000, >500, >400), each only when the distance
// qualifies and the asset exists, and finally the 400, 300, 200 and 100 m bands
// are tried in that order.
func ClassifyDistance(distanceMeters float64, available BandSet) (Band, bool) {
	for b := Band10m; b <= Band400m; b++ {
		if distanceMeters <= bandLimits[b] {
			return b, available.Has(b)
		}
	}

	if distanceMeters > 1000 && available.Has(BandOver1000m) {
		return BandOver1000m, true
	}
	if distanceMeters > 500 && available.Has(BandOver500m) {
		return BandOver500m, true
	}
	if available.Has(BandOver400m) {
		return BandOver400m, true
	}
	for _, b := range []Band{Band400m, Band300m, Band200m, Band100m} {
		if available.Has(b) {
			return b, true
		}
	}
	return 0, false
}

// Sequence builds the direction-then-distance token pair for a target. Tokens
// that classify to nothing are omitted, so the result may be empty.
func Sequence(relDeg, distanceMeters float64, available BandSet) []Token {
	var tokens []Token
	if d := ClassifyDirection(relDeg); d != DirectionNone {
		tokens = append(tokens, DirectionToken(d))
	}
	if b, ok := ClassifyDistance(distanceMeters, available); ok {
		tokens = append(tokens, DistanceToken(b))
	}
	return tokens
}
