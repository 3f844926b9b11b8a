// Package cue defines the audio cue vocabulary and the stateless classifier
// that maps a relative bearing and a distance onto it.
//
// The package only decides which cue to emit. Rendering a token to sound is the
// job of a Sink implementation outside this package.
package cue

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/sonus/internal/geo"
)

// Category groups tokens by the kind of information they carry.
type Category int

const (
	CategoryDirection Category = iota
	CategoryDistance
	CategoryMoving
	CategoryAnnouncement
)

func (c Category) String() string {
	switch c {
	case CategoryDirection:
		return "direction"
	case CategoryDistance:
		return "distance"
	case CategoryMoving:
		return "moving"
	case CategoryAnnouncement:
		return "announcement"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Announcement values.
type Announcement int

const (
	NoTargets Announcement = iota
	NewStationaryTarget
	NewDynamicTarget
)

func (a Announcement) String() string {
	switch a {
	case NoTargets:
		return "no_targets"
	case NewStationaryTarget:
		return "new_stationary"
	case NewDynamicTarget:
		return "new_dynamic"
	default:
		return fmt.Sprintf("announcement(%d)", int(a))
	}
}

// Token is a single cue unit handed to the audio sink: a category plus an
// enum value whose meaning depends on the category (Direction, Band,
// geo.Octant or Announcement).
type Token struct {
	Category Category `json:"category"`
	Value    int      `json:"value"`
}

// DirectionToken wraps a direction classification.
func DirectionToken(d Direction) Token { return Token{Category: CategoryDirection, Value: int(d)} }

// DistanceToken wraps a distance band.
func DistanceToken(b Band) Token { return Token{Category: CategoryDistance, Value: int(b)} }

// MovingToken wraps the compass octant of a target's displacement.
func MovingToken(o geo.Octant) Token { return Token{Category: CategoryMoving, Value: int(o)} }

// AnnouncementToken wraps an announcement.
func AnnouncementToken(a Announcement) Token {
	return Token{Category: CategoryAnnouncement, Value: int(a)}
}

func (t Token) String() string {
	var v string
	switch t.Category {
	case CategoryDirection:
		v = Direction(t.Value).String()
	case CategoryDistance:
		v = Band(t.Value).String()
	case CategoryMoving:
		v = geo.Octant(t.Value).String()
	case CategoryAnnouncement:
		v = Announcement(t.Value).String()
	default:
		v = fmt.Sprint(t.Value)
	}
	return t.Category.String() + ":" + v
}

// Reason records which loop produced a cue.
type Reason string

const (
	ReasonPeriodic      Reason = "periodic"
	ReasonHearNow       Reason = "hear_now"
	ReasonStraightAhead Reason = "straight_ahead"
	ReasonMovement      Reason = "movement"
	ReasonNewTarget     Reason = "new_target"
)

// Cue is one emission: an ordered token sequence played back to back.
type Cue struct {
	TargetID string    `json:"target_id,omitempty"`
	Tokens   []Token   `json:"tokens"`
	Reason   Reason    `json:"reason"`
	At       time.Time `json:"at"`
}

func (c Cue) String() string {
	parts := make([]string, len(c.Tokens))
	for i, tok := range c.Tokens {
		parts[i] = tok.String()
	}
	return fmt.Sprintf("%s target=%s [%s]", c.Reason, c.TargetID, strings.Join(parts, " "))
}

// Sink consumes emitted cues.
type Sink interface {
	Emit(c Cue)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(c Cue)

// Emit calls f(c).
func (f SinkFunc) Emit(c Cue) { f(c) }

// MultiSink fans a cue out to every non-nil sink in order.
type MultiSink []Sink

// Emit forwards c to each sink.
func (m MultiSink) Emit(c Cue) {
	for _, s := range m {
		if s != nil {
			s.Emit(c)
		}
	}
}
