package guidance

import (
	"time"

	"github.com/banshee-data/sonus/internal/config"
	"github.com/banshee-data/sonus/internal/cue"
	"github.com/banshee-data/sonus/internal/timeutil"
)

// MinFrequency is the shortest allowed periodic cue interval.
const MinFrequency = time.Second

// Config holds the cue machine's behavioural parameters. Angles are degrees,
// distances meters and speeds meters per second.
type Config struct {
	Frequency                  time.Duration // periodic cue interval, clamped to MinFrequency
	LockCorridorDeg            float64       // |rel| at or below this counts as on course
	StraightAheadDeg           float64       // |rel| limit for the instant straight-ahead cue
	StraightAheadCooldown      time.Duration // min gap between straight-ahead cues
	StraightAheadRearm         time.Duration // time out of corridor before re-arming
	StraightAheadRearmExtraDeg float64       // angle beyond the corridor required to re-arm
	RecentLockGrace            time.Duration // how long after a lock the user counts as recently aligned
	MinMoveSpeed               float64       // slower targets are treated as stationary
	MovementCueCooldown        time.Duration // min gap between movement cues
	StraightAheadMovementGrace time.Duration // movement cue allowed this long after a straight-ahead cue
	IgnoreIfCloserThan         float64       // no movement sampling inside this radius
	SampleInterval             time.Duration // movement loop period
	MovementCuesEnabled        bool
	PlayNoTargetCue            bool
	AvailableBands             cue.BandSet // distance bands with an audio asset
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Frequency:                  30 * time.Second,
		LockCorridorDeg:            20,
		StraightAheadDeg:           24,
		StraightAheadCooldown:      3 * time.Second,
		StraightAheadRearm:         750 * time.Millisecond,
		StraightAheadRearmExtraDeg: 6,
		RecentLockGrace:            4 * time.Second,
		MinMoveSpeed:               0.3,
		MovementCueCooldown:        6 * time.Second,
		StraightAheadMovementGrace: 500 * time.Millisecond,
		IgnoreIfCloserThan:         10,
		SampleInterval:             200 * time.Millisecond,
		MovementCuesEnabled:        true,
		AvailableBands:             cue.AllBands(),
	}
}

// ConfigFromTuning builds a Config from the tuning file, falling back to the
// defaults for unset keys.
func ConfigFromTuning(tc *config.TuningConfig) Config {
	c := Config{
		Frequency:                  timeutil.Seconds(tc.GetFrequencySeconds()),
		LockCorridorDeg:            tc.GetLockCorridorDeg(),
		StraightAheadDeg:           tc.GetStraightAheadDeg(),
		StraightAheadCooldown:      timeutil.Seconds(tc.GetStraightAheadCooldown()),
		StraightAheadRearm:         timeutil.Seconds(tc.GetStraightAheadRearmSeconds()),
		StraightAheadRearmExtraDeg: tc.GetStraightAheadRearmExtraDeg(),
		RecentLockGrace:            timeutil.Seconds(tc.GetRecentLockGrace()),
		MinMoveSpeed:               tc.GetMinMoveSpeed(),
		MovementCueCooldown:        timeutil.Seconds(tc.GetMovementCueCooldown()),
		StraightAheadMovementGrace: timeutil.Seconds(tc.GetStraightAheadMovementGrace()),
		IgnoreIfCloserThan:         tc.GetIgnoreIfCloserThan(),
		SampleInterval:             tc.GetSampleInterval(),
		MovementCuesEnabled:        tc.GetMovementCuesEnabled(),
		PlayNoTargetCue:            tc.GetPlayNoTargetCue(),
		AvailableBands:             cue.AllBands(),
	}
	if names := tc.GetAvailableBands(); len(names) > 0 {
		bands := make([]cue.Band, 0, len(names))
		for _, n := range names {
			if b, ok := cue.ParseBand(n); ok {
				bands = append(bands, b)
			}
		}
		c.AvailableBands = cue.NewBandSet(bands...)
	}
	return c.normalized()
}

func (c Config) normalized() Config {
	if c.Frequency < MinFrequency {
		c.Frequency = MinFrequency
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = 200 * time.Millisecond
	}
	return c
}
