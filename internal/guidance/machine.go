// Package guidance decides when to speak and what to say.
//
// Machine runs two cooperative loops driven by its owner: a periodic
// countdown that announces direction and distance to the active target, and a
// 5 Hz sampling loop that watches corridor alignment and target displacement
// to emit straight-ahead and target-moving cues. Every emission restarts the
// periodic countdown. Machine is not safe for concurrent use.
package guidance

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/sonus/internal/cue"
	"github.com/banshee-data/sonus/internal/geo"
	"github.com/banshee-data/sonus/internal/observer"
	"github.com/banshee-data/sonus/internal/target"
	"github.com/banshee-data/sonus/internal/timeutil"
)

// degenerateSqr is the squared length below which a planar vector has no
// usable direction.
const degenerateSqr = 1e-4

// Targets is the registry boundary: the machine only follows the active
// target.
type Targets interface {
	Active() (target.Target, bool)
}

// CorridorState is the hysteresis state for one observer/target pair. Zero
// timestamps mean "never".
type CorridorState struct {
	TargetID            string            `json:"target_id,omitempty"`
	LockTimer           time.Duration     `json:"lock_timer"`
	LastLockAt          time.Time         `json:"last_lock_at"`
	WasInCorridor       bool              `json:"was_in_corridor"`
	StraightAheadArmed  bool              `json:"straight_ahead_armed"`
	LeftCorridorAt      time.Time         `json:"left_corridor_at"`
	LastStraightAheadAt time.Time         `json:"last_straight_ahead_at"`
	StraightAheadGrace  time.Time         `json:"straight_ahead_grace"` // gates movement cues right after straight-ahead
	LastMovementCueAt   time.Time         `json:"last_movement_cue_at"`
	HaveSample          bool              `json:"have_sample"`
	LastSample          geo.WorldPosition `json:"last_sample"`
	LastSampleAt        time.Time         `json:"last_sample_at"`

	// Diagnostics from the most recent sample.
	LastRelDeg float64 `json:"last_rel_deg"`
	LastSpeed  float64 `json:"last_speed"`
}

func newCorridorState(targetID string) CorridorState {
	return CorridorState{TargetID: targetID, StraightAheadArmed: true}
}

// soft clears the lock, the sample cache and the re-arm tracking but keeps
// cooldown timestamps.
func (s *CorridorState) soft() {
	s.LockTimer = 0
	s.HaveSample = false
	s.WasInCorridor = false
	s.StraightAheadArmed = true
	s.LeftCorridorAt = time.Time{}
}

// Machine is the cue state machine.
type Machine struct {
	cfg     Config
	targets Targets
	pose    observer.Provider
	sink    cue.Sink

	running      bool
	nextPeriodic time.Time
	state        CorridorState
}

// New returns a stopped machine.
func New(cfg Config, targets Targets, pose observer.Provider, sink cue.Sink) *Machine {
	return &Machine{
		cfg:     cfg.normalized(),
		targets: targets,
		pose:    pose,
		sink:    sink,
		state:   newCorridorState(""),
	}
}

// Config returns the active configuration.
func (m *Machine) Config() Config { return m.cfg }

// SetConfig replaces the configuration. A changed frequency restarts the
// countdown.
func (m *Machine) SetConfig(cfg Config, now time.Time) {
	cfg = cfg.normalized()
	freqChanged := cfg.Frequency != m.cfg.Frequency
	m.cfg = cfg
	if freqChanged && m.running {
		m.bump(now)
	}
}

// Start begins cueing with the countdown starting at now.
func (m *Machine) Start(now time.Time) {
	m.running = true
	m.state = newCorridorState(m.activeID())
	m.bump(now)
}

// Stop halts cueing and resets the corridor state.
func (m *Machine) Stop() {
	m.running = false
	m.nextPeriodic = time.Time{}
	m.state = newCorridorState("")
}

// Running reports whether the loops are active.
func (m *Machine) Running() bool { return m.running }

// State returns a copy of the corridor state.
func (m *Machine) State() CorridorState { return m.state }

// NextPeriodic returns when the periodic cue is next due, or the zero time
// when stopped.
func (m *Machine) NextPeriodic() time.Time { return m.nextPeriodic }

// SetFrequency changes the periodic interval. While running the countdown
// restarts immediately with the new period.
func (m *Machine) SetFrequency(d time.Duration, now time.Time) time.Duration {
	m.cfg.Frequency = d
	m.cfg = m.cfg.normalized()
	if m.running {
		m.bump(now)
	}
	return m.cfg.Frequency
}

// HearNow announces the active target immediately, running or not.
func (m *Machine) HearNow(now time.Time) bool {
	return m.announceActive(now, cue.ReasonHearNow)
}

// TickPeriodic fires the periodic cue when the countdown has elapsed.
func (m *Machine) TickPeriodic(now time.Time) bool {
	if !m.running || now.Before(m.nextPeriodic) {
		return false
	}
	if !m.announceActive(now, cue.ReasonPeriodic) {
		// Nothing to say; wait a full period before trying again.
		m.bump(now)
		return false
	}
	return true
}

// AnnounceNewTarget tells the user a target appeared.
func (m *Machine) AnnounceNewTarget(t target.Target, now time.Time) {
	a := cue.NewStationaryTarget
	if t.Kind == target.Dynamic {
		a = cue.NewDynamicTarget
	}
	m.emit(t.ID, cue.ReasonNewTarget, now, cue.AnnouncementToken(a))
}

// announceActive emits the direction and distance sequence for the active
// target. With no active target it optionally emits the no-target cue.
func (m *Machine) announceActive(now time.Time, reason cue.Reason) bool {
	tg, ok := m.targets.Active()
	if !ok {
		if m.cfg.PlayNoTargetCue {
			m.emit("", reason, now, cue.AnnouncementToken(cue.NoTargets))
			return true
		}
		return false
	}

	toT := m.toTarget(tg)
	rel := geo.DeltaAngle(geo.Yaw(m.pose.Forward()), geo.Yaw(toT))
	tokens := cue.Sequence(rel, r2.Norm(toT), m.cfg.AvailableBands)
	m.bump(now)
	if len(tokens) == 0 {
		return true
	}
	m.emit(tg.ID, reason, now, tokens...)
	return true
}

// Sample runs one movement-loop tick.
func (m *Machine) Sample(now time.Time) {
	if !m.running || !m.cfg.MovementCuesEnabled {
		return
	}
	st := &m.state

	tg, ok := m.targets.Active()
	if !ok {
		m.track("")
		st.soft()
		return
	}
	m.track(tg.ID)

	toT := m.toTarget(tg)
	if r2.Norm(toT) < m.cfg.IgnoreIfCloserThan || r2.Norm2(toT) < degenerateSqr {
		st.soft()
		return
	}
	tpos := geo.ToWorld(tg.Position, m.pose.Origin())

	rel := geo.DeltaAngle(geo.Yaw(m.pose.Forward()), geo.Yaw(toT))
	absRel := math.Abs(rel)
	st.LastRelDeg = rel

	inCorridor := absRel <= m.cfg.LockCorridorDeg
	if inCorridor {
		st.LockTimer += m.cfg.SampleInterval
		st.LastLockAt = now
		st.LeftCorridorAt = time.Time{}

		if st.StraightAheadArmed && absRel <= m.cfg.StraightAheadDeg &&
			timeutil.Elapsed(now, st.LastStraightAheadAt) >= m.cfg.StraightAheadCooldown {
			m.emit(tg.ID, cue.ReasonStraightAhead, now, cue.DirectionToken(cue.StraightAhead))
			st.LastStraightAheadAt = now
			st.StraightAheadGrace = now
			st.StraightAheadArmed = false
		}
	} else {
		st.LockTimer = 0
		if st.LeftCorridorAt.IsZero() {
			st.LeftCorridorAt = now
		}
		rearmTime := now.Sub(st.LeftCorridorAt) >= m.cfg.StraightAheadRearm
		rearmAngle := absRel >= m.cfg.LockCorridorDeg+m.cfg.StraightAheadRearmExtraDeg
		if rearmTime && rearmAngle {
			st.StraightAheadArmed = true
		}
	}

	justExited := st.WasInCorridor && !inCorridor
	st.WasInCorridor = inCorridor

	if !st.HaveSample {
		st.LastSample = tpos
		st.LastSampleAt = now
		st.HaveSample = true
		return
	}
	dt := now.Sub(st.LastSampleAt)
	if dt <= 0 {
		return
	}

	delta := r2.Sub(tpos.Vec(), st.LastSample.Vec())
	speed := r2.Norm(delta) / dt.Seconds()
	st.LastSample = tpos
	st.LastSampleAt = now
	st.LastSpeed = speed

	if speed < m.cfg.MinMoveSpeed {
		return
	}

	recentlyLocked := timeutil.Elapsed(now, st.LastLockAt) <= m.cfg.RecentLockGrace
	canPlay := timeutil.Elapsed(now, st.LastMovementCueAt) >= m.cfg.MovementCueCooldown ||
		timeutil.Elapsed(now, st.StraightAheadGrace) >= m.cfg.StraightAheadMovementGrace

	if justExited && recentlyLocked && canPlay && r2.Norm2(delta) > degenerateSqr {
		oct := geo.OctantOf(geo.Yaw(delta))
		m.emit(tg.ID, cue.ReasonMovement, now, cue.MovingToken(oct))
		st.LastMovementCueAt = now
	}
}

// track resets the corridor state when the followed target changes.
func (m *Machine) track(id string) {
	if m.state.TargetID != id {
		m.state = newCorridorState(id)
	}
}

func (m *Machine) activeID() string {
	if tg, ok := m.targets.Active(); ok {
		return tg.ID
	}
	return ""
}

// toTarget returns the horizontal observer-to-target vector in the world
// frame.
func (m *Machine) toTarget(tg target.Target) r2.Vec {
	tpos := geo.ToWorld(tg.Position, m.pose.Origin())
	return r2.Sub(tpos.Vec(), m.pose.Position().Vec())
}

func (m *Machine) bump(now time.Time) {
	m.nextPeriodic = now.Add(m.cfg.Frequency)
}

func (m *Machine) emit(targetID string, reason cue.Reason, now time.Time, tokens ...cue.Token) {
	m.bump(now)
	if m.sink == nil {
		return
	}
	m.sink.Emit(cue.Cue{TargetID: targetID, Tokens: tokens, Reason: reason, At: now})
}
