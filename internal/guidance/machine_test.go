package guidance

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sonus/internal/cue"
	"github.com/banshee-data/sonus/internal/geo"
	"github.com/banshee-data/sonus/internal/observer"
	"github.com/banshee-data/sonus/internal/target"
)

var (
	origin = geo.Point{Lat: 37.7749, Lon: -122.4194}
	t0     = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
)

const tick = 200 * time.Millisecond

type harness struct {
	t    *testing.T
	now  time.Time
	reg  *target.Registry
	pose *observer.Pose
	m    *Machine
	cues []cue.Cue
	id   string
	pos  geo.WorldPosition
}

// newHarness places one active target at w (meters east, north of the
// observer) with the observer facing north.
func newHarness(t *testing.T, cfg Config, w geo.WorldPosition) *harness {
	t.Helper()
	h := &harness{
		t:    t,
		now:  t0,
		reg:  target.NewRegistry(),
		pose: observer.NewPose(origin, 0),
	}
	h.m = New(cfg, h.reg, h.pose, cue.SinkFunc(func(c cue.Cue) { h.cues = append(h.cues, c) }))
	h.id = h.reg.Spawn("goal", target.Dynamic, worldToGeo(w), t0).ID
	h.pos = w
	require.NoError(t, h.reg.SetActive(h.id))
	return h
}

func worldToGeo(w geo.WorldPosition) geo.Point {
	return geo.Point{
		Lat: origin.Lat + float64(w.Z)/geo.MetersPerDegree,
		Lon: origin.Lon + float64(w.X)/geo.MetersPerDegree,
	}
}

func (h *harness) place(w geo.WorldPosition) {
	h.pos = w
	h.reg.SetPose(h.id, worldToGeo(w), 0, h.now)
}

// sample advances one movement tick with the observer at heading.
func (h *harness) sample(heading float64) {
	h.now = h.now.Add(tick)
	h.pose.SetHeading(heading)
	h.m.Sample(h.now)
}

func (h *harness) hold(heading float64, d time.Duration) {
	for end := h.now.Add(d); h.now.Before(end); {
		h.sample(heading)
	}
}

func (h *harness) by(reason cue.Reason) []cue.Cue {
	var out []cue.Cue
	for _, c := range h.cues {
		if c.Reason == reason {
			out = append(out, c)
		}
	}
	return out
}

func TestPeriodic_Countdown(t *testing.T) {
	h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 15})
	h.m.Start(t0)

	assert.False(t, h.m.TickPeriodic(t0.Add(29900*time.Millisecond)))
	require.True(t, h.m.TickPeriodic(t0.Add(30*time.Second)))

	require.Len(t, h.cues, 1)
	c := h.cues[0]
	assert.Equal(t, cue.ReasonPeriodic, c.Reason)
	assert.Equal(t, h.id, c.TargetID)
	want := []cue.Token{cue.DirectionToken(cue.StraightAhead), cue.DistanceToken(cue.Band20m)}
	if diff := cmp.Diff(want, c.Tokens); diff != "" {
		t.Errorf("periodic tokens (-want +got):\n%s", diff)
	}
	assert.Equal(t, t0.Add(60*time.Second), h.m.NextPeriodic())
}

func TestPeriodic_NotRunning(t *testing.T) {
	h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 15})
	assert.False(t, h.m.TickPeriodic(t0.Add(time.Hour)))
	assert.True(t, h.m.NextPeriodic().IsZero())
}

func TestHearNow_PushesPeriodic(t *testing.T) {
	h := newHarness(t, DefaultConfig(), geo.WorldPosition{X: -100, Z: -300})
	h.m.Start(t0)

	require.True(t, h.m.HearNow(t0.Add(10*time.Second)))
	assert.False(t, h.m.TickPeriodic(t0.Add(30*time.Second)), "hear-now restarted the countdown")
	assert.True(t, h.m.TickPeriodic(t0.Add(40*time.Second)))

	require.Len(t, h.cues, 2)
	// Target is ~162° off to the left at ~316 m.
	want := []cue.Token{cue.DirectionToken(cue.BehindYou), cue.DistanceToken(cue.Band350m)}
	assert.Equal(t, want, h.cues[0].Tokens)
	assert.Equal(t, cue.ReasonHearNow, h.cues[0].Reason)
}

func TestHearNow_WorksWhileStopped(t *testing.T) {
	h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 15})
	assert.True(t, h.m.HearNow(t0))
	assert.Len(t, h.cues, 1)
}

func TestSetFrequency_RestartsCountdown(t *testing.T) {
	h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 15})
	h.m.Start(t0)

	got := h.m.SetFrequency(5*time.Second, t0.Add(12*time.Second))
	assert.Equal(t, 5*time.Second, got)
	assert.False(t, h.m.TickPeriodic(t0.Add(16900*time.Millisecond)))
	assert.True(t, h.m.TickPeriodic(t0.Add(17*time.Second)))

	assert.Equal(t, MinFrequency, h.m.SetFrequency(100*time.Millisecond, t0), "clamped to 1s")
}

func TestNoTarget(t *testing.T) {
	h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 15})
	require.NoError(t, h.reg.SetActive(""))

	assert.False(t, h.m.HearNow(t0))
	assert.Empty(t, h.cues)

	cfg := DefaultConfig()
	cfg.PlayNoTargetCue = true
	h.m.SetConfig(cfg, t0)
	assert.True(t, h.m.HearNow(t0))
	require.Len(t, h.cues, 1)
	assert.Equal(t, []cue.Token{cue.AnnouncementToken(cue.NoTargets)}, h.cues[0].Tokens)
}

func TestAnnounceNewTarget(t *testing.T) {
	h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 15})
	h.m.Start(t0)
	tg, _ := h.reg.Get(h.id)

	h.m.AnnounceNewTarget(tg, t0.Add(5*time.Second))
	require.Len(t, h.cues, 1)
	assert.Equal(t, []cue.Token{cue.AnnouncementToken(cue.NewDynamicTarget)}, h.cues[0].Tokens)
	assert.Equal(t, t0.Add(35*time.Second), h.m.NextPeriodic(), "announcement bumps the countdown")
}

func TestStraightAhead_FiresOncePerArm(t *testing.T) {
	h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 50})
	h.m.Start(t0)

	h.sample(0)
	sa := h.by(cue.ReasonStraightAhead)
	require.Len(t, sa, 1)
	assert.Equal(t, []cue.Token{cue.DirectionToken(cue.StraightAhead)}, sa[0].Tokens)
	assert.Equal(t, h.now.Add(30*time.Second), h.m.NextPeriodic(), "fire bumps the periodic countdown")
	assert.False(t, h.m.State().StraightAheadArmed)

	h.hold(0, 10*time.Second)
	assert.Len(t, h.by(cue.ReasonStraightAhead), 1)
	assert.Equal(t, 51*tick, h.m.State().LockTimer)
}

func TestStraightAhead_BoundaryOscillationDoesNotRefire(t *testing.T) {
	h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 50})
	h.m.Start(t0)
	h.sample(0)
	require.Len(t, h.by(cue.ReasonStraightAhead), 1)

	for i := 0; i < 100; i++ {
		h.sample(19.9)
		h.sample(20.5)
	}
	assert.Len(t, h.by(cue.ReasonStraightAhead), 1)
	assert.False(t, h.m.State().StraightAheadArmed)
}

func TestStraightAhead_RearmNeedsTimeAndAngle(t *testing.T) {
	t.Run("angle without time", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 50})
		h.m.Start(t0)
		h.sample(0)
		h.hold(0, 4*time.Second) // past the 3 s cooldown

		h.hold(30, 600*time.Millisecond)
		assert.False(t, h.m.State().StraightAheadArmed)
		h.sample(0)
		assert.Len(t, h.by(cue.ReasonStraightAhead), 1)
	})

	t.Run("time without angle", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 50})
		h.m.Start(t0)
		h.sample(0)
		h.hold(0, 4*time.Second)

		h.hold(22, 3*time.Second)
		assert.False(t, h.m.State().StraightAheadArmed)
		h.sample(0)
		assert.Len(t, h.by(cue.ReasonStraightAhead), 1)
	})

	t.Run("time and angle", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 50})
		h.m.Start(t0)
		h.sample(0)
		h.hold(0, 4*time.Second)

		h.hold(30, time.Second)
		assert.True(t, h.m.State().StraightAheadArmed)
		h.sample(0)
		assert.Len(t, h.by(cue.ReasonStraightAhead), 2)
	})

	t.Run("cooldown still applies once re-armed", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 50})
		h.m.Start(t0)
		h.sample(0)

		h.hold(30, time.Second)
		require.True(t, h.m.State().StraightAheadArmed)
		h.sample(0) // ~1.2 s after the first fire
		assert.Len(t, h.by(cue.ReasonStraightAhead), 1)
		h.hold(0, 2*time.Second)
		assert.Len(t, h.by(cue.ReasonStraightAhead), 2)
	})
}

func TestScenario_TargetMovesOutOfCorridor(t *testing.T) {
	h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 15})
	h.m.Start(t0)

	require.True(t, h.m.HearNow(t0))
	assert.Equal(t,
		[]cue.Token{cue.DirectionToken(cue.StraightAhead), cue.DistanceToken(cue.Band20m)},
		h.cues[0].Tokens)

	h.hold(0, 2*time.Second)
	require.Len(t, h.by(cue.ReasonStraightAhead), 1)
	assert.Empty(t, h.by(cue.ReasonMovement))

	// 12 m east in 1 s: 2.4 m per sample.
	for i := 1; i <= 5; i++ {
		h.place(geo.WorldPosition{X: 2.4 * float32(i), Z: 15})
		h.sample(0)
	}
	moves := h.by(cue.ReasonMovement)
	require.Len(t, moves, 1)
	assert.Equal(t, []cue.Token{cue.MovingToken(geo.East)}, moves[0].Tokens)
	assert.InDelta(t, 12, h.m.State().LastSpeed, 0.01)

	// Further samples outside the corridor do not repeat the cue.
	h.hold(0, 10*time.Second)
	assert.Len(t, h.by(cue.ReasonMovement), 1)
}

func TestMovementCue_DualGate(t *testing.T) {
	h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 50})
	h.m.Start(t0)

	// Target drifts east at 1 m/s while the observer turns in and out.
	x := float32(0)
	step := func(heading float64) {
		x += 0.2
		h.place(geo.WorldPosition{X: x, Z: 50})
		h.sample(heading)
	}

	step(0) // t=0.2 straight-ahead, baseline sample
	step(0) // t=0.4
	step(40)
	require.Len(t, h.by(cue.ReasonMovement), 1, "first exit after lock fires")

	for i := 0; i < 14; i++ { // out until t=3.4: re-armed and past the cooldown
		step(40)
	}
	step(0)
	require.Len(t, h.by(cue.ReasonStraightAhead), 2)

	step(40) // 0.2 s after straight-ahead, 3 s after the last movement cue
	assert.Len(t, h.by(cue.ReasonMovement), 1, "both gates closed")

	step(0)
	step(40) // 0.6 s after straight-ahead
	moves := h.by(cue.ReasonMovement)
	require.Len(t, moves, 2, "straight-ahead grace elapsed")
	assert.Equal(t, []cue.Token{cue.MovingToken(geo.East)}, moves[1].Tokens)
}

func TestMovementCue_RequiresRecentLockAndSpeed(t *testing.T) {
	t.Run("slow target", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 50})
		h.m.Start(t0)
		h.sample(0)
		h.sample(0)
		h.place(geo.WorldPosition{X: 0.04, Z: 50}) // 0.2 m/s
		h.sample(40)
		assert.Empty(t, h.by(cue.ReasonMovement))
	})

	t.Run("never locked", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 50})
		h.m.Start(t0)
		for i := 1; i <= 20; i++ {
			h.place(geo.WorldPosition{X: float32(i), Z: 50})
			h.sample(90)
		}
		assert.Empty(t, h.cues)
	})
}

func TestSample_TooCloseResetsLock(t *testing.T) {
	h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 50})
	h.m.Start(t0)
	h.hold(0, time.Second)
	require.Positive(t, h.m.State().LockTimer)

	h.place(geo.WorldPosition{Z: 5})
	h.sample(0)
	st := h.m.State()
	assert.Zero(t, st.LockTimer)
	assert.False(t, st.HaveSample)
	assert.False(t, st.WasInCorridor)
	assert.True(t, st.StraightAheadArmed)
	assert.False(t, st.LastStraightAheadAt.IsZero(), "cooldown timestamps survive")
}

func TestSample_TargetChangeResetsState(t *testing.T) {
	h := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 50})
	h.m.Start(t0)
	h.hold(0, time.Second)
	require.False(t, h.m.State().StraightAheadArmed)

	other := h.reg.Spawn("other", target.Stationary, worldToGeo(geo.WorldPosition{X: 40, Z: 40}), t0)
	require.NoError(t, h.reg.SetActive(other.ID))
	h.sample(45)

	st := h.m.State()
	assert.Equal(t, other.ID, st.TargetID)
	assert.Equal(t, tick, st.LockTimer)
	assert.Len(t, h.by(cue.ReasonStraightAhead), 2, "fresh state is armed with no cooldown")
}

func TestSample_DisabledAndStopped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MovementCuesEnabled = false
	h := newHarness(t, cfg, geo.WorldPosition{Z: 50})
	h.m.Start(t0)
	h.hold(0, time.Second)
	assert.Empty(t, h.cues)

	h2 := newHarness(t, DefaultConfig(), geo.WorldPosition{Z: 50})
	h2.m.Start(t0)
	h2.hold(0, time.Second)
	h2.m.Stop()
	assert.False(t, h2.m.Running())
	assert.Equal(t, newCorridorState(""), h2.m.State())
	n := len(h2.cues)
	h2.hold(0, time.Second)
	assert.Len(t, h2.cues, n)
}
