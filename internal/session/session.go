// Package session runs the guidance core on a single goroutine. The frame
// ticker drives routes and the periodic cue countdown, the sample ticker
// drives the corridor machine, and every public method is a command executed
// on the same goroutine between ticks.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/sonus/internal/config"
	"github.com/banshee-data/sonus/internal/cue"
	"github.com/banshee-data/sonus/internal/geo"
	"github.com/banshee-data/sonus/internal/guidance"
	"github.com/banshee-data/sonus/internal/mission"
	"github.com/banshee-data/sonus/internal/monitoring"
	"github.com/banshee-data/sonus/internal/observer"
	"github.com/banshee-data/sonus/internal/route"
	"github.com/banshee-data/sonus/internal/target"
	"github.com/banshee-data/sonus/internal/timeutil"
)

var (
	// ErrNotRunning is returned by commands posted while Run is not active.
	ErrNotRunning = errors.New("session not running")
	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("session already running")
	// ErrRouteRejected is returned when the router refuses to start a route.
	ErrRouteRejected = errors.New("route rejected")
)

// DefaultFrameInterval is the frame tick period when Options leaves it unset.
const DefaultFrameInterval = 50 * time.Millisecond

// Options configures a Session.
type Options struct {
	Clock         timeutil.Clock
	Guidance      guidance.Config
	FrameInterval time.Duration
	TrailLength   int
	RecentCues    int

	Observer   geo.Point
	HeadingDeg float64

	// Extra consumers. They are invoked on the session goroutine.
	Sinks            []cue.Sink
	RouteListeners   []route.Listener
	MissionListeners []mission.Listener
}

// OptionsFromTuning derives Options from a tuning file. Observer fields are
// left zero when the file does not set them.
func OptionsFromTuning(tc *config.TuningConfig) Options {
	o := Options{
		Guidance:      guidance.ConfigFromTuning(tc),
		FrameInterval: tc.GetFrameInterval(),
		TrailLength:   tc.GetTrailLength(),
	}
	if lat, lon, heading, ok := tc.GetObserver(); ok {
		o.Observer = geo.Point{Lat: lat, Lon: lon}
		o.HeadingDeg = heading
	}
	return o
}

type command struct {
	fn   func(now time.Time)
	done chan struct{}
}

// Session owns the registry, observer pose, router, cue machine and mission
// lifecycle. Only the Run goroutine touches the router, machine and trail.
type Session struct {
	clock    timeutil.Clock
	frame    time.Duration
	reg      *target.Registry
	pose     *observer.Pose
	mission  *mission.Session
	router   *route.Router
	machine  *guidance.Machine
	trail    *Trail
	recorder *monitoring.Recorder

	cmds   chan command
	frames uint64

	mu        sync.Mutex
	done      chan struct{} // non-nil while Run is active
	ready     chan struct{}
	readyOnce sync.Once
}

// New wires a session. Run must be called before any command.
func New(opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	frame := opts.FrameInterval
	if frame <= 0 {
		frame = DefaultFrameInterval
	}
	if opts.Guidance == (guidance.Config{}) {
		opts.Guidance = guidance.DefaultConfig()
	}
	recent := opts.RecentCues
	if recent <= 0 {
		recent = 200
	}

	s := &Session{
		clock:    clock,
		frame:    frame,
		reg:      target.NewRegistry(),
		pose:     observer.NewPose(opts.Observer, opts.HeadingDeg),
		mission:  mission.NewSession(),
		trail:    NewTrail(opts.TrailLength),
		recorder: monitoring.NewRecorder(recent),
		cmds:     make(chan command),
		ready:    make(chan struct{}),
	}
	s.router = route.NewRouter(s.reg, s.mission.Epoch(), clock)
	s.router.OnEvent(route.LogListener)
	for _, l := range opts.RouteListeners {
		s.router.OnEvent(l)
	}
	for _, l := range opts.MissionListeners {
		s.mission.OnEvent(l)
	}
	s.reg.OnActiveChanged(func(prev, next string) {
		monitoring.Logf("[session] active target %q -> %q", prev, next)
	})

	sinks := cue.MultiSink{s.recorder, monitoring.LogSink{}}
	for _, sk := range opts.Sinks {
		sinks = append(sinks, sk)
	}
	s.machine = guidance.New(opts.Guidance, s.reg, s.pose, sinks)
	return s
}

// Run executes the session loop until ctx is cancelled. Running routes are
// stopped on exit.
func (s *Session) Run(ctx context.Context) error {
	frame := s.clock.NewTicker(s.frame)
	defer frame.Stop()
	sample := s.clock.NewTicker(s.machine.Config().SampleInterval)
	defer sample.Stop()

	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	defer func() {
		s.mu.Lock()
		s.done = nil
		s.mu.Unlock()
		close(done)
	}()

	monitoring.Logf("[session] started: frame=%v sample=%v", s.frame, s.machine.Config().SampleInterval)
	for {
		select {
		case <-ctx.Done():
			if n := s.router.StopAll(route.ReasonShutdown); n > 0 {
				monitoring.Logf("[session] stopped %d route(s) on shutdown", n)
			}
			monitoring.Logf("[session] stopping: %v", ctx.Err())
			return nil
		case now := <-frame.C():
			s.tickFrame(now)
		case now := <-sample.C():
			s.machine.Sample(now)
		case c := <-s.cmds:
			c.fn(s.clock.Now())
			close(c.done)
		}
	}
}

// Ready is closed once Run first starts accepting commands.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Running reports whether Run is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

func (s *Session) tickFrame(now time.Time) {
	s.frames++
	s.router.Tick(now)
	s.machine.TickPeriodic(now)
	for _, t := range s.reg.ActiveTargets() {
		s.trail.Record(t)
	}
}

// do runs fn on the session goroutine and waits for it to finish.
func (s *Session) do(fn func(now time.Time)) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return ErrNotRunning
	}

	c := command{fn: fn, done: make(chan struct{})}
	select {
	case s.cmds <- c:
	case <-done:
		return ErrNotRunning
	}
	<-c.done
	return nil
}

// Clock returns the session's time source.
func (s *Session) Clock() timeutil.Clock { return s.clock }

// SpawnTarget registers a target at pos and announces it. The first target
// spawned while none is active becomes the active one.
func (s *Session) SpawnTarget(name string, kind target.Kind, pos geo.Point) (target.Target, error) {
	var t target.Target
	err := s.do(func(now time.Time) {
		t = s.reg.Spawn(name, kind, pos, now)
		if s.reg.ActiveID() == "" {
			_ = s.reg.SetActive(t.ID)
		}
		s.trail.Record(t)
		s.machine.AnnounceNewTarget(t, now)
		monitoring.Logf("[session] spawned %s target %s (%s) at %.6f,%.6f", kind, t.ID, name, pos.Lat, pos.Lon)
	})
	return t, err
}

// SpawnRelative spawns a target distance meters from the observer along
// bearingDeg.
func (s *Session) SpawnRelative(name string, kind target.Kind, bearingDeg, distance float64) (target.Target, error) {
	return s.SpawnTarget(name, kind, geo.OffsetLocation(s.pose.Location(), bearingDeg, distance))
}

// RemoveTarget stops the target's route and unregisters it.
func (s *Session) RemoveTarget(id string) error {
	var found bool
	err := s.do(func(now time.Time) {
		s.router.StopRoute(id)
		found = s.reg.Remove(id)
		s.trail.Forget(id)
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("remove %s: %w", id, target.ErrNotFound)
	}
	return nil
}

// SetActive selects the target cues are about. An empty id clears it.
func (s *Session) SetActive(id string) error {
	var serr error
	if err := s.do(func(time.Time) { serr = s.reg.SetActive(id) }); err != nil {
		return err
	}
	return serr
}

// MoveTarget cancels any route for id and writes pos. A nil heading keeps
// the current one.
func (s *Session) MoveTarget(id string, pos geo.Point, heading *float32) error {
	var ok bool
	if err := s.do(func(time.Time) { ok = s.router.MoveTarget(id, pos, heading) }); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("move %s: %w", id, target.ErrNotFound)
	}
	return nil
}

// StartRoute drives id along rt and returns the run id. A route already
// running for id is replaced.
func (s *Session) StartRoute(id string, rt route.Route) (string, error) {
	if err := rt.Validate(); err != nil {
		return "", fmt.Errorf("start route for %s: %w: %w", id, ErrRouteRejected, err)
	}
	var (
		runID string
		ok    bool
	)
	if err := s.do(func(time.Time) { runID, ok = s.router.StartRoute(id, rt) }); err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("start route for %s: %w: %w", id, ErrRouteRejected, target.ErrNotFound)
	}
	return runID, nil
}

// StopRoute cancels id's route. Once it returns no further writes from that
// route can happen.
func (s *Session) StopRoute(id string) (bool, error) {
	var stopped bool
	err := s.do(func(time.Time) { stopped = s.router.StopRoute(id) })
	return stopped, err
}

// StartCues starts the periodic and movement loops.
func (s *Session) StartCues() error {
	return s.do(func(now time.Time) { s.machine.Start(now) })
}

// StopCues halts cueing and resets the corridor state.
func (s *Session) StopCues() error {
	return s.do(func(time.Time) { s.machine.Stop() })
}

// HearNow emits the active target's cue immediately. It reports whether
// anything was announced.
func (s *Session) HearNow() (bool, error) {
	var ok bool
	err := s.do(func(now time.Time) { ok = s.machine.HearNow(now) })
	return ok, err
}

// SetFrequency changes the periodic interval and returns the clamped value.
func (s *Session) SetFrequency(d time.Duration) (time.Duration, error) {
	var got time.Duration
	err := s.do(func(now time.Time) { got = s.machine.SetFrequency(d, now) })
	return got, err
}

// SetGuidanceConfig replaces the cue tuning. The sample ticker keeps the
// interval it was started with.
func (s *Session) SetGuidanceConfig(cfg guidance.Config) error {
	return s.do(func(now time.Time) {
		cfg.SampleInterval = s.machine.Config().SampleInterval
		s.machine.SetConfig(cfg, now)
	})
}

// GuidanceConfig returns the active cue tuning.
func (s *Session) GuidanceConfig() (guidance.Config, error) {
	var cfg guidance.Config
	err := s.do(func(time.Time) { cfg = s.machine.Config() })
	return cfg, err
}

// SetObserver updates the observer. Nil fields are left unchanged.
func (s *Session) SetObserver(loc *geo.Point, headingDeg *float64) error {
	return s.do(func(time.Time) {
		if loc != nil {
			s.pose.SetLocation(*loc)
		}
		if headingDeg != nil {
			s.pose.SetHeading(*headingDeg)
		}
	})
}

// Observer returns the observer's location and heading.
func (s *Session) Observer() (geo.Point, float64) {
	return s.pose.Location(), s.pose.Heading()
}

// LoadMission marks name as the active mission.
func (s *Session) LoadMission(name string) error {
	return s.do(func(now time.Time) { s.mission.MarkLoaded(name, now) })
}

// ClearMission bumps the epoch, which cancels every running route at its
// next resumption point, then removes all targets and stops cueing. The
// world origin moves to the observer's current location. It returns the new
// epoch.
func (s *Session) ClearMission() (uint64, error) {
	var g uint64
	err := s.do(func(now time.Time) {
		g = s.mission.Clear(now)
		s.router.Tick(now)
		s.reg.Clear()
		s.machine.Stop()
		s.trail.Reset()
		s.pose.Reanchor()
		monitoring.Logf("[session] mission cleared, epoch=%d", g)
	})
	return g, err
}

// Snapshot is a consistent view of the session.
type Snapshot struct {
	Targets      []target.Target        `json:"targets"`
	ActiveID     string                 `json:"active_id,omitempty"`
	Routes       []route.Status         `json:"routes"`
	CuesRunning  bool                   `json:"cues_running"`
	Frequency    time.Duration          `json:"frequency"`
	NextPeriodic time.Time              `json:"next_periodic,omitempty"`
	Corridor     guidance.CorridorState `json:"corridor"`
	Mission      mission.Status         `json:"mission"`
	Observer     geo.Point              `json:"observer"`
	HeadingDeg   float64                `json:"heading_deg"`
	Frames       uint64                 `json:"frames"`
	At           time.Time              `json:"at"`
}

// Snapshot returns the current state.
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func(now time.Time) {
		snap = Snapshot{
			Targets:      s.reg.ActiveTargets(),
			ActiveID:     s.reg.ActiveID(),
			Routes:       s.router.Running(),
			CuesRunning:  s.machine.Running(),
			Frequency:    s.machine.Config().Frequency,
			NextPeriodic: s.machine.NextPeriodic(),
			Corridor:     s.machine.State(),
			Mission:      s.mission.Status(),
			Observer:     s.pose.Location(),
			HeadingDeg:   s.pose.Heading(),
			Frames:       s.frames,
			At:           now,
		}
	})
	return snap, err
}

// Target returns a copy of id.
func (s *Session) Target(id string) (target.Target, bool) {
	return s.reg.Get(id)
}

// Trail returns id's recorded poses, oldest first.
func (s *Session) Trail(id string) ([]TrailPoint, error) {
	var pts []TrailPoint
	err := s.do(func(time.Time) { pts = s.trail.Points(id) })
	return pts, err
}

// Trails returns every recorded trail.
func (s *Session) Trails() (map[string][]TrailPoint, error) {
	var all map[string][]TrailPoint
	err := s.do(func(time.Time) { all = s.trail.All() })
	return all, err
}

// RecentCues returns up to n of the latest emitted cues, oldest first.
func (s *Session) RecentCues(n int) []cue.Cue {
	return s.recorder.Recent(n)
}
