package route

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sonus/internal/geo"
	"github.com/banshee-data/sonus/internal/monitoring"
	"github.com/banshee-data/sonus/internal/target"
	"github.com/banshee-data/sonus/internal/timeutil"
)

// MinSpeed is the floor applied to a waypoint's speed when timing a leg.
const MinSpeed = 0.01

// maxLegsPerTick bounds how many zero-length legs one Tick may consume.
const maxLegsPerTick = 64

// Registry is the subset of the target registry the router needs.
type Registry interface {
	Get(id string) (target.Target, bool)
	IsUsable(id string) bool
	SetPose(id string, pos geo.Point, heading float32, at time.Time) bool
}

// Epoch is the mission generation counter.
type Epoch interface {
	Current() uint64
	Valid(g uint64) bool
}

// EventKind labels route lifecycle notifications.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventFinished  EventKind = "finished"
	EventCancelled EventKind = "cancelled"
)

// Cancellation reasons.
const (
	ReasonReplaced   = "replaced"
	ReasonStopped    = "stopped"
	ReasonManualMove = "manual_move"
	ReasonStaleEpoch = "stale_epoch"
	ReasonUnusable   = "target_unusable"
	ReasonShutdown   = "shutdown"
)

// Event is one lifecycle notification for a route run.
type Event struct {
	Kind      EventKind `json:"kind"`
	RunID     string    `json:"run_id"`
	TargetID  string    `json:"target_id"`
	RouteName string    `json:"route_name,omitempty"`
	Mode      Mode      `json:"mode"`
	Legs      int       `json:"legs"` // legs completed so far
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Listener receives route events synchronously from Tick, StartRoute and
// StopRoute.
type Listener func(Event)

type phase int

const (
	phaseMoving phase = iota
	phasePaused
)

// task is the resumable state of one running route.
type task struct {
	runID    string
	targetID string
	route    Route
	epoch    uint64
	cur      cursor
	leg      Leg
	phase    phase

	legStart    time.Time
	legDuration time.Duration
	pauseUntil  time.Time
	legsDone    int
	startedAt   time.Time
}

// Status describes a running route.
type Status struct {
	RunID     string    `json:"run_id"`
	TargetID  string    `json:"target_id"`
	RouteName string    `json:"route_name,omitempty"`
	Mode      Mode      `json:"mode"`
	Repeats   bool      `json:"repeats"`
	Leg       Leg       `json:"leg"`
	Paused    bool      `json:"paused"`
	LegsDone  int       `json:"legs_done"`
	StartedAt time.Time `json:"started_at"`
}

// Router owns every running route, at most one per target id. It is not
// safe for concurrent use; the session goroutine drives it.
type Router struct {
	reg       Registry
	epoch     Epoch
	clock     timeutil.Clock
	tasks     map[string]*task
	listeners []Listener
}

// NewRouter returns a router writing into reg and cancelling on epoch
// changes.
func NewRouter(reg Registry, epoch Epoch, clock timeutil.Clock) *Router {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Router{
		reg:   reg,
		epoch: epoch,
		clock: clock,
		tasks: make(map[string]*task),
	}
}

// OnEvent registers l.
func (r *Router) OnEvent(l Listener) {
	r.listeners = append(r.listeners, l)
}

// StartRoute begins driving targetID along rt, cancelling any route already
// running for that target. It returns the new run id, or false when the route
// has fewer than two waypoints or the target is not registered. Starting a
// second route for the same target is expected: the later call wins.
func (r *Router) StartRoute(targetID string, rt Route) (string, bool) {
	if len(rt.Waypoints) < 2 || !r.reg.IsUsable(targetID) {
		return "", false
	}
	now := r.clock.Now()
	if prev, ok := r.tasks[targetID]; ok {
		monitoring.Logf("[route] target %s: replacing run %s", targetID, prev.runID)
		r.cancel(prev, ReasonReplaced, now)
	}

	t := &task{
		runID:     uuid.New().String(),
		targetID:  targetID,
		route:     rt,
		epoch:     r.epoch.Current(),
		cur:       newCursor(len(rt.Waypoints), rt.Mode),
		startedAt: now,
	}
	if !r.beginLeg(t, now) {
		return "", false
	}
	r.tasks[targetID] = t
	r.emit(t, EventStarted, "", now)
	r.advance(t, now)
	return t.runID, true
}

// StopRoute cancels the route for targetID. After it returns no further
// position writes happen for that run.
func (r *Router) StopRoute(targetID string) bool {
	t, ok := r.tasks[targetID]
	if !ok {
		return false
	}
	r.cancel(t, ReasonStopped, r.clock.Now())
	return true
}

// StopAll cancels every running route with reason.
func (r *Router) StopAll(reason string) int {
	now := r.clock.Now()
	ids := r.sortedIDs()
	for _, id := range ids {
		r.cancel(r.tasks[id], reason, now)
	}
	return len(ids)
}

// MoveTarget cancels any route for targetID and then writes pos. It is the
// only sanctioned way to move a routed target by hand.
func (r *Router) MoveTarget(targetID string, pos geo.Point, heading *float32) bool {
	now := r.clock.Now()
	if t, ok := r.tasks[targetID]; ok {
		r.cancel(t, ReasonManualMove, now)
	}
	tg, ok := r.reg.Get(targetID)
	if !ok {
		return false
	}
	h := tg.Heading
	if heading != nil {
		h = *heading
	}
	return r.reg.SetPose(targetID, pos, h, now)
}

// Running lists running routes ordered by target id.
func (r *Router) Running() []Status {
	out := make([]Status, 0, len(r.tasks))
	for _, id := range r.sortedIDs() {
		t := r.tasks[id]
		out = append(out, Status{
			RunID:     t.runID,
			TargetID:  t.targetID,
			RouteName: t.route.Name,
			Mode:      t.route.Mode,
			Repeats:   t.route.Mode.Repeats(),
			Leg:       t.leg,
			Paused:    t.phase == phasePaused,
			LegsDone:  t.legsDone,
			StartedAt: t.startedAt,
		})
	}
	return out
}

// Tick resumes every running route at now.
func (r *Router) Tick(now time.Time) {
	for _, id := range r.sortedIDs() {
		if t, ok := r.tasks[id]; ok {
			r.advance(t, now)
		}
	}
}

// advance runs t forward to now. Each loop iteration is a resumption point
// and re-validates the epoch and target before any write.
func (r *Router) advance(t *task, now time.Time) {
	for i := 0; i < maxLegsPerTick; i++ {
		if !r.epoch.Valid(t.epoch) {
			r.cancel(t, ReasonStaleEpoch, now)
			return
		}
		if !r.reg.IsUsable(t.targetID) {
			r.cancel(t, ReasonUnusable, now)
			return
		}

		switch t.phase {
		case phasePaused:
			if now.Before(t.pauseUntil) {
				return
			}
			if !r.nextLeg(t, t.pauseUntil) {
				return
			}

		case phaseMoving:
			legEnd := t.legStart.Add(t.legDuration)
			frac := 1.0
			if t.legDuration > 0 {
				frac = float64(now.Sub(t.legStart)) / float64(t.legDuration)
			}
			r.write(t, frac, now)
			if frac < 1 {
				return
			}

			t.legsDone++
			arrived := t.route.Waypoints[t.leg.To]
			if arrived.PauseAfterArrival > 0 {
				t.phase = phasePaused
				t.pauseUntil = legEnd.Add(timeutil.Seconds(float64(arrived.PauseAfterArrival)))
				continue
			}
			if !r.nextLeg(t, legEnd) {
				return
			}
		}
	}
}

// write interpolates the current leg at frac and stores the pose.
func (r *Router) write(t *task, frac float64, now time.Time) {
	from := t.route.Waypoints[t.leg.From].Point
	to := t.route.Waypoints[t.leg.To].Point
	pos := geo.Lerp(from, to, frac)

	tg, ok := r.reg.Get(t.targetID)
	if !ok {
		return
	}
	heading := tg.Heading
	if tg.Kind == target.Dynamic {
		if frac < 1 {
			heading = float32(geo.Bearing(pos, to))
		} else if from != to {
			heading = float32(geo.Bearing(from, to))
		}
	}
	r.reg.SetPose(t.targetID, pos, heading, now)
}

// nextLeg starts the following leg at start, or finishes the run.
func (r *Router) nextLeg(t *task, start time.Time) bool {
	if !r.beginLeg(t, start) {
		r.finish(t, start)
		return false
	}
	return true
}

func (r *Router) beginLeg(t *task, start time.Time) bool {
	leg, ok := t.cur.next()
	if !ok {
		return false
	}
	t.leg = leg
	t.phase = phaseMoving
	t.legStart = start
	t.legDuration = LegDuration(t.route.Waypoints[leg.From], t.route.Waypoints[leg.To])
	return true
}

// LegDuration is the travel time from one waypoint to the next at the
// departing waypoint's speed.
func LegDuration(from, to Waypoint) time.Duration {
	dist := geo.HaversineMeters(from.Point, to.Point)
	speed := math.Max(MinSpeed, float64(from.SpeedToNext))
	return timeutil.Seconds(dist / speed)
}

func (r *Router) finish(t *task, at time.Time) {
	delete(r.tasks, t.targetID)
	r.emit(t, EventFinished, "", at)
}

func (r *Router) cancel(t *task, reason string, at time.Time) {
	if cur, ok := r.tasks[t.targetID]; ok && cur == t {
		delete(r.tasks, t.targetID)
	}
	r.emit(t, EventCancelled, reason, at)
}

func (r *Router) emit(t *task, kind EventKind, reason string, at time.Time) {
	ev := Event{
		Kind:      kind,
		RunID:     t.runID,
		TargetID:  t.targetID,
		RouteName: t.route.Name,
		Mode:      t.route.Mode,
		Legs:      t.legsDone,
		Reason:    reason,
		At:        at,
	}
	for _, l := range r.listeners {
		l(ev)
	}
}

func (r *Router) sortedIDs() []string {
	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LogListener writes route lifecycle events through monitoring.Logf.
func LogListener(ev Event) {
	if ev.Reason != "" {
		monitoring.Logf("[route] %s run=%s target=%s route=%q legs=%d reason=%s",
			ev.Kind, ev.RunID, ev.TargetID, ev.RouteName, ev.Legs, ev.Reason)
		return
	}
	monitoring.Logf("[route] %s run=%s target=%s route=%q mode=%s legs=%d",
		ev.Kind, ev.RunID, ev.TargetID, ev.RouteName, ev.Mode, ev.Legs)
}
