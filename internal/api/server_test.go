package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sonus/internal/config"
	"github.com/banshee-data/sonus/internal/cue"
	"github.com/banshee-data/sonus/internal/db"
	"github.com/banshee-data/sonus/internal/geo"
	"github.com/banshee-data/sonus/internal/mission"
	"github.com/banshee-data/sonus/internal/route"
	"github.com/banshee-data/sonus/internal/session"
	"github.com/banshee-data/sonus/internal/target"
	"github.com/banshee-data/sonus/internal/timeutil"
)

var (
	home = geo.Point{Lat: 52.3702, Lon: 4.8952}
	t0   = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
)

type testServer struct {
	mux   *http.ServeMux
	sess  *session.Session
	store *db.DB
	clock *timeutil.MockClock
}

// newTestServer runs a session wired to a cloned database the way the
// binary wires it. withDB=false serves without storage.
func newTestServer(t *testing.T, withDB bool) *testServer {
	t.Helper()
	clock := timeutil.NewMockClock(t0)
	opts := session.Options{
		Clock:       clock,
		TrailLength: 20,
		Observer:    home,
	}
	ts := &testServer{clock: clock}
	if withDB {
		ts.store = cloneTestDB(t)
		opts.Sinks = []cue.Sink{ts.store.CueLog()}
		opts.RouteListeners = []route.Listener{ts.store.RouteRunListener()}
		opts.MissionListeners = []mission.Listener{ts.store.MissionListener()}
	}
	ts.sess = session.New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- ts.sess.Run(ctx) }()
	select {
	case <-ts.sess.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not start")
	}
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errc)
	})

	ts.mux = NewServer(ts.sess, ts.store, nil).ServeMux()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	ts.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (ts *testServer) spawn(t *testing.T, body any) target.Target {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/targets", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[target.Target](t, w)
}

func northWaypoints(n int) []route.Waypoint {
	var wps []route.Waypoint
	for i := 0; i < n; i++ {
		wps = append(wps, route.Waypoint{Point: geo.OffsetLocation(home, 0, float64(i)*50), SpeedToNext: 5})
	}
	return wps
}

func TestStatus_SessionNotRunning(t *testing.T) {
	s := session.New(session.Options{Clock: timeutil.NewMockClock(t0)})
	mux := NewServer(s, nil, nil).ServeMux()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "session not running")
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	st := decode[statusView](t, w)
	assert.Equal(t, 30.0, st.FrequencySeconds)
	assert.False(t, st.CuesRunning)
	assert.Equal(t, home, st.Observer)
	assert.Empty(t, st.Targets)
	assert.Nil(t, st.NextPeriodic)
}

func TestSpawnAndListTargets(t *testing.T) {
	ts := newTestServer(t, false)

	lat, lon := 52.371, 4.896
	buoy := ts.spawn(t, map[string]any{"name": "buoy", "lat": lat, "lon": lon})
	assert.Equal(t, target.Stationary, buoy.Kind)
	assert.Equal(t, geo.Point{Lat: lat, Lon: lon}, buoy.Position)

	boat := ts.spawn(t, map[string]any{"name": "boat", "kind": "dynamic", "bearing_deg": 90, "distance_m": 40})
	assert.Equal(t, target.Dynamic, boat.Kind)
	assert.InDelta(t, 40, geo.HaversineMeters(home, boat.Position), 0.5)

	w := ts.do(t, http.MethodGet, "/api/targets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[targetsView](t, w)
	require.Len(t, list.Targets, 2)
	assert.Equal(t, buoy.ID, list.ActiveID, "first spawn becomes active")
	assert.Empty(t, list.Routes)
}

func TestSpawnTarget_BadRequests(t *testing.T) {
	ts := newTestServer(t, false)
	tests := []struct {
		name string
		body any
	}{
		{"no position", map[string]any{"name": "x"}},
		{"lat only", map[string]any{"lat": 1.0}},
		{"out of range", map[string]any{"lat": 91.0, "lon": 0.0}},
		{"negative distance", map[string]any{"bearing_deg": 0, "distance_m": -1}},
		{"unknown kind", map[string]any{"kind": "flying", "lat": 1.0, "lon": 1.0}},
		{"unknown field", map[string]any{"lat": 1.0, "lon": 1.0, "altitude": 3}},
		{"not json", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/targets", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestTargetLifecycle(t *testing.T) {
	ts := newTestServer(t, false)
	a := ts.spawn(t, map[string]any{"name": "a", "bearing_deg": 0, "distance_m": 100})
	b := ts.spawn(t, map[string]any{"name": "b", "bearing_deg": 180, "distance_m": 100})

	w := ts.do(t, http.MethodGet, "/api/targets/"+a.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a", decode[target.Target](t, w).Name)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/targets/nope", nil).Code)

	w = ts.do(t, http.MethodPost, "/api/targets/"+b.ID+"/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap, err := ts.sess.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, b.ID, snap.ActiveID)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/targets/nope/active", nil).Code)

	heading := float32(45)
	dest := geo.OffsetLocation(home, 270, 30)
	w = ts.do(t, http.MethodPost, "/api/targets/"+a.ID+"/move", moveRequest{Lat: dest.Lat, Lon: dest.Lon, Heading: &heading})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	moved := decode[target.Target](t, w)
	assert.Equal(t, dest, moved.Position)
	assert.Equal(t, heading, moved.Heading)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/targets/nope/move", moveRequest{Lat: 1, Lon: 1}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/targets/"+a.ID+"/move", moveRequest{Lat: 100}).Code)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/targets/"+a.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/targets/"+a.ID, nil).Code)

	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(t, http.MethodPut, "/api/targets", nil).Code)
}

func TestInlineRoute(t *testing.T) {
	ts := newTestServer(t, false)
	boat := ts.spawn(t, map[string]any{"name": "boat", "kind": "dynamic", "lat": home.Lat, "lon": home.Lon})

	w := ts.do(t, http.MethodPost, "/api/targets/"+boat.ID+"/route", startRouteRequest{Mode: route.Loop, Waypoints: northWaypoints(3)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := decode[map[string]string](t, w)
	assert.NotEmpty(t, started["run_id"])

	list := decode[targetsView](t, ts.do(t, http.MethodGet, "/api/targets", nil))
	require.Len(t, list.Routes, 1)
	assert.Equal(t, started["run_id"], list.Routes[0].RunID)
	assert.Equal(t, route.Loop, list.Routes[0].Mode)

	w = ts.do(t, http.MethodGet, "/api/targets/"+boat.ID+"/trail", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[[]session.TrailPoint](t, w))

	w = ts.do(t, http.MethodDelete, "/api/targets/"+boat.ID+"/route", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]bool{"stopped": true}, decode[map[string]bool](t, w))
	w = ts.do(t, http.MethodDelete, "/api/targets/"+boat.ID+"/route", nil)
	assert.Equal(t, map[string]bool{"stopped": false}, decode[map[string]bool](t, w))
}

func TestInlineRoute_Rejected(t *testing.T) {
	ts := newTestServer(t, false)
	boat := ts.spawn(t, map[string]any{"lat": home.Lat, "lon": home.Lon})

	w := ts.do(t, http.MethodPost, "/api/targets/"+boat.ID+"/route", startRouteRequest{Waypoints: northWaypoints(1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPost, "/api/targets/nope/route", startRouteRequest{Waypoints: northWaypoints(2)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPost, "/api/targets/"+boat.ID+"/route", `{"mode":"sideways","waypoints":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Named routes need the library.
	w = ts.do(t, http.MethodPost, "/api/targets/"+boat.ID+"/route", startRouteRequest{RouteName: "harbour"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouteLibrary(t *testing.T) {
	ts := newTestServer(t, true)
	boat := ts.spawn(t, map[string]any{"kind": "dynamic", "lat": home.Lat, "lon": home.Lon})

	rt := route.Route{Name: "harbour", Mode: route.PingPong, Waypoints: northWaypoints(3)}
	w := ts.do(t, http.MethodPost, "/api/routes", rt)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[db.RouteRecord](t, w)
	assert.NotEmpty(t, rec.ID)
	assert.InDelta(t, rt.LengthMeters(), rec.LengthM, 1e-6)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/routes", route.Route{Waypoints: northWaypoints(2)}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/routes", route.Route{Name: "short", Waypoints: northWaypoints(1)}).Code)

	w = ts.do(t, http.MethodGet, "/api/routes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]db.RouteRecord](t, w), 1)

	w = ts.do(t, http.MethodGet, "/api/routes/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "harbour", decode[db.RouteRecord](t, w).Route.Name)

	w = ts.do(t, http.MethodGet, "/api/routes/"+rec.ID+"/plot.png", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = ts.do(t, http.MethodPost, "/api/targets/"+boat.ID+"/route", startRouteRequest{RouteName: "harbour"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	runID := decode[map[string]string](t, w)["run_id"]
	w = ts.do(t, http.MethodPost, "/api/targets/"+boat.ID+"/route", startRouteRequest{RouteName: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/routes/runs?target_id="+boat.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	runs := decode[[]db.RouteRun](t, w)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].RunID)
	assert.Equal(t, db.RunRunning, runs[0].Status)
	assert.Equal(t, "harbour", runs[0].RouteName)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/routes/runs?limit=zero", nil).Code)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/routes/"+rec.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/routes/"+rec.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/routes/"+rec.ID+"/plot.png", nil).Code)
}

func TestRouteLibrary_NoDatabase(t *testing.T) {
	ts := newTestServer(t, false)
	for _, path := range []string{"/api/routes", "/api/routes/runs", "/api/mission/events"} {
		assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, path, nil).Code, path)
	}
}

func TestCueControl(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPost, "/api/cues/hear-now", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]bool{"announced": false}, decode[map[string]bool](t, w))

	ts.spawn(t, map[string]any{"name": "buoy", "bearing_deg": 0, "distance_m": 100})
	w = ts.do(t, http.MethodPost, "/api/cues/hear-now", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]bool{"announced": true}, decode[map[string]bool](t, w))

	w = ts.do(t, http.MethodPost, "/api/cues/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[statusView](t, ts.do(t, http.MethodGet, "/api/status", nil)).CuesRunning)

	w = ts.do(t, http.MethodPut, "/api/cues/frequency", frequencyRequest{Seconds: 0.2})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]float64{"frequency_seconds": 1}, decode[map[string]float64](t, w))
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/api/cues/frequency", frequencyRequest{}).Code)

	w = ts.do(t, http.MethodPost, "/api/cues/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[statusView](t, ts.do(t, http.MethodGet, "/api/status", nil)).CuesRunning)

	w = ts.do(t, http.MethodGet, "/api/cues/recent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	mem := decode[[]cue.Cue](t, w)
	require.NotEmpty(t, mem)
	last := mem[len(mem)-1]
	assert.Equal(t, cue.ReasonHearNow, last.Reason)
	assert.Contains(t, last.Tokens, cue.DirectionToken(cue.StraightAhead))

	w = ts.do(t, http.MethodGet, "/api/cues/recent?source=db&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored := decode[[]cue.Cue](t, w)
	require.Len(t, stored, 1)
	assert.Equal(t, last.Tokens, stored[0].Tokens)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/cues/recent?limit=-3", nil).Code)
}

func TestSetObserver(t *testing.T) {
	ts := newTestServer(t, false)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/api/observer", map[string]any{"lat": 1.0}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/api/observer", map[string]any{"lat": 1.0, "lon": 200.0}).Code)

	w := ts.do(t, http.MethodPut, "/api/observer", map[string]any{"heading_deg": 90})
	require.Equal(t, http.StatusOK, w.Code)
	pos, heading := ts.sess.Observer()
	assert.Equal(t, home, pos)
	assert.Equal(t, 90.0, heading)

	w = ts.do(t, http.MethodPut, "/api/observer", map[string]any{"lat": 52.0, "lon": 5.0})
	require.Equal(t, http.StatusOK, w.Code)
	pos, _ = ts.sess.Observer()
	assert.Equal(t, geo.Point{Lat: 52, Lon: 5}, pos)
}

func TestMission(t *testing.T) {
	ts := newTestServer(t, true)
	ts.spawn(t, map[string]any{"bearing_deg": 0, "distance_m": 100})

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/mission/load", missionRequest{}).Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/mission/load", missionRequest{Name: "harbour"}).Code)

	w := ts.do(t, http.MethodPost, "/api/mission/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]uint64{"epoch": 1}, decode[map[string]uint64](t, w))
	assert.Empty(t, decode[targetsView](t, ts.do(t, http.MethodGet, "/api/targets", nil)).Targets)

	w = ts.do(t, http.MethodGet, "/api/mission/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[[]mission.Event](t, w)
	require.Len(t, events, 2)
	assert.Equal(t, "cleared", events[0].Kind)
	assert.Equal(t, "loaded", events[1].Kind)
	assert.Equal(t, "harbour", events[1].Name)
}

func TestCharts(t *testing.T) {
	ts := newTestServer(t, true)
	ts.spawn(t, map[string]any{"name": "buoy", "bearing_deg": 45, "distance_m": 60})
	_, err := ts.sess.HearNow()
	require.NoError(t, err)

	for path, title := range map[string]string{
		"/debug/charts/cues":           "Cue Timeline",
		"/debug/charts/cues?source=db": "Cue Timeline",
		"/debug/charts/track":          "Target Tracks",
	} {
		w := ts.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), title, path)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status?x=1", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestStatusCodeColor(t *testing.T) {
	assert.True(t, strings.HasPrefix(statusCodeColor(200), colorBoldGreen))
	assert.True(t, strings.HasPrefix(statusCodeColor(302), colorYellow))
	assert.True(t, strings.HasPrefix(statusCodeColor(404), colorBoldRed))
	assert.True(t, strings.HasPrefix(statusCodeColor(503), colorBoldRed))
	assert.Equal(t, "100", statusCodeColor(100))
}

func TestTuning(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodGet, "/api/tuning", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tc := decode[config.TuningConfig](t, w)
	assert.Equal(t, 30.0, tc.GetFrequencySeconds())

	w = ts.do(t, http.MethodPut, "/api/tuning", map[string]any{"frequency_seconds": 12, "play_no_target_cue": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cfg, err := ts.sess.GuidanceConfig()
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, cfg.Frequency)
	assert.True(t, cfg.PlayNoTargetCue)
	assert.Equal(t, 20.0, cfg.LockCorridorDeg, "untouched keys keep their value")

	// No target is active, so the no-target cue is now announced.
	w = ts.do(t, http.MethodPost, "/api/cues/hear-now", nil)
	assert.Equal(t, map[string]bool{"announced": true}, decode[map[string]bool](t, w))

	w = ts.do(t, http.MethodPut, "/api/tuning", map[string]any{"lock_corridor_deg": 270})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPut, "/api/tuning", map[string]any{"available_bands": []string{"13m"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tc = decode[config.TuningConfig](t, ts.do(t, http.MethodGet, "/api/tuning", nil))
	assert.Equal(t, 12.0, tc.GetFrequencySeconds())
	assert.Equal(t, 20.0, tc.GetLockCorridorDeg())
}

func TestTuning_KeepsFrequencySetByCueControl(t *testing.T) {
	ts := newTestServer(t, false)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/cues/start", nil).Code)

	w := ts.do(t, http.MethodPut, "/api/cues/frequency", frequencyRequest{Seconds: 5})
	require.Equal(t, http.StatusOK, w.Code)
	due := decode[statusView](t, ts.do(t, http.MethodGet, "/api/status", nil)).NextPeriodic
	require.NotNil(t, due)
	assert.True(t, due.Equal(t0.Add(5*time.Second)), "next periodic at %v", *due)

	ts.clock.Advance(2 * time.Second)
	w = ts.do(t, http.MethodPut, "/api/tuning", map[string]any{"min_move_speed": 0.5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cfg, err := ts.sess.GuidanceConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Frequency)
	assert.Equal(t, 0.5, cfg.MinMoveSpeed)

	// The unrelated patch leaves the countdown where it was.
	due = decode[statusView](t, ts.do(t, http.MethodGet, "/api/status", nil)).NextPeriodic
	require.NotNil(t, due)
	assert.True(t, due.Equal(t0.Add(5*time.Second)), "next periodic at %v", *due)

	tc := decode[config.TuningConfig](t, ts.do(t, http.MethodGet, "/api/tuning", nil))
	assert.Equal(t, 5.0, tc.GetFrequencySeconds())
}

func TestTuning_SampleIntervalNotAppliedAtRuntime(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(t, http.MethodPut, "/api/tuning", map[string]any{"sample_interval": "1s"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cfg, err := ts.sess.GuidanceConfig()
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, cfg.SampleInterval)
}

func TestCueHistory_SinceAndCounts(t *testing.T) {
	ts := newTestServer(t, true)
	ts.spawn(t, map[string]any{"name": "buoy", "bearing_deg": 0, "distance_m": 100})
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/cues/hear-now", nil).Code)
	ts.clock.Advance(10 * time.Second)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/cues/hear-now", nil).Code)

	since := t0.Add(5 * time.Second).Format(time.RFC3339)
	for _, path := range []string{
		"/api/cues/recent?since=" + since,
		"/api/cues/recent?source=db&since=" + since,
	} {
		w := ts.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		got := decode[[]cue.Cue](t, w)
		require.Len(t, got, 1, path)
		assert.Equal(t, cue.ReasonHearNow, got[0].Reason, path)
	}

	w := ts.do(t, http.MethodGet, "/api/cues/counts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[cue.Reason]int{cue.ReasonNewTarget: 1, cue.ReasonHearNow: 2}, decode[map[cue.Reason]int](t, w))

	w = ts.do(t, http.MethodGet, "/api/cues/counts?since="+since, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[cue.Reason]int{cue.ReasonHearNow: 1}, decode[map[cue.Reason]int](t, w))

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/cues/counts?since=yesterday", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/cues/recent?since=yesterday", nil).Code)
}

func TestCueCounts_NoDatabase(t *testing.T) {
	ts := newTestServer(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, "/api/cues/counts", nil).Code)
}
