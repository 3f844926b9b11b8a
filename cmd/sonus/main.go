package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/sonus/internal/api"
	"github.com/banshee-data/sonus/internal/config"
	"github.com/banshee-data/sonus/internal/cue"
	"github.com/banshee-data/sonus/internal/db"
	"github.com/banshee-data/sonus/internal/geo"
	"github.com/banshee-data/sonus/internal/mission"
	"github.com/banshee-data/sonus/internal/route"
	"github.com/banshee-data/sonus/internal/session"
	"github.com/banshee-data/sonus/internal/target"
	"github.com/banshee-data/sonus/internal/timeutil"
	"github.com/banshee-data/sonus/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db", "sonus.db", "SQLite database path (empty disables persistence)")
	tuningPath  = flag.String("tuning", "", "Tuning JSON file (default "+config.DefaultConfigPath+" when present)")
	lat         = flag.Float64("lat", 0, "Observer latitude (overrides the tuning file)")
	lon         = flag.Float64("lon", 0, "Observer longitude (overrides the tuning file)")
	heading     = flag.Float64("heading", -1, "Observer heading in degrees (negative keeps the tuning value)")
	demo        = flag.Bool("demo", false, "Spawn a test target 100 m north of the observer and start cues")
	routePath   = flag.String("route", "", "With -demo, a route file driving a dynamic test target")
	frequency   = flag.Float64("frequency", 0, "Periodic cue interval in seconds (overrides the tuning file)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

const usage = `Usage: sonus [flags]
       sonus migrate <up|down|status|version N|force N>

Flags:
`

// loadTuning reads path merged over the defaults. An empty path uses
// config.DefaultConfigPath when it exists in the working directory.
func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.DefaultTuningConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	tc := config.DefaultTuningConfig()
	file, err := config.LoadTuningConfig(path)
	if err != nil {
		return nil, err
	}
	tc.Merge(file)
	return tc, nil
}

// applyFlags overlays explicitly set command-line values on tc.
func applyFlags(tc *config.TuningConfig, set map[string]bool) error {
	patch := config.EmptyTuningConfig()
	if set["lat"] != set["lon"] {
		return errors.New("-lat and -lon must be given together")
	}
	if set["lat"] {
		patch.ObserverLat = lat
		patch.ObserverLon = lon
	}
	if set["heading"] && *heading >= 0 {
		patch.ObserverHeadingDeg = heading
	}
	if set["frequency"] {
		patch.FrequencySeconds = frequency
	}
	tc.Merge(patch)
	return tc.Validate()
}

// sessionOptions builds the session configuration and, when store is set,
// wires the cue log, route run history and mission log into it.
func sessionOptions(tc *config.TuningConfig, store *db.DB) session.Options {
	opts := session.OptionsFromTuning(tc)
	opts.Clock = timeutil.RealClock{}
	if store != nil {
		opts.Sinks = []cue.Sink{store.CueLog()}
		opts.RouteListeners = []route.Listener{store.RouteRunListener()}
		opts.MissionListeners = []mission.Listener{store.MissionListener()}
	}
	return opts
}

// spawnDemo places a stationary target 100 m north of the observer and, with
// a route file, a dynamic target driven along it. Cues are started.
func spawnDemo(sess *session.Session, routeFile string) error {
	origin, _ := sess.Observer()
	t, err := sess.SpawnTarget("demo", target.Stationary, geo.OffsetLocation(origin, 0, 100))
	if err != nil {
		return err
	}
	log.Printf("[demo] spawned stationary target %s", t.ID)

	if routeFile != "" {
		rt, err := route.LoadFile(routeFile)
		if err != nil {
			return err
		}
		walker, err := sess.SpawnTarget(rt.Name, target.Dynamic, rt.Waypoints[0].Point)
		if err != nil {
			return err
		}
		runID, err := sess.StartRoute(walker.ID, rt)
		if err != nil {
			return err
		}
		log.Printf("[demo] target %s following %q (%s, %.0f m), run %s", walker.ID, rt.Name, rt.Mode, rt.LengthMeters(), runID)
	}
	return sess.StartCues()
}

// resumeMission reloads the mission that was active when the process last
// stopped.
func resumeMission(sess *session.Session, store *db.DB) {
	name, at, err := store.LastMission()
	if err != nil {
		log.Printf("[session] failed to read last mission: %v", err)
		return
	}
	if name == "" {
		return
	}
	if err := sess.LoadMission(name); err != nil {
		log.Printf("[session] failed to resume mission %q: %v", name, err)
		return
	}
	log.Printf("[session] resumed mission %q loaded at %s", name, at.Format(time.RFC3339))
}

// Main
func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		if *dbPath == "" {
			log.Fatal("migrate needs -db")
		}
		os.Exit(db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout))
	}
	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(2)
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tc, err := loadTuning(*tuningPath)
	if err != nil {
		log.Fatalf("failed to load tuning: %v", err)
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if err := applyFlags(tc, set); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var store *db.DB
	if *dbPath != "" {
		store, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
	}

	log.Printf("starting %s", version.String())
	sess := session.New(sessionOptions(tc, store))

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sess.Run(ctx); err != nil {
			log.Printf("session stopped: %v", err)
		}
		log.Print("session routine terminated")
	}()

	select {
	case <-sess.Ready():
	case <-ctx.Done():
		wg.Wait()
		return
	}

	if store != nil {
		resumeMission(sess, store)
	}
	if *demo {
		if err := spawnDemo(sess, *routePath); err != nil {
			log.Printf("[demo] %v", err)
		}
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(sess, store, tc).ServeMux()
		if store != nil {
			store.AttachAdminRoutes(mux)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
