// Command route-plot renders a route to an image, either from a route file or
// from the route library in the database.
//
//	route-plot -route config/routes/harbour-loop.json -out harbour.png
//	route-plot -db sonus.db -name harbour-loop -out harbour.svg
package main

import (
	"errors"
	"flag"
	"log"
	"path/filepath"
	"strings"

	"github.com/banshee-data/sonus/internal/db"
	"github.com/banshee-data/sonus/internal/route"
	"github.com/banshee-data/sonus/internal/report"
)

var (
	routeFile = flag.String("route", "", "Route JSON file")
	dbPath    = flag.String("db", "", "SQLite database holding the route library")
	name      = flag.String("name", "", "Route name in the library (with -db)")
	out       = flag.String("out", "", "Output image (.png, .svg or .pdf); defaults to <route name>.png")
)

// loadRoute resolves the route from exactly one of file or the library.
func loadRoute(file, dbFile, routeName string) (route.Route, error) {
	switch {
	case file != "" && dbFile != "":
		return route.Route{}, errors.New("use either -route or -db, not both")
	case file != "":
		return route.LoadFile(file)
	case dbFile != "":
		if routeName == "" {
			return route.Route{}, errors.New("-db needs -name")
		}
		store, err := db.NewDB(dbFile)
		if err != nil {
			return route.Route{}, err
		}
		defer store.Close()
		rec, err := store.GetRouteByName(routeName)
		if err != nil {
			return route.Route{}, err
		}
		return rec.Route, nil
	default:
		return route.Route{}, errors.New("one of -route or -db is required")
	}
}

func outputPath(path string, rt route.Route) string {
	if path != "" {
		return path
	}
	base := strings.ReplaceAll(rt.Name, string(filepath.Separator), "_")
	if base == "" {
		base = "route"
	}
	return base + ".png"
}

func main() {
	flag.Parse()

	rt, err := loadRoute(*routeFile, *dbPath, *name)
	if err != nil {
		log.Fatalf("route-plot: %v", err)
	}
	file := outputPath(*out, rt)
	if err := report.SaveRoutePlot(rt, file); err != nil {
		log.Fatalf("route-plot: %v", err)
	}
	log.Printf("wrote %s (%s, %d waypoints, %.0f m)", file, rt.Mode, len(rt.Waypoints), rt.LengthMeters())
}
