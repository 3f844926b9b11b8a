package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sonus/internal/route"
)

// RouteRecord is a named route stored in the library.
type RouteRecord struct {
	ID        string      `json:"id"`
	Route     route.Route `json:"route"`
	LengthM   float64     `json:"length_m"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SaveRoute validates rt and stores it under rt.Name. Saving an existing name
// replaces its waypoints and mode but keeps its id.
func (db *DB) SaveRoute(rt route.Route, at time.Time) (*RouteRecord, error) {
	if rt.Name == "" {
		return nil, fmt.Errorf("route name is required")
	}
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	waypoints, err := json.Marshal(rt.Waypoints)
	if err != nil {
		return nil, fmt.Errorf("failed to encode waypoints: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO routes (route_id, name, mode, waypoints_json, length_m, created_unix, updated_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			mode = excluded.mode,
			waypoints_json = excluded.waypoints_json,
			length_m = excluded.length_m,
			updated_unix = excluded.updated_unix
	`, uuid.New().String(), rt.Name, rt.Mode.String(), string(waypoints), rt.LengthMeters(), toUnix(at), toUnix(at))
	if err != nil {
		return nil, fmt.Errorf("failed to save route %q: %w", rt.Name, err)
	}
	return db.GetRouteByName(rt.Name)
}

const routeColumns = `route_id, name, mode, waypoints_json, length_m, created_unix, updated_unix`

func scanRoute(row interface{ Scan(...any) error }) (*RouteRecord, error) {
	var (
		rec              RouteRecord
		mode, waypoints  string
		created, updated float64
	)
	if err := row.Scan(&rec.ID, &rec.Route.Name, &mode, &waypoints, &rec.LengthM, &created, &updated); err != nil {
		return nil, err
	}
	m, err := route.ParseMode(mode)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", rec.ID, err)
	}
	rec.Route.Mode = m
	if err := json.Unmarshal([]byte(waypoints), &rec.Route.Waypoints); err != nil {
		return nil, fmt.Errorf("route %s: failed to decode waypoints: %w", rec.ID, err)
	}
	rec.CreatedAt = fromUnix(created)
	rec.UpdatedAt = fromUnix(updated)
	return &rec, nil
}

func (db *DB) getRoute(where string, arg any) (*RouteRecord, error) {
	rec, err := scanRoute(db.QueryRow(`SELECT `+routeColumns+` FROM routes WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("route %v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route %v: %w", arg, err)
	}
	return rec, nil
}

// GetRoute retrieves a route by id.
func (db *DB) GetRoute(id string) (*RouteRecord, error) {
	return db.getRoute("route_id = ?", id)
}

// GetRouteByName retrieves a route by its unique name.
func (db *DB) GetRouteByName(name string) (*RouteRecord, error) {
	return db.getRoute("name = ?", name)
}

// ListRoutes returns every stored route ordered by name.
func (db *DB) ListRoutes() ([]RouteRecord, error) {
	rows, err := db.Query(`SELECT ` + routeColumns + ` FROM routes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	defer rows.Close()

	var out []RouteRecord
	for rows.Next() {
		rec, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// DeleteRoute removes a route by id.
func (db *DB) DeleteRoute(id string) error {
	res, err := db.Exec(`DELETE FROM routes WHERE route_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete route %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("route %s: %w", id, ErrNotFound)
	}
	return nil
}
