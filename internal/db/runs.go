package db

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/sonus/internal/route"
)

// Run statuses stored in route_runs.status.
const (
	RunRunning   = "running"
	RunFinished  = "finished"
	RunCancelled = "cancelled"
)

// RouteRun is one row of the route run history.
type RouteRun struct {
	RunID     string    `json:"run_id"`
	TargetID  string    `json:"target_id"`
	RouteName string    `json:"route_name,omitempty"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	Legs      int       `json:"legs"`
	Reason    string    `json:"reason,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// RecordRouteEvent applies a router lifecycle event to route_runs. A start
// inserts the run; finish and cancel close it, inserting it if the start was
// never recorded.
func (db *DB) RecordRouteEvent(ev route.Event) error {
	switch ev.Kind {
	case route.EventStarted:
		_, err := db.Exec(`
			INSERT INTO route_runs (run_id, target_id, route_name, mode, status, legs, started_unix)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, ev.RunID, ev.TargetID, ev.RouteName, ev.Mode.String(), RunRunning, ev.Legs, toUnix(ev.At))
		if err != nil {
			return fmt.Errorf("failed to record route start %s: %w", ev.RunID, err)
		}
		return nil

	case route.EventFinished, route.EventCancelled:
		status := RunFinished
		if ev.Kind == route.EventCancelled {
			status = RunCancelled
		}
		res, err := db.Exec(`
			UPDATE route_runs SET status = ?, legs = ?, reason = ?, ended_unix = ?
			WHERE run_id = ?
		`, status, ev.Legs, ev.Reason, toUnix(ev.At), ev.RunID)
		if err != nil {
			return fmt.Errorf("failed to close route run %s: %w", ev.RunID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = db.Exec(`
			INSERT INTO route_runs (run_id, target_id, route_name, mode, status, legs, reason, started_unix, ended_unix)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, ev.RunID, ev.TargetID, ev.RouteName, ev.Mode.String(), status, ev.Legs, ev.Reason, toUnix(ev.At), toUnix(ev.At))
		if err != nil {
			return fmt.Errorf("failed to record route run %s: %w", ev.RunID, err)
		}
		return nil

	default:
		return fmt.Errorf("unknown route event kind %q", ev.Kind)
	}
}

// RouteRunListener returns a route.Listener that persists events, logging
// failures.
func (db *DB) RouteRunListener() route.Listener {
	return func(ev route.Event) {
		if err := db.RecordRouteEvent(ev); err != nil {
			log.Printf("[db] %v", err)
		}
	}
}

// ListRouteRuns returns the most recent runs, newest first. An empty
// targetID lists all targets.
func (db *DB) ListRouteRuns(targetID string, limit int) ([]RouteRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT run_id, target_id, route_name, mode, status, legs, reason, started_unix, ended_unix
		FROM route_runs
		WHERE (? = '' OR target_id = ?)
		ORDER BY started_unix DESC
		LIMIT ?
	`, targetID, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list route runs: %w", err)
	}
	defer rows.Close()

	var runs []RouteRun
	for rows.Next() {
		var (
			r            RouteRun
			name, reason sql.NullString
			started      float64
			ended        sql.NullFloat64
		)
		if err := rows.Scan(&r.RunID, &r.TargetID, &name, &r.Mode, &r.Status, &r.Legs, &reason, &started, &ended); err != nil {
			return nil, err
		}
		r.RouteName = name.String
		r.Reason = reason.String
		r.StartedAt = fromUnix(started)
		if ended.Valid {
			r.EndedAt = fromUnix(ended.Float64)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
