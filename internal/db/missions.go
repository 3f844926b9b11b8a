package db

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/sonus/internal/mission"
)

// RecordMissionEvent appends a mission lifecycle event.
func (db *DB) RecordMissionEvent(ev mission.Event) error {
	_, err := db.Exec(`
		INSERT INTO mission_events (kind, name, epoch, at_unix) VALUES (?, ?, ?, ?)
	`, ev.Kind, nullString(ev.Name), int64(ev.Epoch), toUnix(ev.At))
	if err != nil {
		return fmt.Errorf("failed to record mission %s: %w", ev.Kind, err)
	}
	return nil
}

// MissionListener returns a mission.Listener that persists events, logging
// failures.
func (db *DB) MissionListener() mission.Listener {
	return func(ev mission.Event) {
		if err := db.RecordMissionEvent(ev); err != nil {
			log.Printf("[db] %v", err)
		}
	}
}

// MissionEvents returns the newest limit events, newest first.
func (db *DB) MissionEvents(limit int) ([]mission.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT kind, name, epoch, at_unix FROM mission_events
		ORDER BY at_unix DESC, event_id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list mission events: %w", err)
	}
	defer rows.Close()

	var out []mission.Event
	for rows.Next() {
		var (
			ev    mission.Event
			name  sql.NullString
			epoch int64
			at    float64
		)
		if err := rows.Scan(&ev.Kind, &name, &epoch, &at); err != nil {
			return nil, err
		}
		ev.Name = name.String
		ev.Epoch = uint64(epoch)
		ev.At = fromUnix(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LastMission returns the most recently loaded mission name that has not
// been cleared since, or "" when none.
func (db *DB) LastMission() (string, time.Time, error) {
	var (
		kind string
		name sql.NullString
		at   float64
	)
	err := db.QueryRow(`
		SELECT kind, name, at_unix FROM mission_events
		ORDER BY at_unix DESC, event_id DESC LIMIT 1
	`).Scan(&kind, &name, &at)
	if err == sql.ErrNoRows {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to read last mission: %w", err)
	}
	if kind != "loaded" {
		return "", time.Time{}, nil
	}
	return name.String, fromUnix(at), nil
}
