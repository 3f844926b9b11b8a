package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/banshee-data/sonus/internal/cue"
)

// CueEvent is one persisted cue emission.
type CueEvent struct {
	ID       int64       `json:"id"`
	TargetID string      `json:"target_id,omitempty"`
	Reason   cue.Reason  `json:"reason"`
	Tokens   []cue.Token `json:"tokens"`
	Summary  string      `json:"summary"`
	At       time.Time   `json:"at"`
}

// RecordCue inserts one emitted cue.
func (db *DB) RecordCue(c cue.Cue) error {
	tokens, err := json.Marshal(c.Tokens)
	if err != nil {
		return fmt.Errorf("failed to encode cue tokens: %w", err)
	}
	parts := make([]string, len(c.Tokens))
	for i, t := range c.Tokens {
		parts[i] = t.String()
	}
	_, err = db.Exec(`
		INSERT INTO cue_events (target_id, reason, tokens_json, summary, at_unix)
		VALUES (?, ?, ?, ?, ?)
	`, nullString(c.TargetID), string(c.Reason), string(tokens), strings.Join(parts, " "), toUnix(c.At))
	if err != nil {
		return fmt.Errorf("failed to record cue: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CueLog is a cue.Sink that persists every cue. Write failures are logged
// and dropped so cueing never stalls on storage.
type CueLog struct {
	db *DB
}

// CueLog returns a sink writing into db.
func (db *DB) CueLog() *CueLog { return &CueLog{db: db} }

// Emit implements cue.Sink.
func (l *CueLog) Emit(c cue.Cue) {
	if err := l.db.RecordCue(c); err != nil {
		log.Printf("[db] %v", err)
	}
}

// CueEventsSince returns cues at or after since, oldest first, capped at
// limit rows (0 means 1000).
func (db *DB) CueEventsSince(since time.Time, limit int) ([]CueEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	return db.queryCues(`
		SELECT cue_id, target_id, reason, tokens_json, summary, at_unix
		FROM cue_events WHERE at_unix >= ?
		ORDER BY at_unix ASC, cue_id ASC
		LIMIT ?
	`, toUnix(since), limit)
}

// RecentCueEvents returns the newest limit cues, oldest first.
func (db *DB) RecentCueEvents(limit int) ([]CueEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return db.queryCues(`
		SELECT * FROM (
			SELECT cue_id, target_id, reason, tokens_json, summary, at_unix
			FROM cue_events ORDER BY at_unix DESC, cue_id DESC LIMIT ?
		) ORDER BY at_unix ASC, cue_id ASC
	`, limit)
}

func (db *DB) queryCues(query string, args ...any) ([]CueEvent, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cues: %w", err)
	}
	defer rows.Close()

	var out []CueEvent
	for rows.Next() {
		var (
			ev       CueEvent
			targetID sql.NullString
			reason   string
			tokens   string
			at       float64
		)
		if err := rows.Scan(&ev.ID, &targetID, &reason, &tokens, &ev.Summary, &at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tokens), &ev.Tokens); err != nil {
			return nil, fmt.Errorf("cue %d: failed to decode tokens: %w", ev.ID, err)
		}
		ev.TargetID = targetID.String
		ev.Reason = cue.Reason(reason)
		ev.At = fromUnix(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CueCountsByReason counts cues per reason at or after since.
func (db *DB) CueCountsByReason(since time.Time) (map[cue.Reason]int, error) {
	rows, err := db.Query(`
		SELECT reason, COUNT(*) FROM cue_events WHERE at_unix >= ? GROUP BY reason
	`, toUnix(since))
	if err != nil {
		return nil, fmt.Errorf("failed to count cues: %w", err)
	}
	defer rows.Close()

	counts := make(map[cue.Reason]int)
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		counts[cue.Reason(reason)] = n
	}
	return counts, rows.Err()
}
