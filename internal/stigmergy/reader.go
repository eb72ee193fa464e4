package stigmergy

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event is one row of the append-only stream as read back from the store.
type Event struct {
	ID          int64
	Type        string
	Timestamp   string
	Subject     string
	Source      string
	DataJSON    string
	ContentHash string
}

// Envelope parses the stored envelope. Rows written by earlier generations
// may not decode; audits count and skip those.
func (e *Event) Envelope() (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(e.DataJSON), &env); err != nil {
		return nil, fmt.Errorf("parsing envelope for event %d: %w", e.ID, err)
	}
	return &env, nil
}

// SignalMetadata digs data.signal_metadata out of the envelope. Returns nil
// when absent or unparseable.
func (e *Event) SignalMetadata() map[string]interface{} {
	env, err := e.Envelope()
	if err != nil || env.Data == nil {
		return nil
	}
	sig, ok := env.Data["signal_metadata"].(map[string]interface{})
	if !ok {
		return nil
	}
	return sig
}

// Time parses the row timestamp. The zero time is returned for rows with
// unparseable timestamps.
func (e *Event) Time() time.Time {
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

const eventColumns = `id, event_type, timestamp, subject, source, data_json, content_hash`

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Type, &e.Timestamp, &e.Subject, &e.Source, &e.DataJSON, &e.ContentHash); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	return out, nil
}

// EventsSince returns events at or after since, oldest first. A non-empty
// typePrefix filters with a LIKE prefix match.
func EventsSince(db *sql.DB, since time.Time, typePrefix string) ([]Event, error) {
	ts := since.UTC().Format(time.RFC3339)
	var rows *sql.Rows
	var err error
	if typePrefix != "" {
		rows, err = db.Query(
			`SELECT `+eventColumns+` FROM stigmergy_events
			 WHERE timestamp >= ? AND event_type LIKE ?
			 ORDER BY timestamp, id`, ts, typePrefix+"%")
	} else {
		rows, err = db.Query(
			`SELECT `+eventColumns+` FROM stigmergy_events
			 WHERE timestamp >= ? ORDER BY timestamp, id`, ts)
	}
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	return scanEvents(rows)
}

// EventsAfterID returns up to limit events with id greater than afterID,
// in id order. This is the defense supervisor's watermark read.
func EventsAfterID(db *sql.DB, afterID int64, limit int) ([]Event, error) {
	rows, err := db.Query(
		`SELECT `+eventColumns+` FROM stigmergy_events
		 WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	return scanEvents(rows)
}

// RecentByType returns the newest events of an exact type, newest first.
func RecentByType(db *sql.DB, eventType string, limit int) ([]Event, error) {
	rows, err := db.Query(
		`SELECT `+eventColumns+` FROM stigmergy_events
		 WHERE event_type = ? ORDER BY id DESC LIMIT ?`, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	return scanEvents(rows)
}

// LatestEvent returns the newest event matching type and subject, or nil.
func LatestEvent(db *sql.DB, eventType, subject string) (*Event, error) {
	rows, err := db.Query(
		`SELECT `+eventColumns+` FROM stigmergy_events
		 WHERE event_type = ? AND subject = ? ORDER BY id DESC LIMIT 1`,
		eventType, subject)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// CountSince counts events at or after since, optionally filtered by a
// source tag.
func CountSince(db *sql.DB, since time.Time, source string) (int, error) {
	ts := since.UTC().Format(time.RFC3339)
	var n int
	var err error
	if source != "" {
		err = db.QueryRow(
			`SELECT COUNT(*) FROM stigmergy_events WHERE timestamp >= ? AND source = ?`,
			ts, source).Scan(&n)
	} else {
		err = db.QueryRow(
			`SELECT COUNT(*) FROM stigmergy_events WHERE timestamp >= ?`, ts).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

// MaxEventID returns the newest row id, 0 on an empty table.
func MaxEventID(db *sql.DB) (int64, error) {
	var id sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(id) FROM stigmergy_events`).Scan(&id); err != nil {
		return 0, fmt.Errorf("reading max event id: %w", err)
	}
	return id.Int64, nil
}

// Tail returns the newest events overall, newest first, optionally filtered
// by type prefix.
func Tail(db *sql.DB, typePrefix string, limit int) ([]Event, error) {
	var rows *sql.Rows
	var err error
	if typePrefix != "" {
		rows, err = db.Query(
			`SELECT `+eventColumns+` FROM stigmergy_events
			 WHERE event_type LIKE ? ORDER BY id DESC LIMIT ?`, typePrefix+"%", limit)
	} else {
		rows, err = db.Query(
			`SELECT `+eventColumns+` FROM stigmergy_events ORDER BY id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	return scanEvents(rows)
}
