// Package route is the table-backed model-selection lookup. A daemon that
// cannot resolve its route does not start; there is no silent default.
package route

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultTask is the fallback task_type every lookup retries before
// failing.
const DefaultTask = "default"

// NoRouteError indicates no compute route exists for the triple, even after
// the default-task fallback.
type NoRouteError struct {
	Port   string
	Daemon string
	Task   string
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("no compute route for (%s, %s, %s)", e.Port, e.Daemon, e.Task)
}

// IsNoRoute reports whether err is a NoRouteError.
func IsNoRoute(err error) bool {
	var nr *NoRouteError
	return errors.As(err, &nr)
}

// Route is one row of the compute_route table.
type Route struct {
	Port      string `json:"port"`
	Daemon    string `json:"daemon_name"`
	Task      string `json:"task_type"`
	ModelID   string `json:"model_id"`
	Provider  string `json:"provider"`
	Priority  int    `json:"priority"`
	UpdatedAt string `json:"updated_at"`
	UpdatedBy string `json:"updated_by"`
	Reason    string `json:"reason"`
}

// Get resolves the route for (port, daemon, task). An empty task means
// "default". A miss on a specific task retries with the default task; a
// miss there raises NoRouteError.
func Get(db *sql.DB, port, daemon, task string) (*Route, error) {
	if task == "" {
		task = DefaultTask
	}
	r, err := lookup(db, port, daemon, task)
	if err != nil {
		return nil, err
	}
	if r == nil && task != DefaultTask {
		r, err = lookup(db, port, daemon, DefaultTask)
		if err != nil {
			return nil, err
		}
	}
	if r == nil {
		return nil, &NoRouteError{Port: port, Daemon: daemon, Task: task}
	}
	return r, nil
}

func lookup(db *sql.DB, port, daemon, task string) (*Route, error) {
	r := &Route{}
	err := db.QueryRow(
		`SELECT port, daemon_name, task_type, model_id, provider, priority, updated_at, updated_by, reason
		 FROM compute_route WHERE port = ? AND daemon_name = ? AND task_type = ?`,
		port, daemon, task).
		Scan(&r.Port, &r.Daemon, &r.Task, &r.ModelID, &r.Provider, &r.Priority,
			&r.UpdatedAt, &r.UpdatedBy, &r.Reason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up route: %w", err)
	}
	return r, nil
}

// Set upserts a route row. Last write wins.
func Set(db *sql.DB, r Route) error {
	if r.Task == "" {
		r.Task = DefaultTask
	}
	if r.UpdatedAt == "" {
		r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := db.Exec(
		`INSERT INTO compute_route
			(port, daemon_name, task_type, model_id, provider, priority, updated_at, updated_by, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(port, daemon_name, task_type) DO UPDATE SET
			model_id = excluded.model_id,
			provider = excluded.provider,
			priority = excluded.priority,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by,
			reason = excluded.reason`,
		r.Port, r.Daemon, r.Task, r.ModelID, r.Provider, r.Priority,
		r.UpdatedAt, r.UpdatedBy, r.Reason)
	if err != nil {
		return fmt.Errorf("setting route: %w", err)
	}
	return nil
}

// List returns all routes, ordered for display.
func List(db *sql.DB) ([]Route, error) {
	rows, err := db.Query(
		`SELECT port, daemon_name, task_type, model_id, provider, priority, updated_at, updated_by, reason
		 FROM compute_route ORDER BY port, daemon_name, task_type`)
	if err != nil {
		return nil, fmt.Errorf("listing routes: %w", err)
	}
	defer rows.Close()
	var out []Route
	for rows.Next() {
		var r Route
		if err := rows.Scan(&r.Port, &r.Daemon, &r.Task, &r.ModelID, &r.Provider,
			&r.Priority, &r.UpdatedAt, &r.UpdatedBy, &r.Reason); err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
