// Package store owns the SSOT SQLite database: schema, migrations,
// triggers, and connection setup. Every other component goes through a
// *sql.DB opened here; the gate trigger installed by Migrate is the
// database-level backstop behind the event writer's structural checks.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrUnavailable indicates the store file does not exist. Components other
// than the migration fail fast on it.
var ErrUnavailable = errors.New("store unavailable (run 'hfo migrate' first)")

// BusyTimeoutMs is applied to every connection. Writers may block this long
// behind another writer before failing.
const BusyTimeoutMs = 5000

func dsn(path string, readonly bool) string {
	v := url.Values{}
	v.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", BusyTimeoutMs))
	v.Add("_pragma", "journal_mode(WAL)")
	v.Add("_pragma", "foreign_keys(ON)")
	if readonly {
		v.Set("mode", "ro")
	}
	return "file:" + path + "?" + v.Encode()
}

// OpenRW opens the store for reading and writing. The file must already
// exist; Migrate is the only path that creates it.
func OpenRW(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, path)
		}
		return nil, fmt.Errorf("checking store: %w", err)
	}
	return open(path, false)
}

// OpenRO opens the store read-only (URI mode).
func OpenRO(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, path)
		}
		return nil, fmt.Errorf("checking store: %w", err)
	}
	return open(path, true)
}

func open(path string, readonly bool) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(path, readonly))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn between this process's own goroutines.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return db, nil
}

// Migrate creates the store file if needed and applies the full schema:
// tables, indices, triggers, FTS mirror, and the compute-route baseline.
// It is idempotent and safe to re-run on upgrade.
func Migrate(path, generation string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := open(path, false)
	if err != nil {
		return nil, err
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := installGateTrigger(db, generation); err != nil {
		db.Close()
		return nil, err
	}
	if err := seedRoutes(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
