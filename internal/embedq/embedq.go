// Package embedq drains the trigger-fed re-embedding queue. Rows are
// enqueued by the store's document triggers; the embedding worker claims
// batches here, computes vectors, and marks them done.
package embedq

import (
	"database/sql"
	"fmt"
	"time"
)

// Queue statuses.
const (
	StatusPending = "pending"
	StatusClaimed = "claimed"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Entry is one embed_queue row.
type Entry struct {
	DocID     int64  `json:"doc_id"`
	Reason    string `json:"reason"`
	QueuedAt  string `json:"queued_at"`
	Status    string `json:"status"`
	ClaimedBy string `json:"claimed_by,omitempty"`
	ClaimedAt string `json:"claimed_at,omitempty"`
}

// ClaimBatch atomically claims up to batchSize pending doc ids for worker.
// Claims older than staleMinutes are reclaimed to pending first, so work
// lost to a crashed worker is picked up on the next sweep.
func ClaimBatch(db *sql.DB, batchSize int, worker string, staleMinutes int) ([]int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	staleBefore := now.Add(-time.Duration(staleMinutes) * time.Minute).Format(time.RFC3339)

	// OR REPLACE: the trigger can enqueue a fresh pending row while an old
	// claim is still in flight, and UNIQUE (doc_id, status) would otherwise
	// abort the reclaim. The two rows collapse into one pending row.
	if _, err := tx.Exec(
		`UPDATE OR REPLACE embed_queue SET status = ?, claimed_by = NULL, claimed_at = NULL
		 WHERE status = ? AND claimed_at < ?`,
		StatusPending, StatusClaimed, staleBefore); err != nil {
		return nil, fmt.Errorf("reclaiming stale rows: %w", err)
	}

	rows, err := tx.Query(
		`SELECT doc_id FROM embed_queue WHERE status = ? ORDER BY queued_at LIMIT ?`,
		StatusPending, batchSize)
	if err != nil {
		return nil, fmt.Errorf("selecting pending rows: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning doc id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("reading pending rows: %w", err)
	}
	rows.Close()

	claimedAt := now.Format(time.RFC3339)
	for _, id := range ids {
		if _, err := tx.Exec(
			`UPDATE OR REPLACE embed_queue SET status = ?, claimed_by = ?, claimed_at = ?
			 WHERE doc_id = ? AND status = ?`,
			StatusClaimed, worker, claimedAt, id, StatusPending); err != nil {
			return nil, fmt.Errorf("claiming doc %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return ids, nil
}

// MarkDone moves claimed rows to done. Returns the number updated.
func MarkDone(db *sql.DB, docIDs []int64) (int, error) {
	return setStatus(db, docIDs, StatusDone)
}

// MarkFailed moves claimed rows to failed.
func MarkFailed(db *sql.DB, docIDs []int64) (int, error) {
	return setStatus(db, docIDs, StatusFailed)
}

// setStatus moves claimed rows to a terminal status. OR REPLACE keeps the
// doc at one row per status when a prior terminal row survives.
func setStatus(db *sql.DB, docIDs []int64, status string) (int, error) {
	updated := 0
	for _, id := range docIDs {
		res, err := db.Exec(
			`UPDATE OR REPLACE embed_queue SET status = ? WHERE doc_id = ? AND status = ?`,
			status, id, StatusClaimed)
		if err != nil {
			return updated, fmt.Errorf("updating doc %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			updated++
		}
	}
	return updated, nil
}

// Depth returns the number of pending rows. The scheduler surfaces this as
// the fleet's only explicit backpressure signal.
func Depth(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM embed_queue WHERE status = ?`, StatusPending).Scan(&n); err != nil {
		return 0, fmt.Errorf("reading queue depth: %w", err)
	}
	return n, nil
}

// Stats returns per-status counts for operator display.
func Stats(db *sql.DB) (map[string]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM embed_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("reading queue stats: %w", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning queue stats: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
