package embedq

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/hivefleet/hfo/internal/store"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Migrate(filepath.Join(t.TempDir(), "ssot.db"), "gen90")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertDocs(t *testing.T, db *sql.DB, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		res, err := db.Exec(`INSERT INTO documents (title) VALUES ('doc')`)
		if err != nil {
			t.Fatalf("inserting document: %v", err)
		}
		id, _ := res.LastInsertId()
		ids = append(ids, id)
	}
	return ids
}

func TestClaimBatchOrderAndLimit(t *testing.T) {
	db := testDB(t)
	docs := insertDocs(t, db, 5)

	// Force distinct queue times; back-to-back inserts can share a
	// millisecond timestamp.
	base := time.Now().UTC().Add(-time.Minute)
	for i, id := range docs {
		ts := base.Add(time.Duration(i) * time.Second).Format(time.RFC3339Nano)
		if _, err := db.Exec(`UPDATE embed_queue SET queued_at = ? WHERE doc_id = ?`, ts, id); err != nil {
			t.Fatalf("setting queued_at: %v", err)
		}
	}

	claimed, err := ClaimBatch(db, 3, "worker-a", 30)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(claimed) != 3 {
		t.Fatalf("claimed %d, want 3", len(claimed))
	}
	// Oldest queued first.
	for i, id := range claimed {
		if id != docs[i] {
			t.Errorf("claimed[%d] = %d, want %d", i, id, docs[i])
		}
	}

	depth, err := Depth(db)
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth != 2 {
		t.Errorf("depth = %d, want 2", depth)
	}
}

func TestStaleClaimsReclaimed(t *testing.T) {
	db := testDB(t)
	insertDocs(t, db, 2)

	first, err := ClaimBatch(db, 10, "worker-a", 30)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("claimed %d, want 2", len(first))
	}

	// Age the claims past the stale horizon.
	old := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	if _, err := db.Exec(`UPDATE embed_queue SET claimed_at = ? WHERE status = 'claimed'`, old); err != nil {
		t.Fatalf("aging claims: %v", err)
	}

	second, err := ClaimBatch(db, 10, "worker-b", 30)
	if err != nil {
		t.Fatalf("second ClaimBatch: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("reclaimed %d, want 2", len(second))
	}
	got := map[int64]bool{}
	for _, id := range second {
		got[id] = true
	}
	for _, id := range first {
		if !got[id] {
			t.Errorf("doc %d was not reclaimed", id)
		}
	}
}

func TestMarkDoneOnlyTouchesClaimed(t *testing.T) {
	db := testDB(t)
	docs := insertDocs(t, db, 3)

	claimed, err := ClaimBatch(db, 2, "worker-a", 30)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}

	// docs[2] is still pending; marking it done must be a no-op.
	n, err := MarkDone(db, append(claimed, docs[2]))
	if err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if n != 2 {
		t.Errorf("marked %d done, want 2", n)
	}

	stats, err := Stats(db)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[StatusDone] != 2 || stats[StatusPending] != 1 {
		t.Errorf("stats = %v, want 2 done / 1 pending", stats)
	}
}

func queueRows(t *testing.T, db *sql.DB, docID int64) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM embed_queue WHERE doc_id = ?`, docID).Scan(&n); err != nil {
		t.Fatalf("counting queue rows: %v", err)
	}
	return n
}

func TestReembedLifecycle(t *testing.T) {
	db := testDB(t)
	doc := insertDocs(t, db, 1)[0]

	// Cycle one: new-document row claimed and finished.
	if _, err := ClaimBatch(db, 1, "worker-a", 30); err != nil {
		t.Fatalf("cycle 1 ClaimBatch: %v", err)
	}
	if n, err := MarkDone(db, []int64{doc}); err != nil || n != 1 {
		t.Fatalf("cycle 1 MarkDone = %d, %v", n, err)
	}

	// An enrichment lands: the trigger must clear the done row and
	// re-enqueue the doc.
	if _, err := db.Exec(
		`INSERT INTO document_enrichments (doc_id, kind, content, updated_at) VALUES (?, 'summary', 'v1', '2026-08-25T12:00:00Z')`,
		doc); err != nil {
		t.Fatalf("inserting enrichment: %v", err)
	}
	stats, err := Stats(db)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[StatusPending] != 1 || stats[StatusDone] != 0 {
		t.Fatalf("after re-enqueue stats = %v, want 1 pending / 0 done", stats)
	}

	// Cycle two must complete exactly like cycle one.
	claimed, err := ClaimBatch(db, 1, "worker-a", 30)
	if err != nil {
		t.Fatalf("cycle 2 ClaimBatch: %v", err)
	}
	if len(claimed) != 1 || claimed[0] != doc {
		t.Fatalf("cycle 2 claimed %v, want [%d]", claimed, doc)
	}
	if n, err := MarkDone(db, claimed); err != nil || n != 1 {
		t.Fatalf("cycle 2 MarkDone = %d, %v", n, err)
	}

	// Cycle three through the enrichment-update trigger.
	if _, err := db.Exec(
		`UPDATE document_enrichments SET content = 'v2' WHERE doc_id = ?`, doc); err != nil {
		t.Fatalf("updating enrichment: %v", err)
	}
	if _, err := ClaimBatch(db, 1, "worker-a", 30); err != nil {
		t.Fatalf("cycle 3 ClaimBatch: %v", err)
	}
	if n, err := MarkDone(db, []int64{doc}); err != nil || n != 1 {
		t.Fatalf("cycle 3 MarkDone = %d, %v", n, err)
	}
	if n := queueRows(t, db, doc); n != 1 {
		t.Errorf("doc holds %d queue rows, want 1", n)
	}
}

func TestStaleReclaimWithFreshPendingRow(t *testing.T) {
	db := testDB(t)
	doc := insertDocs(t, db, 1)[0]

	if _, err := ClaimBatch(db, 1, "worker-a", 30); err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	old := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	if _, err := db.Exec(`UPDATE embed_queue SET claimed_at = ? WHERE doc_id = ?`, old, doc); err != nil {
		t.Fatalf("aging claim: %v", err)
	}

	// Trigger enqueues a pending row while the stale claim is still there.
	if _, err := db.Exec(
		`INSERT INTO document_enrichments (doc_id, kind, content, updated_at) VALUES (?, 'summary', 'v1', '2026-08-25T12:00:00Z')`,
		doc); err != nil {
		t.Fatalf("inserting enrichment: %v", err)
	}

	// The reclaim must collapse the two rows instead of aborting the batch.
	claimed, err := ClaimBatch(db, 10, "worker-b", 30)
	if err != nil {
		t.Fatalf("ClaimBatch with coexisting rows: %v", err)
	}
	if len(claimed) != 1 || claimed[0] != doc {
		t.Fatalf("claimed %v, want [%d]", claimed, doc)
	}
	if n := queueRows(t, db, doc); n != 1 {
		t.Errorf("doc holds %d queue rows, want 1", n)
	}
	if n, err := MarkDone(db, claimed); err != nil || n != 1 {
		t.Fatalf("MarkDone = %d, %v", n, err)
	}
}

func TestMarkFailed(t *testing.T) {
	db := testDB(t)
	insertDocs(t, db, 1)

	claimed, err := ClaimBatch(db, 1, "worker-a", 30)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	n, err := MarkFailed(db, claimed)
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if n != 1 {
		t.Errorf("marked %d failed, want 1", n)
	}
}
