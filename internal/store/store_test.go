package store

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func testStore(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ssot.db")
}

func TestMigrateCreatesSchema(t *testing.T) {
	path := testStore(t)
	db, err := Migrate(path, "gen90")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"stigmergy_events", "documents", "compute_route", "embed_queue", "embeddings", "meta"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Errorf("table %s not queryable: %v", table, err)
		}
	}

	// Re-running must be a no-op, not an error.
	db2, err := Migrate(path, "gen90")
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	db2.Close()
}

func TestMigrateSeedsRoutes(t *testing.T) {
	db, err := Migrate(testStore(t), "gen90")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	defer db.Close()

	var model string
	err = db.QueryRow(
		`SELECT model_id FROM compute_route WHERE port='P4' AND daemon_name='Singer' AND task_type='default'`,
	).Scan(&model)
	if err != nil {
		t.Fatalf("seeded route missing: %v", err)
	}
	if model != "gemma3:4b" {
		t.Errorf("Singer default model = %q, want gemma3:4b", model)
	}
}

func TestGateTriggerRejectsBypass(t *testing.T) {
	db, err := Migrate(testStore(t), "gen90")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(
		`INSERT INTO stigmergy_events (event_type, timestamp, subject, source, data_json, content_hash)
		 VALUES ('gen90.bypass.test', '2026-08-25T00:00:00Z', 's', 'src', '{"data":{"foo":"bar"}}', 'h1')`)
	if err == nil {
		t.Fatal("direct insert without signal_metadata succeeded, want STRUCTURAL_GATE abort")
	}
	if !strings.Contains(err.Error(), "STRUCTURAL_GATE") {
		t.Errorf("error = %v, want STRUCTURAL_GATE message", err)
	}
}

func TestGateTriggerExemptions(t *testing.T) {
	db, err := Migrate(testStore(t), "gen90")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	defer db.Close()

	exempt := []string{
		"gen90.ssot_write.gate_block",
		"gen90.prey8.perceive",
		"gen90.hive8.hunt",
		"gen90.system_health",
		"gen90.chimera.probe",
		"gen89.old_generation.event", // prior generation prefix
	}
	for i, eventType := range exempt {
		_, err := db.Exec(
			`INSERT INTO stigmergy_events (event_type, timestamp, subject, source, data_json, content_hash)
			 VALUES (?, '2026-08-25T00:00:00Z', 's', 'src', '{"data":{}}', ?)`,
			eventType, eventType)
		if err != nil {
			t.Errorf("exempt type %q rejected: %v", exempt[i], err)
		}
	}
}

func TestDocumentInsertFeedsEmbedQueue(t *testing.T) {
	db, err := Migrate(testStore(t), "gen90")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	defer db.Close()

	res, err := db.Exec(`INSERT INTO documents (title, content) VALUES ('doc one', 'hello world')`)
	if err != nil {
		t.Fatalf("inserting document: %v", err)
	}
	docID, _ := res.LastInsertId()

	var reason, status string
	err = db.QueryRow(`SELECT reason, status FROM embed_queue WHERE doc_id = ?`, docID).Scan(&reason, &status)
	if err != nil {
		t.Fatalf("embed queue row missing: %v", err)
	}
	if reason != "new_document" || status != "pending" {
		t.Errorf("queue row = (%q, %q), want (new_document, pending)", reason, status)
	}

	// FTS mirror follows the insert.
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM documents_fts WHERE documents_fts MATCH 'hello'`).Scan(&n); err != nil {
		t.Fatalf("FTS query: %v", err)
	}
	if n != 1 {
		t.Errorf("FTS matches = %d, want 1", n)
	}
}

func TestEnrichmentUpdateRequeues(t *testing.T) {
	db, err := Migrate(testStore(t), "gen90")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	defer db.Close()

	res, err := db.Exec(`INSERT INTO documents (title) VALUES ('doc')`)
	if err != nil {
		t.Fatalf("inserting document: %v", err)
	}
	docID, _ := res.LastInsertId()

	// Drain the new_document entry.
	if _, err := db.Exec(`UPDATE embed_queue SET status='done' WHERE doc_id=?`, docID); err != nil {
		t.Fatalf("draining queue: %v", err)
	}

	if _, err := db.Exec(
		`INSERT INTO document_enrichments (doc_id, kind, content) VALUES (?, 'summary', 'a summary')`,
		docID); err != nil {
		t.Fatalf("inserting enrichment: %v", err)
	}

	var n int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM embed_queue WHERE doc_id=? AND status='pending' AND reason='enrichment_updated'`,
		docID).Scan(&n); err != nil {
		t.Fatalf("querying queue: %v", err)
	}
	if n != 1 {
		t.Errorf("pending enrichment rows = %d, want 1", n)
	}
}

func TestOpenROMissingStore(t *testing.T) {
	_, err := OpenRO(filepath.Join(t.TempDir(), "absent.db"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("OpenRO error = %v, want ErrUnavailable", err)
	}
}
