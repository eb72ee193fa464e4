package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/hivefleet/hfo/internal/fleet"
)

// schemaStatements is the full table/index schema. Statements are
// individually idempotent so Migrate can re-run on every upgrade.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS stigmergy_events (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type   TEXT NOT NULL,
		timestamp    TEXT NOT NULL,
		subject      TEXT NOT NULL DEFAULT '',
		source       TEXT NOT NULL DEFAULT '',
		data_json    TEXT NOT NULL,
		content_hash TEXT NOT NULL UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type ON stigmergy_events(event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON stigmergy_events(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_events_source ON stigmergy_events(source)`,

	`CREATE TABLE IF NOT EXISTS documents (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		title         TEXT NOT NULL,
		bluf          TEXT NOT NULL DEFAULT '',
		content       TEXT NOT NULL DEFAULT '',
		source        TEXT NOT NULL DEFAULT '',
		port          TEXT NOT NULL DEFAULT '',
		doc_type      TEXT NOT NULL DEFAULT '',
		tags          TEXT NOT NULL DEFAULT '',
		word_count    INTEGER NOT NULL DEFAULT 0,
		metadata_json TEXT NOT NULL DEFAULT '{}'
	)`,

	`CREATE TABLE IF NOT EXISTS document_enrichments (
		doc_id     INTEGER NOT NULL REFERENCES documents(id),
		kind       TEXT NOT NULL,
		content    TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (doc_id, kind)
	)`,

	`CREATE TABLE IF NOT EXISTS embeddings (
		doc_id    INTEGER PRIMARY KEY REFERENCES documents(id),
		embedding BLOB NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS compute_route (
		port        TEXT NOT NULL,
		daemon_name TEXT NOT NULL,
		task_type   TEXT NOT NULL DEFAULT 'default',
		model_id    TEXT NOT NULL,
		provider    TEXT NOT NULL,
		priority    INTEGER NOT NULL DEFAULT 0,
		updated_at  TEXT NOT NULL DEFAULT '',
		updated_by  TEXT NOT NULL DEFAULT '',
		reason      TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (port, daemon_name, task_type)
	)`,

	`CREATE TABLE IF NOT EXISTS embed_queue (
		doc_id     INTEGER NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		queued_at  TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'pending',
		claimed_by TEXT,
		claimed_at TEXT,
		UNIQUE (doc_id, status)
	)`,

	`CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
		title, bluf, content,
		content='documents', content_rowid='id'
	)`,
}

// triggerStatements keep the FTS mirror and the embed queue in sync with
// the document tables. The embed-queue triggers are what make re-embedding
// trigger-driven rather than polled.
var triggerStatements = []string{
	`CREATE TRIGGER IF NOT EXISTS trg_documents_fts_ai AFTER INSERT ON documents BEGIN
		INSERT INTO documents_fts(rowid, title, bluf, content)
		VALUES (NEW.id, NEW.title, NEW.bluf, NEW.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_documents_fts_ad AFTER DELETE ON documents BEGIN
		INSERT INTO documents_fts(documents_fts, rowid, title, bluf, content)
		VALUES ('delete', OLD.id, OLD.title, OLD.bluf, OLD.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_documents_fts_au AFTER UPDATE ON documents BEGIN
		INSERT INTO documents_fts(documents_fts, rowid, title, bluf, content)
		VALUES ('delete', OLD.id, OLD.title, OLD.bluf, OLD.content);
		INSERT INTO documents_fts(rowid, title, bluf, content)
		VALUES (NEW.id, NEW.title, NEW.bluf, NEW.content);
	END`,

	// Re-enqueue clears a doc's terminal rows first: the UNIQUE (doc_id,
	// status) key means a surviving done/failed row would block the doc's
	// next pass through the queue. DROP before CREATE so re-running Migrate
	// upgrades triggers on existing stores.
	`DROP TRIGGER IF EXISTS trg_embed_on_document_insert`,
	`CREATE TRIGGER trg_embed_on_document_insert AFTER INSERT ON documents BEGIN
		DELETE FROM embed_queue WHERE doc_id = NEW.id AND status IN ('done', 'failed');
		INSERT OR IGNORE INTO embed_queue(doc_id, reason, queued_at, status)
		VALUES (NEW.id, 'new_document', strftime('%Y-%m-%dT%H:%M:%fZ', 'now'), 'pending');
	END`,
	`DROP TRIGGER IF EXISTS trg_embed_on_enrichment_insert`,
	`CREATE TRIGGER trg_embed_on_enrichment_insert AFTER INSERT ON document_enrichments BEGIN
		DELETE FROM embed_queue WHERE doc_id = NEW.doc_id AND status IN ('done', 'failed');
		INSERT OR IGNORE INTO embed_queue(doc_id, reason, queued_at, status)
		VALUES (NEW.doc_id, 'enrichment_updated', strftime('%Y-%m-%dT%H:%M:%fZ', 'now'), 'pending');
	END`,
	`DROP TRIGGER IF EXISTS trg_embed_on_enrichment_update`,
	`CREATE TRIGGER trg_embed_on_enrichment_update AFTER UPDATE ON document_enrichments BEGIN
		DELETE FROM embed_queue WHERE doc_id = NEW.doc_id AND status IN ('done', 'failed');
		INSERT OR IGNORE INTO embed_queue(doc_id, reason, queued_at, status)
		VALUES (NEW.doc_id, 'enrichment_updated', strftime('%Y-%m-%dT%H:%M:%fZ', 'now'), 'pending');
	END`,
}

// vecTableStatement is attempted best-effort: the sqlite-vec extension is
// not loadable from the pure-Go driver, so on most deployments only the raw
// BLOB table exists and the embedding worker skips the vector index.
const vecTableStatement = `CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(
	doc_id INTEGER PRIMARY KEY,
	embedding FLOAT[384]
)`

func applySchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	for _, stmt := range triggerStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("installing triggers: %w", err)
		}
	}
	_, _ = db.Exec(vecTableStatement)
	return nil
}

// installGateTrigger installs the signal-metadata structural gate for the
// current generation. Event types from earlier generations, gate-block
// events, the session protocols, and the system-health/chimera channels are
// exempt. Dropped and recreated so a generation bump takes effect.
func installGateTrigger(db *sql.DB, generation string) error {
	if _, err := db.Exec(`DROP TRIGGER IF EXISTS trg_signal_metadata_gate`); err != nil {
		return fmt.Errorf("dropping gate trigger: %w", err)
	}
	stmt := fmt.Sprintf(`CREATE TRIGGER trg_signal_metadata_gate
		BEFORE INSERT ON stigmergy_events
		WHEN NEW.event_type LIKE '%s.%%'
		  AND NEW.event_type NOT LIKE '%%.gate_block'
		  AND NEW.event_type NOT LIKE '%%.prey8.%%'
		  AND NEW.event_type NOT LIKE '%%.hive8.%%'
		  AND NEW.event_type NOT LIKE '%%.system_health%%'
		  AND NEW.event_type NOT LIKE '%%.chimera%%'
		  AND instr(NEW.data_json, '"signal_metadata"') = 0
		BEGIN
			SELECT RAISE(ABORT, 'STRUCTURAL_GATE: stigmergy event missing signal_metadata');
		END`, escapeLike(generation))
	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("installing gate trigger: %w", err)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// seedRoutes inserts the baseline compute route for every daemon in the
// fleet spec. INSERT OR IGNORE so operator-set routes survive re-migration.
func seedRoutes(db *sql.DB) error {
	for _, d := range fleet.Default {
		model, provider := "gemma3:4b", "ollama"
		if !d.RequiresModelServer {
			// Daemons that never call the model server still need a
			// route row: get_route refusing to answer is how a
			// misconfigured daemon is kept from starting.
			model, provider = "none", "internal"
		}
		_, err := db.Exec(
			`INSERT OR IGNORE INTO compute_route
				(port, daemon_name, task_type, model_id, provider, priority, updated_at, updated_by, reason)
			 VALUES (?, ?, 'default', ?, ?, 0, strftime('%Y-%m-%dT%H:%M:%fZ','now'), 'migration', 'baseline')`,
			d.Port, d.Name, model, provider)
		if err != nil {
			return fmt.Errorf("seeding route for %s: %w", d.Name, err)
		}
	}
	return nil
}
