package stigmergy

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hivefleet/hfo/internal/sigil"
	"github.com/hivefleet/hfo/internal/util"
)

// Writer is the one and only sink for stigmergy events. Daemons never
// insert into stigmergy_events themselves; the schema-level trigger is the
// backstop for code that tries.
type Writer struct {
	DB         *sql.DB
	Generation string

	// Source is the fallback source tag when neither the call nor the
	// signal metadata provides one.
	Source string

	// Now is swappable for tests.
	Now func() time.Time
}

// NewWriter returns a writer for the given store handle.
func NewWriter(db *sql.DB, generation, source string) *Writer {
	return &Writer{DB: db, Generation: generation, Source: source, Now: time.Now}
}

// WriteEvent validates, wraps, hashes, and inserts one event. The returned
// row id is >0 on insert and 0 when the content hash deduplicated the
// write. source may be empty; it is then derived from the signal metadata's
// daemon name and port.
//
// On a gate failure a gate-block event is persisted first and a typed error
// is returned. There is no local recovery: the caller is the correctness
// boundary.
func (w *Writer) WriteEvent(eventType, subject, source string, data map[string]interface{}, sig *sigil.SignalMetadata) (int64, error) {
	caller := callerRef(2)

	if sig == nil {
		w.writeGateBlock(eventType, "signal_metadata_missing", caller, nil)
		return 0, &SignalMetadataMissingError{Caller: caller}
	}
	if missing := sig.MissingFields(); len(missing) > 0 {
		w.writeGateBlock(eventType, "signal_metadata_incomplete", caller, missing)
		return 0, &SignalMetadataIncompleteError{Missing: missing, Caller: caller}
	}

	if source == "" {
		source = w.Source
	}
	if source == "" {
		source = fmt.Sprintf("%s/%s", sig.DaemonName, sig.Port)
	}

	merged := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		merged[k] = v
	}
	merged["signal_metadata"] = sig.ToMap()

	return w.insert(eventType, subject, source, merged)
}

// GateBlockType is the event type suffix for persisted gate rejections.
const GateBlockType = "ssot_write.gate_block"

// writeGateBlock persists the rejection so blind spots are visible in the
// stream. Gate-block events are exempt from the signal-metadata
// requirement; failures here are swallowed because the typed error that
// follows is the primary signal.
func (w *Writer) writeGateBlock(attemptedType, reason, caller string, missing []string) {
	data := map[string]interface{}{
		"reason":         reason,
		"attempted_type": attemptedType,
		"caller":         caller,
	}
	if len(missing) > 0 {
		data["missing_fields"] = missing
	}
	_, _ = w.insert(w.Generation+"."+GateBlockType, "gate:"+reason, "ssot_write", data)
}

func (w *Writer) insert(eventType, subject, source string, data map[string]interface{}) (int64, error) {
	env := newEnvelope(eventType, source, subject, data, w.Now())
	hash, err := env.ContentHash()
	if err != nil {
		return 0, err
	}
	payload, err := env.Marshal()
	if err != nil {
		return 0, err
	}

	// Concurrent daemons contend on the single writer connection; locked
	// errors back off and retry instead of dropping the event.
	res, err := util.Retry(context.Background(), util.DefaultRetryConfig(), func() (sql.Result, error) {
		return w.DB.Exec(
			`INSERT OR IGNORE INTO stigmergy_events
				(event_type, timestamp, subject, source, data_json, content_hash)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			eventType, env.Timestamp, subject, source, string(payload), hash)
	})
	if err != nil {
		return 0, fmt.Errorf("inserting event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking insert: %w", err)
	}
	if n == 0 {
		// Dedup: an identical envelope already exists.
		return 0, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading row id: %w", err)
	}
	return id, nil
}

// callerRef walks the stack past the writer to name the calling site.
func callerRef(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
