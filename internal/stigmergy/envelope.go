// Package stigmergy is the coordination fabric's event layer: the
// CloudEvents-shaped envelope, the content hash, the one writer every event
// must pass through, and the read helpers daemons use to consume the
// stream.
package stigmergy

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the CloudEvents 1.0 JSON shape stored in data_json.
type Envelope struct {
	SpecVersion     string                 `json:"specversion"`
	ID              string                 `json:"id"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject"`
	Time            string                 `json:"time"`
	Timestamp       string                 `json:"timestamp"`
	DataContentType string                 `json:"datacontenttype"`
	TraceParent     string                 `json:"traceparent"`
	Data            map[string]interface{} `json:"data"`
}

// newEnvelope builds a fresh envelope. id and traceparent are random; they
// identify this transmission, not its content.
func newEnvelope(eventType, source, subject string, data map[string]interface{}, now time.Time) *Envelope {
	ts := now.UTC().Format(time.RFC3339)
	return &Envelope{
		SpecVersion:     "1.0",
		ID:              newEnvelopeID(eventType, ts),
		Type:            eventType,
		Source:          source,
		Subject:         subject,
		Time:            ts,
		Timestamp:       ts,
		DataContentType: "application/json",
		TraceParent:     newTraceParent(),
		Data:            data,
	}
}

func newEnvelopeID(eventType, ts string) string {
	var nonce [8]byte
	_, _ = rand.Read(nonce[:])
	sum := md5.Sum([]byte(eventType + ts + hex.EncodeToString(nonce[:])))
	return hex.EncodeToString(sum[:8])
}

func newTraceParent() string {
	var traceID [16]byte
	var spanID [8]byte
	_, _ = rand.Read(traceID[:])
	_, _ = rand.Read(spanID[:])
	return fmt.Sprintf("00-%s-%s-01", hex.EncodeToString(traceID[:]), hex.EncodeToString(spanID[:]))
}

// ContentHash is the 256-bit dedup key: SHA-256 over the canonical JSON of
// the envelope's deterministic projection (type, source, subject, data;
// keys sorted). The random transmission fields (id, traceparent, time) are
// excluded so that writing the same event twice produces the same hash and
// the second insert dedupes.
func (e *Envelope) ContentHash() (string, error) {
	canonical := map[string]interface{}{
		"type":    e.Type,
		"source":  e.Source,
		"subject": e.Subject,
		"data":    e.Data,
	}
	// encoding/json sorts map keys, so marshaling nested maps yields the
	// canonical key-sorted form.
	payload, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("marshaling envelope for hash: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Marshal renders the full envelope as the data_json column value.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling envelope: %w", err)
	}
	return data, nil
}
