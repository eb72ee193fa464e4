package audit

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/hivefleet/hfo/internal/hfo"
	"github.com/hivefleet/hfo/internal/sigil"
	"github.com/hivefleet/hfo/internal/stigmergy"
	"github.com/hivefleet/hfo/internal/store"
)

func selfTestSig() *sigil.SignalMetadata {
	return &sigil.SignalMetadata{
		Port:          "P5",
		ModelID:       "system",
		DaemonName:    "SelfTest",
		ModelProvider: "internal",
	}
}

func testHarness(t *testing.T) (*sql.DB, *stigmergy.Writer, *sigil.Builder) {
	t.Helper()
	db, err := store.Migrate(filepath.Join(t.TempDir(), "ssot.db"), "gen90")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, stigmergy.NewWriter(db, "gen90", "SelfTest"), sigil.NewBuilder("gen90")
}

func testVerifier(t *testing.T) (*Verifier, *sql.DB) {
	t.Helper()
	root := t.TempDir()
	dbPath := filepath.Join(root, "ssot.db")
	db, err := store.Migrate(dbPath, "gen90")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rt := &hfo.Runtime{
		Root:       root,
		Generation: "gen90",
		DBPath:     dbPath,
		Config:     &hfo.Config{},
	}
	w := stigmergy.NewWriter(db, "gen90", WishSource)
	return NewVerifier(db, rt, w, sigil.NewBuilder("gen90")), db
}
