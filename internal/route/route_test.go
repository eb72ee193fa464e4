package route

import (
	"database/sql"
	"path/filepath"
	"testing"

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

func TestGetSeededDefault(t *testing.T) {
	db := testDB(t)

	r, err := Get(db, "P4", "Singer", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.ModelID != "gemma3:4b" || r.Provider != "ollama" {
		t.Errorf("route = %s/%s, want gemma3:4b/ollama", r.ModelID, r.Provider)
	}
	if r.Task != DefaultTask {
		t.Errorf("task = %q, want %q", r.Task, DefaultTask)
	}
}

func TestSetThenGet(t *testing.T) {
	db := testDB(t)

	want := Route{
		Port: "P4", Daemon: "Singer", Task: "embedding",
		ModelID: "nomic-embed-text", Provider: "ollama",
		UpdatedBy: "test", Reason: "embedding work",
	}
	if err := Set(db, want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := Get(db, "P4", "Singer", "embedding")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ModelID != want.ModelID {
		t.Errorf("model = %q, want %q", got.ModelID, want.ModelID)
	}

	// Re-setting the same key overwrites.
	want.ModelID = "qwen3:8b"
	if err := Set(db, want); err != nil {
		t.Fatalf("second Set: %v", err)
	}
	got, err = Get(db, "P4", "Singer", "embedding")
	if err != nil {
		t.Fatalf("Get after upsert: %v", err)
	}
	if got.ModelID != "qwen3:8b" {
		t.Errorf("model after upsert = %q, want qwen3:8b", got.ModelID)
	}
}

func TestTaskFallsBackToDefault(t *testing.T) {
	db := testDB(t)

	r, err := Get(db, "P4", "Singer", "some_unknown_task")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Task != DefaultTask {
		t.Errorf("fallback task = %q, want %q", r.Task, DefaultTask)
	}
}

func TestNoRoute(t *testing.T) {
	db := testDB(t)

	_, err := Get(db, "P9", "Singer", "")
	if err == nil {
		t.Fatal("Get on unknown port succeeded, want NoRouteError")
	}
	if !IsNoRoute(err) {
		t.Errorf("error = %v, want NoRouteError", err)
	}
}

func TestList(t *testing.T) {
	db := testDB(t)

	routes, err := List(db)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	// One seeded route per fleet daemon.
	if len(routes) != 10 {
		t.Errorf("routes = %d, want 10", len(routes))
	}
}
