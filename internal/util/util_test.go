package util

import (
	"os"
	"path/filepath"
	"testing"
)

type stateDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	want := stateDoc{Name: "Singer", Count: 3}
	if err := WriteJSONAtomic(path, want); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}

	var got stateDoc
	ok, err := ReadJSONFile(path, &got)
	if err != nil {
		t.Fatalf("ReadJSONFile: %v", err)
	}
	if !ok {
		t.Fatal("ReadJSONFile reported no content")
	}
	if got != want {
		t.Errorf("state = %+v, want %+v", got, want)
	}

	// No temp residue after the rename.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the state file", len(entries))
	}
}

func TestReadJSONFileTolerance(t *testing.T) {
	dir := t.TempDir()

	var v stateDoc
	ok, err := ReadJSONFile(filepath.Join(dir, "absent.json"), &v)
	if err != nil || ok {
		t.Errorf("missing file: ok=%v err=%v, want false/nil", ok, err)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}
	ok, err = ReadJSONFile(corrupt, &v)
	if err != nil || ok {
		t.Errorf("corrupt file: ok=%v err=%v, want false/nil", ok, err)
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte("  \n"), 0o644); err != nil {
		t.Fatalf("writing empty file: %v", err)
	}
	ok, err = ReadJSONFile(empty, &v)
	if err != nil || ok {
		t.Errorf("empty file: ok=%v err=%v, want false/nil", ok, err)
	}
}

func TestSafeSlug(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Singer", "Singer"},
		{"prey8_session-1.json", "prey8_session-1.json"},
		{"p4/fuzzer agent", "p4_fuzzer_agent"},
		{"a:b*c", "a_b_c"},
		{"", "unknown"},
	}
	for _, c := range cases {
		if got := SafeSlug(c.in); got != c.want {
			t.Errorf("SafeSlug(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
