package handoff

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type stage struct {
	Agent string   `json:"agent"`
	Dirs  []string `json:"dirs"`
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DirectoryAuditFile)
	want := stage{Agent: "directory audit", Dirs: []string{".claude/commands"}}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var got stage
	if err := Load(path, &got); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissing(t *testing.T) {
	var v stage
	err := Load(filepath.Join(t.TempDir(), InventoryFile), &v)
	if !errors.Is(err, ErrMissing) {
		t.Errorf("Load() error = %v, want ErrMissing", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ReferenceFile)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	var v stage
	err := Load(path, &v)
	if err == nil {
		t.Fatal("Load() of malformed JSON succeeded")
	}
	if errors.Is(err, ErrMissing) {
		t.Error("malformed file reported as missing")
	}
}
