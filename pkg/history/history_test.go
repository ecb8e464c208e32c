package history

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type entry struct {
	Run   int     `json:"run"`
	Score float64 `json:"score"`
}

func TestAppendCapsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics", "history.json")

	for i := 1; i <= 5; i++ {
		if err := Append(path, entry{Run: i, Score: float64(i) * 10}, 3); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	got, err := Load[entry](path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []entry{{3, 30}, {4, 40}, {5, 50}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendDefaultLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	for i := 0; i < DefaultLimit+2; i++ {
		if err := Append(path, entry{Run: i}, 0); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Load[entry](path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != DefaultLimit || got[0].Run != 2 {
		t.Errorf("len = %d, first = %d; want %d, 2", len(got), got[0].Run, DefaultLimit)
	}
}

func TestAppendFileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not kept on windows")
	}
	path := filepath.Join(t.TempDir(), "history.json")
	for i := 1; i <= 2; i++ {
		if err := Append(path, entry{Run: i}, 0); err != nil {
			t.Fatal(err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if got := info.Mode().Perm(); got != 0o644 {
			t.Errorf("append %d: mode = %o, want 644", i, got)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	got, err := Load[entry](filepath.Join(t.TempDir(), "nope.json"))
	if err != nil || got != nil {
		t.Errorf("Load() = %v, %v; want nil, nil", got, err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load[entry](path); err == nil {
		t.Error("Load() on corrupt file should fail")
	}
	if err := Append(path, entry{Run: 1}, 5); err == nil {
		t.Error("Append() on corrupt file should fail rather than overwrite")
	}
}
