package fortress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuditLogDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	key := []byte("0123456789abcdef")
	a := NewAuditLog(path, key, 0, 0)

	for _, msg := range []string{"one", "two", "three"} {
		if err := a.Write(fixedNow, LevelInfo, msg); err != nil {
			t.Fatal(err)
		}
	}

	data, _ := os.ReadFile(path)
	tampered := strings.Replace(string(data), "|two|", "|TWO|", 1)
	if err := os.WriteFile(path, []byte(tampered+"garbage line\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	entries, err := VerifyAuditLog(path, key)
	if err != nil {
		t.Fatal(err)
	}
	var valid []bool
	for _, e := range entries {
		valid = append(valid, e.Valid)
	}
	want := []bool{true, false, true, false}
	if fmt.Sprint(valid) != fmt.Sprint(want) {
		t.Errorf("validity = %v, want %v", valid, want)
	}

	entries, _ = VerifyAuditLog(path, []byte("wrong key 123456"))
	if entries[0].Valid {
		t.Error("entry verified with the wrong key")
	}
}

func TestAuditLogRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	a := NewAuditLog(path, []byte("k"), 200, 2)

	for i := 0; i < 10; i++ {
		if err := a.Write(fixedNow, LevelInfo, fmt.Sprintf("entry %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	for _, name := range []string{"audit.log", "audit.log.1", "audit.log.2"} {
		info, err := os.Stat(filepath.Join(filepath.Dir(path), name))
		if err != nil {
			t.Errorf("%s missing: %v", name, err)
			continue
		}
		if info.Size() > 200 {
			t.Errorf("%s is %d bytes, over the limit", name, info.Size())
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("more backups kept than configured")
	}

	entries, err := VerifyAuditLog(path, []byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if last := entries[len(entries)-1]; last.Message != "entry 9" || !last.Valid {
		t.Errorf("last entry = %+v", last)
	}
}
