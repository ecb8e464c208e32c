package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/swm-sink/promptaudit/pkg/vault"
)

var base = time.Date(2025, 7, 11, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func openStore(t *testing.T, dir, master string, c *clock) *Store {
	t.Helper()
	s, err := Open(Options{
		Path:      filepath.Join(dir, "encrypted_keys.json"),
		MasterKey: master,
		KeyFile:   filepath.Join(dir, ".claude_master.key"),
		SaltFile:  filepath.Join(dir, ".claude_salt"),
		Now:       c.Now,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func newStore(t *testing.T) (*Store, *clock, string) {
	t.Helper()
	dir := t.TempDir()
	c := &clock{t: base}
	return openStore(t, dir, "test-master-key", c), c, dir
}

func TestStoreAndRetrieve(t *testing.T) {
	s, c, dir := newStore(t)

	id, err := s.Store("openai", "sk-test-key-123", map[string]string{"env": "dev"})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if id != KeyID("sk-test-key-123") || !strings.HasPrefix(id, "key_") || len(id) != 20 {
		t.Errorf("id = %q", id)
	}

	path := filepath.Join(dir, "encrypted_keys.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-test-key-123") {
		t.Error("store file contains the plaintext key")
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("store mode = %v, want 0600", info.Mode().Perm())
	}

	c.Set(base.Add(time.Hour))
	k, err := s.Retrieve("openai")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if k.APIKey != "sk-test-key-123" || k.ID != id || k.Metadata["env"] != "dev" {
		t.Errorf("Retrieve() = %+v", k)
	}
	if k.UsageCount != 1 || k.LastUsed == nil || !k.LastUsed.Equal(base.Add(time.Hour)) {
		t.Errorf("usage = %d, last used %v", k.UsageCount, k.LastUsed)
	}
	if !k.Expires.Equal(base.Add(DefaultLifetime)) {
		t.Errorf("Expires = %v, want %v", k.Expires, base.Add(DefaultLifetime))
	}

	k, err = s.Retrieve(id)
	if err != nil {
		t.Fatal(err)
	}
	if k.UsageCount != 2 {
		t.Errorf("UsageCount after second retrieve = %d, want 2", k.UsageCount)
	}
}

func TestRetrieveNotFound(t *testing.T) {
	s, _, _ := newStore(t)
	if _, err := s.Retrieve("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Retrieve() error = %v, want ErrNotFound", err)
	}
}

func TestStoreRequiresNameAndKey(t *testing.T) {
	s, _, _ := newStore(t)
	if _, err := s.Store("", "k", nil); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := s.Store("n", "", nil); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestList(t *testing.T) {
	s, c, _ := newStore(t)
	for i, name := range []string{"openai", "anthropic", "google"} {
		c.Set(base.Add(time.Duration(i) * time.Minute))
		if _, err := s.Store(name, "secret-"+name, nil); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
		if info.Status != StatusActive {
			t.Errorf("%s status = %s", info.Name, info.Status)
		}
	}
	if diff := cmp.Diff([]string{"anthropic", "google", "openai"}, names); diff != "" {
		t.Errorf("List() names mismatch (-want +got):\n%s", diff)
	}

	out, _ := json.Marshal(infos)
	if strings.Contains(string(out), "secret-") {
		t.Error("List() exposes key material")
	}
}

func TestRevokeAndDelete(t *testing.T) {
	s, _, _ := newStore(t)
	id, _ := s.Store("openai", "sk-abc", nil)

	if err := s.Revoke(id); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := s.Retrieve("openai"); !errors.Is(err, ErrRevoked) {
		t.Errorf("Retrieve() after revoke error = %v, want ErrRevoked", err)
	}
	if err := s.Revoke("key_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Revoke(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Retrieve(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Retrieve() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestRotate(t *testing.T) {
	s, c, dir := newStore(t)
	oldID, _ := s.Store("openai", "sk-old-key-123", map[string]string{"team": "ml"})

	c.Set(base.Add(24 * time.Hour))
	newID, err := s.Rotate(oldID, "sk-new-key-456")
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if newID == oldID {
		t.Fatal("rotation kept the old id")
	}

	k, err := s.Retrieve("openai")
	if err != nil {
		t.Fatal(err)
	}
	if k.APIKey != "sk-new-key-456" || k.RotatedFrom != oldID || k.Metadata["team"] != "ml" {
		t.Errorf("Retrieve() after rotate = %+v", k)
	}
	if !k.Expires.Equal(base.Add(24*time.Hour + DefaultLifetime)) {
		t.Errorf("rotated key expires %v", k.Expires)
	}

	if _, err := s.Retrieve(oldID); !errors.Is(err, ErrRevoked) {
		t.Errorf("Retrieve(old) error = %v, want ErrRevoked", err)
	}
	if _, err := s.Rotate(oldID, "sk-third"); !errors.Is(err, ErrRevoked) {
		t.Errorf("Rotate(rotated key) error = %v, want ErrRevoked", err)
	}
	if _, err := s.Rotate("key_missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rotate(missing) error = %v, want ErrNotFound", err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "encrypted_keys.json"))
	var sf storeFile
	if err := json.Unmarshal(data, &sf); err != nil {
		t.Fatal(err)
	}
	if len(sf.Metadata.RotationHistory) != 1 || sf.Metadata.RotationHistory[0].NewKeyID != newID {
		t.Errorf("rotation history = %+v", sf.Metadata.RotationHistory)
	}
	if sf.Keys[oldID].Status != StatusRotated || sf.Keys[oldID].RotatedAt == nil {
		t.Errorf("old entry = %+v", sf.Keys[oldID])
	}
	if sf.Metadata.TotalKeys != 2 {
		t.Errorf("TotalKeys = %d, want 2", sf.Metadata.TotalKeys)
	}
}

func TestExpiry(t *testing.T) {
	s, c, _ := newStore(t)

	if _, err := s.StoreWithExpiry("fresh", "sk-fresh", base.Add(30*24*time.Hour), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StoreWithExpiry("stale", "sk-stale", base.Add(-24*time.Hour), nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		want bool
	}{
		{"fresh", false},
		{"stale", true},
	}
	for _, tt := range tests {
		got, err := s.IsExpired(tt.name)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("IsExpired(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
	if _, err := s.Retrieve("stale"); !errors.Is(err, ErrExpired) {
		t.Errorf("Retrieve(stale) error = %v, want ErrExpired", err)
	}

	// Inside the grace period nothing is removed.
	n, err := s.CleanupExpired(base.Add(20 * 24 * time.Hour))
	if err != nil || n != 0 {
		t.Errorf("CleanupExpired() = %d, %v; want 0", n, err)
	}
	n, err = s.CleanupExpired(base.Add(30 * 24 * time.Hour))
	if err != nil || n != 1 {
		t.Errorf("CleanupExpired() = %d, %v; want 1", n, err)
	}
	c.Set(base.Add(time.Hour))
	if _, err := s.Retrieve("stale"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale key still present: %v", err)
	}
	if _, err := s.Retrieve("fresh"); err != nil {
		t.Errorf("fresh key removed: %v", err)
	}
}

func TestBackupAndRestore(t *testing.T) {
	s, _, dir := newStore(t)
	id1, _ := s.Store("service1", "key-one-value", nil)
	id2, _ := s.Store("service2", "key-two-value", nil)

	backup := filepath.Join(dir, "backup_keys.json")
	if err := s.ExportBackup(backup, true); err != nil {
		t.Fatalf("ExportBackup() error = %v", err)
	}
	data, _ := os.ReadFile(backup)
	if strings.Contains(string(data), "key-one-value") {
		t.Error("backup contains plaintext key")
	}
	if info, _ := os.Stat(backup); info.Mode().Perm() != 0o600 {
		t.Errorf("backup mode = %v, want 0600", info.Mode().Perm())
	}

	for _, id := range []string{id1, id2} {
		if err := s.Delete(id); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Retrieve("service1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("key survived delete: %v", err)
	}

	n, err := s.RestoreBackup(backup)
	if err != nil {
		t.Fatalf("RestoreBackup() error = %v", err)
	}
	if n != 2 {
		t.Errorf("restored %d keys, want 2", n)
	}
	for name, want := range map[string]string{"service1": "key-one-value", "service2": "key-two-value"} {
		k, err := s.Retrieve(name)
		if err != nil || k.APIKey != want {
			t.Errorf("Retrieve(%s) = %v, %v", name, k, err)
		}
	}

	meta := filepath.Join(dir, "meta_only.json")
	if err := s.ExportBackup(meta, false); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(meta)
	if strings.Contains(string(data), "encrypted_data") {
		t.Error("metadata-only backup includes key material")
	}
	if _, err := s.RestoreBackup(meta); err == nil {
		t.Error("expected error restoring a metadata-only backup")
	}
}

func TestAuditStrength(t *testing.T) {
	s, _, _ := newStore(t)
	s.Store("weak_key", "12345", nil)
	s.Store("strong_key", "sk-AbC123xyz789QRStuvWX", nil)
	revoked, _ := s.Store("old_key", "abc", nil)
	s.Revoke(revoked)

	st, err := s.AuditStrength()
	if err != nil {
		t.Fatal(err)
	}
	want := &Strength{Weak: []string{"weak_key"}, Strong: []string{"strong_key"}}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("AuditStrength() mismatch (-want +got):\n%s", diff)
	}
}

func TestIsStrong(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"12345", false},
		{"aaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"abcdefghij0123456789", false},
		{"abcdefghij0123456789X", true},
		{"sk-abcdefghij0123456789", true},
	}
	for _, tt := range tests {
		if got := IsStrong(tt.key); got != tt.want {
			t.Errorf("IsStrong(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestGeneratedMasterKeyPersists(t *testing.T) {
	dir := t.TempDir()
	c := &clock{t: base}

	s := openStore(t, dir, "", c)
	if _, err := s.Store("svc", "sk-persisted", nil); err != nil {
		t.Fatal(err)
	}
	keyFile := filepath.Join(dir, ".claude_master.key")
	info, err := os.Stat(keyFile)
	if err != nil {
		t.Fatalf("master key file not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("master key mode = %v, want 0600", info.Mode().Perm())
	}

	again := openStore(t, dir, "", c)
	k, err := again.Retrieve("svc")
	if err != nil || k.APIKey != "sk-persisted" {
		t.Errorf("Retrieve() with reloaded master key = %v, %v", k, err)
	}
}

func TestWrongMasterKey(t *testing.T) {
	s, c, dir := newStore(t)
	s.Store("svc", "sk-secret", nil)

	other := openStore(t, dir, "a-different-key", c)
	if _, err := other.Retrieve("svc"); !errors.Is(err, vault.ErrDecrypt) {
		t.Errorf("Retrieve() with wrong master key error = %v, want ErrDecrypt", err)
	}
}

func TestConcurrentStores(t *testing.T) {
	s, _, _ := newStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Store(fmt.Sprintf("svc%d", i), fmt.Sprintf("sk-key-%d", i), nil); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Store() error = %v", err)
	}

	infos, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 10 {
		t.Errorf("List() returned %d keys, want 10", len(infos))
	}
}
