package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"
	"unicode"

	"github.com/swm-sink/promptaudit/pkg/vault"
)

type backupEntry struct {
	Name          string    `json:"name"`
	Created       time.Time `json:"created"`
	Expires       time.Time `json:"expires"`
	Status        string    `json:"status"`
	EncryptedData []byte    `json:"encrypted_data,omitempty"`
	KeyHash       string    `json:"key_hash,omitempty"`
}

type backupFile struct {
	Version  string                 `json:"version"`
	Exported time.Time              `json:"exported"`
	Metadata storeMetadata          `json:"metadata"`
	Keys     map[string]backupEntry `json:"keys"`
}

// ExportBackup writes the key metadata to path (0600). With includeKeys the
// encrypted key material is included so the backup can be restored.
func (s *Store) ExportBackup(path string, includeKeys bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.load()
	if err != nil {
		return err
	}
	b := backupFile{
		Version:  sf.Version,
		Exported: s.now().UTC(),
		Metadata: sf.Metadata,
		Keys:     make(map[string]backupEntry, len(sf.Keys)),
	}
	for id, e := range sf.Keys {
		be := backupEntry{Name: e.Name, Created: e.Created, Expires: e.Expires, Status: e.Status}
		if includeKeys {
			be.EncryptedData = e.EncryptedData
			be.KeyHash = e.KeyHash
		}
		b.Keys[id] = be
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	if err := vault.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}
	log.Info("exported key store backup", "path", path, "keys", len(b.Keys), "includeKeys", includeKeys)
	return nil
}

// RestoreBackup copies every entry with key material from a backup into the
// store, replacing entries with the same id. It returns the number restored.
// Entries are checked to decrypt with this store's key first.
func (s *Store) RestoreBackup(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var b backupFile
	if err := json.Unmarshal(data, &b); err != nil {
		return 0, fmt.Errorf("parsing backup %s: %w", path, err)
	}

	restored := 0
	err = s.update(func(sf *storeFile) (bool, error) {
		for id, be := range b.Keys {
			if len(be.EncryptedData) == 0 {
				continue
			}
			e := &entry{
				Name:          be.Name,
				EncryptedData: be.EncryptedData,
				Created:       be.Created,
				Expires:       be.Expires,
				KeyHash:       be.KeyHash,
				Status:        be.Status,
			}
			if _, err := s.open(id, e); err != nil {
				return false, err
			}
			sf.Keys[id] = e
			restored++
		}
		return restored > 0, nil
	})
	if err != nil {
		return 0, err
	}
	if restored == 0 && len(b.Keys) > 0 {
		return 0, errors.New("backup holds no key material; export it with keys included")
	}
	return restored, nil
}

// Strength groups active key names by how guessable the key is.
type Strength struct {
	Weak   []string `json:"weak_keys"`
	Strong []string `json:"strong_keys"`
}

// minStrongLength is the shortest key considered strong.
const minStrongLength = 20

// IsStrong reports whether apiKey is long enough and mixes at least three
// character classes.
func IsStrong(apiKey string) bool {
	if len(apiKey) < minStrongLength {
		return false
	}
	var lower, upper, digit, other bool
	for _, r := range apiKey {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}
	classes := 0
	for _, ok := range []bool{lower, upper, digit, other} {
		if ok {
			classes++
		}
	}
	return classes >= 3
}

// AuditStrength decrypts every active key and classifies it. Usage
// counters are not touched.
func (s *Store) AuditStrength() (*Strength, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.load()
	if err != nil {
		return nil, err
	}
	st := &Strength{}
	for id, e := range sf.Keys {
		if e.Status != StatusActive {
			continue
		}
		k, err := s.open(id, e)
		if err != nil {
			return nil, err
		}
		if IsStrong(k.APIKey) {
			st.Strong = append(st.Strong, k.Name)
		} else {
			st.Weak = append(st.Weak, k.Name)
		}
	}
	sort.Strings(st.Weak)
	sort.Strings(st.Strong)
	return st, nil
}
