// Package keystore keeps API keys encrypted at rest with expiry, rotation,
// revocation and usage tracking.
package keystore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/swm-sink/promptaudit/pkg/logging"
	"github.com/swm-sink/promptaudit/pkg/vault"
)

var log = logging.New("keystore")

// Defaults.
const (
	DefaultPath     = "encrypted_keys.json"
	DefaultKeyFile  = ".claude_master.key"
	DefaultSaltFile = ".claude_salt"
	DefaultLifetime = 90 * 24 * time.Hour
	GracePeriod     = 30 * 24 * time.Hour

	storeVersion = "1.0"
)

// Key statuses.
const (
	StatusActive  = "active"
	StatusRotated = "rotated"
	StatusRevoked = "revoked"
)

var (
	ErrNotFound = errors.New("api key not found")
	ErrRevoked  = errors.New("api key is not active")
	ErrExpired  = errors.New("api key has expired")
)

// Options configure a Store.
type Options struct {
	Path      string
	MasterKey string // empty reads or generates KeyFile
	KeyFile   string
	SaltFile  string
	Now       func() time.Time
}

// Store is an encrypted API key store backed by one JSON file.
type Store struct {
	path   string
	cipher *vault.Cipher
	now    func() time.Time

	mu sync.Mutex
}

// Open prepares the cipher from the master key and the persisted salt. The
// store file is created on the first write.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.KeyFile == "" {
		opts.KeyFile = DefaultKeyFile
	}
	if opts.SaltFile == "" {
		opts.SaltFile = DefaultSaltFile
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	master := opts.MasterKey
	if master == "" {
		var err error
		if master, err = loadOrCreateMasterKey(opts.KeyFile); err != nil {
			return nil, err
		}
	}
	salt, err := vault.LoadOrCreateSalt(opts.SaltFile)
	if err != nil {
		return nil, err
	}
	c, err := vault.NewCipher(vault.DeriveKey([]byte(master), salt))
	if err != nil {
		return nil, err
	}
	return &Store{path: opts.Path, cipher: c, now: opts.Now}, nil
}

func loadOrCreateMasterKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return "", fmt.Errorf("decoding master key %s: %w", path, err)
		}
		return string(key), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("reading master key: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	key := base64.RawURLEncoding.EncodeToString(raw)
	if err := vault.WriteFileAtomic(path, []byte(base64.StdEncoding.EncodeToString([]byte(key))), 0o600); err != nil {
		return "", err
	}
	log.Warn("generated new master key; set CLAUDE_MASTER_KEY to keep access to the store", "keyFile", path)
	return key, nil
}

// KeyID derives the stable id of an API key.
func KeyID(apiKey string) string {
	return "key_" + hashKey(apiKey)[:16]
}

func hashKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

type rotation struct {
	OldKeyID  string    `json:"old_key_id"`
	NewKeyID  string    `json:"new_key_id"`
	RotatedAt time.Time `json:"rotated_at"`
}

type storeMetadata struct {
	TotalKeys       int        `json:"total_keys"`
	LastUpdated     time.Time  `json:"last_updated"`
	LastCleanup     *time.Time `json:"last_cleanup,omitempty"`
	RotationHistory []rotation `json:"rotation_history,omitempty"`
}

type entry struct {
	Name          string     `json:"name"`
	EncryptedData []byte     `json:"encrypted_data"`
	Created       time.Time  `json:"created"`
	Expires       time.Time  `json:"expires"`
	KeyHash       string     `json:"key_hash"`
	Status        string     `json:"status"`
	RotatedAt     *time.Time `json:"rotated_at,omitempty"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

type storeFile struct {
	Version  string            `json:"version"`
	Created  time.Time         `json:"created"`
	Metadata storeMetadata     `json:"metadata"`
	Keys     map[string]*entry `json:"keys"`
}

// Key is a decrypted API key record.
type Key struct {
	ID          string            `json:"-"`
	Name        string            `json:"name"`
	APIKey      string            `json:"api_key"`
	Created     time.Time         `json:"created"`
	Expires     time.Time         `json:"expires"`
	LastUsed    *time.Time        `json:"last_used"`
	UsageCount  int               `json:"usage_count"`
	Metadata    map[string]string `json:"metadata"`
	RotatedFrom string            `json:"rotated_from,omitempty"`
}

// Info describes a stored key without its material.
type Info struct {
	ID      string    `json:"key_id"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
	Expires time.Time `json:"expires"`
	Status  string    `json:"status"`
}

func (s *Store) load() (*storeFile, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		now := s.now().UTC()
		return &storeFile{
			Version:  storeVersion,
			Created:  now,
			Metadata: storeMetadata{LastUpdated: now},
			Keys:     make(map[string]*entry),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading key store: %w", err)
	}
	var sf storeFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing key store %s: %w", s.path, err)
	}
	if sf.Keys == nil {
		sf.Keys = make(map[string]*entry)
	}
	return &sf, nil
}

func (s *Store) save(sf *storeFile) error {
	sf.Metadata.TotalKeys = len(sf.Keys)
	sf.Metadata.LastUpdated = s.now().UTC()
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	return vault.WriteFileAtomic(s.path, data, 0o600)
}

// update runs fn on the loaded store under the process mutex and an
// exclusive flock, and saves when fn reports a change.
func (s *Store) update(fn func(sf *storeFile) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	lock, err := vault.Lock(s.path + ".lock")
	if err != nil {
		return err
	}
	defer lock.Unlock()

	sf, err := s.load()
	if err != nil {
		return err
	}
	changed, err := fn(sf)
	if err != nil || !changed {
		return err
	}
	return s.save(sf)
}

func (s *Store) seal(k *Key) ([]byte, error) {
	data, err := json.Marshal(k)
	if err != nil {
		return nil, err
	}
	return s.cipher.Seal(data)
}

func (s *Store) open(id string, e *entry) (*Key, error) {
	data, err := s.cipher.Open(e.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", id, err)
	}
	var k Key
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", id, err)
	}
	k.ID = id
	return &k, nil
}

// put seals k and stores it as an active entry.
func (s *Store) put(sf *storeFile, k *Key) (string, error) {
	sealed, err := s.seal(k)
	if err != nil {
		return "", err
	}
	id := KeyID(k.APIKey)
	sf.Keys[id] = &entry{
		Name:          k.Name,
		EncryptedData: sealed,
		Created:       k.Created,
		Expires:       k.Expires,
		KeyHash:       hashKey(k.APIKey),
		Status:        StatusActive,
	}
	return id, nil
}

// Store encrypts apiKey under name with the default lifetime and returns
// its id.
func (s *Store) Store(name, apiKey string, meta map[string]string) (string, error) {
	return s.StoreWithExpiry(name, apiKey, s.now().Add(DefaultLifetime), meta)
}

// StoreWithExpiry is Store with an explicit expiry.
func (s *Store) StoreWithExpiry(name, apiKey string, expires time.Time, meta map[string]string) (string, error) {
	if name == "" || apiKey == "" {
		return "", errors.New("name and key are required")
	}
	if meta == nil {
		meta = map[string]string{}
	}

	var id string
	err := s.update(func(sf *storeFile) (bool, error) {
		var err error
		id, err = s.put(sf, &Key{
			Name:     name,
			APIKey:   apiKey,
			Created:  s.now().UTC(),
			Expires:  expires.UTC(),
			Metadata: meta,
		})
		return err == nil, err
	})
	if err != nil {
		return "", err
	}
	log.Info("stored api key", "name", name, "id", id)
	return id, nil
}

// resolve finds an id by name, preferring the newest active entry, or
// treats nameOrID as an id.
func resolve(sf *storeFile, nameOrID string) (string, *entry, error) {
	var bestID string
	var best *entry
	for id, e := range sf.Keys {
		if e.Name != nameOrID {
			continue
		}
		if best == nil ||
			(e.Status == StatusActive && best.Status != StatusActive) ||
			(e.Status == best.Status && e.Created.After(best.Created)) {
			bestID, best = id, e
		}
	}
	if best != nil {
		return bestID, best, nil
	}
	if e, ok := sf.Keys[nameOrID]; ok {
		return nameOrID, e, nil
	}
	return "", nil, fmt.Errorf("%w: %s", ErrNotFound, nameOrID)
}

func (s *Store) checkUsable(id string, e *entry) error {
	if e.Status != StatusActive {
		return fmt.Errorf("%w: %s is %s", ErrRevoked, id, e.Status)
	}
	if s.now().After(e.Expires) {
		return fmt.Errorf("%w: %s", ErrExpired, id)
	}
	return nil
}

// Retrieve decrypts the key named or identified by nameOrID and records
// the use.
func (s *Store) Retrieve(nameOrID string) (*Key, error) {
	var key *Key
	err := s.update(func(sf *storeFile) (bool, error) {
		id, e, err := resolve(sf, nameOrID)
		if err != nil {
			return false, err
		}
		if err := s.checkUsable(id, e); err != nil {
			return false, err
		}
		if key, err = s.open(id, e); err != nil {
			return false, err
		}

		now := s.now().UTC()
		key.LastUsed = &now
		key.UsageCount++
		if e.EncryptedData, err = s.seal(key); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// Rotate replaces the active key id with newKey. The old entry is kept with
// status rotated and the rotation is recorded.
func (s *Store) Rotate(id, newKey string) (string, error) {
	var newID string
	err := s.update(func(sf *storeFile) (bool, error) {
		e, ok := sf.Keys[id]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := s.checkUsable(id, e); err != nil {
			return false, err
		}
		old, err := s.open(id, e)
		if err != nil {
			return false, err
		}
		if KeyID(newKey) == id {
			return false, errors.New("new key is identical to the current key")
		}

		now := s.now().UTC()
		e.Status = StatusRotated
		e.RotatedAt = &now

		newID, err = s.put(sf, &Key{
			Name:        old.Name,
			APIKey:      newKey,
			Created:     now,
			Expires:     now.Add(DefaultLifetime),
			Metadata:    old.Metadata,
			RotatedFrom: id,
		})
		if err != nil {
			return false, err
		}
		sf.Metadata.RotationHistory = append(sf.Metadata.RotationHistory, rotation{
			OldKeyID:  id,
			NewKeyID:  newID,
			RotatedAt: now,
		})
		return true, nil
	})
	if err != nil {
		return "", err
	}
	log.Info("rotated api key", "old", id, "new", newID)
	return newID, nil
}

// List returns every stored key without key material, by name then
// creation time.
func (s *Store) List() ([]Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(sf.Keys))
	for id, e := range sf.Keys {
		out = append(out, Info{ID: id, Name: e.Name, Created: e.Created, Expires: e.Expires, Status: e.Status})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

// Revoke marks a key revoked. It stays in the store until cleanup.
func (s *Store) Revoke(id string) error {
	return s.update(func(sf *storeFile) (bool, error) {
		e, ok := sf.Keys[id]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		now := s.now().UTC()
		e.Status = StatusRevoked
		e.RevokedAt = &now
		log.Info("revoked api key", "id", id)
		return true, nil
	})
}

// Delete removes a key from the store.
func (s *Store) Delete(id string) error {
	return s.update(func(sf *storeFile) (bool, error) {
		if _, ok := sf.Keys[id]; !ok {
			return false, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		delete(sf.Keys, id)
		return true, nil
	})
}

// IsExpired reports whether the key named or identified by nameOrID is past
// its expiry.
func (s *Store) IsExpired(nameOrID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.load()
	if err != nil {
		return false, err
	}
	_, e, err := resolve(sf, nameOrID)
	if err != nil {
		return false, err
	}
	return s.now().After(e.Expires), nil
}

// CleanupExpired removes keys that expired more than GracePeriod before now.
func (s *Store) CleanupExpired(now time.Time) (int, error) {
	removed := 0
	err := s.update(func(sf *storeFile) (bool, error) {
		for id, e := range sf.Keys {
			if now.After(e.Expires.Add(GracePeriod)) {
				delete(sf.Keys, id)
				removed++
			}
		}
		if removed == 0 {
			return false, nil
		}
		t := now.UTC()
		sf.Metadata.LastCleanup = &t
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Info("removed expired api keys", "count", removed)
	}
	return removed, nil
}
