package fortress

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/swm-sink/promptaudit/pkg/vault"
)

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// criticalFiles are the files whose checksums are tracked.
func (f *Fortress) criticalFiles() []string {
	return []string{f.GlobalSettings, f.LocalSettings}
}

// Checksums returns the SHA-256 of every critical file that exists.
func (f *Fortress) Checksums() map[string]string {
	sums := make(map[string]string)
	for _, path := range f.criticalFiles() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		sum, err := hashFile(path)
		if err != nil {
			f.SecurityLog(LevelError, fmt.Sprintf("HASH_CALCULATION_FAILED: %s: %v", path, err))
			continue
		}
		sums[path] = sum
	}
	return sums
}

// UpdateBaseline stores the current checksums encrypted.
func (f *Fortress) UpdateBaseline() error {
	data, err := json.MarshalIndent(f.Checksums(), "", "  ")
	if err != nil {
		return err
	}
	sealed, err := f.cipher.Seal(data)
	if err != nil {
		return err
	}
	if err := vault.WriteFileAtomic(f.IntegrityFile, sealed, 0o600); err != nil {
		f.SecurityLog(LevelError, fmt.Sprintf("INTEGRITY_UPDATE_FAILED: %v", err))
		return err
	}
	f.SecurityLog(LevelInfo, "INTEGRITY_UPDATED: System checksums updated")
	return nil
}

func (f *Fortress) loadBaseline() (map[string]string, error) {
	sealed, err := os.ReadFile(f.IntegrityFile)
	if err != nil {
		return nil, err
	}
	data, err := f.cipher.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: integrity data cannot be decrypted: %v", ErrIntegrity, err)
	}
	var sums map[string]string
	if err := json.Unmarshal(data, &sums); err != nil {
		return nil, fmt.Errorf("%w: integrity data is corrupt: %v", ErrIntegrity, err)
	}
	return sums, nil
}

// VerifyIntegrity compares the critical files against the stored baseline.
// The first run writes the baseline. A changed file or an undecryptable
// baseline returns ErrIntegrity; a file that disappeared is only a warning.
func (f *Fortress) VerifyIntegrity() error {
	stored, err := f.loadBaseline()
	if errors.Is(err, fs.ErrNotExist) {
		return f.UpdateBaseline()
	}
	if err != nil {
		f.SecurityLog(LevelCritical, fmt.Sprintf("INTEGRITY_LOAD_FAILED: %v", err))
		return err
	}

	current := f.Checksums()
	paths := make([]string, 0, len(stored))
	for p := range stored {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		sum, ok := current[p]
		if !ok {
			f.SecurityLog(LevelWarning, "INTEGRITY_WARNING: Missing component "+p)
			continue
		}
		if sum != stored[p] {
			f.SecurityLog(LevelCritical, fmt.Sprintf("INTEGRITY_VIOLATION: %s checksum mismatch", p))
			return fmt.Errorf("%w: %s checksum mismatch", ErrIntegrity, p)
		}
	}
	return nil
}
