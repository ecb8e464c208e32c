// Package history keeps a capped JSON array of past run records on disk.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultLimit is the number of entries kept when the caller passes 0.
const DefaultLimit = 50

// Load returns the entries stored at path, oldest first. A missing file is
// an empty history.
func Load[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history %s: %w", path, err)
	}

	var entries []T
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing history %s: %w", path, err)
	}
	return entries, nil
}

// fileMode matches the other reports the tool writes.
const fileMode = 0o644

// Append adds entry to the history at path and drops the oldest entries
// beyond limit. The file is replaced atomically.
func Append[T any](path string, entry T, limit int) error {
	if limit <= 0 {
		limit = DefaultLimit
	}

	entries, err := Load[T](path)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	// CreateTemp opens the file owner-only.
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("setting history permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing history: %w", err)
	}
	return nil
}
